package bio

import (
	"encoding/binary"
	"io"
	"math"
)

// GuardWriter records the first write error so that a sequence of writes
// can be checked once at the end.
type GuardWriter struct {
	w   io.Writer
	N   int64
	Err error
}

func NewGuardWriter(w io.Writer) *GuardWriter {
	return &GuardWriter{
		w: w,
	}
}

func (g *GuardWriter) Write(b []byte) (int, error) {
	if g.Err != nil {
		return 0, g.Err
	}

	n, err := g.w.Write(b)
	g.N += int64(n)
	if err != nil {
		g.Err = err
	}
	return n, err
}

func WriteByte(w io.Writer, b byte) (int, error) {
	return w.Write([]byte{b})
}

func WriteVarBytes(w io.Writer, b []byte) (int, error) {
	n, err := WriteVarint(w, uint64(len(b)))
	if err != nil {
		return n, err
	}
	m, err := w.Write(b)
	return n + m, err
}

func WriteVarint(w io.Writer, n uint64) (int, error) {
	var buf []byte
	switch {
	case n <= 0xfc:
		buf = []byte{uint8(n)}
	case n <= math.MaxUint16:
		buf = make([]byte, 3)
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(n))
	case n <= math.MaxUint32:
		buf = make([]byte, 5)
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(n))
	default:
		buf = make([]byte, 9)
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:], n)
	}
	return w.Write(buf)
}

func WriteUint64LE(w io.Writer, n uint64) (int, error) {
	return w.Write(Uint64LE(n))
}

func Uint64LE(n uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, n)
	return b
}

func Uint64BE(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}
