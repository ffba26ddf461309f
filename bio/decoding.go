package bio

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxVarBytesLen bounds var-length reads so a corrupt length prefix cannot
// trigger a huge allocation.
const MaxVarBytesLen = 1 << 20

var ErrVarBytesTooLong = errors.New("var bytes exceed maximum length")

type GuardReader struct {
	r   io.Reader
	N   int64
	Err error
}

func NewGuardReader(r io.Reader) *GuardReader {
	return &GuardReader{
		r: r,
	}
}

func (g *GuardReader) Read(b []byte) (int, error) {
	if g.Err != nil {
		return 0, g.Err
	}

	n, err := g.r.Read(b)
	g.N += int64(n)
	if err != nil {
		g.Err = err
	}
	return n, err
}

func ReadByte(r io.Reader) (byte, error) {
	b, err := ReadFixedBytes(r, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func ReadFixedBytes(r io.Reader, byteLen int) ([]byte, error) {
	b := make([]byte, byteLen)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func ReadVarBytes(r io.Reader) ([]byte, error) {
	l, err := ReadVarint(r)
	if err != nil {
		return nil, err
	}
	if l > MaxVarBytesLen {
		return nil, ErrVarBytesTooLong
	}
	return ReadFixedBytes(r, int(l))
}

func ReadVarint(r io.Reader) (uint64, error) {
	sigil, err := ReadByte(r)
	if err != nil {
		return 0, err
	}

	switch sigil {
	case 0xfd:
		b, err := ReadFixedBytes(r, 2)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 0xfe:
		b, err := ReadFixedBytes(r, 4)
		if err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 0xff:
		return ReadUint64LE(r)
	default:
		return uint64(sigil), nil
	}
}

func ReadUint64LE(r io.Reader) (uint64, error) {
	b, err := ReadFixedBytes(r, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}
