package client

import (
	"encoding/binary"
	"sync"

	"github.com/kurumiimari/sealdex/gcrypto"
	"github.com/pkg/errors"
)

// DevChain is an in-process reference chain for dev mode and tests.
// When AutoMine is set, every height read mines one block first.
type DevChain struct {
	AutoMine bool

	height uint64
	mtx    sync.Mutex
}

func NewDevChain(startHeight uint64, autoMine bool) *DevChain {
	return &DevChain{
		AutoMine: autoMine,
		height:   startHeight,
	}
}

func (d *DevChain) Mine(n uint64) uint64 {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.height += n
	return d.height
}

func (d *DevChain) BlockHeight() (uint64, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if d.AutoMine {
		d.height++
	}
	return d.height, nil
}

func (d *DevChain) BlockHashesBatch(start uint64, count int) ([]*BatchBlockHashRes, error) {
	d.mtx.Lock()
	tip := d.height
	d.mtx.Unlock()

	out := make([]*BatchBlockHashRes, count)
	for i := 0; i < count; i++ {
		height := start + uint64(i)
		res := &BatchBlockHashRes{
			Height: height,
		}
		if height > tip {
			res.Error = errors.New("block not found")
		} else {
			res.Hash = DevBlockHash(height)
		}
		out[i] = res
	}
	return out, nil
}

func DevBlockHash(height uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return "0x" + gcrypto.Blake256([]byte("sealdex-devchain"), buf[:]).String()
}
