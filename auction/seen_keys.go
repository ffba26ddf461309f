package auction

import (
	"sync"

	"github.com/willf/bloom"
)

// https://hur.st/bloomfilter/?n=1M&p=1.0E-7&m=&k=

const (
	SeenKeysBloomM = 3354775
	SeenKeysBloomK = 23
)

// seenKeys is a bloom filter over processed idempotency keys. A miss means
// the key was never processed and the database lookup can be skipped.
type seenKeys struct {
	filter *bloom.BloomFilter
	mtx    sync.RWMutex
}

func newSeenKeys(keys []string) *seenKeys {
	filter := bloom.New(SeenKeysBloomM, SeenKeysBloomK)
	for _, key := range keys {
		filter.AddString(key)
	}
	return &seenKeys{
		filter: filter,
	}
}

func (s *seenKeys) Add(key string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.filter.AddString(key)
}

func (s *seenKeys) MaybeSeen(key string) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.filter.TestString(key)
}
