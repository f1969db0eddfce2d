package chat

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// keyedMutex serializes mutations per message id with a fixed set of lock
// stripes. Two ids may share a stripe; that only costs contention, never
// correctness.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

// lock acquires the stripe for the key and returns the unlock func.
func (k *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
