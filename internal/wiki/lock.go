package wiki

import "sync"

// keyedMutex hands out one mutex per page name. Pages are never deleted, so
// the map is bounded by the catalog size.
type keyedMutex struct {
	locks sync.Map
}

// Lock locks key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
