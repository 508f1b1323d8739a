package util

import "sync"

// KeyedMutex serializes work per numeric key. Locks are created on demand
// and dropped again once the last holder releases them, so the map stays
// bounded by the number of keys currently in use.
type KeyedMutex struct {
	mx    sync.Mutex
	locks map[uint]*keyLock
}

type keyLock struct {
	mx   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[uint]*keyLock)}
}

func (k *KeyedMutex) Lock(key uint) {
	k.mx.Lock()

	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}

	l.refs++
	k.mx.Unlock()

	l.mx.Lock()
}

func (k *KeyedMutex) Unlock(key uint) {
	k.mx.Lock()

	l, ok := k.locks[key]
	if ok {
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
	}

	k.mx.Unlock()

	if ok {
		l.mx.Unlock()
	}
}
