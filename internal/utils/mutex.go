package utils

import "sync"

// KeyedMutex hands out one mutex per key and forgets keys nobody holds.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu       sync.Mutex
	refCount int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyedLock),
	}
}

func (km *KeyedMutex) Locked(key string) bool {
	km.mu.Lock()
	defer km.mu.Unlock()
	l, exists := km.locks[key]
	return exists && l.refCount > 0
}

// TryLock acquires the key only when no one else holds or waits for it.
func (km *KeyedMutex) TryLock(key string) bool {
	km.mu.Lock()
	defer km.mu.Unlock()
	l, exists := km.locks[key]
	if exists && l.refCount > 0 {
		return false
	}
	if !exists {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refCount++
	l.mu.Lock()
	return true
}

func (km *KeyedMutex) Lock(key string) {
	km.mu.Lock()
	l, exists := km.locks[key]
	if !exists {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refCount++
	km.mu.Unlock()

	l.mu.Lock()
}

func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	defer km.mu.Unlock()

	l, exists := km.locks[key]
	if !exists {
		panic("unlock of unlocked key " + key)
	}
	l.refCount--
	if l.refCount == 0 {
		delete(km.locks, key)
	}
	l.mu.Unlock()
}
