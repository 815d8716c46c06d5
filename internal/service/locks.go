package service

import "sync"

// plateLocks serializes decide-then-mutate sequences per plate. Events for
// different plates proceed in parallel; two events for the same plate are
// strictly ordered, which is what keeps the one-open-session-per-plate
// invariant intact under concurrent entry/exit races.
type plateLocks struct {
	mu    sync.Mutex
	locks map[string]*plateLock
}

type plateLock struct {
	mu   sync.Mutex
	refs int
}

func newPlateLocks() *plateLocks {
	return &plateLocks{locks: make(map[string]*plateLock)}
}

// lock acquires the lock for a plate and returns its release function.
// Entries are reference counted so the map does not accumulate a lock per
// plate ever seen.
func (p *plateLocks) lock(plate string) func() {
	p.mu.Lock()
	l, ok := p.locks[plate]
	if !ok {
		l = &plateLock{}
		p.locks[plate] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, plate)
		}
		p.mu.Unlock()
	}
}
