package governance

import "sync"

// proposalLocks hands out one mutex per proposal id so that concurrent
// votes on the same proposal serialize while votes on different proposals
// proceed independently. Entries are refcounted and dropped when the last
// holder releases, so the table does not grow with proposal history.
type proposalLocks struct {
	mu    sync.Mutex
	locks map[uint64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newProposalLocks() *proposalLocks {
	return &proposalLocks{locks: make(map[uint64]*lockEntry)}
}

// Acquire blocks until the caller holds the lock for id and returns the
// release function.
func (p *proposalLocks) Acquire(id uint64) func() {
	p.mu.Lock()
	e, ok := p.locks[id]
	if !ok {
		e = &lockEntry{}
		p.locks[id] = e
	}
	e.refs++
	p.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		p.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
	}
}
