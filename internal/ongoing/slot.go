// Package ongoing implements the single-occupancy gate for long-running,
// cancellable account operations such as providing a backup.
package ongoing

import (
	"sync"

	"github.com/dmitrijs2005/keeperlink/internal/common"
)

// Slot admits at most one ongoing operation at a time. The zero value is
// ready to use.
type Slot struct {
	mu     sync.Mutex
	gen    uint64
	holder *Handle
}

// Handle is held by the running operation. Done is closed when the slot is
// stopped from outside.
type Handle struct {
	slot *Slot
	gen  uint64
	done chan struct{}
	once sync.Once
}

// Alloc takes the slot. It never blocks: if the slot is held, it returns
// common.ErrBusy.
func (s *Slot) Alloc() (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder != nil {
		return nil, common.ErrBusy
	}
	s.gen++
	h := &Handle{slot: s, gen: s.gen, done: make(chan struct{})}
	s.holder = h
	return h, nil
}

// Busy reports whether an operation holds the slot.
func (s *Slot) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder != nil
}

// Stop signals the current holder to cancel and frees the slot. It is a
// no-op when the slot is free.
func (s *Slot) Stop() {
	s.mu.Lock()
	h := s.holder
	s.holder = nil
	s.mu.Unlock()

	if h != nil {
		h.signal()
	}
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Release frees the slot if this handle still owns it. Calling it more than
// once, or after Stop, is safe.
func (h *Handle) Release() {
	s := h.slot
	s.mu.Lock()
	if s.holder == h && s.gen == h.gen {
		s.holder = nil
	}
	s.mu.Unlock()
}

func (h *Handle) signal() {
	h.once.Do(func() { close(h.done) })
}
