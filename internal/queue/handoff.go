// Package queue implements the handoff queue that bridges the prefetch
// worker and the consumer over a fixed pool of reusable items.
package queue

import (
	"context"
	"sync"

	"github.com/bamsammich/segfeed/internal/errdefs"
)

// Census is a consistent snapshot of where the pool's items are.
type Census struct {
	Free  int
	Ready int
	Out   int // popped and not yet pushed back
	Size  int
}

// Handoff holds two FIFOs, free and ready, over a pool of items fixed at
// construction. Every item is on the free side, on the ready side, or checked
// out by whoever popped it last; pushes never block because the pool bounds
// both sides.
//
// Thread-safety: all methods are safe for concurrent use. A single mutex
// guards both sides so Census never observes an item twice.
type Handoff[T any] struct {
	mu        sync.Mutex
	freeCond  *sync.Cond
	readyCond *sync.Cond
	free      []T
	ready     []T
	out       int
	size      int
	closed    bool
}

// NewHandoff creates a Handoff whose pool is items, all starting free.
func NewHandoff[T any](items []T) *Handoff[T] {
	h := &Handoff[T]{
		free:  append([]T(nil), items...),
		ready: make([]T, 0, len(items)),
		size:  len(items),
	}
	h.freeCond = sync.NewCond(&h.mu)
	h.readyCond = sync.NewCond(&h.mu)
	return h
}

// PopFree blocks until a free item is available. It returns errdefs.ErrClosed
// after Close, or ctx.Err() when ctx is cancelled first.
func (h *Handoff[T]) PopFree(ctx context.Context) (T, error) {
	return h.pop(ctx, &h.free, h.freeCond)
}

// PopReady blocks until a ready item is available. Items come out in the
// order they were pushed.
func (h *Handoff[T]) PopReady(ctx context.Context) (T, error) {
	return h.pop(ctx, &h.ready, h.readyCond)
}

// PushFree returns an item to the free side.
func (h *Handoff[T]) PushFree(item T) {
	h.push(&h.free, h.freeCond, item)
}

// PushReady publishes an item on the ready side.
func (h *Handoff[T]) PushReady(item T) {
	h.push(&h.ready, h.readyCond, item)
}

// Close wakes every blocked pop with errdefs.ErrClosed. Items already queued
// stay put so Census remains balanced. Idempotent.
func (h *Handoff[T]) Close() {
	h.mu.Lock()
	h.closed = true
	h.freeCond.Broadcast()
	h.readyCond.Broadcast()
	h.mu.Unlock()
}

// Census returns where the pool's items currently are.
func (h *Handoff[T]) Census() Census {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Census{Free: len(h.free), Ready: len(h.ready), Out: h.out, Size: h.size}
}

func (h *Handoff[T]) pop(ctx context.Context, side *[]T, cond *sync.Cond) (T, error) {
	var zero T

	// Wake the waiter when ctx ends; the broadcast must hold the lock so it
	// cannot slip between the condition check and Wait.
	stop := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		cond.Broadcast()
		h.mu.Unlock()
	})
	defer stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	for len(*side) == 0 && !h.closed && ctx.Err() == nil {
		cond.Wait()
	}
	if h.closed {
		return zero, errdefs.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	// Shift in place so the backing array, sized to the pool, never regrows.
	item := (*side)[0]
	n := copy(*side, (*side)[1:])
	(*side)[n] = zero
	*side = (*side)[:n]
	h.out++
	return item, nil
}

func (h *Handoff[T]) push(side *[]T, cond *sync.Cond, item T) {
	h.mu.Lock()
	*side = append(*side, item)
	h.out--
	cond.Signal()
	h.mu.Unlock()
}
