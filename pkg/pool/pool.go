// Package pool provides pool structures to help reduce garbage collector pressure.
package pool

import (
	gbp "github.com/libp2p/go-buffer-pool"
)

var sharedPool = &gbp.BufferPool{}

// Bytes is a pool of byte slices that can be re-used.  Slices in
// this pool will not be garbage collected when not in use.
type Bytes struct{}

// NewBytes returns a Bytes pool with capacity for max byte slices
// to be pool.
func NewBytes(max int) *Bytes {
	return &Bytes{}
}

// Get returns a byte slice size with at least sz capacity. Items
// returned may not be in the zero state and should be reset by the
// caller.
func (p *Bytes) Get(sz int) []byte {
	return sharedPool.Get(sz)
}

// Put returns a slice back to the pool.  If the pool is full, the byte
// slice is discarded.
func (p *Bytes) Put(c []byte) {
	sharedPool.Put(c)
}

// Generic is a bounded freelist of arbitrary items.  Items returned by Get
// may not be in the zero state and should be reset by the caller.
type Generic struct {
	pool chan interface{}
	fn   func(sz int) interface{}
}

// NewGeneric returns a Generic pool holding at most max items.  fn is
// invoked to allocate a new item when the pool is empty.
func NewGeneric(max int, fn func(sz int) interface{}) *Generic {
	return &Generic{
		pool: make(chan interface{}, max),
		fn:   fn,
	}
}

// Get returns an item from the pool, allocating one with capacity hint sz
// if the pool is empty.
func (p *Generic) Get(sz int) interface{} {
	select {
	case item := <-p.pool:
		return item
	default:
		return p.fn(sz)
	}
}

// Put returns an item to the pool.  If the pool is full, the item is
// discarded.
func (p *Generic) Put(item interface{}) {
	select {
	case p.pool <- item:
	default:
	}
}
