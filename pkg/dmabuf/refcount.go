package dmabuf

import "sync/atomic"

// refcount is an atomic reference counter shared between the control
// path and the interrupt dispatch path.
type refcount struct {
	v atomic.Int32
}

func (r *refcount) set(n int32) { r.v.Store(n) }

func (r *refcount) inc() { r.v.Add(1) }

func (r *refcount) dec() int32 { return r.v.Add(-1) }

func (r *refcount) get() int { return int(r.v.Load()) }
