package gpgpu

import (
	"sync/atomic"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// resource tracks the lifetime of one handle.
type resource struct {
	fw       *Framework
	key      uint64
	released atomic.Bool
	destroy  func()
}

// register ties the handle to fw. destroy runs exactly once, on Release
// or on Framework.Close.
func (r *resource) register(fw *Framework, destroy func()) error {
	r.fw = fw
	r.destroy = destroy
	return fw.track(r)
}

func (r *resource) release() {
	if r.released.CompareAndSwap(false, true) && r.destroy != nil {
		r.destroy()
	}
}

// Release destroys the device object and forgets the handle.
func (r *resource) Release() {
	if r.fw == nil {
		return
	}
	r.release()
	r.fw.untrack(r)
}

// check returns ErrClosed or ErrReleased for dead handles.
func (r *resource) check() error {
	if r.fw.isClosed() {
		return ErrClosed
	}
	if r.released.Load() {
		return ErrReleased
	}
	return nil
}

// bindable is implemented by every handle that can appear in SetBindings.
type bindable interface {
	bindingKind() BindingKind
	framework() *Framework
	alive() error
	entry(index uint32) gpucore.BindGroupEntry
}
