//go:build !nogpu

package gpgpu

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpgpu/backend/native"
)

func openNative(o *options) (Adapter, error) {
	return native.Open(native.WithLogger(o.log()))
}

func wrapProvider(provider gpucontext.DeviceProvider, o *options) (Adapter, error) {
	return native.FromProvider(provider, native.WithLogger(o.log()))
}
