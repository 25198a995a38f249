//go:build nogpu

package gpgpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpgpu/backend/native"
)

func openNative(*options) (Adapter, error) {
	return nil, fmt.Errorf("%w: built with nogpu", native.ErrNoBackend)
}

func wrapProvider(gpucontext.DeviceProvider, *options) (Adapter, error) {
	return nil, fmt.Errorf("%w: built with nogpu", native.ErrNoHAL)
}
