package gpgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// SamplerConfig configures a sampler.
type SamplerConfig struct {
	AddressMode gputypes.AddressMode
	Filter      gputypes.FilterMode
}

// Sampler is a sampler bound next to ConstImages.
type Sampler struct {
	res    resource
	id     gpucore.SamplerID
	config SamplerConfig
}

// NewSampler creates a sampler. The zero SamplerConfig clamps to edge
// with nearest filtering.
func NewSampler(fw *Framework, cfg SamplerConfig) (*Sampler, error) {
	if fw.isClosed() {
		return nil, ErrClosed
	}
	if cfg.AddressMode == 0 {
		cfg.AddressMode = gputypes.AddressModeClampToEdge
	}
	if cfg.Filter == 0 {
		cfg.Filter = gputypes.FilterModeNearest
	}
	id, err := fw.dev.CreateSampler(&gpucore.SamplerDesc{
		Label:       fw.label("sampler"),
		AddressMode: cfg.AddressMode,
		Filter:      cfg.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sampler: %w", ErrAllocation, err)
	}
	s := &Sampler{id: id, config: cfg}
	if err := s.res.register(fw, func() { fw.dev.DestroySampler(id) }); err != nil {
		fw.dev.DestroySampler(id)
		return nil, err
	}
	return s, nil
}

// Config returns the sampler configuration.
func (s *Sampler) Config() SamplerConfig { return s.config }

// Release destroys the device sampler. Release is idempotent.
func (s *Sampler) Release() { s.res.Release() }

func (s *Sampler) bindingKind() BindingKind { return KindSampler }
func (s *Sampler) framework() *Framework    { return s.res.fw }
func (s *Sampler) alive() error             { return s.res.check() }

func (s *Sampler) entry(index uint32) gpucore.BindGroupEntry {
	return gpucore.BindGroupEntry{Binding: index, Sampler: s.id}
}
