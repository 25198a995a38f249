package software

import (
	"fmt"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// prepareDispatch validates a compute pass and resolves its bindings to
// host memory. Must be called with mu held.
func (a *Adapter) prepareDispatch(c gpucore.Dispatch) (func(), error) {
	p, ok := a.pipelines[c.Pipeline]
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %d", ErrUnknownResource, c.Pipeline)
	}
	if len(c.BindGroups) != len(p.layouts) {
		return nil, fmt.Errorf("%w: pipeline %q expects %d bind groups, got %d",
			ErrLayoutMismatch, p.label, len(p.layouts), len(c.BindGroups))
	}
	limit := a.caps.MaxComputeWorkgroupsPerDimension
	if c.X > limit || c.Y > limit || c.Z > limit {
		return nil, fmt.Errorf("%w: dispatch %dx%dx%d, max %d per dimension", ErrLimitExceeded, c.X, c.Y, c.Z, limit)
	}

	groups := make([][]gpucore.HostResource, len(c.BindGroups))
	for i, id := range c.BindGroups {
		bg, ok := a.bindGroups[id]
		if !ok {
			return nil, fmt.Errorf("%w: bind group %d", ErrUnknownResource, id)
		}
		if bg.layout != p.layouts[i] {
			return nil, fmt.Errorf("%w: bind group %d at index %d", ErrLayoutMismatch, id, i)
		}
		res, err := a.hostResources(bg)
		if err != nil {
			return nil, err
		}
		groups[i] = res
	}

	if c.X == 0 || c.Y == 0 || c.Z == 0 {
		return func() {}, nil
	}

	num := [3]uint32{c.X, c.Y, c.Z}
	wg := p.workgroup
	kernel := p.kernel
	total := int(c.X) * int(c.Y) * int(c.Z)

	return func() {
		a.pool.Run(total, func(i int) {
			inv := gpucore.NewInvocation(groups, wg, num)
			id := uint32(i)
			inv.WorkgroupID = [3]uint32{id % num[0], (id / num[0]) % num[1], id / (num[0] * num[1])}
			for lz := range wg[2] {
				for ly := range wg[1] {
					for lx := range wg[0] {
						inv.LocalID = [3]uint32{lx, ly, lz}
						inv.GlobalID = [3]uint32{
							inv.WorkgroupID[0]*wg[0] + lx,
							inv.WorkgroupID[1]*wg[1] + ly,
							inv.WorkgroupID[2]*wg[2] + lz,
						}
						kernel(inv)
					}
				}
			}
		})
	}, nil
}

// hostResources exposes a bind group's resources as host memory.
// Must be called with mu held.
func (a *Adapter) hostResources(bg *bindGroup) ([]gpucore.HostResource, error) {
	out := make([]gpucore.HostResource, 0, len(bg.entries))
	for _, e := range bg.entries {
		r := gpucore.HostResource{Binding: e.Binding}
		switch {
		case e.Buffer != gpucore.InvalidID:
			buf, err := a.usableBuffer(e.Buffer, 0)
			if err != nil {
				return nil, err
			}
			end := uint64(len(buf.data))
			if e.Size != 0 {
				end = e.Offset + e.Size
			}
			r.Data = buf.data[e.Offset:end]
		case e.Texture != gpucore.InvalidID:
			tex, ok := a.textures[e.Texture]
			if !ok {
				return nil, fmt.Errorf("%w: texture %d", ErrUnknownResource, e.Texture)
			}
			r.Data = tex.data
			r.Width, r.Height, r.PixelSize = tex.desc.Width, tex.desc.Height, tex.desc.PixelSize
		case e.Sampler != gpucore.InvalidID:
			if _, ok := a.samplers[e.Sampler]; !ok {
				return nil, fmt.Errorf("%w: sampler %d", ErrUnknownResource, e.Sampler)
			}
			r.Sampler = true
		}
		out = append(out, r)
	}
	return out, nil
}
