package gpucore

// HostKernel is a Go implementation of a compute entry point, executed once
// per invocation by the software device.
//
// Invocations of one dispatch may run concurrently. A kernel must only
// write locations no other invocation touches, which is the same contract
// a shader has without atomics. The *Invocation is reused between calls and
// must not be retained.
type HostKernel func(inv *Invocation)

// HostResource is a bound resource as seen by a host kernel.
type HostResource struct {
	Binding uint32

	// Data is the bound buffer range, or the tightly packed texels of a
	// texture (row-major, Width*PixelSize bytes per row).
	Data []byte

	// Texture dimensions; zero for buffers.
	Width, Height, PixelSize uint32

	// Sampler marks a sampler binding. Data is nil.
	Sampler bool
}

// Invocation carries the builtin ids and bound resources of one kernel call.
type Invocation struct {
	GlobalID      [3]uint32
	LocalID       [3]uint32
	WorkgroupID   [3]uint32
	NumWorkgroups [3]uint32
	WorkgroupSize [3]uint32

	groups [][]HostResource
}

// NewInvocation creates an invocation over the given bind groups.
func NewInvocation(groups [][]HostResource, workgroupSize, numWorkgroups [3]uint32) *Invocation {
	return &Invocation{
		groups:        groups,
		WorkgroupSize: workgroupSize,
		NumWorkgroups: numWorkgroups,
	}
}

// Resource returns the resource bound at (group, binding), or nil.
func (inv *Invocation) Resource(group, binding uint32) *HostResource {
	if int(group) >= len(inv.groups) {
		return nil
	}
	entries := inv.groups[group]
	for i := range entries {
		if entries[i].Binding == binding {
			return &entries[i]
		}
	}
	return nil
}

// Bytes returns the data bound at (group, binding), or nil.
func (inv *Invocation) Bytes(group, binding uint32) []byte {
	if r := inv.Resource(group, binding); r != nil {
		return r.Data
	}
	return nil
}

// GlobalIndex linearizes GlobalID in x-major order.
func (inv *Invocation) GlobalIndex() uint32 {
	sx := inv.NumWorkgroups[0] * inv.WorkgroupSize[0]
	sy := inv.NumWorkgroups[1] * inv.WorkgroupSize[1]
	return inv.GlobalID[0] + inv.GlobalID[1]*sx + inv.GlobalID[2]*sx*sy
}
