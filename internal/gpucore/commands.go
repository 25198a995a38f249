package gpucore

// Command is one recorded device operation.
type Command interface {
	command()
}

// CopyBufferToBuffer copies Size bytes between buffers.
type CopyBufferToBuffer struct {
	Src       BufferID
	SrcOffset uint64
	Dst       BufferID
	DstOffset uint64
	Size      uint64
}

// CopyTextureToBuffer copies a Width x Height region starting at the
// texture origin into a buffer laid out by Layout.
type CopyTextureToBuffer struct {
	Src    TextureID
	Dst    BufferID
	Layout ImageLayout
	Width  uint32
	Height uint32
}

// CopyBufferToTexture copies a Width x Height region from a buffer laid out
// by Layout to the texture origin.
type CopyBufferToTexture struct {
	Src    BufferID
	Dst    TextureID
	Layout ImageLayout
	Width  uint32
	Height uint32
}

// Dispatch runs one compute pass: bind the pipeline, bind BindGroups at
// indexes 0..n-1, dispatch X*Y*Z workgroups.
type Dispatch struct {
	Label      string
	Pipeline   ComputePipelineID
	BindGroups []BindGroupID
	X, Y, Z    uint32
}

func (CopyBufferToBuffer) command()  {}
func (CopyTextureToBuffer) command() {}
func (CopyBufferToTexture) command() {}
func (Dispatch) command()            {}

// CommandList is an ordered batch of commands submitted together.
type CommandList struct {
	Label    string
	Commands []Command
}

// NewCommandList creates an empty command list.
func NewCommandList(label string) *CommandList {
	return &CommandList{Label: label}
}

// CopyBuffer records a buffer-to-buffer copy.
func (l *CommandList) CopyBuffer(src BufferID, srcOffset uint64, dst BufferID, dstOffset, size uint64) {
	l.Commands = append(l.Commands, CopyBufferToBuffer{
		Src: src, SrcOffset: srcOffset, Dst: dst, DstOffset: dstOffset, Size: size,
	})
}

// CopyTextureToBuffer records a texture readback copy.
func (l *CommandList) CopyTextureToBuffer(src TextureID, dst BufferID, layout ImageLayout, width, height uint32) {
	l.Commands = append(l.Commands, CopyTextureToBuffer{
		Src: src, Dst: dst, Layout: layout, Width: width, Height: height,
	})
}

// CopyBufferToTexture records a texture upload copy.
func (l *CommandList) CopyBufferToTexture(src BufferID, dst TextureID, layout ImageLayout, width, height uint32) {
	l.Commands = append(l.Commands, CopyBufferToTexture{
		Src: src, Dst: dst, Layout: layout, Width: width, Height: height,
	})
}

// Dispatch records a compute pass.
func (l *CommandList) Dispatch(pipeline ComputePipelineID, groups []BindGroupID, x, y, z uint32) {
	l.Commands = append(l.Commands, Dispatch{
		Label: l.Label, Pipeline: pipeline, BindGroups: groups, X: x, Y: y, Z: z,
	})
}

// Len returns the number of recorded commands.
func (l *CommandList) Len() int {
	return len(l.Commands)
}
