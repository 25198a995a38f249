package gpgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unsafe"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gogpu/gpgpu/internal/gpucore"
)

// HostKernel is a Go implementation of a compute entry point. The
// software device runs it once per invocation.
type HostKernel = gpucore.HostKernel

// Invocation carries the builtin ids and bound resources of one host
// kernel call.
type Invocation = gpucore.Invocation

// EntryPoint is a compute entry point of a shader.
type EntryPoint struct {
	Name          string
	WorkgroupSize [3]uint32
}

// ReflectedBinding is a resource binding declared by a shader.
type ReflectedBinding struct {
	Group   uint32
	Binding uint32
	Kind    BindingKind
	Name    string
}

// Shader is compute shader source plus its reflected interface.
type Shader struct {
	label    string
	wgsl     string
	spirv    []uint32
	entries  map[string]EntryPoint
	bindings []ReflectedBinding
	host     map[string]HostKernel
}

// ShaderFromWGSL parses and validates WGSL and reflects its compute entry
// points and resource bindings.
func ShaderFromWGSL(label, source string) (*Shader, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrShader, label, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrShader, label, err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrShader, label, err)
	}
	if len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrShader, label, errors.Join(errs...))
	}

	s := &Shader{label: label, wgsl: source, entries: make(map[string]EntryPoint)}
	for _, ep := range module.EntryPoints {
		if ep.Stage == ir.StageCompute {
			s.entries[ep.Name] = EntryPoint{Name: ep.Name, WorkgroupSize: ep.Workgroup}
		}
	}
	s.bindings = reflectBindings(module)
	return s, nil
}

// ShaderFromWGSLFile reads a WGSL file. The file name becomes the label.
func ShaderFromWGSLFile(path string) (*Shader, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shader: %w", err)
	}
	return ShaderFromWGSL(filepath.Base(path), string(src))
}

// ShaderFromSPIRV reflects the compute entry points of a SPIR-V module.
// Resource bindings are not reflected.
func ShaderFromSPIRV(label string, words []uint32) (*Shader, error) {
	entries, err := spirvEntryPoints(words)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrShader, label, err)
	}
	return &Shader{label: label, spirv: slices.Clone(words), entries: entries}, nil
}

// ShaderFromSPIRVFile reads a little-endian SPIR-V binary.
func ShaderFromSPIRVFile(path string) (*Shader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shader: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: %s: %d bytes is not a whole number of words", ErrShader, path, len(raw))
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return ShaderFromSPIRV(filepath.Base(path), words)
}

// NewHostShader returns a shader without device source. Its entry points
// come from WithHostKernel, so it only runs on the software device.
func NewHostShader(label string) *Shader {
	return &Shader{label: label, entries: make(map[string]EntryPoint)}
}

// WithHostKernel attaches a Go implementation of entry, used by the
// software device. A zero workgroupSize keeps the reflected size. On a
// shader with device source, entry must be one of its compute entry points.
func (s *Shader) WithHostKernel(entry string, workgroupSize [3]uint32, fn HostKernel) *Shader {
	ep, ok := s.entries[entry]
	if !ok {
		if s.hasSource() {
			panic(&EntryPointError{Shader: s.label, EntryPoint: entry, Available: s.EntryPointNames()})
		}
		ep = EntryPoint{Name: entry}
	}
	if workgroupSize != [3]uint32{} {
		ep.WorkgroupSize = workgroupSize
	}
	for i, n := range ep.WorkgroupSize {
		if n == 0 {
			ep.WorkgroupSize[i] = 1
		}
	}
	s.entries[entry] = ep
	if s.host == nil {
		s.host = make(map[string]HostKernel)
	}
	s.host[entry] = fn
	return s
}

func (s *Shader) hasSource() bool {
	return s.wgsl != "" || len(s.spirv) > 0
}

// Label returns the shader label.
func (s *Shader) Label() string { return s.label }

// EntryPoint returns the compute entry point called name.
func (s *Shader) EntryPoint(name string) (EntryPoint, bool) {
	ep, ok := s.entries[name]
	return ep, ok
}

// EntryPointNames returns the sorted compute entry point names.
func (s *Shader) EntryPointNames() []string {
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Bindings returns the reflected resource bindings, sorted by group and
// binding. SPIR-V and host shaders report none.
func (s *Shader) Bindings() []ReflectedBinding {
	return slices.Clone(s.bindings)
}

// SPIRV returns the shader as SPIR-V words, compiling WGSL with naga.
func (s *Shader) SPIRV() ([]uint32, error) {
	if len(s.spirv) > 0 {
		return slices.Clone(s.spirv), nil
	}
	if s.wgsl == "" {
		return nil, fmt.Errorf("%w: %s has no device source", ErrShader, s.label)
	}
	raw, err := naga.Compile(s.wgsl)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrShader, s.label, err)
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return words, nil
}

// checkLayouts compares the reflected bindings with layouts and returns
// a description of each disagreement.
func (s *Shader) checkLayouts(layouts []*SetLayout) []string {
	var issues []string
	for _, b := range s.bindings {
		if int(b.Group) >= len(layouts) {
			issues = append(issues, fmt.Sprintf("%s (group %d) has no layout", b.Name, b.Group))
			continue
		}
		slots := layouts[b.Group].slots
		if int(b.Binding) >= len(slots) {
			issues = append(issues, fmt.Sprintf("%s (group %d binding %d) has no slot", b.Name, b.Group, b.Binding))
			continue
		}
		if got := slots[b.Binding].Kind; got != b.Kind {
			issues = append(issues, fmt.Sprintf("%s (group %d binding %d) is %s, layout has %s", b.Name, b.Group, b.Binding, b.Kind, got))
		}
	}
	return issues
}

// reflectBindings lists the resource globals of a module.
func reflectBindings(m *ir.Module) []ReflectedBinding {
	var out []ReflectedBinding
	for _, g := range m.GlobalVariables {
		if g.Binding == nil {
			continue
		}
		kind, ok := globalKind(m, g)
		if !ok {
			continue
		}
		out = append(out, ReflectedBinding{
			Group:   g.Binding.Group,
			Binding: g.Binding.Binding,
			Kind:    kind,
			Name:    g.Name,
		})
	}
	slices.SortFunc(out, func(a, b ReflectedBinding) int {
		if a.Group != b.Group {
			return int(a.Group) - int(b.Group)
		}
		return int(a.Binding) - int(b.Binding)
	})
	return out
}

func globalKind(m *ir.Module, g ir.GlobalVariable) (BindingKind, bool) {
	switch g.Space {
	case ir.SpaceUniform:
		return KindUniformBuffer, true
	case ir.SpaceStorage:
		return KindBuffer, true
	case ir.SpaceHandle:
		if int(g.Type) >= len(m.Types) {
			return 0, false
		}
		switch t := m.Types[g.Type].Inner.(type) {
		case ir.ImageType:
			if t.Class == ir.ImageClassStorage {
				return KindImage, true
			}
			return KindConstImage, true
		case ir.SamplerType:
			return KindSampler, true
		}
	}
	return 0, false
}

// SPIR-V constants used by entry point reflection.
const (
	spirvMagic          = 0x07230203
	spirvHeaderWords    = 5
	opEntryPoint        = 15
	opExecutionMode     = 16
	execModelGLCompute  = 5
	execModeLocalSize   = 17
	spirvWordCountShift = 16
	spirvOpcodeMask     = 0xffff
)

// spirvEntryPoints scans OpEntryPoint and OpExecutionMode LocalSize.
func spirvEntryPoints(words []uint32) (map[string]EntryPoint, error) {
	if len(words) < spirvHeaderWords || words[0] != spirvMagic {
		return nil, errors.New("not a SPIR-V module")
	}
	names := make(map[uint32]string)
	sizes := make(map[uint32][3]uint32)
	for i := spirvHeaderWords; i < len(words); {
		count := int(words[i] >> spirvWordCountShift)
		op := words[i] & spirvOpcodeMask
		if count == 0 || i+count > len(words) {
			return nil, fmt.Errorf("truncated instruction at word %d", i)
		}
		inst := words[i : i+count]
		switch op {
		case opEntryPoint:
			if count >= 4 && inst[1] == execModelGLCompute {
				names[inst[2]] = spirvString(inst[3:])
			}
		case opExecutionMode:
			if count >= 6 && inst[2] == execModeLocalSize {
				sizes[inst[1]] = [3]uint32{inst[3], inst[4], inst[5]}
			}
		}
		i += count
	}

	out := make(map[string]EntryPoint, len(names))
	for id, name := range names {
		wg := sizes[id]
		for i, n := range wg {
			if n == 0 {
				wg[i] = 1
			}
		}
		out[name] = EntryPoint{Name: name, WorkgroupSize: wg}
	}
	return out, nil
}

// spirvString decodes a nul-terminated literal string packed in words.
func spirvString(words []uint32) string {
	var b strings.Builder
	for _, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return b.String()
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Elements views the buffer bound at (group, binding) as []T. It is meant
// for host kernels; the slice aliases device memory of the software device.
func Elements[T any](inv *Invocation, group, binding uint32) []T {
	raw := inv.Bytes(group, binding)
	size := elemSize[T]()
	if len(raw) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), len(raw)/size)
}
