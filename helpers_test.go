package gpgpu

import (
	"testing"
)

// newTestFramework returns a software-backed Framework without a
// background poller, closed when the test ends.
func newTestFramework(t testing.TB, opts ...Option) *Framework {
	t.Helper()
	opts = append([]Option{WithBackend(BackendSoftware), WithPollInterval(0)}, opts...)
	fw, err := New(opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { fw.Close() })
	return fw
}

func mustBuffer[T any](t testing.TB, fw *Framework, data []T) *Buffer[T] {
	t.Helper()
	b, err := NewBufferFrom(fw, data)
	if err != nil {
		t.Fatalf("NewBufferFrom(%d) failed: %v", len(data), err)
	}
	return b
}

func mustRead[T any](t testing.TB, b *Buffer[T]) []T {
	t.Helper()
	got, err := b.Read()
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	return got
}

func mustWGSL(t testing.TB, label, src string) *Shader {
	t.Helper()
	s, err := ShaderFromWGSL(label, src)
	if err != nil {
		t.Fatalf("ShaderFromWGSL(%s) failed: %v", label, err)
	}
	return s
}

// expectPanic runs fn and returns the recovered value.
func expectPanic(t testing.TB, fn func()) (v any) {
	t.Helper()
	defer func() {
		v = recover()
		if v == nil {
			t.Fatal("expected panic")
		}
	}()
	fn()
	return nil
}

const squareWGSL = `
struct Params {
    n: u32,
}

@group(0) @binding(0) var<storage, read_write> data: array<u32>;
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= params.n) {
        return;
    }
    data[id.x] = data[id.x] * data[id.x];
}
`

// squareHost mirrors squareWGSL for the software device.
func squareHost(inv *Invocation) {
	n := Elements[uint32](inv, 0, 1)[0]
	i := inv.GlobalID[0]
	if i >= n {
		return
	}
	data := Elements[uint32](inv, 0, 0)
	data[i] *= data[i]
}

func squareShader(t testing.TB) *Shader {
	t.Helper()
	return mustWGSL(t, "square", squareWGSL).WithHostKernel("main", [3]uint32{}, squareHost)
}

func squareLayout() *SetLayout {
	return NewSetLayout().AddBuffer(ReadWrite).AddUniformBuffer()
}

const multiplyWGSL = `
@group(0) @binding(0) var<storage, read> a: array<u32>;
@group(0) @binding(1) var<storage, read> b: array<u32>;
@group(0) @binding(2) var<storage, read_write> c: array<u32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    c[id.x] = a[id.x] * b[id.x];
}
`

func multiplyHost(inv *Invocation) {
	i := inv.GlobalID[0]
	a := Elements[uint32](inv, 0, 0)
	b := Elements[uint32](inv, 0, 1)
	c := Elements[uint32](inv, 0, 2)
	c[i] = a[i] * b[i]
}

func multiplyShader(t testing.TB) *Shader {
	t.Helper()
	return mustWGSL(t, "multiply", multiplyWGSL).WithHostKernel("main", [3]uint32{}, multiplyHost)
}

func multiplyLayout() *SetLayout {
	return NewSetLayout().AddBuffer(ReadOnly).AddBuffer(ReadOnly).AddBuffer(ReadWrite)
}
