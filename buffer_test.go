package gpgpu

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
	"time"
)

type particle struct {
	Pos   [3]float32
	Mass  float32
	ID    uint32
	Alive uint32
}

func roundTrip[T comparable](t *testing.T, fw *Framework, data []T) {
	t.Helper()
	b := mustBuffer(t, fw, data)
	got := mustRead(t, b)
	if !slices.Equal(got, data) {
		t.Errorf("%T round trip = %v, want %v", data, got, data)
	}
	if b.Len() != len(data) {
		t.Errorf("Len() = %d, want %d", b.Len(), len(data))
	}
}

func TestBufferRoundTrip(t *testing.T) {
	fw := newTestFramework(t)

	t.Run("uint8", func(t *testing.T) { roundTrip(t, fw, []uint8{1, 2, 3, 4, 5, 6, 7}) })
	t.Run("int16", func(t *testing.T) { roundTrip(t, fw, []int16{-3, -2, -1, 0, 1, 2, 3}) })
	t.Run("uint32", func(t *testing.T) { roundTrip(t, fw, []uint32{0, 1, math.MaxUint32}) })
	t.Run("float32", func(t *testing.T) { roundTrip(t, fw, []float32{0.5, -1.25, float32(math.Inf(1))}) })
	t.Run("float64", func(t *testing.T) { roundTrip(t, fw, []float64{math.Pi, math.E}) })
	t.Run("array", func(t *testing.T) { roundTrip(t, fw, [][3]float32{{1, 2, 3}, {4, 5, 6}}) })
	t.Run("struct", func(t *testing.T) {
		roundTrip(t, fw, []particle{
			{Pos: [3]float32{1, 2, 3}, Mass: 4, ID: 5, Alive: 1},
			{Pos: [3]float32{-1, -2, -3}, Mass: 0.5, ID: 6},
		})
	})
}

func TestBufferStagedRoundTrip(t *testing.T) {
	fw := newTestFramework(t)

	b, err := NewBuffer[uint16](fw, 5)
	if err != nil {
		t.Fatal(err)
	}
	n, err := b.WriteStaged([]uint16{10, 20, 30, 40, 50})
	if err != nil {
		t.Fatalf("WriteStaged() failed: %v", err)
	}
	if n != 5 {
		t.Errorf("WriteStaged() = %d, want 5", n)
	}
	if got := mustRead(t, b); !slices.Equal(got, []uint16{10, 20, 30, 40, 50}) {
		t.Errorf("Read() = %v", got)
	}
}

func TestBufferPartialWrite(t *testing.T) {
	fw := newTestFramework(t)
	initial := []uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	tests := []struct {
		name   string
		write  []uint8
		staged bool
		wantN  int
		want   []uint8
	}{
		{"shorter", []uint8{100, 101, 102}, false, 3, []uint8{100, 101, 102, 3, 4, 5, 6, 7, 8, 9}},
		{"shorter staged", []uint8{100, 101, 102}, true, 3, []uint8{100, 101, 102, 3, 4, 5, 6, 7, 8, 9}},
		{"word aligned", []uint8{100, 101, 102, 103}, false, 4, []uint8{100, 101, 102, 103, 4, 5, 6, 7, 8, 9}},
		{"one past word", []uint8{100, 101, 102, 103, 104}, false, 5, []uint8{100, 101, 102, 103, 104, 5, 6, 7, 8, 9}},
		{"longer", slices.Repeat([]uint8{7}, 15), false, 10, slices.Repeat([]uint8{7}, 10)},
		{"longer staged", slices.Repeat([]uint8{7}, 15), true, 10, slices.Repeat([]uint8{7}, 10)},
		{"empty", nil, false, 0, initial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustBuffer(t, fw, initial)
			var (
				n   int
				err error
			)
			if tt.staged {
				n, err = b.WriteStaged(tt.write)
			} else {
				n, err = b.Write(tt.write)
			}
			if err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if n != tt.wantN {
				t.Errorf("written = %d, want %d", n, tt.wantN)
			}
			if got := mustRead(t, b); !slices.Equal(got, tt.want) {
				t.Errorf("Read() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBufferQueries(t *testing.T) {
	fw := newTestFramework(t)

	b, err := NewBuffer[uint8](fw, 10)
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 10 || b.Size() != 10 || b.Capacity() != 10 || b.IsEmpty() {
		t.Errorf("Len=%d Size=%d Capacity=%d IsEmpty=%v", b.Len(), b.Size(), b.Capacity(), b.IsEmpty())
	}
	if b.alloc != 12 {
		t.Errorf("device allocation = %d bytes, want 12", b.alloc)
	}
	n, err := b.Write(make([]uint8, 15))
	if err != nil {
		t.Fatal(err)
	}
	if uint64(n) != b.Capacity() {
		t.Errorf("oversized Write() stored %d bytes, want Capacity() = %d", n, b.Capacity())
	}

	f, err := NewBuffer[float64](fw, 3)
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != 24 || f.Capacity() != 24 {
		t.Errorf("float64 buffer Size=%d Capacity=%d, want 24/24", f.Size(), f.Capacity())
	}
	if got := mustRead(t, f); !slices.Equal(got, []float64{0, 0, 0}) {
		t.Errorf("new buffer is not zero-filled: %v", got)
	}
}

func TestZeroLengthBuffer(t *testing.T) {
	fw := newTestFramework(t)

	b, err := NewBuffer[uint32](fw, 0)
	if err != nil {
		t.Fatalf("NewBuffer(0) failed: %v", err)
	}
	if !b.IsEmpty() || b.Len() != 0 || b.Size() != 0 {
		t.Errorf("zero buffer: Len=%d Size=%d", b.Len(), b.Size())
	}
	got, err := b.Read()
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Read() = %v, want empty non-nil slice", got)
	}
	n, err := b.Write([]uint32{1, 2, 3})
	if err != nil || n != 0 {
		t.Errorf("Write() = %d, %v, want 0, nil", n, err)
	}

	if _, err := NewBuffer[uint32](fw, -1); !errors.Is(err, ErrAllocation) {
		t.Errorf("NewBuffer(-1) err = %v, want ErrAllocation", err)
	}
}

func TestNonPODElementPanics(t *testing.T) {
	fw := newTestFramework(t)

	tests := []struct {
		name string
		fn   func()
	}{
		{"string", func() { NewBuffer[string](fw, 1) }},
		{"pointer", func() { NewBuffer[*int](fw, 1) }},
		{"slice field", func() {
			NewBuffer[struct {
				A uint32
				B []byte
			}](fw, 1)
		}},
		{"int", func() { NewBuffer[int](fw, 1) }},
		{"empty struct", func() { NewBuffer[struct{}](fw, 1) }},
		{"bool", func() { NewBuffer[bool](fw, 1) }},
		{"implicit padding", func() {
			NewBuffer[struct {
				A uint8
				B uint32
			}](fw, 1)
		}},
		{"trailing padding", func() {
			NewBuffer[[2]struct {
				A uint32
				B uint16
			}](fw, 1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := expectPanic(t, tt.fn)
			if msg, ok := v.(string); !ok || !strings.Contains(msg, "not plain data") {
				t.Errorf("panic = %v", v)
			}
		})
	}
}

func TestReleasedBuffer(t *testing.T) {
	fw := newTestFramework(t)

	b := mustBuffer(t, fw, []uint32{1, 2})
	live := fw.Live()
	b.Release()
	b.Release()
	if fw.Live() != live-1 {
		t.Errorf("Live() = %d, want %d", fw.Live(), live-1)
	}
	if _, err := b.Read(); !errors.Is(err, ErrReleased) {
		t.Errorf("Read() after Release err = %v, want ErrReleased", err)
	}
	if _, err := b.Write([]uint32{1}); !errors.Is(err, ErrReleased) {
		t.Errorf("Write() after Release err = %v, want ErrReleased", err)
	}
	if _, err := b.ReadAsync().Await(context.Background()); !errors.Is(err, ErrReleased) {
		t.Errorf("ReadAsync() after Release err = %v, want ErrReleased", err)
	}
}

func TestCloseReleasesHandles(t *testing.T) {
	fw, err := New(WithBackend(BackendSoftware), WithPollInterval(0))
	if err != nil {
		t.Fatal(err)
	}
	b := mustBuffer(t, fw, []uint32{1, 2, 3})
	if _, err := NewImage[RGBA8Unorm](fw, 2, 2); err != nil {
		t.Fatal(err)
	}
	if fw.Live() != 2 {
		t.Errorf("Live() = %d, want 2", fw.Live())
	}

	fw.Close()
	if _, err := b.Read(); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() after Close err = %v, want ErrClosed", err)
	}
	if _, err := NewBuffer[uint32](fw, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("NewBuffer() after Close err = %v, want ErrClosed", err)
	}
	b.Release() // must not panic after Close
}

func TestBufferReadAsync(t *testing.T) {
	fw := newTestFramework(t, WithPollInterval(time.Millisecond))

	b := mustBuffer(t, fw, []int32{-1, 2, -3})
	f := b.ReadAsync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := f.Await(ctx)
	if err != nil {
		t.Fatalf("Await() failed: %v", err)
	}
	if !slices.Equal(got, []int32{-1, 2, -3}) {
		t.Errorf("ReadAsync() = %v", got)
	}
	if !f.Ready() {
		t.Error("Ready() = false after Await")
	}
}

func TestBufferReadAsyncNeedsPoll(t *testing.T) {
	fw := newTestFramework(t)

	b := mustBuffer(t, fw, []uint32{4, 5})
	f := b.ReadAsync()
	if f.Ready() {
		t.Fatal("future resolved before the device was polled")
	}
	fw.BlockingPoll()
	select {
	case <-f.Done():
	default:
		t.Fatal("future not resolved after BlockingPoll")
	}
	got, err := f.Await(context.Background())
	if err != nil || !slices.Equal(got, []uint32{4, 5}) {
		t.Errorf("Await() = %v, %v", got, err)
	}
}

func TestBufferWriteAsync(t *testing.T) {
	fw := newTestFramework(t, WithPollInterval(time.Millisecond))

	b, err := NewBuffer[uint32](fw, 4)
	if err != nil {
		t.Fatal(err)
	}
	n, err := b.WriteAsync([]uint32{9, 8, 7, 6, 5}).Await(context.Background())
	if err != nil || n != 4 {
		t.Fatalf("WriteAsync() = %d, %v, want 4, nil", n, err)
	}
	if got := mustRead(t, b); !slices.Equal(got, []uint32{9, 8, 7, 6}) {
		t.Errorf("Read() = %v", got)
	}
}

func TestReadContextCancelled(t *testing.T) {
	fw := newTestFramework(t)

	b := mustBuffer(t, fw, []uint32{1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The map may still resolve within the first poll; either outcome is
	// fine as long as a cancelled read does not hang.
	if _, err := b.ReadContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.Errorf("ReadContext(cancelled) err = %v", err)
	}
}

func TestMaxInFlight(t *testing.T) {
	fw := newTestFramework(t, WithMaxInFlight(1))

	b := mustBuffer(t, fw, []uint32{1, 2, 3})
	for range 3 {
		if got := mustRead(t, b); !slices.Equal(got, []uint32{1, 2, 3}) {
			t.Fatalf("Read() = %v", got)
		}
	}
}

// TestReadAsyncDoesNotBlockOnSlots starts more async reads than there are
// transfer slots with nothing polling the device; the calls must return and
// every future must still resolve.
func TestReadAsyncDoesNotBlockOnSlots(t *testing.T) {
	fw := newTestFramework(t, WithMaxInFlight(1))

	b := mustBuffer(t, fw, []uint32{4, 5, 6})
	started := make(chan [2]*Future[[]uint32], 1)
	go func() {
		started <- [2]*Future[[]uint32]{b.ReadAsync(), b.ReadAsync()}
	}()

	var futures [2]*Future[[]uint32]
	select {
	case futures = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("ReadAsync blocked waiting for a transfer slot")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(futures) - 1; i >= 0; i-- {
		got, err := futures[i].Await(ctx)
		if err != nil {
			t.Fatalf("future %d: Await() failed: %v", i, err)
		}
		if !slices.Equal(got, []uint32{4, 5, 6}) {
			t.Errorf("future %d = %v", i, got)
		}
	}
}

func TestUniformBuffer(t *testing.T) {
	fw := newTestFramework(t)

	type params struct {
		Scale  float32
		Offset float32
		Count  uint32
	}
	u, err := NewUniformBufferFrom(fw, params{Scale: 2, Offset: -1, Count: 7})
	if err != nil {
		t.Fatal(err)
	}
	if u.Size() != 12 || u.Capacity() != 12 || u.alloc != 16 {
		t.Errorf("Size=%d Capacity=%d alloc=%d, want 12/12/16", u.Size(), u.Capacity(), u.alloc)
	}
	got, err := u.Read()
	if err != nil {
		t.Fatal(err)
	}
	if got != (params{Scale: 2, Offset: -1, Count: 7}) {
		t.Errorf("Read() = %+v", got)
	}

	if err := u.Write(params{Count: 1}); err != nil {
		t.Fatal(err)
	}
	got, err = u.ReadAsync().Await(context.Background())
	if err != nil || got != (params{Count: 1}) {
		t.Errorf("ReadAsync() = %+v, %v", got, err)
	}
}

func BenchmarkBufferRoundTrip(b *testing.B) {
	fw := newTestFramework(b)
	data := make([]float32, 1<<16)
	buf, err := NewBuffer[float32](fw, len(data))
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data) * 4))
	b.ReportAllocs()
	for b.Loop() {
		if _, err := buf.Write(data); err != nil {
			b.Fatal(err)
		}
		if _, err := buf.Read(); err != nil {
			b.Fatal(err)
		}
	}
}
