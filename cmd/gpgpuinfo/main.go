// Command gpgpuinfo reports the compute device gpgpu selects and runs a
// short self-test on it.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gpgpu"
)

const selfTestWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x < arrayLength(&data)) {
        data[id.x] = data[id.x] * 2u + 1u;
    }
}
`

func main() {
	var (
		backend = flag.String("backend", "", "device: auto, native or software (default $GPGPU_BACKEND)")
		n       = flag.Int("n", 1<<16, "self-test element count")
		verbose = flag.Bool("v", false, "debug logging")
		formats = flag.Bool("formats", false, "list the supported pixel formats")
	)
	flag.Parse()

	if *verbose {
		gpgpu.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	var opts []gpgpu.Option
	if *backend != "" {
		b, err := gpgpu.ParseBackend(*backend)
		if err != nil {
			log.Fatal(err)
		}
		opts = append(opts, gpgpu.WithBackend(b))
	}

	fw, err := gpgpu.New(opts...)
	if err != nil {
		log.Fatalf("open device: %v", err)
	}
	defer fw.Close()

	caps := fw.Capabilities()
	fmt.Printf("gpgpu %s\n", gpgpu.Version)
	fmt.Printf("Device:            %s\n", caps.Name)
	fmt.Printf("Backend:           %s\n", caps.Backend)
	fmt.Printf("Bind groups:       %d (%d bindings each)\n", caps.MaxBindGroups, caps.MaxBindingsPerBindGroup)
	fmt.Printf("Max buffer:        %d MiB\n", caps.MaxBufferSize>>20)
	fmt.Printf("Max texture:       %d\n", caps.MaxTextureDimension2D)
	fmt.Printf("Row alignment:     %d\n", caps.CopyBytesPerRowAlignment)

	if *formats {
		fmt.Println()
		for _, f := range gpgpu.Formats() {
			fmt.Printf("  %-12s %2d bytes\n", f.Name, f.Size)
		}
	}

	fmt.Println()
	if err := selfTest(fw, *n); err != nil {
		fmt.Printf("Self-test:         FAIL (%v)\n", err)
		fw.Close()
		os.Exit(1)
	}
}

func selfTest(fw *gpgpu.Framework, n int) error {
	shader, err := gpgpu.ShaderFromWGSL("selftest", selfTestWGSL)
	if err != nil {
		return err
	}
	shader.WithHostKernel("main", [3]uint32{}, func(inv *gpgpu.Invocation) {
		data := gpgpu.Elements[uint32](inv, 0, 0)
		if i := inv.GlobalID[0]; int(i) < len(data) {
			data[i] = data[i]*2 + 1
		}
	})
	kernel, err := gpgpu.NewKernel(fw, shader, "main", gpgpu.NewSetLayout().AddBuffer(gpgpu.ReadWrite))
	if err != nil {
		return err
	}
	defer kernel.Release()

	in := make([]uint32, n)
	for i := range in {
		in[i] = uint32(i)
	}
	start := time.Now()
	buf, err := gpgpu.NewBufferFrom(fw, in)
	if err != nil {
		return err
	}
	defer buf.Release()
	if err := kernel.EnqueueElements(uint32(n), gpgpu.Bind().Buffer(buf).Set()); err != nil {
		return err
	}
	out, err := buf.Read()
	if err != nil {
		return err
	}
	for i, v := range out {
		if v != uint32(i)*2+1 {
			return fmt.Errorf("element %d = %d, want %d", i, v, uint32(i)*2+1)
		}
	}
	fmt.Printf("Self-test:         ok (%d elements, %v)\n", n, time.Since(start).Round(time.Microsecond))
	return nil
}
