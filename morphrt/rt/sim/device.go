package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gekko3d/morphfield/morphrt/rt/atlas"
	"github.com/gekko3d/morphfield/morphrt/rt/core"
)

var (
	ErrNotReady = errors.New("sim: not initialized")
	ErrClosed   = errors.New("sim: closed")
)

// Fence completes when the submitted device work has executed.
type Fence interface {
	Wait(ctx context.Context) error
	Done() bool
}

// Device executes the particle kernels. Commands run in submission order;
// submission returns immediately with a Fence.
type Device interface {
	Name() string
	// Allocate sizes the particle buffers and the atlas texture once.
	Allocate(p Params, atlasSide int) error
	Init() Fence
	WriteAtlas(a *atlas.Atlas) Fence
	Update(u Uniforms) Fence
	// ReadState copies the particle buffers into dst once all prior work is done.
	ReadState(ctx context.Context, dst *Store) error
	Release()
}

type fence struct {
	done chan struct{}
	err  error
}

func newFence() *fence { return &fence{done: make(chan struct{})} }

// DoneFence returns an already completed fence carrying err.
func DoneFence(err error) Fence {
	f := newFence()
	f.complete(err)
	return f
}

func (f *fence) complete(err error) {
	f.err = err
	close(f.done)
}

func (f *fence) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fence) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

type command struct {
	name  string
	run   func() error
	fence *fence
}

// queueDepth bounds how many frames can be queued before Submit blocks.
const queueDepth = 64

// CPUDevice runs the kernels on the host. A single queue goroutine executes
// commands in order and fans each kernel out over a worker pool.
type CPUDevice struct {
	workers int
	noise   FractalNoise
	log     core.Logger

	mu     sync.Mutex
	closed bool
	queue  chan command
	wg     sync.WaitGroup

	// owned by the queue goroutine after Allocate
	kernel  *Kernel
	store   *Store
	targets []float32
	pool    *workerPool
}

// NewCPUDevice creates a host device. workers <= 0 uses GOMAXPROCS; a nil
// noise disables ambient jitter.
func NewCPUDevice(workers int, noise FractalNoise, logger core.Logger) *CPUDevice {
	return &CPUDevice{workers: workers, noise: noise, log: core.OrNop(logger)}
}

func (d *CPUDevice) Name() string { return "cpu" }

func (d *CPUDevice) Allocate(p Params, atlasSide int) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("cpu device: %w", err)
	}
	if atlasSide*atlasSide < p.Count {
		return fmt.Errorf("cpu device: atlas side %d too small for %d particles", atlasSide, p.Count)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.queue != nil {
		return errors.New("cpu device: already allocated")
	}

	d.kernel = NewKernel(p, d.noise)
	d.store = NewStore(p.Count)
	d.targets = make([]float32, atlasSide*atlasSide*atlas.TexelStride)
	d.pool = newWorkerPool(d.workers)
	d.queue = make(chan command, queueDepth)
	d.wg.Add(1)
	go d.loop()

	d.log.Debugf("cpu device: allocated %d particles, atlas %dx%d, %d workers",
		p.Count, atlasSide, atlasSide, d.pool.numWorkers)
	return nil
}

func (d *CPUDevice) loop() {
	defer d.wg.Done()
	defer d.pool.stop()
	for cmd := range d.queue {
		cmd.fence.complete(cmd.run())
	}
}

func (d *CPUDevice) submit(name string, run func() error) Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return DoneFence(ErrClosed)
	}
	if d.queue == nil {
		return DoneFence(fmt.Errorf("cpu device: %s before Allocate", name))
	}
	f := newFence()
	d.queue <- command{name: name, run: run, fence: f}
	return f
}

func (d *CPUDevice) Init() Fence {
	return d.submit("init", func() error {
		d.pool.run(d.store.Len(), func(lo, hi int) { d.kernel.InitRange(d.store, lo, hi) })
		return nil
	})
}

// WriteAtlas uploads the latest committed atlas texels between kernels.
func (d *CPUDevice) WriteAtlas(a *atlas.Atlas) Fence {
	return d.submit("atlas", func() error {
		var err error
		a.Read(func(texels []float32, _ uint64) {
			if len(texels) != len(d.targets) {
				err = fmt.Errorf("cpu device: atlas has %d texels, want %d", len(texels), len(d.targets))
				return
			}
			copy(d.targets, texels)
		})
		return err
	})
}

func (d *CPUDevice) Update(u Uniforms) Fence {
	return d.submit("update", func() error {
		d.pool.run(d.store.Len(), func(lo, hi int) { d.kernel.UpdateRange(d.store, d.targets, u, lo, hi) })
		return nil
	})
}

func (d *CPUDevice) ReadState(ctx context.Context, dst *Store) error {
	var snap *Store
	f := d.submit("readback", func() error {
		snap = d.store.Clone()
		return nil
	})
	if err := f.Wait(ctx); err != nil {
		return err
	}
	if dst.Len() != snap.Len() {
		return fmt.Errorf("cpu device: readback into %d particles, have %d", dst.Len(), snap.Len())
	}
	dst.CopyFrom(snap)
	return nil
}

// Release drains queued commands and stops the workers. Further submissions
// complete with ErrClosed.
func (d *CPUDevice) Release() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.queue != nil {
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
