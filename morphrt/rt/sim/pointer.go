package sim

import (
	"sync"
	"sync/atomic"

	"github.com/gekko3d/morphfield/morphrt/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// PointerField is the world-space force origin. Writes replace the whole
// point atomically; readers get a copy. Last value wins.
type PointerField struct {
	p       atomic.Pointer[mgl32.Vec3]
	updates atomic.Uint64
	misses  atomic.Uint64
}

func (f *PointerField) Load() mgl32.Vec3 {
	if v := f.p.Load(); v != nil {
		return *v
	}
	return mgl32.Vec3{}
}

func (f *PointerField) Store(v mgl32.Vec3) {
	f.p.Store(&v)
	f.updates.Add(1)
}

func (f *PointerField) Updates() uint64 { return f.updates.Load() }

// Misses counts events whose ray did not hit the plane.
func (f *PointerField) Misses() uint64 { return f.misses.Load() }

// PointerSource delivers pointer moves in window pixel coordinates. The
// returned func removes the listener.
type PointerSource interface {
	OnPointerMove(fn func(x, y float64)) (unsubscribe func())
}

// PointerBus is an in-process PointerSource. Emit calls every listener
// synchronously on the caller's goroutine.
type PointerBus struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]func(x, y float64)
}

func NewPointerBus() *PointerBus {
	return &PointerBus{listeners: make(map[int]func(x, y float64))}
}

func (b *PointerBus) OnPointerMove(fn func(x, y float64)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

func (b *PointerBus) Emit(x, y float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.listeners {
		fn(x, y)
	}
}

func (b *PointerBus) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Tracker projects pointer moves onto the z = 0 plane and writes hits to a
// PointerField. It is the field's only writer.
type Tracker struct {
	field *PointerField
	plane core.Plane

	mu     sync.Mutex
	camera core.CameraState
	width  int
	height int
	unsub  func()
}

func NewTracker(field *PointerField, camera *core.CameraState, width, height int) *Tracker {
	return &Tracker{
		field:  field,
		plane:  core.PlaneZ0,
		camera: *camera,
		width:  width,
		height: height,
	}
}

func (t *Tracker) SetCamera(camera *core.CameraState) {
	t.mu.Lock()
	t.camera = *camera
	t.mu.Unlock()
}

func (t *Tracker) SetViewport(width, height int) {
	t.mu.Lock()
	t.width, t.height = width, height
	t.mu.Unlock()
}

// HandleMove processes one pointer event. A miss leaves the field unchanged.
func (t *Tracker) HandleMove(x, y float64) bool {
	t.mu.Lock()
	cam, w, h := t.camera, t.width, t.height
	t.mu.Unlock()

	ndc, ok := core.ScreenToNDC(x, y, w, h)
	if !ok {
		t.field.misses.Add(1)
		return false
	}
	origin, dir := cam.RayFromNDC(ndc)
	hit, ok := t.plane.IntersectRay(origin, dir)
	if !ok {
		t.field.misses.Add(1)
		return false
	}
	t.field.Store(hit)
	return true
}

// Attach subscribes to src, replacing any previous subscription.
func (t *Tracker) Attach(src PointerSource) {
	unsub := src.OnPointerMove(func(x, y float64) { t.HandleMove(x, y) })
	t.mu.Lock()
	prev := t.unsub
	t.unsub = unsub
	t.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Close unregisters the listener.
func (t *Tracker) Close() {
	t.mu.Lock()
	unsub := t.unsub
	t.unsub = nil
	t.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
