package morphfield

import (
	"time"
)

// Time is the frame clock. Dt is wall-clock by default; a fixed step makes
// headless runs reproducible.
type Time struct {
	Time    time.Time
	Dt      time.Duration
	Elapsed time.Duration
	Frame   uint64

	fixed time.Duration
	maxDt time.Duration
}

// DtSeconds is Dt as the float32 the kernels consume.
func (t *Time) DtSeconds() float32 { return float32(t.Dt.Seconds()) }

type TimeModule struct {
	// FixedDt replaces the measured delta when non-zero.
	FixedDt time.Duration
	// MaxDt clamps long stalls, e.g. window drags. Zero means no clamp.
	MaxDt time.Duration
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Time{
		Time:  time.Now(),
		fixed: mod.FixedDt,
		maxDt: mod.MaxDt,
	})
	cmd.UseSystem(System(timeSystem).InStage(Prelude).RunAlways())
}

func timeSystem(t *Time) {
	now := time.Now()
	dt := now.Sub(t.Time)
	if t.fixed > 0 {
		dt = t.fixed
	}
	if t.maxDt > 0 && dt > t.maxDt {
		dt = t.maxDt
	}
	t.Dt = dt
	t.Time = now
	t.Elapsed += dt
	t.Frame++
}
