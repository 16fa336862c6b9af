package app

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Profiler keeps the last duration of each named CPU scope plus a few
// counters, in first-seen order.
type Profiler struct {
	Scopes     map[string]time.Duration
	StartTimes map[string]time.Time
	Counts     map[string]int
	Order      []string
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = time.Now()
	if !slices.Contains(p.Order, name) {
		p.Order = append(p.Order, name)
	}
}

func (p *Profiler) EndScope(name string) {
	if start, ok := p.StartTimes[name]; ok {
		p.Scopes[name] = time.Since(start)
	}
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

// Title is a one-line summary for the window title bar.
func (p *Profiler) Title(fps float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%.0f fps", fps)
	for _, name := range p.Order {
		fmt.Fprintf(&sb, " | %s %.2fms", name, float64(p.Scopes[name].Microseconds())/1000)
	}
	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " | %s %d", k, p.Counts[k])
	}
	return sb.String()
}
