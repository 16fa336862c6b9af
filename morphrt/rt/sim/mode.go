package sim

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Mode selects one pointer force field.
type Mode int

const (
	Repel Mode = iota
	Attract
	Swirl
	Tornado
)

var Modes = []Mode{Repel, Attract, Swirl, Tornado}

func (m Mode) String() string {
	switch m {
	case Repel:
		return "repel"
	case Attract:
		return "attract"
	case Swirl:
		return "swirl"
	case Tornado:
		return "tornado"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if strings.EqualFold(m.String(), s) {
			return m, nil
		}
	}
	return Repel, fmt.Errorf("sim: unknown displacement mode %q", s)
}

// Weights returns the one-hot weight vector of m.
func (m Mode) Weights() mgl32.Vec4 {
	var w mgl32.Vec4
	if m >= Repel && m <= Tornado {
		w[m] = 1
	}
	return w
}
