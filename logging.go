package morphfield

import (
	"github.com/gekko3d/morphfield/morphrt/rt/core"
)

// Logger is shared with the engine packages so they log through the same sink.
type Logger = core.Logger

type DefaultLogger = core.DefaultLogger

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return core.NewDefaultLogger(prefix, debug)
}

func NewNopLogger() Logger { return core.NewNopLogger() }

// LoggingModule installs Logger, or a default logger when it is nil, as a
// resource.
type LoggingModule struct {
	Prefix string
	Debug  bool
	Logger Logger
}

func (m LoggingModule) Install(app *App, cmd *Commands) {
	if m.Logger != nil {
		app.addResources(m.Logger)
		return
	}
	app.addResources(NewDefaultLogger(m.Prefix, m.Debug))
}

// Logger returns the first Logger resource if present, otherwise a no-op logger.
// Safe to call at any time; never returns nil.
func (app *App) Logger() Logger {
	if app == nil {
		return NewNopLogger()
	}
	for _, r := range app.resources {
		if l, ok := r.(Logger); ok {
			return l
		}
	}
	return NewNopLogger()
}
