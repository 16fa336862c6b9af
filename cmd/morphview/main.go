// morphview opens a window and morphs particles between shapes on the GPU.
//
// Keys: left/right cycle shapes, 1-4 pick repel/attract/swirl/tornado,
// escape quits. The cursor drives the pointer force.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/gekko3d/morphfield"
	"github.com/gekko3d/morphfield/config"
	"github.com/gekko3d/morphfield/morphrt/rt/app"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	outputDir := flag.String("output-dir", "", "Directory for CSV logs (overrides telemetry.dir)")
	maxFrames := flag.Uint64("max-frames", 0, "Quit after N frames (0 = unlimited)")
	cycle := flag.Uint64("cycle", 0, "Advance the shape every N frames (0 = keys only)")
	flag.Parse()

	if err := run(*configPath, *debug, *outputDir, *maxFrames, *cycle); err != nil {
		fmt.Fprintln(os.Stderr, "morphview:", err)
		os.Exit(1)
	}
}

func run(configPath string, debug bool, outputDir string, maxFrames, cycle uint64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.Telemetry.Dir = outputDir
	}
	logger := morphfield.NewDefaultLogger("morphview", debug)

	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.Screen.Width, cfg.Screen.Height, "morphview", nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	viewer := app.NewViewer(window, cfg.CameraState(), logger)
	if err := viewer.Init(); err != nil {
		return err
	}
	defer viewer.Release()
	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		viewer.Resize(width, height)
	})

	application := morphfield.NewAppBuilder().
		UseStates(morphfield.StateLoading, morphfield.StateDone).
		UseModule(
			morphfield.LoggingModule{Logger: logger},
			morphfield.TimeModule{MaxDt: 100 * time.Millisecond},
			morphfield.InputModule{},
			morphfield.ParticlesModule{Config: cfg, Device: viewer.Sim},
			morphfield.ShapeCycleModule{EveryFrames: cycle},
			morphfield.TelemetryModule{Config: cfg},
			morphfield.RunLimitModule{Frames: maxFrames},
		).
		Build()

	morph, _ := morphfield.Resource[*morphfield.Morph](application)
	input, _ := morphfield.Resource[*morphfield.Input](application)
	viewer.Camera = morph.Camera
	app.BindInput(window, input)

	application.Start()
	for {
		glfw.PollEvents()
		if !application.Tick() {
			break
		}
		if err := viewer.Render(); err != nil {
			logger.Warnf("render: %v", err)
		}
	}
	return morph.Err
}
