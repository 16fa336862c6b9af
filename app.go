package morphfield

import (
	"fmt"
	"reflect"
	"runtime"
	"slices"
)

type systemFn any

// App runs systems stage by stage once per frame. Systems are plain
// functions whose pointer arguments are resolved from the resources map.
type App struct {
	stateful           bool
	stateTransitioning bool
	initialState       State
	finalState         State
	nextState          State
	state              State
	stages             []Stage
	systems            map[string]map[State]map[statePhase][]systemFn
	systemsStateless   map[string][]systemFn
	resources          map[reflect.Type]any
	exitRequested      bool
	frames             uint64
}

func newApp() *App {
	app := &App{
		systems:          make(map[string]map[State]map[statePhase][]systemFn),
		systemsStateless: make(map[string][]systemFn),
		resources:        make(map[reflect.Type]any),
	}
	app.stages = slices.Clone(defaultStages)
	for _, stage := range app.stages {
		app.systemsStateless[stage.Name] = nil
	}
	return app
}

func (app *App) Commands() *Commands {
	return &Commands{app: app}
}

// State is the current app state. Stateless apps always report zero.
func (app *App) State() State { return app.state }

// Frames counts completed execute passes.
func (app *App) Frames() uint64 { return app.frames }

func (app *App) Run() {
	app.Start()
	for app.Tick() {
	}
}

// Start enters the initial state. Hosts that own the frame loop call it
// once, then Tick per frame.
func (app *App) Start() {
	log := app.Logger()
	if app.stateful {
		log.Debugf("running in stateful mode")
		app.state = app.initialState
		app.callSystems(app.state, enter)
	} else {
		log.Debugf("running in stateless mode")
	}
}

// RunFrames runs at most n frames and reports whether the app is still live.
func (app *App) RunFrames(n int) bool {
	app.Start()
	for i := 0; i < n; i++ {
		if !app.Tick() {
			return false
		}
	}
	return true
}

// Tick runs one frame. It returns false once the final state has been
// reached or a system asked to exit.
func (app *App) Tick() bool {
	app.callSystems(app.state, execute)
	app.frames++

	if app.stateful {
		if app.stateTransitioning {
			app.stateTransitioning = false
			app.executeChangeState(app.nextState)
		}
		if app.state == app.finalState {
			app.callSystems(app.state, exit)
			return false
		}
	}
	if app.exitRequested {
		if app.stateful {
			app.executeChangeState(app.finalState)
			app.callSystems(app.state, exit)
		}
		return false
	}
	return true
}

func (app *App) callSystems(state State, phase statePhase) {
	for _, stage := range app.stages {
		// stateless systems run on every execute pass, ahead of stateful ones
		if execute == phase {
			for _, system := range app.systemsStateless[stage.Name] {
				app.callSystem(system)
			}
		}

		if app.stateful {
			if systemsInStage, ok := app.systems[stage.Name]; ok {
				if systemsInState, ok := systemsInStage[state]; ok {
					for _, system := range systemsInState[phase] {
						app.callSystem(system)
					}
				}
			}
		}
	}
}

func (app *App) changeState(newState State) {
	app.nextState = newState
	app.stateTransitioning = true
}

func (app *App) executeChangeState(newState State) {
	if newState == app.state {
		return
	}
	app.callSystems(app.state, exit)
	app.state = newState
	app.callSystems(app.state, enter)
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}

		app.resources[resourceType.Elem()] = resource
	}
	return app
}

// Resource fetches a resource by its pointer type, e.g. Resource[*Time](app).
func Resource[T any](app *App) (T, bool) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Pointer {
		return zero, false
	}
	r, ok := app.resources[t.Elem()]
	if !ok {
		return zero, false
	}
	v, ok := r.(T)
	return v, ok
}

var typeOfCommands = reflect.TypeOf(Commands{})

func (app *App) callSystem(system systemFn) {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())

	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		underlyingType := argType.Elem()

		if underlyingType == typeOfCommands {
			args[i] = reflect.ValueOf(&Commands{app: app})
		} else if resource, argIsResource := app.resources[underlyingType]; argIsResource {
			args[i] = reflect.ValueOf(resource)
		} else {
			msg := fmt.Sprintf("Unable to resolve System dependency.\nSystem: %s\nSystem type: %s\nDependency: %s",
				runtime.FuncForPC(systemValue.Pointer()).Name(),
				fmt.Sprint(systemType),
				fmt.Sprint(argType),
			)
			panic(msg)
		}
	}
	systemValue.Call(args)
}
