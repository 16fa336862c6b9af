package morphfield

const (
	KeyLeft int = iota
	KeyRight
	KeyUp
	KeyDown
	Key1
	Key2
	Key3
	Key4
	KeySpace
	KeyEscape
	KeyD
	MouseButtonLeft
	keyCount
)

// Input is the per-frame keyboard and cursor state. Window hosts feed it
// through Press, Release and MoveCursor; the input system clears the edge
// flags at the end of every frame.
type Input struct {
	Pressed      [keyCount]bool
	JustPressed  [keyCount]bool
	JustReleased [keyCount]bool

	MouseX, MouseY float64
	MouseMoved     bool

	WindowWidth, WindowHeight int
	CloseRequested            bool
}

func (in *Input) Press(key int) {
	if key < 0 || key >= keyCount {
		return
	}
	if !in.Pressed[key] {
		in.JustPressed[key] = true
	}
	in.Pressed[key] = true
}

func (in *Input) Release(key int) {
	if key < 0 || key >= keyCount {
		return
	}
	if in.Pressed[key] {
		in.JustReleased[key] = true
	}
	in.Pressed[key] = false
}

func (in *Input) MoveCursor(x, y float64) {
	if x == in.MouseX && y == in.MouseY {
		return
	}
	in.MouseX, in.MouseY = x, y
	in.MouseMoved = true
}

type InputModule struct{}

func (mod InputModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Input{})
	cmd.UseSystem(System(inputResetSystem).InStage(Finale).RunAlways())
}

func inputResetSystem(input *Input) {
	input.JustPressed = [keyCount]bool{}
	input.JustReleased = [keyCount]bool{}
	input.MouseMoved = false
}
