package app

import (
	"github.com/gekko3d/morphfield"

	"github.com/go-gl/glfw/v3.3/glfw"
)

var keyToGlfw = map[int]glfw.Key{
	morphfield.KeyLeft:   glfw.KeyLeft,
	morphfield.KeyRight:  glfw.KeyRight,
	morphfield.KeyUp:     glfw.KeyUp,
	morphfield.KeyDown:   glfw.KeyDown,
	morphfield.Key1:      glfw.Key1,
	morphfield.Key2:      glfw.Key2,
	morphfield.Key3:      glfw.Key3,
	morphfield.Key4:      glfw.Key4,
	morphfield.KeySpace:  glfw.KeySpace,
	morphfield.KeyEscape: glfw.KeyEscape,
	morphfield.KeyD:      glfw.KeyD,
}

var glfwToKey = func() map[glfw.Key]int {
	m := make(map[glfw.Key]int, len(keyToGlfw))
	for k, g := range keyToGlfw {
		m[g] = k
	}
	return m
}()

// BindInput routes window events into input. Callbacks run inside
// glfw.PollEvents, so input is only touched from the main thread.
func BindInput(window *glfw.Window, input *morphfield.Input) {
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		k, ok := glfwToKey[key]
		if !ok {
			return
		}
		switch action {
		case glfw.Press:
			input.Press(k)
		case glfw.Release:
			input.Release(k)
		}
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		if action == glfw.Press {
			input.Press(morphfield.MouseButtonLeft)
		} else if action == glfw.Release {
			input.Release(morphfield.MouseButtonLeft)
		}
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		input.MoveCursor(xpos, ypos)
	})
	window.SetCloseCallback(func(w *glfw.Window) {
		input.CloseRequested = true
	})

	width, height := window.GetSize()
	input.WindowWidth, input.WindowHeight = width, height
	window.SetSizeCallback(func(w *glfw.Window, width, height int) {
		input.WindowWidth, input.WindowHeight = width, height
	})
}
