// Package shell binds a bus.Bus, a config.Config and a graphics.Backend
// into the host loop cmd/nesgo drives. It replaces the teacher's much
// larger internal/app: the save-state-slot/rewind-buffer/menu-system
// surface built for a full front-end product is dropped, since nothing
// in the emulation core spec calls for it; what survives is the part
// that actually binds the core to a presentation backend — ROM
// loading, the input-poll/step/render loop, and battery persistence.
package shell

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nesgo/core/internal/bus"
	"github.com/nesgo/core/internal/cartridge"
	"github.com/nesgo/core/internal/config"
	"github.com/nesgo/core/internal/cpudiag"
	"github.com/nesgo/core/internal/graphics"
	"github.com/nesgo/core/internal/inesload"
	"github.com/nesgo/core/internal/trace"
)

// Shell owns one emulation session: the bus, the loaded cartridge, and
// the graphics backend presenting its output.
type Shell struct {
	Bus *bus.Bus

	backend graphics.Backend
	window  graphics.Window
	cart    *cartridge.Cartridge
	romPath string

	running bool
	paused  bool

	lastESCTime       time.Time
	controller1State  [8]bool
	controller2State  [8]bool

	trace trace.Sink
}

// New constructs a Shell bound to the given backend type (typically
// graphics.BackendEbitengine, or graphics.BackendHeadless for tests and
// CI) and applies cfg to a freshly built bus.
func New(cfg config.Config, backendType graphics.BackendType) (*Shell, error) {
	b := bus.New()
	cfg.Apply(b, b.CPU)
	b.CPU.SetFatalDecodeHandler(cpudiag.NewDumper(os.Stderr).Handler())

	backend, err := graphics.CreateBackend(backendType)
	if err != nil {
		return nil, fmt.Errorf("create graphics backend: %w", err)
	}

	gfxConfig := graphics.Config{
		WindowTitle:  "nesgo",
		WindowWidth:  256 * 2,
		WindowHeight: 240 * 2,
		Headless:     backendType == graphics.BackendHeadless,
	}
	if err := backend.Initialize(gfxConfig); err != nil {
		return nil, fmt.Errorf("initialize graphics backend: %w", err)
	}

	s := &Shell{
		Bus:     b,
		backend: backend,
		trace:   trace.NopSink{},
	}

	if !backend.IsHeadless() {
		window, err := backend.CreateWindow(gfxConfig.WindowTitle, gfxConfig.WindowWidth, gfxConfig.WindowHeight)
		if err != nil {
			return nil, fmt.Errorf("create window: %w", err)
		}
		s.window = window
	}

	return s, nil
}

// SetTraceSink installs the sink shell-level events (ROM load, battery
// save/load, quit confirmation) are published to, and forwards it to
// the bus as well.
func (s *Shell) SetTraceSink(sink trace.Sink) {
	if sink == nil {
		sink = trace.NopSink{}
	}
	s.trace = sink
	s.Bus.SetTraceSink(sink)
}

func savePath(romPath string) string {
	ext := len(romPath) - len(".nes")
	if ext > 0 && strings.EqualFold(romPath[ext:], ".nes") {
		return romPath[:ext] + ".sav"
	}
	return romPath + ".sav"
}

// LoadROM parses romPath as an iNES/NES 2.0 image, builds its
// cartridge, loads any existing battery-RAM sidecar file, and resets
// the bus onto it.
func (s *Shell) LoadROM(romPath string) error {
	desc, err := inesload.ParseFile(romPath)
	if err != nil {
		return fmt.Errorf("parse rom: %w", err)
	}

	cart, err := cartridge.NewFromDescription(desc)
	if err != nil {
		return fmt.Errorf("build cartridge: %w", err)
	}

	if cart.HasBattery() {
		if data, err := os.ReadFile(savePath(romPath)); err == nil {
			cart.LoadBatteryRAM(data)
			s.trace.Emit(trace.Record{Component: "shell", Event: "battery-loaded", Fields: map[string]any{
				"path": savePath(romPath),
			}})
		}
	}

	s.cart = cart
	s.romPath = romPath
	s.Bus.LoadCartridge(cart)
	s.Bus.Reset()
	return nil
}

// SaveBattery writes the cartridge's battery RAM, if any, to its
// sidecar .sav file next to the ROM.
func (s *Shell) SaveBattery() error {
	if s.cart == nil || !s.cart.HasBattery() {
		return nil
	}
	data := s.cart.BatteryRAM()
	if err := os.WriteFile(savePath(s.romPath), data, 0o644); err != nil {
		return fmt.Errorf("write battery file: %w", err)
	}
	s.trace.Emit(trace.Record{Component: "shell", Event: "battery-saved", Fields: map[string]any{
		"path": savePath(s.romPath),
	}})
	return nil
}

// Run pumps input, steps one frame, and renders, until the window
// closes or Stop is called. It returns once the loop exits, after
// flushing battery RAM.
func (s *Shell) Run() error {
	s.running = true
	for s.running {
		if s.window != nil && s.window.ShouldClose() {
			break
		}

		s.processInput()

		if !s.paused {
			s.Bus.Frame()
		}

		if err := s.render(); err != nil {
			return err
		}
	}
	return s.SaveBattery()
}

// Stop ends the Run loop after the current frame.
func (s *Shell) Stop() { s.running = false }

// Pause/Resume/TogglePause control whether Run steps the bus.
func (s *Shell) Pause()       { s.paused = true }
func (s *Shell) Resume()      { s.paused = false }
func (s *Shell) TogglePause() { s.paused = !s.paused }

// Reset resets the bus in place, keeping the loaded cartridge.
func (s *Shell) Reset() {
	s.Bus.Reset()
}

// Cleanup releases the graphics backend and window.
func (s *Shell) Cleanup() error {
	if s.window != nil {
		if err := s.window.Cleanup(); err != nil {
			return err
		}
	}
	return s.backend.Cleanup()
}

func (s *Shell) render() error {
	if s.window == nil {
		return nil
	}
	var indices [256 * 240]uint8
	copy(indices[:], s.Bus.GetFrameBuffer())
	rgb := graphics.TranslateFrame(indices)
	var frame [256 * 240]uint32
	copy(frame[:], rgb)
	if err := s.window.RenderFrame(frame); err != nil {
		return err
	}
	s.window.SwapBuffers()
	return nil
}

// processInput polls the window for events, maps them onto the two
// NES controller ports, and handles the ESC-double-tap quit gesture
// (kept from the teacher's app.go: a stray single ESC tap during
// gameplay should not kill the session).
func (s *Shell) processInput() {
	if s.window == nil {
		return
	}
	events := s.window.PollEvents()
	if len(events) == 0 {
		return
	}

	c1Changed, c2Changed := false, false

	for _, event := range events {
		switch event.Type {
		case graphics.InputEventTypeQuit:
			s.Stop()
			return
		case graphics.InputEventTypeKey:
			if event.Key == graphics.KeyEscape && event.Pressed {
				now := time.Now()
				if !s.lastESCTime.IsZero() && now.Sub(s.lastESCTime) < 3*time.Second {
					s.Stop()
					return
				}
				s.lastESCTime = now
			}
		case graphics.InputEventTypeButton:
			if idx, ok := secondPlayerIndex(event.Button); ok {
				s.controller2State[idx] = event.Pressed
				c2Changed = true
			} else if idx, ok := firstPlayerIndex(event.Button); ok {
				s.controller1State[idx] = event.Pressed
				c1Changed = true
			}
		}
	}

	if c1Changed {
		s.Bus.SetControllerButtons(0, s.controller1State)
	}
	if c2Changed {
		s.Bus.SetControllerButtons(2, s.controller2State)
	}
}

// firstPlayerIndex maps a graphics.Button to its NES button-array
// index (A, B, Select, Start, Up, Down, Left, Right), for controller 1.
func firstPlayerIndex(b graphics.Button) (int, bool) {
	switch b {
	case graphics.ButtonA:
		return 0, true
	case graphics.ButtonB:
		return 1, true
	case graphics.ButtonSelect:
		return 2, true
	case graphics.ButtonStart:
		return 3, true
	case graphics.ButtonUp:
		return 4, true
	case graphics.ButtonDown:
		return 5, true
	case graphics.ButtonLeft:
		return 6, true
	case graphics.ButtonRight:
		return 7, true
	default:
		return 0, false
	}
}

// secondPlayerIndex is firstPlayerIndex's counterpart for controller 2.
func secondPlayerIndex(b graphics.Button) (int, bool) {
	switch b {
	case graphics.Button2A:
		return 0, true
	case graphics.Button2B:
		return 1, true
	case graphics.Button2Select:
		return 2, true
	case graphics.Button2Start:
		return 3, true
	case graphics.Button2Up:
		return 4, true
	case graphics.Button2Down:
		return 5, true
	case graphics.Button2Left:
		return 6, true
	case graphics.Button2Right:
		return 7, true
	default:
		return 0, false
	}
}
