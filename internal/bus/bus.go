// Package bus implements the system bus for communication between NES components.
package bus

import (
	"github.com/nesgo/core/internal/apu"
	"github.com/nesgo/core/internal/cartridge"
	"github.com/nesgo/core/internal/cpu"
	"github.com/nesgo/core/internal/input"
	"github.com/nesgo/core/internal/memory"
	"github.com/nesgo/core/internal/ppu"
	"github.com/nesgo/core/internal/trace"
)

// Region selects NTSC or PAL timing for every component on the bus.
type Region int

const (
	NTSC Region = iota
	PAL
)

// irqSource is implemented by mappers that can assert the CPU's IRQ
// line (MMC3's scanline counter, FME-7's internal counter, ...).
type irqSource interface {
	IRQPending() bool
}

// a12Clocker is implemented by mappers that clock an internal counter
// off the PPU address bus's A12 line (MMC3/MMC6-family boards).
type a12Clocker interface {
	ClockA12()
}

// Bus connects all NES components together and is the only thing that
// advances time: every CPU bus cycle interleaves 3 PPU dots and 1 APU
// cycle via the CPU's cycle hook, matching the real console's fixed
// clock ratio instead of bulk-ticking PPU/APU after whole instructions.
type Bus struct {
	CPU    *cpu.CPU
	PPU    *ppu.PPU
	APU    *apu.APU
	Memory *memory.Memory
	Input  *input.InputState

	cart memory.CartridgeInterface

	region Region

	cpuCycles  uint64
	ppuCycles  uint64
	frameCount uint64

	dmaSuspendCycles uint64
	dmaInProgress    bool

	executionLog   []BusExecutionEvent
	loggingEnabled bool

	trace    trace.Sink
	irqWasUp bool
}

// New creates a new system bus with all components
func New() *Bus {
	bus := &Bus{
		PPU:   ppu.New(),
		APU:   apu.New(),
		Input: input.NewInputState(),
		trace: trace.NopSink{},
	}

	bus.Memory = memory.New(bus.PPU, bus.APU, nil)
	bus.Memory.SetInputSystem(bus.Input)
	bus.CPU = cpu.New(bus.Memory)

	bus.wireCallbacks()
	bus.Reset()

	return bus
}

// wireCallbacks (re-)establishes every cross-component callback. Called
// from New and after LoadCartridge recreates Memory/CPU.
func (b *Bus) wireCallbacks() {
	b.CPU.SetCycleHook(b.tickSystem)
	b.PPU.SetNMICallback(b.triggerNMI)
	b.PPU.SetFrameCompleteCallback(b.handleFrameComplete)
	b.PPU.SetA12Callback(b.clockMapperA12)
	b.APU.SetDMCReadCallback(b.Memory.Read)
	b.Memory.SetDMACallback(b.TriggerOAMDMA)
}

// SetRegion switches every timing-sensitive component to NTSC or PAL.
func (b *Bus) SetRegion(region Region) {
	b.region = region
	if region == PAL {
		b.PPU.SetRegion(ppu.PAL)
		b.APU.SetRegion(apu.PAL)
	} else {
		b.PPU.SetRegion(ppu.NTSC)
		b.APU.SetRegion(apu.NTSC)
	}
}

// Reset resets all components to their initial state
func (b *Bus) Reset() {
	b.CPU.Reset()
	b.PPU.Reset()
	b.APU.Reset()
	b.Input.Reset()

	b.cpuCycles = 0
	b.ppuCycles = 0
	b.frameCount = 0
	b.dmaSuspendCycles = 0
	b.dmaInProgress = false

	b.PPU.SetFrameCount(0)

	b.executionLog = make([]BusExecutionEvent, 0)
	b.loggingEnabled = false
}

// triggerNMI is called by the PPU's edge-style NMI signal (vblank
// start with NMI output enabled, or a $2000 NMI-enable toggle during
// an already-set vblank flag); it pulses the CPU's NMI~ line low.
func (b *Bus) triggerNMI() {
	b.CPU.SetNMILine(true)
	b.CPU.SetNMILine(false)
}

// clockMapperA12 is called by the PPU on a deglitched rising edge of
// its address bus's A12 line, the signal MMC3-family mappers use to
// clock their scanline IRQ counter.
func (b *Bus) clockMapperA12() {
	if clocker, ok := b.cart.(a12Clocker); ok {
		clocker.ClockA12()
	}
}

// handleFrameComplete is called by the PPU when it finishes a frame. It
// also re-reads the mapper's mirroring mode, since boards that switch it
// at runtime (MMC1, AxROM, VRC) only expose the change through register
// writes the PPU itself never observes.
func (b *Bus) handleFrameComplete() {
	b.frameCount = b.PPU.GetFrameCount()
	b.syncMirroring()
	b.trace.Emit(trace.Record{Component: "bus", Event: "frame-complete", Fields: map[string]any{
		"frame": b.frameCount,
	}})
}

// SetTraceSink installs the sink every structured bus event is
// published to. Defaults to trace.NopSink{}, so callers that never set
// one pay nothing beyond the interface call.
func (b *Bus) SetTraceSink(sink trace.Sink) {
	if sink == nil {
		sink = trace.NopSink{}
	}
	b.trace = sink
}

// tickSystem is the CPU's cycle hook: it runs the PPU 3 dots and the
// APU 1 cycle for every CPU bus cycle, then recomputes the IRQ line.
func (b *Bus) tickSystem() {
	b.PPU.Step()
	b.PPU.Step()
	b.PPU.Step()
	b.ppuCycles += 3

	b.APU.Step()

	if stall := b.APU.ConsumeStallCycles(); stall > 0 {
		for i := 0; i < stall; i++ {
			b.PPU.Step()
			b.PPU.Step()
			b.PPU.Step()
			b.ppuCycles += 3
			b.APU.Step()
		}
	}

	b.updateIRQLine()
}

// updateIRQLine ORs every IRQ source together onto the CPU's IRQ~ line.
func (b *Bus) updateIRQLine() {
	irq := b.APU.IRQLine()
	mapperIRQ := false
	if src, ok := b.cart.(irqSource); ok && src.IRQPending() {
		irq = true
		mapperIRQ = true
	}
	if mapperIRQ && !b.irqWasUp {
		b.trace.Emit(trace.Record{Component: "mapper", Event: "irq-asserted", Fields: map[string]any{
			"cycle": b.cpuCycles,
		}})
	}
	b.irqWasUp = mapperIRQ
	b.CPU.SetIRQLine(irq)
}

// Step executes one CPU instruction (or one DMA stall cycle) and
// advances the PPU/APU in lockstep via the cycle hook.
func (b *Bus) Step() {
	preFrameCount := b.frameCount
	prePC := b.CPU.PC
	var preOpcode uint8
	if b.Memory != nil {
		preOpcode = b.Memory.Read(prePC)
	}

	var cyclesTaken uint64
	if b.dmaSuspendCycles > 0 {
		b.tickSystem()
		cyclesTaken = 1
		b.dmaSuspendCycles--
		if b.dmaSuspendCycles == 0 {
			b.dmaInProgress = false
		}
	} else {
		cyclesTaken = b.CPU.Step()
	}

	b.cpuCycles += cyclesTaken

	if b.loggingEnabled {
		event := BusExecutionEvent{
			StepNumber:    len(b.executionLog) + 1,
			CPUCycles:     b.cpuCycles,
			PPUCycles:     b.ppuCycles,
			FrameCount:    b.frameCount,
			DMAActive:     b.dmaInProgress,
			NMIProcessed:  b.frameCount > preFrameCount,
			PCValue:       prePC,
			InstructionOp: preOpcode,
		}
		b.executionLog = append(b.executionLog, event)
	}
}

// TriggerOAMDMA initiates an OAM DMA transfer
func (b *Bus) TriggerOAMDMA(sourcePage uint8) {
	if b.dmaInProgress {
		return
	}

	dmaCycles := uint64(513)
	if b.cpuCycles%2 == 1 {
		dmaCycles = 514
	}

	b.dmaInProgress = true
	b.dmaSuspendCycles = dmaCycles

	sourceAddress := uint16(sourcePage) << 8
	for i := 0; i < 256; i++ {
		data := b.Memory.Read(sourceAddress + uint16(i))
		b.PPU.WriteOAM(uint8(i), data)
	}
}

// LoadCartridge loads a cartridge into the system
func (b *Bus) LoadCartridge(cart memory.CartridgeInterface) {
	b.cart = cart

	b.Memory = memory.New(b.PPU, b.APU, cart)
	b.Memory.SetInputSystem(b.Input)
	b.CPU = cpu.New(b.Memory)

	ppuMemory := memory.NewPPUMemory(cart, b.currentMirrorMode())
	b.PPU.SetMemory(ppuMemory)

	b.wireCallbacks()
	b.CPU.Reset()
}

// currentMirrorMode reads the cartridge's mirroring mode (fixed from the
// iNES header, or dynamic via cartridge.MirrorSource for boards like
// MMC1/AxROM/VRC that switch it at runtime) and translates it into the
// memory package's equivalent enum.
func (b *Bus) currentMirrorMode() memory.MirrorMode {
	cart, ok := b.cart.(*cartridge.Cartridge)
	if !ok {
		return memory.MirrorHorizontal
	}
	switch cart.GetMirrorMode() {
	case cartridge.MirrorHorizontal:
		return memory.MirrorHorizontal
	case cartridge.MirrorVertical:
		return memory.MirrorVertical
	case cartridge.MirrorSingleScreen0:
		return memory.MirrorSingleScreen0
	case cartridge.MirrorSingleScreen1:
		return memory.MirrorSingleScreen1
	case cartridge.MirrorFourScreen:
		return memory.MirrorFourScreen
	default:
		return memory.MirrorHorizontal
	}
}

// syncMirroring re-reads the cartridge's mirroring mode and pushes it to
// the PPU, for mappers that switch mirroring at runtime.
func (b *Bus) syncMirroring() {
	b.PPU.SetMirroring(b.currentMirrorMode())
}

// Run runs the emulator for a specified number of frames
func (b *Bus) Run(frames int) {
	targetFrames := b.frameCount + uint64(frames)
	for b.frameCount < targetFrames {
		b.Step()
	}
}

// RunCycles runs the emulator for a specified number of CPU cycles
func (b *Bus) RunCycles(cycles uint64) {
	targetCycles := b.cpuCycles + cycles
	for b.cpuCycles < targetCycles {
		b.Step()
	}
}

// Frame executes one complete frame worth of cycles
func (b *Bus) Frame() {
	targetCycles := b.cpuCycles + 29781
	for b.cpuCycles < targetCycles {
		b.Step()
	}
}

// GetFrameRate returns the current frame rate based on NTSC timing
func (b *Bus) GetFrameRate() float64 {
	cpuFrequency := 1789773.0
	cpuCyclesPerFrame := cpuFrequency / 60.098803
	return cpuFrequency / cpuCyclesPerFrame
}

// GetFrameBuffer returns the current PPU frame buffer as 6-bit palette
// indices; the host shell translates it to RGB before presentation.
func (b *Bus) GetFrameBuffer() []uint8 {
	frameBuffer := b.PPU.GetFrameBuffer()
	return frameBuffer[:]
}

// GetAudioSamples returns buffered 8-bit unsigned audio samples
func (b *Bus) GetAudioSamples() []uint8 {
	return b.APU.GetSamples()
}

// SetAudioSampleRate sets the target audio sample rate for the APU
func (b *Bus) SetAudioSampleRate(rate int) {
	b.APU.SetSampleRate(rate)
}

// GetCycleCount returns the current CPU cycle count
func (b *Bus) GetCycleCount() uint64 {
	return b.cpuCycles
}

// GetFrameCount returns the current frame count
func (b *Bus) GetFrameCount() uint64 {
	return b.frameCount
}

// IsDMAInProgress returns whether DMA is currently in progress
func (b *Bus) IsDMAInProgress() bool {
	return b.dmaInProgress
}

func (b *Bus) isRenderingEnabled() bool {
	mask := b.PPU.ReadRegister(0x2001)
	return (mask & 0x18) != 0
}

// SetControllerButton sets the state of a controller button
func (b *Bus) SetControllerButton(controller int, button input.Button, pressed bool) {
	switch controller {
	case 0, 1:
		b.Input.Controller1.SetButton(button, pressed)
	case 2:
		b.Input.Controller2.SetButton(button, pressed)
	}
}

// SetControllerButtons sets all button states for a controller at once
func (b *Bus) SetControllerButtons(controller int, buttons [8]bool) {
	switch controller {
	case 0, 1:
		b.Input.SetButtons1(buttons)
	case 2:
		b.Input.SetButtons2(buttons)
	}
}

// GetInputState returns the input state for direct access
func (b *Bus) GetInputState() *input.InputState {
	return b.Input
}

// GetExecutionLog returns execution log for integration testing
func (b *Bus) GetExecutionLog() []BusExecutionEvent {
	return b.executionLog
}

// EnableExecutionLogging enables execution logging for testing
func (b *Bus) EnableExecutionLogging() {
	b.loggingEnabled = true
}

// DisableExecutionLogging disables execution logging
func (b *Bus) DisableExecutionLogging() {
	b.loggingEnabled = false
}

// ClearExecutionLog clears the execution log
func (b *Bus) ClearExecutionLog() {
	b.executionLog = make([]BusExecutionEvent, 0)
}

// BusExecutionEvent represents a single execution step for testing
type BusExecutionEvent struct {
	StepNumber    int
	CPUCycles     uint64
	PPUCycles     uint64
	FrameCount    uint64
	DMAActive     bool
	NMIProcessed  bool
	PCValue       uint16
	InstructionOp uint8
}

// GetCPUState returns the current CPU state for testing
func (b *Bus) GetCPUState() CPUState {
	return CPUState{
		PC:     b.CPU.PC,
		A:      b.CPU.A,
		X:      b.CPU.X,
		Y:      b.CPU.Y,
		SP:     b.CPU.SP,
		Cycles: b.cpuCycles,
		Flags: CPUFlags{
			N: b.CPU.N,
			V: b.CPU.V,
			B: b.CPU.B,
			D: b.CPU.D,
			I: b.CPU.I,
			Z: b.CPU.Z,
			C: b.CPU.C,
		},
	}
}

// CPUState represents CPU state snapshot for testing
type CPUState struct {
	PC      uint16
	A, X, Y uint8
	SP      uint8
	Cycles  uint64
	Flags   CPUFlags
}

// CPUFlags represents CPU status flags for testing
type CPUFlags struct {
	N, V, B, D, I, Z, C bool
}

// GetPPUState returns the current PPU state for testing
func (b *Bus) GetPPUState() PPUState {
	return PPUState{
		Scanline:    b.PPU.GetScanline(),
		Cycle:       b.PPU.GetCycle(),
		FrameCount:  b.frameCount,
		VBlankFlag:  b.PPU.IsVBlank(),
		RenderingOn: b.isRenderingEnabled(),
		NMIEnabled:  b.PPU.IsNMIEnabled(),
	}
}

// PPUState represents PPU state snapshot for testing
type PPUState struct {
	Scanline    int
	Cycle       int
	FrameCount  uint64
	VBlankFlag  bool
	RenderingOn bool
	NMIEnabled  bool
}
