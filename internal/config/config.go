// Package config collects the emulation core's tunables into one
// struct built by functional options, mirroring the teacher's
// internal/app/config.go pattern (an explicit struct passed once at
// construction, not package globals or environment-variable reads) but
// trimmed to what the core itself consumes. Window/audio/save-state
// options that belong to the host shell live in internal/shell instead.
package config

import (
	"github.com/nesgo/core/internal/bus"
	"github.com/nesgo/core/internal/cpu"
)

// TimingMode selects how the scheduler advances PPU/APU time relative
// to the CPU.
type TimingMode int

const (
	// TimingInteger advances PPU/APU by whole cycles per CPU cycle,
	// the only scheduler this core implements today.
	TimingInteger TimingMode = iota
	// TimingFractional is reserved for a sub-cycle accurate scheduler.
	// It is accepted but currently behaves identically to
	// TimingInteger; no fractional-cycle scheduler exists yet.
	TimingFractional
)

// Config holds the options an emulation Config applies to a freshly
// constructed bus.Bus and cpu.CPU.
type Config struct {
	Region        bus.Region
	IllegalMode   cpu.IllegalMode
	BRKReturnMode cpu.BRKReturnMode
	Timing        TimingMode
}

// Option mutates a Config under construction.
type Option func(*Config)

// New builds a Config from opts, defaulting to NTSC, lenient illegal
// opcodes, and PC+2 BRK returns (spec's conformance default).
func New(opts ...Option) Config {
	c := Config{
		Region:        bus.NTSC,
		IllegalMode:   cpu.IllegalLenient,
		BRKReturnMode: cpu.BRKReturnPCPlus2,
		Timing:        TimingInteger,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithRegion selects NTSC or PAL timing.
func WithRegion(region bus.Region) Option {
	return func(c *Config) { c.Region = region }
}

// WithIllegalMode selects KIL/JAM behavior.
func WithIllegalMode(mode cpu.IllegalMode) Option {
	return func(c *Config) { c.IllegalMode = mode }
}

// WithBRKReturnMode selects BRK's pushed return address.
func WithBRKReturnMode(mode cpu.BRKReturnMode) Option {
	return func(c *Config) { c.BRKReturnMode = mode }
}

// WithTimingMode selects the scheduler's cycle granularity.
func WithTimingMode(mode TimingMode) Option {
	return func(c *Config) { c.Timing = mode }
}

// Apply pushes every option onto b's and cpu's setters. Fractional
// timing has no distinct behavior yet (see TimingFractional) so it is
// accepted without changing the scheduler.
func (c Config) Apply(b *bus.Bus, cp *cpu.CPU) {
	b.SetRegion(c.Region)
	cp.SetIllegalMode(c.IllegalMode)
	cp.SetBRKReturnMode(c.BRKReturnMode)
}
