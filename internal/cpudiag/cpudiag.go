// Package cpudiag renders the CPU's fatal-decode diagnostic (a jammed
// opcode in strict illegal-opcode mode) as a human-readable dump. The
// teacher's cpu.go used ad hoc logInstruction/detectInfiniteLoop
// Printf calls scattered through Step; this replaces all of that with
// one structured dump built from the single FatalDecode snapshot the
// CPU already exposes via SetFatalDecodeHandler.
package cpudiag

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"

	"github.com/nesgo/core/internal/cpu"
)

// Dumper renders cpu.FatalDecode snapshots to an io.Writer.
type Dumper struct {
	w      io.Writer
	config spew.ConfigState
}

// NewDumper builds a Dumper writing to w.
func NewDumper(w io.Writer) *Dumper {
	return &Dumper{
		w: w,
		config: spew.ConfigState{
			Indent:                  "  ",
			DisablePointerAddresses: true,
			DisableCapacities:       true,
		},
	}
}

// Handler returns a cpu.FatalDecodeHandler bound to this dumper,
// suitable for cpu.SetFatalDecodeHandler.
func (d *Dumper) Handler() cpu.FatalDecodeHandler {
	return d.Dump
}

// Dump writes a labeled dump of fd: registers, the opcode and its
// operand bytes, and the ring of recently executed program counters.
func (d *Dumper) Dump(fd cpu.FatalDecode) {
	fmt.Fprintf(d.w, "CPU jammed at PC=$%04X on opcode $%02X\n", fd.PC, fd.Opcode)
	fmt.Fprint(d.w, "registers:\n")
	d.config.Fdump(d.w, fd)
}
