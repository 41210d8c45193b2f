// Package cpu implements the 6502 CPU used by the NES (the 2A03, which
// drops the 6502's decimal mode but keeps its full opcode map including
// the unofficial/illegal instructions).
package cpu

// Addressing modes
type AddressingMode int

const (
	Implied AddressingMode = iota
	Accumulator
	Immediate
	ZeroPage
	ZeroPageX
	ZeroPageY
	Relative
	Absolute
	AbsoluteX
	AbsoluteY
	Indirect
	IndexedIndirect // (zp,X)
	IndirectIndexed // (zp),Y
)

const (
	stackBase = 0x0100

	nFlagMask  = 0x80
	vFlagMask  = 0x40
	unusedMask = 0x20
	bFlagMask  = 0x10
	dFlagMask  = 0x08
	iFlagMask  = 0x04
	zFlagMask  = 0x02
	cFlagMask  = 0x01

	zeroPageMask = 0xFF
	pageMask     = 0xFF00

	nmiVector   = 0xFFFA
	resetVector = 0xFFFC
	irqVector   = 0xFFFE
)

// IllegalMode selects how KIL/JAM opcodes behave.
type IllegalMode int

const (
	// IllegalLenient treats KIL/JAM as a 2-cycle NOP, matching what most
	// commercial ROMs' anti-piracy probes expect when they check for a
	// jam and don't actually want to hang.
	IllegalLenient IllegalMode = iota
	// IllegalStrict jams the CPU permanently on KIL/JAM, as real
	// hardware does, for conformance-test ROMs that expect the jam.
	IllegalStrict
)

// BRKReturnMode selects the return-address semantics used by BRK.
type BRKReturnMode int

const (
	// BRKReturnPCPlus2 pushes PC+2 (the address after BRK's padding
	// byte), matching hardware behavior.
	BRKReturnPCPlus2 BRKReturnMode = iota
	// BRKReturnPCPlus1 pushes PC+1, a mode some test harnesses expect.
	BRKReturnPCPlus1
)

// Instruction describes one entry of the 256-opcode dispatch table.
type Instruction struct {
	Name   string
	Opcode uint8
	Bytes  uint8
	Cycles uint8
	Mode   AddressingMode
}

// MemoryInterface is the bus the CPU reads and writes through.
type MemoryInterface interface {
	Read(address uint16) uint8
	Write(address uint16, value uint8)
}

// CycleHook is invoked once per bus cycle the CPU consumes, letting the
// scheduler interleave PPU/APU stepping at cycle granularity instead of
// in bulk after a whole instruction.
type CycleHook func()

// FatalDecodeHandler is invoked when the CPU hits a jammed opcode in
// IllegalStrict mode. It receives a snapshot sufficient to render a
// diagnostic dump.
type FatalDecodeHandler func(FatalDecode)

// FatalDecode captures enough state around a bad decode to diagnose it.
type FatalDecode struct {
	PC        uint16
	Opcode    uint8
	Bytes     [3]uint8
	A, X, Y   uint8
	SP        uint8
	Status    uint8
	RecentPCs []uint16
}

// CPU is a 6502/2A03 core. Decimal mode is parsed like real hardware
// (SED/CLD toggle the D flag) but ADC/SBC never apply BCD correction,
// matching the 2A03's disabled decimal ALU.
type CPU struct {
	A, X, Y uint8
	SP      uint8
	PC      uint16

	C, Z, I, D, B, V, N bool

	memory       MemoryInterface
	cycles       uint64
	instructions [256]*Instruction

	illegalMode   IllegalMode
	brkReturnMode BRKReturnMode
	jammed        bool

	cycleHook   CycleHook
	fatalDecode FatalDecodeHandler
	pcRing      [16]uint16
	pcRingPos   int

	// nmiLine/irqLine are the raw level inputs from the bus. NMI~ is
	// edge-detected (active-low line driven by the PPU); IRQ~ is
	// level-sensitive and masked by the I flag.
	nmiLine    bool
	nmiPending bool
	irqLine    bool
}

// New creates a CPU wired to the given bus.
func New(memory MemoryInterface) *CPU {
	cpu := &CPU{
		memory: memory,
		SP:     0xFD,
	}
	cpu.initInstructions()
	return cpu
}

// SetIllegalMode configures KIL/JAM behavior.
func (cpu *CPU) SetIllegalMode(mode IllegalMode) { cpu.illegalMode = mode }

// SetBRKReturnMode configures BRK's pushed return address.
func (cpu *CPU) SetBRKReturnMode(mode BRKReturnMode) { cpu.brkReturnMode = mode }

// SetCycleHook installs a callback fired once per bus cycle consumed by
// Step, so a scheduler can advance the PPU/APU in lockstep with the CPU
// instead of after the whole instruction completes.
func (cpu *CPU) SetCycleHook(hook CycleHook) { cpu.cycleHook = hook }

// SetFatalDecodeHandler installs the diagnostic sink used when the CPU
// jams (IllegalStrict KIL/JAM).
func (cpu *CPU) SetFatalDecodeHandler(handler FatalDecodeHandler) { cpu.fatalDecode = handler }

// Jammed reports whether the CPU has halted on an illegal opcode in
// strict mode.
func (cpu *CPU) Jammed() bool { return cpu.jammed }

// Cycles returns the total bus cycles consumed since construction.
func (cpu *CPU) Cycles() uint64 { return cpu.cycles }

func (cpu *CPU) tick() {
	cpu.cycles++
	if cpu.cycleHook != nil {
		cpu.cycleHook()
	}
}

func (cpu *CPU) tickN(n int) {
	for i := 0; i < n; i++ {
		cpu.tick()
	}
}

// Reset performs the 6502 reset sequence: 7 cycles of bus activity (five
// dummy reads, then the two vector reads), landing PC at the reset
// vector with I set.
func (cpu *CPU) Reset() {
	cpu.A, cpu.X, cpu.Y = 0, 0, 0
	cpu.SP = 0xFD
	cpu.C, cpu.Z, cpu.V, cpu.N = false, false, false, false
	cpu.I = true
	cpu.D = false
	cpu.B = false
	cpu.jammed = false

	for i := 0; i < 5; i++ {
		cpu.memory.Read(cpu.PC)
		cpu.tick()
	}

	low := uint16(cpu.memory.Read(resetVector))
	cpu.tick()
	high := uint16(cpu.memory.Read(resetVector + 1))
	cpu.tick()
	cpu.PC = (high << 8) | low
}

func (cpu *CPU) recordPC(pc uint16) {
	cpu.pcRing[cpu.pcRingPos%len(cpu.pcRing)] = pc
	cpu.pcRingPos++
}

func (cpu *CPU) recentPCs() []uint16 {
	n := len(cpu.pcRing)
	if cpu.pcRingPos < n {
		n = cpu.pcRingPos
	}
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		idx := (cpu.pcRingPos - n + i) % len(cpu.pcRing)
		out[i] = cpu.pcRing[idx]
	}
	return out
}

func (cpu *CPU) raiseFatalDecode(opcode uint8) {
	if cpu.fatalDecode == nil {
		return
	}
	cpu.fatalDecode(FatalDecode{
		PC:     cpu.PC,
		Opcode: opcode,
		Bytes: [3]uint8{
			cpu.memory.Read(cpu.PC),
			cpu.memory.Read(cpu.PC + 1),
			cpu.memory.Read(cpu.PC + 2),
		},
		A: cpu.A, X: cpu.X, Y: cpu.Y, SP: cpu.SP,
		Status:    cpu.GetStatusByte(),
		RecentPCs: cpu.recentPCs(),
	})
}

// Step executes exactly one instruction, ticking the cycle hook once
// per bus cycle, and returns the number of cycles it took. Pending
// interrupts are serviced first, via servicePendingInterrupt.
func (cpu *CPU) Step() uint64 {
	if cpu.jammed {
		cpu.tick()
		return 1
	}

	startCycles := cpu.cycles

	if cpu.servicePendingInterrupt() {
		return cpu.cycles - startCycles
	}

	cpu.recordPC(cpu.PC)
	opcode := cpu.memory.Read(cpu.PC)
	cpu.tick()
	instruction := cpu.instructions[opcode]

	if instruction == nil {
		cpu.PC++
		cpu.tick()
		return cpu.cycles - startCycles
	}

	address, pageCrossed := cpu.getOperandAddress(instruction.Mode)
	extraCycles := cpu.executeInstruction(opcode, address, pageCrossed)

	if pageCrossed {
		extraCycles += cpu.pageCrossPenalty(opcode)
	}

	baseCycles := int(instruction.Cycles) - 1 // fetch cycle already ticked
	if baseCycles < 0 {
		baseCycles = 0
	}
	cpu.tickN(baseCycles + int(extraCycles))

	return cpu.cycles - startCycles
}

func (cpu *CPU) pageCrossPenalty(opcode uint8) uint8 {
	switch opcode {
	case 0x9D, 0x99, 0x91: // STA absolute,X/Y and (zp),Y always pay it (already in the base count)
		return 0
	case 0xBD, 0xB9, 0xB1, 0xBE, 0xBC, 0x7D, 0x79, 0x71, 0x3D, 0x39, 0x31,
		0x1D, 0x19, 0x11, 0x5D, 0x59, 0x51, 0xDD, 0xD9, 0xD1:
		return 1
	case 0x1C, 0x3C, 0x5C, 0x7C, 0xDC, 0xFC:
		return 1
	case 0xBF, 0xB3: // LAX absolute,Y and (zp),Y
		return 1
	}
	return 0
}

// servicePendingInterrupt services NMI or IRQ if one is latched and
// due, returning true if it consumed this Step call. NMI always wins
// over IRQ.
func (cpu *CPU) servicePendingInterrupt() bool {
	if cpu.nmiPending {
		cpu.nmiPending = false
		cpu.handleInterrupt(nmiVector, false)
		return true
	}
	if cpu.irqLine && !cpu.I {
		cpu.handleInterrupt(irqVector, false)
		return true
	}
	return false
}

func (cpu *CPU) handleInterrupt(vector uint16, isBRK bool) {
	cpu.memory.Read(cpu.PC)
	cpu.tick()
	cpu.memory.Read(cpu.PC)
	cpu.tick()
	cpu.push(uint8(cpu.PC >> 8))
	cpu.tick()
	cpu.push(uint8(cpu.PC & 0xFF))
	cpu.tick()
	status := (cpu.GetStatusByte() &^ uint8(bFlagMask)) | unusedMask
	if isBRK {
		status |= bFlagMask
	}
	cpu.push(status)
	cpu.tick()
	cpu.I = true
	low := uint16(cpu.memory.Read(vector))
	cpu.tick()
	high := uint16(cpu.memory.Read(vector + 1))
	cpu.tick()
	cpu.PC = (high << 8) | low
}

// getOperandAddress returns the effective address for the given
// addressing mode and whether a page boundary was crossed while
// forming it (which feeds the page-cross cycle penalty).
func (cpu *CPU) getOperandAddress(mode AddressingMode) (uint16, bool) {
	switch mode {
	case Implied, Accumulator:
		cpu.PC++
		return 0, false

	case Immediate:
		address := cpu.PC + 1
		cpu.PC += 2
		return address, false

	case ZeroPage:
		address := uint16(cpu.memory.Read(cpu.PC + 1))
		cpu.PC += 2
		return address, false

	case ZeroPageX:
		base := cpu.memory.Read(cpu.PC + 1)
		address := uint16((base + cpu.X) & zeroPageMask)
		cpu.PC += 2
		return address, false

	case ZeroPageY:
		base := cpu.memory.Read(cpu.PC + 1)
		address := uint16((base + cpu.Y) & zeroPageMask)
		cpu.PC += 2
		return address, false

	case Relative:
		offset := int8(cpu.memory.Read(cpu.PC + 1))
		oldPC := cpu.PC + 2
		newPC := uint16(int32(oldPC) + int32(offset))
		cpu.PC = oldPC
		return newPC, (oldPC & pageMask) != (newPC & pageMask)

	case Absolute:
		low := uint16(cpu.memory.Read(cpu.PC + 1))
		high := uint16(cpu.memory.Read(cpu.PC + 2))
		cpu.PC += 3
		return (high << 8) | low, false

	case AbsoluteX:
		low := uint16(cpu.memory.Read(cpu.PC + 1))
		high := uint16(cpu.memory.Read(cpu.PC + 2))
		base := (high << 8) | low
		address := base + uint16(cpu.X)
		cpu.PC += 3
		return address, (base & pageMask) != (address & pageMask)

	case AbsoluteY:
		low := uint16(cpu.memory.Read(cpu.PC + 1))
		high := uint16(cpu.memory.Read(cpu.PC + 2))
		base := (high << 8) | low
		address := base + uint16(cpu.Y)
		cpu.PC += 3
		return address, (base & pageMask) != (address & pageMask)

	case Indirect: // JMP only, reproduces the page-wrap bug
		lowPtr := uint16(cpu.memory.Read(cpu.PC + 1))
		highPtr := uint16(cpu.memory.Read(cpu.PC + 2))
		ptr := (highPtr << 8) | lowPtr

		var address uint16
		if (ptr & zeroPageMask) == zeroPageMask {
			low := uint16(cpu.memory.Read(ptr))
			high := uint16(cpu.memory.Read(ptr & pageMask))
			address = (high << 8) | low
		} else {
			low := uint16(cpu.memory.Read(ptr))
			high := uint16(cpu.memory.Read(ptr + 1))
			address = (high << 8) | low
		}
		cpu.PC += 3
		return address, false

	case IndexedIndirect: // (zp,X)
		base := cpu.memory.Read(cpu.PC + 1)
		ptr := (base + cpu.X) & zeroPageMask
		low := uint16(cpu.memory.Read(uint16(ptr)))
		high := uint16(cpu.memory.Read(uint16((ptr + 1) & zeroPageMask)))
		cpu.PC += 2
		return (high << 8) | low, false

	case IndirectIndexed: // (zp),Y
		ptr := uint16(cpu.memory.Read(cpu.PC + 1))
		low := uint16(cpu.memory.Read(ptr))
		high := uint16(cpu.memory.Read((ptr + 1) & zeroPageMask))
		base := (high << 8) | low
		address := base + uint16(cpu.Y)
		cpu.PC += 2
		return address, (base & pageMask) != (address & pageMask)

	default:
		return 0, false
	}
}

func (cpu *CPU) push(value uint8) {
	cpu.memory.Write(stackBase+uint16(cpu.SP), value)
	cpu.SP--
}

func (cpu *CPU) pop() uint8 {
	cpu.SP++
	return cpu.memory.Read(stackBase + uint16(cpu.SP))
}

func (cpu *CPU) pushWord(value uint16) {
	cpu.push(uint8(value >> 8))
	cpu.push(uint8(value & 0xFF))
}

func (cpu *CPU) popWord() uint16 {
	low := uint16(cpu.pop())
	high := uint16(cpu.pop())
	return (high << 8) | low
}

func (cpu *CPU) setZN(value uint8) {
	cpu.Z = value == 0
	cpu.N = (value & nFlagMask) != 0
}

// SetNMILine sets the level of the NMI~ input. NMI latches on the
// falling edge (the line is driven low by the PPU entering vblank with
// NMI output enabled).
func (cpu *CPU) SetNMILine(state bool) {
	if cpu.nmiLine && !state {
		cpu.nmiPending = true
	}
	cpu.nmiLine = state
}

// SetIRQLine sets the level of the IRQ~ input, which the bus computes
// as a logical OR of every IRQ source (mapper, frame counter, DMC).
func (cpu *CPU) SetIRQLine(state bool) { cpu.irqLine = state }

// GetStatusByte packs the flags into the 6502 status register layout.
func (cpu *CPU) GetStatusByte() uint8 {
	var status uint8
	if cpu.N {
		status |= nFlagMask
	}
	if cpu.V {
		status |= vFlagMask
	}
	status |= unusedMask
	if cpu.B {
		status |= bFlagMask
	}
	if cpu.D {
		status |= dFlagMask
	}
	if cpu.I {
		status |= iFlagMask
	}
	if cpu.Z {
		status |= zFlagMask
	}
	if cpu.C {
		status |= cFlagMask
	}
	return status
}

// SetStatusByte unpacks a status register byte into the flags.
func (cpu *CPU) SetStatusByte(status uint8) {
	cpu.N = (status & nFlagMask) != 0
	cpu.V = (status & vFlagMask) != 0
	cpu.B = (status & bFlagMask) != 0
	cpu.D = (status & dFlagMask) != 0
	cpu.I = (status & iFlagMask) != 0
	cpu.Z = (status & zFlagMask) != 0
	cpu.C = (status & cFlagMask) != 0
}

// --- official instructions ---

func (cpu *CPU) lda(address uint16) uint8 { cpu.A = cpu.memory.Read(address); cpu.setZN(cpu.A); return 0 }
func (cpu *CPU) ldx(address uint16) uint8 { cpu.X = cpu.memory.Read(address); cpu.setZN(cpu.X); return 0 }
func (cpu *CPU) ldy(address uint16) uint8 { cpu.Y = cpu.memory.Read(address); cpu.setZN(cpu.Y); return 0 }

func (cpu *CPU) sta(address uint16) uint8 { cpu.memory.Write(address, cpu.A); return 0 }
func (cpu *CPU) stx(address uint16) uint8 { cpu.memory.Write(address, cpu.X); return 0 }
func (cpu *CPU) sty(address uint16) uint8 { cpu.memory.Write(address, cpu.Y); return 0 }

func (cpu *CPU) addWithCarry(value uint8) {
	carry := uint8(0)
	if cpu.C {
		carry = 1
	}
	result := uint16(cpu.A) + uint16(value) + uint16(carry)
	cpu.V = ((cpu.A^uint8(result))&0x80) != 0 && ((cpu.A^value)&0x80) == 0
	cpu.C = result > 0xFF
	cpu.A = uint8(result)
	cpu.setZN(cpu.A)
}

func (cpu *CPU) adc(address uint16) uint8 {
	cpu.addWithCarry(cpu.memory.Read(address))
	return 0
}

func (cpu *CPU) sbc(address uint16) uint8 {
	cpu.addWithCarry(cpu.memory.Read(address) ^ 0xFF)
	return 0
}

func (cpu *CPU) and(address uint16) uint8 { cpu.A &= cpu.memory.Read(address); cpu.setZN(cpu.A); return 0 }
func (cpu *CPU) ora(address uint16) uint8 { cpu.A |= cpu.memory.Read(address); cpu.setZN(cpu.A); return 0 }
func (cpu *CPU) eor(address uint16) uint8 { cpu.A ^= cpu.memory.Read(address); cpu.setZN(cpu.A); return 0 }

func (cpu *CPU) asl(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value) // dummy write: real RMW bus cycle
	cpu.C = (value & 0x80) != 0
	value <<= 1
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) lsr(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	cpu.C = (value & 0x01) != 0
	value >>= 1
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) rol(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	oldCarry := cpu.C
	cpu.C = (value & 0x80) != 0
	value <<= 1
	if oldCarry {
		value |= 0x01
	}
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) ror(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	oldCarry := cpu.C
	cpu.C = (value & 0x01) != 0
	value >>= 1
	if oldCarry {
		value |= 0x80
	}
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) compare(reg, value uint8) {
	result := reg - value
	cpu.C = reg >= value
	cpu.setZN(result)
}

func (cpu *CPU) cmp(address uint16) uint8 { cpu.compare(cpu.A, cpu.memory.Read(address)); return 0 }
func (cpu *CPU) cpx(address uint16) uint8 { cpu.compare(cpu.X, cpu.memory.Read(address)); return 0 }
func (cpu *CPU) cpy(address uint16) uint8 { cpu.compare(cpu.Y, cpu.memory.Read(address)); return 0 }

func (cpu *CPU) inc(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	value++
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) dec(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	value--
	cpu.memory.Write(address, value)
	cpu.setZN(value)
	return 0
}

func (cpu *CPU) inx(uint16) uint8 { cpu.X++; cpu.setZN(cpu.X); return 0 }
func (cpu *CPU) dex(uint16) uint8 { cpu.X--; cpu.setZN(cpu.X); return 0 }
func (cpu *CPU) iny(uint16) uint8 { cpu.Y++; cpu.setZN(cpu.Y); return 0 }
func (cpu *CPU) dey(uint16) uint8 { cpu.Y--; cpu.setZN(cpu.Y); return 0 }

func (cpu *CPU) tax(uint16) uint8 { cpu.X = cpu.A; cpu.setZN(cpu.X); return 0 }
func (cpu *CPU) txa(uint16) uint8 { cpu.A = cpu.X; cpu.setZN(cpu.A); return 0 }
func (cpu *CPU) tay(uint16) uint8 { cpu.Y = cpu.A; cpu.setZN(cpu.Y); return 0 }
func (cpu *CPU) tya(uint16) uint8 { cpu.A = cpu.Y; cpu.setZN(cpu.A); return 0 }
func (cpu *CPU) tsx(uint16) uint8 { cpu.X = cpu.SP; cpu.setZN(cpu.X); return 0 }
func (cpu *CPU) txs(uint16) uint8 { cpu.SP = cpu.X; return 0 }

func (cpu *CPU) pha(uint16) uint8 { cpu.push(cpu.A); return 0 }
func (cpu *CPU) pla(uint16) uint8 { cpu.A = cpu.pop(); cpu.setZN(cpu.A); return 0 }
func (cpu *CPU) php(uint16) uint8 { cpu.push(cpu.GetStatusByte() | bFlagMask); return 0 }
func (cpu *CPU) plp(uint16) uint8 { cpu.SetStatusByte(cpu.pop()); return 0 }

func (cpu *CPU) clc(uint16) uint8 { cpu.C = false; return 0 }
func (cpu *CPU) sec(uint16) uint8 { cpu.C = true; return 0 }
func (cpu *CPU) cli(uint16) uint8 { cpu.I = false; return 0 }
func (cpu *CPU) sei(uint16) uint8 { cpu.I = true; return 0 }
func (cpu *CPU) clv(uint16) uint8 { cpu.V = false; return 0 }
func (cpu *CPU) cld(uint16) uint8 { cpu.D = false; return 0 }
func (cpu *CPU) sed(uint16) uint8 { cpu.D = true; return 0 }

func (cpu *CPU) jmp(address uint16) uint8 { cpu.PC = address; return 0 }

func (cpu *CPU) jsr(address uint16) uint8 {
	cpu.pushWord(cpu.PC - 1)
	cpu.PC = address
	return 0
}

func (cpu *CPU) rts(uint16) uint8 { cpu.PC = cpu.popWord() + 1; return 0 }

func (cpu *CPU) rti(uint16) uint8 {
	cpu.SetStatusByte(cpu.pop())
	cpu.PC = cpu.popWord()
	return 0
}

func (cpu *CPU) branch(take bool, address uint16) uint8 {
	if !take {
		return 0
	}
	oldPage := cpu.PC & pageMask
	cpu.PC = address
	if (address & pageMask) != oldPage {
		return 2
	}
	return 1
}

func (cpu *CPU) bcc(a uint16, _ bool) uint8 { return cpu.branch(!cpu.C, a) }
func (cpu *CPU) bcs(a uint16, _ bool) uint8 { return cpu.branch(cpu.C, a) }
func (cpu *CPU) bne(a uint16, _ bool) uint8 { return cpu.branch(!cpu.Z, a) }
func (cpu *CPU) beq(a uint16, _ bool) uint8 { return cpu.branch(cpu.Z, a) }
func (cpu *CPU) bpl(a uint16, _ bool) uint8 { return cpu.branch(!cpu.N, a) }
func (cpu *CPU) bmi(a uint16, _ bool) uint8 { return cpu.branch(cpu.N, a) }
func (cpu *CPU) bvc(a uint16, _ bool) uint8 { return cpu.branch(!cpu.V, a) }
func (cpu *CPU) bvs(a uint16, _ bool) uint8 { return cpu.branch(cpu.V, a) }

func (cpu *CPU) bit(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.N = (value & nFlagMask) != 0
	cpu.V = (value & vFlagMask) != 0
	cpu.Z = (cpu.A & value) == 0
	return 0
}

func (cpu *CPU) nop(uint16) uint8 { return 0 }

func (cpu *CPU) brk(uint16) uint8 {
	returnPC := cpu.PC + 1
	if cpu.brkReturnMode == BRKReturnPCPlus1 {
		returnPC = cpu.PC
	}
	cpu.pushWord(returnPC)
	cpu.push(cpu.GetStatusByte() | bFlagMask)
	cpu.I = true
	low := uint16(cpu.memory.Read(irqVector))
	high := uint16(cpu.memory.Read(irqVector + 1))
	cpu.PC = (high << 8) | low
	return 0
}

// --- unofficial/illegal instructions ---

func (cpu *CPU) lax(address uint16) uint8 {
	cpu.A = cpu.memory.Read(address)
	cpu.X = cpu.A
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) sax(address uint16) uint8 { cpu.memory.Write(address, cpu.A&cpu.X); return 0 }

func (cpu *CPU) dcp(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	value--
	cpu.memory.Write(address, value)
	cpu.compare(cpu.A, value)
	return 0
}

func (cpu *CPU) isb(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	value++
	cpu.memory.Write(address, value)
	cpu.addWithCarry(value ^ 0xFF)
	return 0
}

func (cpu *CPU) slo(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	cpu.C = (value & 0x80) != 0
	value <<= 1
	cpu.memory.Write(address, value)
	cpu.A |= value
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) rla(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	oldCarry := cpu.C
	cpu.C = (value & 0x80) != 0
	value <<= 1
	if oldCarry {
		value |= 0x01
	}
	cpu.memory.Write(address, value)
	cpu.A &= value
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) sre(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	cpu.C = (value & 0x01) != 0
	value >>= 1
	cpu.memory.Write(address, value)
	cpu.A ^= value
	cpu.setZN(cpu.A)
	return 0
}

func (cpu *CPU) rra(address uint16) uint8 {
	value := cpu.memory.Read(address)
	cpu.memory.Write(address, value)
	oldCarry := cpu.C
	cpu.C = (value & 0x01) != 0
	value >>= 1
	if oldCarry {
		value |= 0x80
	}
	cpu.memory.Write(address, value)
	cpu.addWithCarry(value)
	return 0
}

// anc: AND immediate, then carry takes bit 7 of the result.
func (cpu *CPU) anc(address uint16) uint8 {
	cpu.A &= cpu.memory.Read(address)
	cpu.setZN(cpu.A)
	cpu.C = (cpu.A & 0x80) != 0
	return 0
}

// alr: AND immediate then LSR A.
func (cpu *CPU) alr(address uint16) uint8 {
	cpu.A &= cpu.memory.Read(address)
	cpu.C = (cpu.A & 0x01) != 0
	cpu.A >>= 1
	cpu.setZN(cpu.A)
	return 0
}

// arr: AND immediate then ROR A, with C/V taken from bits 6/5 of the
// rotated result per the conventional documented model (the chosen
// semantics for this opcode — no attempt to model per-chip drift).
func (cpu *CPU) arr(address uint16) uint8 {
	cpu.A &= cpu.memory.Read(address)
	carry := uint8(0)
	if cpu.C {
		carry = 0x80
	}
	cpu.A = (cpu.A >> 1) | carry
	cpu.setZN(cpu.A)
	cpu.C = (cpu.A & 0x40) != 0
	cpu.V = ((cpu.A>>6)^(cpu.A>>5))&1 != 0
	return 0
}

// sbx (AXS): X = (A & X) - immediate, no borrow-in, C set if no borrow.
func (cpu *CPU) sbx(address uint16) uint8 {
	value := cpu.memory.Read(address)
	anded := cpu.A & cpu.X
	cpu.C = anded >= value
	cpu.X = anded - value
	cpu.setZN(cpu.X)
	return 0
}

// xaa (ANE): A = X & immediate, the conventional emulation default for
// an opcode whose real behavior depends on analog chip variance.
func (cpu *CPU) xaa(address uint16) uint8 {
	cpu.A = cpu.X & cpu.memory.Read(address)
	cpu.setZN(cpu.A)
	return 0
}

// las (LAR): A = X = SP = memory & SP.
func (cpu *CPU) las(address uint16) uint8 {
	value := cpu.memory.Read(address) & cpu.SP
	cpu.A, cpu.X, cpu.SP = value, value, value
	cpu.setZN(value)
	return 0
}

// tas (SHS): SP = A & X; stores SP & (high(addr)+1) to the address.
func (cpu *CPU) tas(address uint16) uint8 {
	cpu.SP = cpu.A & cpu.X
	high := uint8(address>>8) + 1
	cpu.memory.Write(address, cpu.SP&high)
	return 0
}

// shy (SYA/SAY): stores Y & (high(addr)+1).
func (cpu *CPU) shy(address uint16) uint8 {
	high := uint8(address>>8) + 1
	cpu.memory.Write(address, cpu.Y&high)
	return 0
}

// shx (SXA/XAS): stores X & (high(addr)+1).
func (cpu *CPU) shx(address uint16) uint8 {
	high := uint8(address>>8) + 1
	cpu.memory.Write(address, cpu.X&high)
	return 0
}

// sha (AHX/AXA): stores A & X & (high(addr)+1).
func (cpu *CPU) sha(address uint16) uint8 {
	high := uint8(address>>8) + 1
	cpu.memory.Write(address, cpu.A&cpu.X&high)
	return 0
}

// kil jams the CPU. In IllegalLenient mode it behaves as a 2-cycle NOP
// so general gameplay isn't derailed by a stray illegal fetch; in
// IllegalStrict mode it halts and raises the fatal-decode diagnostic.
func (cpu *CPU) kil(opcode uint8) uint8 {
	if cpu.illegalMode == IllegalStrict {
		cpu.jammed = true
		cpu.raiseFatalDecode(opcode)
	}
	return 0
}

// executeInstruction dispatches the given opcode, returning any extra
// cycles beyond the instruction's base cycle count.
func (cpu *CPU) executeInstruction(opcode uint8, address uint16, pageCrossed bool) uint8 {
	switch opcode {
	case 0xA9, 0xA5, 0xB5, 0xAD, 0xBD, 0xB9, 0xA1, 0xB1:
		return cpu.lda(address)
	case 0xA2, 0xA6, 0xB6, 0xAE, 0xBE:
		return cpu.ldx(address)
	case 0xA0, 0xA4, 0xB4, 0xAC, 0xBC:
		return cpu.ldy(address)
	case 0x85, 0x95, 0x8D, 0x9D, 0x99, 0x81, 0x91:
		return cpu.sta(address)
	case 0x86, 0x96, 0x8E:
		return cpu.stx(address)
	case 0x84, 0x94, 0x8C:
		return cpu.sty(address)

	case 0x69, 0x65, 0x75, 0x6D, 0x7D, 0x79, 0x61, 0x71:
		return cpu.adc(address)
	case 0xE9, 0xEB, 0xE5, 0xF5, 0xED, 0xFD, 0xF9, 0xE1, 0xF1:
		return cpu.sbc(address)

	case 0x29, 0x25, 0x35, 0x2D, 0x3D, 0x39, 0x21, 0x31:
		return cpu.and(address)
	case 0x09, 0x05, 0x15, 0x0D, 0x1D, 0x19, 0x01, 0x11:
		return cpu.ora(address)
	case 0x49, 0x45, 0x55, 0x4D, 0x5D, 0x59, 0x41, 0x51:
		return cpu.eor(address)

	case 0x0A:
		cpu.C = (cpu.A & 0x80) != 0
		cpu.A <<= 1
		cpu.setZN(cpu.A)
		return 0
	case 0x06, 0x16, 0x0E, 0x1E:
		return cpu.asl(address)
	case 0x4A:
		cpu.C = (cpu.A & 0x01) != 0
		cpu.A >>= 1
		cpu.setZN(cpu.A)
		return 0
	case 0x46, 0x56, 0x4E, 0x5E:
		return cpu.lsr(address)
	case 0x2A:
		oldCarry := cpu.C
		cpu.C = (cpu.A & 0x80) != 0
		cpu.A <<= 1
		if oldCarry {
			cpu.A |= 0x01
		}
		cpu.setZN(cpu.A)
		return 0
	case 0x26, 0x36, 0x2E, 0x3E:
		return cpu.rol(address)
	case 0x6A:
		oldCarry := cpu.C
		cpu.C = (cpu.A & 0x01) != 0
		cpu.A >>= 1
		if oldCarry {
			cpu.A |= 0x80
		}
		cpu.setZN(cpu.A)
		return 0
	case 0x66, 0x76, 0x6E, 0x7E:
		return cpu.ror(address)

	case 0xC9, 0xC5, 0xD5, 0xCD, 0xDD, 0xD9, 0xC1, 0xD1:
		return cpu.cmp(address)
	case 0xE0, 0xE4, 0xEC:
		return cpu.cpx(address)
	case 0xC0, 0xC4, 0xCC:
		return cpu.cpy(address)

	case 0xE6, 0xF6, 0xEE, 0xFE:
		return cpu.inc(address)
	case 0xC6, 0xD6, 0xCE, 0xDE:
		return cpu.dec(address)
	case 0xE8:
		return cpu.inx(address)
	case 0xCA:
		return cpu.dex(address)
	case 0xC8:
		return cpu.iny(address)
	case 0x88:
		return cpu.dey(address)

	case 0xAA:
		return cpu.tax(address)
	case 0x8A:
		return cpu.txa(address)
	case 0xA8:
		return cpu.tay(address)
	case 0x98:
		return cpu.tya(address)
	case 0xBA:
		return cpu.tsx(address)
	case 0x9A:
		return cpu.txs(address)

	case 0x48:
		return cpu.pha(address)
	case 0x68:
		return cpu.pla(address)
	case 0x08:
		return cpu.php(address)
	case 0x28:
		return cpu.plp(address)

	case 0x18:
		return cpu.clc(address)
	case 0x38:
		return cpu.sec(address)
	case 0x58:
		return cpu.cli(address)
	case 0x78:
		return cpu.sei(address)
	case 0xB8:
		return cpu.clv(address)
	case 0xD8:
		return cpu.cld(address)
	case 0xF8:
		return cpu.sed(address)

	case 0x4C, 0x6C:
		return cpu.jmp(address)
	case 0x20:
		return cpu.jsr(address)
	case 0x60:
		return cpu.rts(address)
	case 0x40:
		return cpu.rti(address)

	case 0x90:
		return cpu.bcc(address, pageCrossed)
	case 0xB0:
		return cpu.bcs(address, pageCrossed)
	case 0xD0:
		return cpu.bne(address, pageCrossed)
	case 0xF0:
		return cpu.beq(address, pageCrossed)
	case 0x10:
		return cpu.bpl(address, pageCrossed)
	case 0x30:
		return cpu.bmi(address, pageCrossed)
	case 0x50:
		return cpu.bvc(address, pageCrossed)
	case 0x70:
		return cpu.bvs(address, pageCrossed)

	case 0x24, 0x2C:
		return cpu.bit(address)
	case 0x00:
		return cpu.brk(address)

	case 0xEA, 0x1A, 0x3A, 0x5A, 0x7A, 0xDA, 0xFA, 0x80, 0x82, 0x89, 0xC2, 0xE2,
		0x04, 0x44, 0x64, 0x14, 0x34, 0x54, 0x74, 0xD4, 0xF4, 0x0C, 0x1C, 0x3C, 0x5C, 0x7C, 0xDC, 0xFC:
		return cpu.nop(address)

	case 0xA3, 0xA7, 0xAF, 0xB3, 0xB7, 0xBF:
		return cpu.lax(address)
	case 0x83, 0x87, 0x8F, 0x97:
		return cpu.sax(address)
	case 0xC3, 0xC7, 0xCF, 0xD3, 0xD7, 0xDF, 0xDB:
		return cpu.dcp(address)
	case 0xE3, 0xE7, 0xEF, 0xF3, 0xF7, 0xFF, 0xFB:
		return cpu.isb(address)
	case 0x03, 0x07, 0x0F, 0x13, 0x17, 0x1F, 0x1B:
		return cpu.slo(address)
	case 0x23, 0x27, 0x2F, 0x33, 0x37, 0x3F, 0x3B:
		return cpu.rla(address)
	case 0x43, 0x47, 0x4F, 0x53, 0x57, 0x5F, 0x5B:
		return cpu.sre(address)
	case 0x63, 0x67, 0x6F, 0x73, 0x77, 0x7F, 0x7B:
		return cpu.rra(address)

	case 0x0B, 0x2B:
		return cpu.anc(address)
	case 0x4B:
		return cpu.alr(address)
	case 0x6B:
		return cpu.arr(address)
	case 0xCB:
		return cpu.sbx(address)
	case 0x8B:
		return cpu.xaa(address)
	case 0xBB:
		return cpu.las(address)
	case 0x9B:
		return cpu.tas(address)
	case 0x9C:
		return cpu.shy(address)
	case 0x9E:
		return cpu.shx(address)
	case 0x9F, 0x93:
		return cpu.sha(address)

	case 0x02, 0x12, 0x22, 0x32, 0x42, 0x52, 0x62, 0x72, 0x92, 0xB2, 0xD2, 0xF2:
		return cpu.kil(opcode)

	default:
		return 0
	}
}

// initInstructions populates the 256-entry opcode dispatch table,
// including the unofficial opcodes with their real bus cycle counts.
func (cpu *CPU) initInstructions() {
	type def struct {
		name   string
		opcode uint8
		bytes  uint8
		cycles uint8
		mode   AddressingMode
	}
	defs := []def{
		{"LDA", 0xA9, 2, 2, Immediate}, {"LDA", 0xA5, 2, 3, ZeroPage}, {"LDA", 0xB5, 2, 4, ZeroPageX},
		{"LDA", 0xAD, 3, 4, Absolute}, {"LDA", 0xBD, 3, 4, AbsoluteX}, {"LDA", 0xB9, 3, 4, AbsoluteY},
		{"LDA", 0xA1, 2, 6, IndexedIndirect}, {"LDA", 0xB1, 2, 5, IndirectIndexed},

		{"LDX", 0xA2, 2, 2, Immediate}, {"LDX", 0xA6, 2, 3, ZeroPage}, {"LDX", 0xB6, 2, 4, ZeroPageY},
		{"LDX", 0xAE, 3, 4, Absolute}, {"LDX", 0xBE, 3, 4, AbsoluteY},

		{"LDY", 0xA0, 2, 2, Immediate}, {"LDY", 0xA4, 2, 3, ZeroPage}, {"LDY", 0xB4, 2, 4, ZeroPageX},
		{"LDY", 0xAC, 3, 4, Absolute}, {"LDY", 0xBC, 3, 4, AbsoluteX},

		{"STA", 0x85, 2, 3, ZeroPage}, {"STA", 0x95, 2, 4, ZeroPageX}, {"STA", 0x8D, 3, 4, Absolute},
		{"STA", 0x9D, 3, 5, AbsoluteX}, {"STA", 0x99, 3, 5, AbsoluteY},
		{"STA", 0x81, 2, 6, IndexedIndirect}, {"STA", 0x91, 2, 6, IndirectIndexed},

		{"STX", 0x86, 2, 3, ZeroPage}, {"STX", 0x96, 2, 4, ZeroPageY}, {"STX", 0x8E, 3, 4, Absolute},
		{"STY", 0x84, 2, 3, ZeroPage}, {"STY", 0x94, 2, 4, ZeroPageX}, {"STY", 0x8C, 3, 4, Absolute},

		{"ADC", 0x69, 2, 2, Immediate}, {"ADC", 0x65, 2, 3, ZeroPage}, {"ADC", 0x75, 2, 4, ZeroPageX},
		{"ADC", 0x6D, 3, 4, Absolute}, {"ADC", 0x7D, 3, 4, AbsoluteX}, {"ADC", 0x79, 3, 4, AbsoluteY},
		{"ADC", 0x61, 2, 6, IndexedIndirect}, {"ADC", 0x71, 2, 5, IndirectIndexed},

		{"SBC", 0xE9, 2, 2, Immediate}, {"SBC", 0xEB, 2, 2, Immediate}, {"SBC", 0xE5, 2, 3, ZeroPage},
		{"SBC", 0xF5, 2, 4, ZeroPageX}, {"SBC", 0xED, 3, 4, Absolute}, {"SBC", 0xFD, 3, 4, AbsoluteX},
		{"SBC", 0xF9, 3, 4, AbsoluteY}, {"SBC", 0xE1, 2, 6, IndexedIndirect}, {"SBC", 0xF1, 2, 5, IndirectIndexed},

		{"AND", 0x29, 2, 2, Immediate}, {"AND", 0x25, 2, 3, ZeroPage}, {"AND", 0x35, 2, 4, ZeroPageX},
		{"AND", 0x2D, 3, 4, Absolute}, {"AND", 0x3D, 3, 4, AbsoluteX}, {"AND", 0x39, 3, 4, AbsoluteY},
		{"AND", 0x21, 2, 6, IndexedIndirect}, {"AND", 0x31, 2, 5, IndirectIndexed},

		{"ORA", 0x09, 2, 2, Immediate}, {"ORA", 0x05, 2, 3, ZeroPage}, {"ORA", 0x15, 2, 4, ZeroPageX},
		{"ORA", 0x0D, 3, 4, Absolute}, {"ORA", 0x1D, 3, 4, AbsoluteX}, {"ORA", 0x19, 3, 4, AbsoluteY},
		{"ORA", 0x01, 2, 6, IndexedIndirect}, {"ORA", 0x11, 2, 5, IndirectIndexed},

		{"EOR", 0x49, 2, 2, Immediate}, {"EOR", 0x45, 2, 3, ZeroPage}, {"EOR", 0x55, 2, 4, ZeroPageX},
		{"EOR", 0x4D, 3, 4, Absolute}, {"EOR", 0x5D, 3, 4, AbsoluteX}, {"EOR", 0x59, 3, 4, AbsoluteY},
		{"EOR", 0x41, 2, 6, IndexedIndirect}, {"EOR", 0x51, 2, 5, IndirectIndexed},

		{"ASL", 0x0A, 1, 2, Accumulator}, {"ASL", 0x06, 2, 5, ZeroPage}, {"ASL", 0x16, 2, 6, ZeroPageX},
		{"ASL", 0x0E, 3, 6, Absolute}, {"ASL", 0x1E, 3, 7, AbsoluteX},

		{"LSR", 0x4A, 1, 2, Accumulator}, {"LSR", 0x46, 2, 5, ZeroPage}, {"LSR", 0x56, 2, 6, ZeroPageX},
		{"LSR", 0x4E, 3, 6, Absolute}, {"LSR", 0x5E, 3, 7, AbsoluteX},

		{"ROL", 0x2A, 1, 2, Accumulator}, {"ROL", 0x26, 2, 5, ZeroPage}, {"ROL", 0x36, 2, 6, ZeroPageX},
		{"ROL", 0x2E, 3, 6, Absolute}, {"ROL", 0x3E, 3, 7, AbsoluteX},

		{"ROR", 0x6A, 1, 2, Accumulator}, {"ROR", 0x66, 2, 5, ZeroPage}, {"ROR", 0x76, 2, 6, ZeroPageX},
		{"ROR", 0x6E, 3, 6, Absolute}, {"ROR", 0x7E, 3, 7, AbsoluteX},

		{"CMP", 0xC9, 2, 2, Immediate}, {"CMP", 0xC5, 2, 3, ZeroPage}, {"CMP", 0xD5, 2, 4, ZeroPageX},
		{"CMP", 0xCD, 3, 4, Absolute}, {"CMP", 0xDD, 3, 4, AbsoluteX}, {"CMP", 0xD9, 3, 4, AbsoluteY},
		{"CMP", 0xC1, 2, 6, IndexedIndirect}, {"CMP", 0xD1, 2, 5, IndirectIndexed},

		{"CPX", 0xE0, 2, 2, Immediate}, {"CPX", 0xE4, 2, 3, ZeroPage}, {"CPX", 0xEC, 3, 4, Absolute},
		{"CPY", 0xC0, 2, 2, Immediate}, {"CPY", 0xC4, 2, 3, ZeroPage}, {"CPY", 0xCC, 3, 4, Absolute},

		{"INC", 0xE6, 2, 5, ZeroPage}, {"INC", 0xF6, 2, 6, ZeroPageX}, {"INC", 0xEE, 3, 6, Absolute}, {"INC", 0xFE, 3, 7, AbsoluteX},
		{"DEC", 0xC6, 2, 5, ZeroPage}, {"DEC", 0xD6, 2, 6, ZeroPageX}, {"DEC", 0xCE, 3, 6, Absolute}, {"DEC", 0xDE, 3, 7, AbsoluteX},

		{"INX", 0xE8, 1, 2, Implied}, {"DEX", 0xCA, 1, 2, Implied}, {"INY", 0xC8, 1, 2, Implied}, {"DEY", 0x88, 1, 2, Implied},

		{"TAX", 0xAA, 1, 2, Implied}, {"TXA", 0x8A, 1, 2, Implied}, {"TAY", 0xA8, 1, 2, Implied},
		{"TYA", 0x98, 1, 2, Implied}, {"TSX", 0xBA, 1, 2, Implied}, {"TXS", 0x9A, 1, 2, Implied},

		{"PHA", 0x48, 1, 3, Implied}, {"PLA", 0x68, 1, 4, Implied}, {"PHP", 0x08, 1, 3, Implied}, {"PLP", 0x28, 1, 4, Implied},

		{"CLC", 0x18, 1, 2, Implied}, {"SEC", 0x38, 1, 2, Implied}, {"CLI", 0x58, 1, 2, Implied},
		{"SEI", 0x78, 1, 2, Implied}, {"CLV", 0xB8, 1, 2, Implied}, {"CLD", 0xD8, 1, 2, Implied}, {"SED", 0xF8, 1, 2, Implied},

		{"JMP", 0x4C, 3, 3, Absolute}, {"JMP", 0x6C, 3, 5, Indirect},
		{"JSR", 0x20, 3, 6, Absolute}, {"RTS", 0x60, 1, 6, Implied}, {"RTI", 0x40, 1, 6, Implied},

		{"BCC", 0x90, 2, 2, Relative}, {"BCS", 0xB0, 2, 2, Relative}, {"BNE", 0xD0, 2, 2, Relative}, {"BEQ", 0xF0, 2, 2, Relative},
		{"BPL", 0x10, 2, 2, Relative}, {"BMI", 0x30, 2, 2, Relative}, {"BVC", 0x50, 2, 2, Relative}, {"BVS", 0x70, 2, 2, Relative},

		{"BIT", 0x24, 2, 3, ZeroPage}, {"BIT", 0x2C, 3, 4, Absolute},
		{"BRK", 0x00, 1, 7, Implied},

		{"NOP", 0xEA, 1, 2, Implied},
		{"NOP", 0x1A, 1, 2, Implied}, {"NOP", 0x3A, 1, 2, Implied}, {"NOP", 0x5A, 1, 2, Implied},
		{"NOP", 0x7A, 1, 2, Implied}, {"NOP", 0xDA, 1, 2, Implied}, {"NOP", 0xFA, 1, 2, Implied},
		{"NOP", 0x80, 2, 2, Immediate}, {"NOP", 0x82, 2, 2, Immediate}, {"NOP", 0x89, 2, 2, Immediate},
		{"NOP", 0xC2, 2, 2, Immediate}, {"NOP", 0xE2, 2, 2, Immediate},
		{"NOP", 0x04, 2, 3, ZeroPage}, {"NOP", 0x44, 2, 3, ZeroPage}, {"NOP", 0x64, 2, 3, ZeroPage},
		{"NOP", 0x14, 2, 4, ZeroPageX}, {"NOP", 0x34, 2, 4, ZeroPageX}, {"NOP", 0x54, 2, 4, ZeroPageX},
		{"NOP", 0x74, 2, 4, ZeroPageX}, {"NOP", 0xD4, 2, 4, ZeroPageX}, {"NOP", 0xF4, 2, 4, ZeroPageX},
		{"NOP", 0x0C, 3, 4, Absolute},
		{"NOP", 0x1C, 3, 4, AbsoluteX}, {"NOP", 0x3C, 3, 4, AbsoluteX}, {"NOP", 0x5C, 3, 4, AbsoluteX},
		{"NOP", 0x7C, 3, 4, AbsoluteX}, {"NOP", 0xDC, 3, 4, AbsoluteX}, {"NOP", 0xFC, 3, 4, AbsoluteX},

		{"LAX", 0xA3, 2, 6, IndexedIndirect}, {"LAX", 0xA7, 2, 3, ZeroPage}, {"LAX", 0xAF, 3, 4, Absolute},
		{"LAX", 0xB3, 2, 5, IndirectIndexed}, {"LAX", 0xB7, 2, 4, ZeroPageY}, {"LAX", 0xBF, 3, 4, AbsoluteY},

		{"SAX", 0x83, 2, 6, IndexedIndirect}, {"SAX", 0x87, 2, 3, ZeroPage},
		{"SAX", 0x8F, 3, 4, Absolute}, {"SAX", 0x97, 2, 4, ZeroPageY},

		{"DCP", 0xC3, 2, 8, IndexedIndirect}, {"DCP", 0xC7, 2, 5, ZeroPage}, {"DCP", 0xCF, 3, 6, Absolute},
		{"DCP", 0xD3, 2, 8, IndirectIndexed}, {"DCP", 0xD7, 2, 6, ZeroPageX}, {"DCP", 0xDB, 3, 7, AbsoluteY}, {"DCP", 0xDF, 3, 7, AbsoluteX},

		{"ISB", 0xE3, 2, 8, IndexedIndirect}, {"ISB", 0xE7, 2, 5, ZeroPage}, {"ISB", 0xEF, 3, 6, Absolute},
		{"ISB", 0xF3, 2, 8, IndirectIndexed}, {"ISB", 0xF7, 2, 6, ZeroPageX}, {"ISB", 0xFB, 3, 7, AbsoluteY}, {"ISB", 0xFF, 3, 7, AbsoluteX},

		{"SLO", 0x03, 2, 8, IndexedIndirect}, {"SLO", 0x07, 2, 5, ZeroPage}, {"SLO", 0x0F, 3, 6, Absolute},
		{"SLO", 0x13, 2, 8, IndirectIndexed}, {"SLO", 0x17, 2, 6, ZeroPageX}, {"SLO", 0x1B, 3, 7, AbsoluteY}, {"SLO", 0x1F, 3, 7, AbsoluteX},

		{"RLA", 0x23, 2, 8, IndexedIndirect}, {"RLA", 0x27, 2, 5, ZeroPage}, {"RLA", 0x2F, 3, 6, Absolute},
		{"RLA", 0x33, 2, 8, IndirectIndexed}, {"RLA", 0x37, 2, 6, ZeroPageX}, {"RLA", 0x3B, 3, 7, AbsoluteY}, {"RLA", 0x3F, 3, 7, AbsoluteX},

		{"SRE", 0x43, 2, 8, IndexedIndirect}, {"SRE", 0x47, 2, 5, ZeroPage}, {"SRE", 0x4F, 3, 6, Absolute},
		{"SRE", 0x53, 2, 8, IndirectIndexed}, {"SRE", 0x57, 2, 6, ZeroPageX}, {"SRE", 0x5B, 3, 7, AbsoluteY}, {"SRE", 0x5F, 3, 7, AbsoluteX},

		{"RRA", 0x63, 2, 8, IndexedIndirect}, {"RRA", 0x67, 2, 5, ZeroPage}, {"RRA", 0x6F, 3, 6, Absolute},
		{"RRA", 0x73, 2, 8, IndirectIndexed}, {"RRA", 0x77, 2, 6, ZeroPageX}, {"RRA", 0x7B, 3, 7, AbsoluteY}, {"RRA", 0x7F, 3, 7, AbsoluteX},

		{"ANC", 0x0B, 2, 2, Immediate}, {"ANC", 0x2B, 2, 2, Immediate},
		{"ALR", 0x4B, 2, 2, Immediate}, {"ARR", 0x6B, 2, 2, Immediate},
		{"SBX", 0xCB, 2, 2, Immediate}, {"XAA", 0x8B, 2, 2, Immediate},
		{"LAS", 0xBB, 3, 4, AbsoluteY}, {"TAS", 0x9B, 3, 5, AbsoluteY},
		{"SHY", 0x9C, 3, 5, AbsoluteX}, {"SHX", 0x9E, 3, 5, AbsoluteY},
		{"SHA", 0x9F, 3, 5, AbsoluteY}, {"SHA", 0x93, 2, 6, IndirectIndexed},

		{"KIL", 0x02, 1, 2, Implied}, {"KIL", 0x12, 1, 2, Implied}, {"KIL", 0x22, 1, 2, Implied}, {"KIL", 0x32, 1, 2, Implied},
		{"KIL", 0x42, 1, 2, Implied}, {"KIL", 0x52, 1, 2, Implied}, {"KIL", 0x62, 1, 2, Implied}, {"KIL", 0x72, 1, 2, Implied},
		{"KIL", 0x92, 1, 2, Implied}, {"KIL", 0xB2, 1, 2, Implied}, {"KIL", 0xD2, 1, 2, Implied}, {"KIL", 0xF2, 1, 2, Implied},
	}
	for _, d := range defs {
		cpu.instructions[d.opcode] = &Instruction{d.name, d.opcode, d.bytes, d.cycles, d.mode}
	}
}
