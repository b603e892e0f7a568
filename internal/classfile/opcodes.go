package classfile

import (
	"encoding/binary"
	"fmt"
)

// Opcodes with control flow relevance.
const (
	OpIfeq         byte = 0x99
	OpIfAcmpne     byte = 0xa6
	OpGoto         byte = 0xa7
	OpJsr          byte = 0xa8
	OpRet          byte = 0xa9
	OpTableswitch  byte = 0xaa
	OpLookupswitch byte = 0xab
	OpIreturn      byte = 0xac
	OpReturn       byte = 0xb1
	OpInvokevirt   byte = 0xb6
	OpInvokedyn    byte = 0xba
	OpAthrow       byte = 0xbf
	OpWide         byte = 0xc4
	OpIfnull       byte = 0xc6
	OpIfnonnull    byte = 0xc7
	OpGotoW        byte = 0xc8
	OpJsrW         byte = 0xc9
	OpIinc         byte = 0x84
)

// Kind classifies an instruction by its effect on control flow.
type Kind int

// Instruction kinds.
const (
	KindPlain       Kind = iota // falls through to the next instruction
	KindInvoke                  // method or dynamic invocation, falls through
	KindConditional             // conditional jump with fall through
	KindGoto                    // unconditional jump
	KindJsr                     // subroutine call
	KindRet                     // subroutine return
	KindSwitch                  // table or lookup switch
	KindReturn                  // method return
	KindThrow                   // athrow
)

// Instruction is one decoded bytecode instruction.
type Instruction struct {
	Offset int
	Opcode byte
	Length int
	Kind   Kind
	// Target is the jump target for jumps.
	Target int
	// Default and Cases hold switch targets, cases in table order.
	Default int
	Cases   []int
}

// fixedLength lists the size of every fixed-size opcode; 0 marks variable or invalid ones.
var fixedLength [256]int

func init() {
	set := func(from, to byte, n int) {
		for op := int(from); op <= int(to); op++ {
			fixedLength[op] = n
		}
	}
	set(0x00, 0x0f, 1) // nop .. dconst_1
	set(0x10, 0x10, 2) // bipush
	set(0x11, 0x11, 3) // sipush
	set(0x12, 0x12, 2) // ldc
	set(0x13, 0x14, 3) // ldc_w, ldc2_w
	set(0x15, 0x19, 2) // loads with index
	set(0x1a, 0x35, 1) // short loads, array loads
	set(0x36, 0x3a, 2) // stores with index
	set(0x3b, 0x83, 1) // short stores .. arithmetic
	set(0x84, 0x84, 3) // iinc
	set(0x85, 0x98, 1) // conversions, comparisons
	set(0x99, 0xa8, 3) // branches, goto, jsr
	set(0xa9, 0xa9, 2) // ret
	set(0xac, 0xb1, 1) // returns
	set(0xb2, 0xb8, 3) // field access, invokevirtual, invokespecial, invokestatic
	set(0xb9, 0xba, 5) // invokeinterface, invokedynamic
	set(0xbb, 0xbb, 3) // new
	set(0xbc, 0xbc, 2) // newarray
	set(0xbd, 0xbd, 3) // anewarray
	set(0xbe, 0xbf, 1) // arraylength, athrow
	set(0xc0, 0xc1, 3) // checkcast, instanceof
	set(0xc2, 0xc3, 1) // monitorenter, monitorexit
	set(0xc5, 0xc5, 4) // multianewarray
	set(0xc6, 0xc7, 3) // ifnull, ifnonnull
	set(0xc8, 0xc9, 5) // goto_w, jsr_w
}

// Decode splits bytecode into instructions in offset order.
func Decode(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		insn, err := decodeAt(code, pc)
		if err != nil {
			return nil, err
		}
		out = append(out, insn)
		pc += insn.Length
	}
	return out, nil
}

func decodeAt(code []byte, pc int) (Instruction, error) {
	op := code[pc]
	insn := Instruction{Offset: pc, Opcode: op, Length: fixedLength[op], Kind: KindPlain}

	switch {
	case op == OpTableswitch || op == OpLookupswitch:
		return decodeSwitch(code, pc)
	case op == OpWide:
		if pc+1 >= len(code) {
			return insn, fmt.Errorf("truncated wide at %d", pc)
		}
		insn.Length = 4
		if code[pc+1] == OpIinc {
			insn.Length = 6
		}
		if code[pc+1] == OpRet {
			insn.Kind = KindRet
		}
	case insn.Length == 0:
		return insn, fmt.Errorf("invalid opcode 0x%02x at %d", op, pc)
	}
	if pc+insn.Length > len(code) {
		return insn, fmt.Errorf("truncated instruction 0x%02x at %d", op, pc)
	}

	switch {
	case op >= OpIfeq && op <= OpIfAcmpne, op == OpIfnull, op == OpIfnonnull:
		insn.Kind = KindConditional
		insn.Target = pc + int(int16(binary.BigEndian.Uint16(code[pc+1:])))
	case op == OpGoto:
		insn.Kind = KindGoto
		insn.Target = pc + int(int16(binary.BigEndian.Uint16(code[pc+1:])))
	case op == OpJsr:
		insn.Kind = KindJsr
		insn.Target = pc + int(int16(binary.BigEndian.Uint16(code[pc+1:])))
	case op == OpGotoW:
		insn.Kind = KindGoto
		insn.Target = pc + int(int32(binary.BigEndian.Uint32(code[pc+1:])))
	case op == OpJsrW:
		insn.Kind = KindJsr
		insn.Target = pc + int(int32(binary.BigEndian.Uint32(code[pc+1:])))
	case op == OpRet:
		insn.Kind = KindRet
	case op >= OpIreturn && op <= OpReturn:
		insn.Kind = KindReturn
	case op == OpAthrow:
		insn.Kind = KindThrow
	case op >= OpInvokevirt && op <= OpInvokedyn:
		insn.Kind = KindInvoke
	}
	if (insn.Kind == KindConditional || insn.Kind == KindGoto || insn.Kind == KindJsr) &&
		(insn.Target < 0 || insn.Target >= len(code)) {
		return insn, fmt.Errorf("jump target %d out of range at %d", insn.Target, pc)
	}
	return insn, nil
}

func decodeSwitch(code []byte, pc int) (Instruction, error) {
	insn := Instruction{Offset: pc, Opcode: code[pc], Kind: KindSwitch}
	// Operands start at the next 4-byte boundary relative to the method start.
	pos := (pc + 4) &^ 3
	read := func() (int, error) {
		if pos+4 > len(code) {
			return 0, fmt.Errorf("truncated switch at %d", pc)
		}
		v := int(int32(binary.BigEndian.Uint32(code[pos:])))
		pos += 4
		return v, nil
	}
	target := func(rel int) (int, error) {
		t := pc + rel
		if t < 0 || t >= len(code) {
			return 0, fmt.Errorf("switch target %d out of range at %d", t, pc)
		}
		return t, nil
	}

	def, err := read()
	if err != nil {
		return insn, err
	}
	if insn.Default, err = target(def); err != nil {
		return insn, err
	}

	var n int
	pairs := insn.Opcode == OpLookupswitch
	if pairs {
		if n, err = read(); err != nil {
			return insn, err
		}
	} else {
		low, err := read()
		if err != nil {
			return insn, err
		}
		high, err := read()
		if err != nil {
			return insn, err
		}
		n = high - low + 1
	}
	if n < 0 || n > len(code) {
		return insn, fmt.Errorf("invalid switch size %d at %d", n, pc)
	}
	for range n {
		if pairs {
			if _, err := read(); err != nil { // match key
				return insn, err
			}
		}
		rel, err := read()
		if err != nil {
			return insn, err
		}
		t, err := target(rel)
		if err != nil {
			return insn, err
		}
		insn.Cases = append(insn.Cases, t)
	}
	insn.Length = pos - pc
	return insn, nil
}
