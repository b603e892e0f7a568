// Package classfiletest assembles small class files for tests.
package classfiletest

import (
	"bytes"
	"encoding/binary"

	"github.com/huangsam/covagg/internal/mutf8"
)

// Access flags commonly needed in tests.
const (
	AccPublic    uint16 = 0x0001
	AccStatic    uint16 = 0x0008
	AccAbstract  uint16 = 0x0400
	AccSynthetic uint16 = 0x1000
	AccSuper     uint16 = 0x0020
)

// Handler is an exception table entry; an empty CatchType means finally.
type Handler struct {
	Start, End, Handler int
	CatchType           string
}

// Method describes a method to emit. A nil Code emits no Code attribute.
type Method struct {
	Access     uint16
	Name       string
	Descriptor string
	Code       []byte
	Handlers   []Handler
	// Lines maps bytecode offsets to line numbers, emitted in the given order.
	Lines [][2]int
}

// Class describes a class to emit.
type Class struct {
	Name       string
	Super      string
	Access     uint16
	SourceFile string
	Methods    []Method
}

// Build returns the class file bytes.
func (c Class) Build() []byte {
	cp := &pool{index: map[string]uint16{}}
	thisIdx := cp.class(c.Name)
	superName := c.Super
	if superName == "" {
		superName = "java/lang/Object"
	}
	superIdx := cp.class(superName)

	var body bytes.Buffer
	access := c.Access
	if access == 0 {
		access = AccPublic | AccSuper
	}
	u2(&body, access)
	u2(&body, thisIdx)
	u2(&body, superIdx)
	u2(&body, 0) // interfaces
	u2(&body, 0) // fields

	u2(&body, uint16(len(c.Methods)))
	for _, m := range c.Methods {
		u2(&body, m.Access)
		u2(&body, cp.utf8(m.Name))
		desc := m.Descriptor
		if desc == "" {
			desc = "()V"
		}
		u2(&body, cp.utf8(desc))
		if m.Code == nil {
			u2(&body, 0)
			continue
		}
		u2(&body, 1)
		code := codeAttribute(cp, m)
		u2(&body, cp.utf8("Code"))
		u4(&body, uint32(len(code)))
		body.Write(code)
	}

	if c.SourceFile != "" {
		u2(&body, 1)
		u2(&body, cp.utf8("SourceFile"))
		u4(&body, 2)
		u2(&body, cp.utf8(c.SourceFile))
	} else {
		u2(&body, 0)
	}

	var out bytes.Buffer
	u4(&out, 0xCAFEBABE)
	u2(&out, 0)
	u2(&out, 52)
	u2(&out, uint16(len(cp.entries)+1))
	out.Write(cp.bytes())
	out.Write(body.Bytes())
	return out.Bytes()
}

func codeAttribute(cp *pool, m Method) []byte {
	var b bytes.Buffer
	u2(&b, 8) // max_stack
	u2(&b, 8) // max_locals
	u4(&b, uint32(len(m.Code)))
	b.Write(m.Code)
	u2(&b, uint16(len(m.Handlers)))
	for _, h := range m.Handlers {
		u2(&b, uint16(h.Start))
		u2(&b, uint16(h.End))
		u2(&b, uint16(h.Handler))
		if h.CatchType == "" {
			u2(&b, 0)
		} else {
			u2(&b, cp.class(h.CatchType))
		}
	}
	if len(m.Lines) == 0 {
		u2(&b, 0)
		return b.Bytes()
	}
	u2(&b, 1)
	u2(&b, cp.utf8("LineNumberTable"))
	u4(&b, uint32(2+4*len(m.Lines)))
	u2(&b, uint16(len(m.Lines)))
	for _, l := range m.Lines {
		u2(&b, uint16(l[0]))
		u2(&b, uint16(l[1]))
	}
	return b.Bytes()
}

type pool struct {
	entries [][]byte
	index   map[string]uint16
}

func (p *pool) add(key string, entry []byte) uint16 {
	if i, ok := p.index[key]; ok {
		return i
	}
	p.entries = append(p.entries, entry)
	i := uint16(len(p.entries))
	p.index[key] = i
	return i
}

func (p *pool) utf8(s string) uint16 {
	var b bytes.Buffer
	enc := mutf8.Encode(s)
	b.WriteByte(1)
	u2(&b, uint16(len(enc)))
	b.Write(enc)
	return p.add("u:"+s, b.Bytes())
}

func (p *pool) class(name string) uint16 {
	nameIdx := p.utf8(name)
	var b bytes.Buffer
	b.WriteByte(7)
	u2(&b, nameIdx)
	return p.add("c:"+name, b.Bytes())
}

func (p *pool) bytes() []byte {
	return bytes.Join(p.entries, nil)
}

func u2(b *bytes.Buffer, v uint16) {
	_ = binary.Write(b, binary.BigEndian, v)
}

func u4(b *bytes.Buffer, v uint32) {
	_ = binary.Write(b, binary.BigEndian, v)
}

// Bytecode helpers for hand-written method bodies.

// Jump encodes a 3-byte branch instruction at pc jumping to target.
func Jump(op byte, pc, target int) []byte {
	rel := int16(target - pc)
	return []byte{op, byte(uint16(rel) >> 8), byte(rel)}
}

// Common opcodes used by tests.
const (
	Nop          byte = 0x00
	Iconst0      byte = 0x03
	Iconst1      byte = 0x04
	Iload0       byte = 0x1a
	Istore1      byte = 0x3c
	Pop          byte = 0x57
	Ifeq         byte = 0x99
	Ifne         byte = 0x9a
	Goto         byte = 0xa7
	Ireturn      byte = 0xac
	Return       byte = 0xb1
	Invokestatic byte = 0xb8
	Athrow       byte = 0xbf
	Tableswitch  byte = 0xaa
)

// Invoke encodes an invokestatic with a dummy constant index.
func Invoke() []byte {
	return []byte{Invokestatic, 0x00, 0x01}
}

// TableSwitch encodes a tableswitch at pc with low=0 and absolute targets.
func TableSwitch(pc, dflt int, targets ...int) []byte {
	var b bytes.Buffer
	b.WriteByte(Tableswitch)
	for (pc+b.Len())%4 != 0 {
		b.WriteByte(0)
	}
	_ = binary.Write(&b, binary.BigEndian, int32(dflt-pc))
	_ = binary.Write(&b, binary.BigEndian, int32(0))
	_ = binary.Write(&b, binary.BigEndian, int32(len(targets)-1))
	for _, t := range targets {
		_ = binary.Write(&b, binary.BigEndian, int32(t-pc))
	}
	return b.Bytes()
}
