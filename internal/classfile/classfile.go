// Package classfile parses compiled JVM class files far enough to analyze their control flow.
package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc64"

	"github.com/huangsam/covagg/internal/mutf8"
)

// Access flags used by the analyzer.
const (
	AccStatic    uint16 = 0x0008
	AccBridge    uint16 = 0x0040
	AccNative    uint16 = 0x0100
	AccInterface uint16 = 0x0200
	AccAbstract  uint16 = 0x0400
	AccSynthetic uint16 = 0x1000
	AccModule    uint16 = 0x8000
)

const magic = 0xCAFEBABE

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// ErrNotClassFile reports input without the class file magic number.
var ErrNotClassFile = errors.New("not a class file")

var crcTable = crc64.MakeTable(crc64.ISO)

// ClassID returns the structural identifier of a class file:
// CRC-64 with the reflected polynomial 0xD800000000000000, initial value 0 and no final inversion.
func ClassID(data []byte) uint64 {
	// crc64.Update inverts on entry and exit; undo both.
	return ^crc64.Update(^uint64(0), crcTable, data)
}

// ClassFile is the parsed structure of one class.
type ClassFile struct {
	MajorVersion uint16
	AccessFlags  uint16
	Name         string // VM name, e.g. org/acme/Foo
	SuperName    string
	Interfaces   []string
	SourceFile   string
	Methods      []Method
}

// IsInterface reports whether the class is an interface.
func (c *ClassFile) IsInterface() bool { return c.AccessFlags&AccInterface != 0 }

// IsModuleInfo reports whether the class file describes a module.
func (c *ClassFile) IsModuleInfo() bool { return c.AccessFlags&AccModule != 0 }

// Method is one declared method.
type Method struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Code        *Code // nil for abstract and native methods
}

// IsSynthetic reports whether the compiler generated the method.
func (m *Method) IsSynthetic() bool { return m.AccessFlags&AccSynthetic != 0 }

// Code is the Code attribute of a method.
type Code struct {
	Bytecode []byte
	Handlers []ExceptionHandler
	Lines    []LineNumber
	// LocalRanges holds start and end offsets of local variable entries.
	LocalRanges []int
}

// ExceptionHandler is one exception table entry.
type ExceptionHandler struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	CatchType string // empty for finally
}

// LineNumber maps a bytecode offset to a source line.
type LineNumber struct {
	StartPC int
	Line    int
}

// Parse decodes a class file.
func Parse(data []byte) (*ClassFile, error) {
	p := &parser{data: data}
	cf, err := p.parse()
	if err != nil {
		return nil, fmt.Errorf("malformed class file at offset %d: %w", p.pos, err)
	}
	return cf, nil
}

type constant struct {
	tag   byte
	utf8  string
	index uint16 // name index for Class, Module, Package
}

type parser struct {
	data []byte
	pos  int
	pool []constant
}

var errTruncated = errors.New("truncated")

func (p *parser) u1() (byte, error) {
	if p.pos+1 > len(p.data) {
		return 0, errTruncated
	}
	b := p.data[p.pos]
	p.pos++
	return b, nil
}

func (p *parser) u2() (uint16, error) {
	if p.pos+2 > len(p.data) {
		return 0, errTruncated
	}
	v := binary.BigEndian.Uint16(p.data[p.pos:])
	p.pos += 2
	return v, nil
}

func (p *parser) u4() (uint32, error) {
	if p.pos+4 > len(p.data) {
		return 0, errTruncated
	}
	v := binary.BigEndian.Uint32(p.data[p.pos:])
	p.pos += 4
	return v, nil
}

func (p *parser) bytes(n int) ([]byte, error) {
	if n < 0 || p.pos+n > len(p.data) {
		return nil, errTruncated
	}
	b := p.data[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

func (p *parser) parse() (*ClassFile, error) {
	m, err := p.u4()
	if err != nil {
		return nil, err
	}
	if m != magic {
		return nil, ErrNotClassFile
	}
	if _, err := p.u2(); err != nil { // minor
		return nil, err
	}
	cf := &ClassFile{}
	if cf.MajorVersion, err = p.u2(); err != nil {
		return nil, err
	}
	if err := p.readPool(); err != nil {
		return nil, err
	}
	if cf.AccessFlags, err = p.u2(); err != nil {
		return nil, err
	}
	if cf.Name, err = p.className(); err != nil {
		return nil, err
	}
	if cf.SuperName, err = p.className(); err != nil {
		return nil, err
	}
	count, err := p.u2()
	if err != nil {
		return nil, err
	}
	for range count {
		iface, err := p.className()
		if err != nil {
			return nil, err
		}
		cf.Interfaces = append(cf.Interfaces, iface)
	}

	// Fields carry nothing the analyzer needs.
	if count, err = p.u2(); err != nil {
		return nil, err
	}
	for range count {
		if _, err := p.bytes(6); err != nil {
			return nil, err
		}
		if err := p.skipAttributes(); err != nil {
			return nil, err
		}
	}

	if count, err = p.u2(); err != nil {
		return nil, err
	}
	for range count {
		m, err := p.readMethod()
		if err != nil {
			return nil, err
		}
		cf.Methods = append(cf.Methods, m)
	}

	if count, err = p.u2(); err != nil {
		return nil, err
	}
	for range count {
		name, body, err := p.attribute()
		if err != nil {
			return nil, err
		}
		if name == "SourceFile" && len(body) == 2 {
			cf.SourceFile, err = p.utf8(binary.BigEndian.Uint16(body))
			if err != nil {
				return nil, err
			}
		}
	}
	return cf, nil
}

func (p *parser) readPool() error {
	count, err := p.u2()
	if err != nil {
		return err
	}
	p.pool = make([]constant, count)
	for i := 1; i < int(count); i++ {
		tag, err := p.u1()
		if err != nil {
			return err
		}
		c := constant{tag: tag}
		switch tag {
		case tagUtf8:
			n, err := p.u2()
			if err != nil {
				return err
			}
			b, err := p.bytes(int(n))
			if err != nil {
				return err
			}
			if c.utf8, err = mutf8.Decode(b); err != nil {
				return err
			}
		case tagClass, tagModule, tagPackage:
			if c.index, err = p.u2(); err != nil {
				return err
			}
		case tagString, tagMethodType:
			_, err = p.bytes(2)
		case tagMethodHandle:
			_, err = p.bytes(3)
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			_, err = p.bytes(4)
		case tagLong, tagDouble:
			if _, err := p.bytes(8); err != nil {
				return err
			}
			p.pool[i] = c
			i++ // takes two slots
			continue
		default:
			return fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
		if err != nil {
			return err
		}
		p.pool[i] = c
	}
	return nil
}

func (p *parser) utf8(index uint16) (string, error) {
	if int(index) >= len(p.pool) || p.pool[index].tag != tagUtf8 {
		return "", fmt.Errorf("constant %d is not a UTF8 entry", index)
	}
	return p.pool[index].utf8, nil
}

// className reads a u2 class reference; index 0 means none.
func (p *parser) className() (string, error) {
	index, err := p.u2()
	if err != nil || index == 0 {
		return "", err
	}
	if int(index) >= len(p.pool) || p.pool[index].tag != tagClass {
		return "", fmt.Errorf("constant %d is not a class entry", index)
	}
	return p.utf8(p.pool[index].index)
}

func (p *parser) attribute() (string, []byte, error) {
	nameIndex, err := p.u2()
	if err != nil {
		return "", nil, err
	}
	length, err := p.u4()
	if err != nil {
		return "", nil, err
	}
	name, err := p.utf8(nameIndex)
	if err != nil {
		return "", nil, err
	}
	body, err := p.bytes(int(length))
	return name, body, err
}

func (p *parser) skipAttributes() error {
	count, err := p.u2()
	if err != nil {
		return err
	}
	for range count {
		if _, _, err := p.attribute(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) readMethod() (Method, error) {
	var m Method
	var err error
	if m.AccessFlags, err = p.u2(); err != nil {
		return m, err
	}
	nameIndex, err := p.u2()
	if err != nil {
		return m, err
	}
	descIndex, err := p.u2()
	if err != nil {
		return m, err
	}
	if m.Name, err = p.utf8(nameIndex); err != nil {
		return m, err
	}
	if m.Descriptor, err = p.utf8(descIndex); err != nil {
		return m, err
	}
	count, err := p.u2()
	if err != nil {
		return m, err
	}
	for range count {
		name, body, err := p.attribute()
		if err != nil {
			return m, err
		}
		if name == "Code" {
			if m.Code, err = p.readCode(body); err != nil {
				return m, fmt.Errorf("method %s%s: %w", m.Name, m.Descriptor, err)
			}
		}
	}
	return m, nil
}

// readCode parses a Code attribute body with a sub-parser sharing the constant pool.
func (p *parser) readCode(body []byte) (*Code, error) {
	sub := &parser{data: body, pool: p.pool}
	if _, err := sub.bytes(4); err != nil { // max_stack, max_locals
		return nil, err
	}
	length, err := sub.u4()
	if err != nil {
		return nil, err
	}
	bytecode, err := sub.bytes(int(length))
	if err != nil {
		return nil, err
	}
	code := &Code{Bytecode: bytecode}

	count, err := sub.u2()
	if err != nil {
		return nil, err
	}
	for range count {
		var h [4]uint16
		for i := range h {
			if h[i], err = sub.u2(); err != nil {
				return nil, err
			}
		}
		handler := ExceptionHandler{StartPC: int(h[0]), EndPC: int(h[1]), HandlerPC: int(h[2])}
		if h[3] != 0 {
			if int(h[3]) < len(p.pool) && p.pool[h[3]].tag == tagClass {
				handler.CatchType, _ = p.utf8(p.pool[h[3]].index)
			}
		}
		code.Handlers = append(code.Handlers, handler)
	}

	if count, err = sub.u2(); err != nil {
		return nil, err
	}
	for range count {
		name, attr, err := sub.attribute()
		if err != nil {
			return nil, err
		}
		switch name {
		case "LineNumberTable":
			lines, err := readLineNumbers(attr)
			if err != nil {
				return nil, err
			}
			code.Lines = append(code.Lines, lines...)
		case "LocalVariableTable", "LocalVariableTypeTable":
			ranges, err := readLocalRanges(attr)
			if err != nil {
				return nil, err
			}
			code.LocalRanges = append(code.LocalRanges, ranges...)
		}
	}
	return code, nil
}

func readLineNumbers(attr []byte) ([]LineNumber, error) {
	if len(attr) < 2 {
		return nil, errTruncated
	}
	n := int(binary.BigEndian.Uint16(attr))
	if len(attr) < 2+4*n {
		return nil, errTruncated
	}
	lines := make([]LineNumber, n)
	for i := range lines {
		off := 2 + 4*i
		lines[i] = LineNumber{
			StartPC: int(binary.BigEndian.Uint16(attr[off:])),
			Line:    int(binary.BigEndian.Uint16(attr[off+2:])),
		}
	}
	return lines, nil
}

func readLocalRanges(attr []byte) ([]int, error) {
	if len(attr) < 2 {
		return nil, errTruncated
	}
	n := int(binary.BigEndian.Uint16(attr))
	if len(attr) < 2+10*n {
		return nil, errTruncated
	}
	ranges := make([]int, 0, 2*n)
	for i := range n {
		off := 2 + 10*i
		start := int(binary.BigEndian.Uint16(attr[off:]))
		length := int(binary.BigEndian.Uint16(attr[off+2:]))
		ranges = append(ranges, start, start+length)
	}
	return ranges, nil
}
