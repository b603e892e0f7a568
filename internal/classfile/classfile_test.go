package classfile

import (
	"slices"
	"testing"

	"github.com/huangsam/covagg/internal/classfile/classfiletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassID(t *testing.T) {
	assert.Equal(t, uint64(0x01B0000000000000), ClassID([]byte{1}))
	assert.Equal(t, uint64(0), ClassID(nil))
	assert.NotEqual(t, ClassID([]byte{1, 2}), ClassID([]byte{2, 1}))
}

func TestParse(t *testing.T) {
	data := classfiletest.Class{
		Name:       "org/acme/Foo",
		SourceFile: "Foo.java",
		Methods: []classfiletest.Method{
			{Access: classfiletest.AccPublic, Name: "<init>", Code: []byte{classfiletest.Return}, Lines: [][2]int{{0, 3}}},
			{Access: classfiletest.AccAbstract, Name: "run"},
			{
				Access: classfiletest.AccSynthetic, Name: "access$000", Descriptor: "(I)I",
				Code:     []byte{classfiletest.Iload0, classfiletest.Ireturn},
				Handlers: []classfiletest.Handler{{Start: 0, End: 1, Handler: 1, CatchType: "java/lang/Exception"}},
			},
		},
	}.Build()

	cf, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "org/acme/Foo", cf.Name)
	assert.Equal(t, "java/lang/Object", cf.SuperName)
	assert.Equal(t, "Foo.java", cf.SourceFile)
	assert.False(t, cf.IsInterface())
	require.Len(t, cf.Methods, 3)

	assert.Equal(t, "<init>", cf.Methods[0].Name)
	assert.Equal(t, "()V", cf.Methods[0].Descriptor)
	assert.Equal(t, []LineNumber{{StartPC: 0, Line: 3}}, cf.Methods[0].Code.Lines)
	assert.Nil(t, cf.Methods[1].Code)
	assert.True(t, cf.Methods[2].IsSynthetic())
	assert.Equal(t, "java/lang/Exception", cf.Methods[2].Code.Handlers[0].CatchType)
}

func TestParseModifiedUTF8Names(t *testing.T) {
	data := classfiletest.Class{
		Name:       "org/acme/Ω😀",
		SourceFile: "Ω😀.java",
		Methods:    []classfiletest.Method{{Access: classfiletest.AccStatic, Name: "run", Code: []byte{classfiletest.Return}}},
	}.Build()

	cf, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "org/acme/Ω😀", cf.Name)
	assert.Equal(t, "Ω😀.java", cf.SourceFile)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte{0xCA, 0xFE})
	assert.Error(t, err)

	_, err = Parse([]byte{0, 0, 0, 0, 0, 0, 0, 52})
	assert.ErrorIs(t, err, ErrNotClassFile)

	data := classfiletest.Class{Name: "A", Methods: []classfiletest.Method{{Name: "m", Code: []byte{0xb1}}}}.Build()
	_, err = Parse(data[:len(data)-5])
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	code := slices.Concat(
		[]byte{classfiletest.Iload0},                 // 0
		classfiletest.Jump(classfiletest.Ifeq, 1, 7), // 1
		[]byte{classfiletest.Iconst1},                // 4
		[]byte{classfiletest.Ireturn},                // 5
		[]byte{classfiletest.Nop},                    // 6
		[]byte{0xc4, 0x84, 0, 1, 0, 1},               // 7 wide iinc
		[]byte{0xc4, 0x15, 0, 1},                     // 13 wide iload
		classfiletest.Invoke(),                       // 17
		[]byte{classfiletest.Athrow},                 // 20
	)
	insns, err := Decode(code)
	require.NoError(t, err)

	var offsets []int
	for _, in := range insns {
		offsets = append(offsets, in.Offset)
	}
	assert.Equal(t, []int{0, 1, 4, 5, 6, 7, 13, 17, 20}, offsets)
	assert.Equal(t, KindConditional, insns[1].Kind)
	assert.Equal(t, 7, insns[1].Target)
	assert.Equal(t, KindReturn, insns[3].Kind)
	assert.Equal(t, 6, insns[5].Length)
	assert.Equal(t, 4, insns[6].Length)
	assert.Equal(t, KindInvoke, insns[7].Kind)
	assert.Equal(t, KindThrow, insns[8].Kind)
}

func TestDecodeSwitch(t *testing.T) {
	// iload_0 at 0, tableswitch at 1 padded to operands at 4.
	sw := classfiletest.TableSwitch(1, 24, 25, 26)
	code := slices.Concat([]byte{classfiletest.Iload0}, sw)
	require.Len(t, code, 24)
	code = append(code, classfiletest.Return, classfiletest.Return, classfiletest.Return)

	insns, err := Decode(code)
	require.NoError(t, err)
	require.Len(t, insns, 5)
	assert.Equal(t, KindSwitch, insns[1].Kind)
	assert.Equal(t, 23, insns[1].Length)
	assert.Equal(t, 24, insns[1].Default)
	assert.Equal(t, []int{25, 26}, insns[1].Cases)
}

func TestDecodeErrors(t *testing.T) {
	tests := map[string][]byte{
		"invalid opcode":   {0xcb},
		"truncated branch": {classfiletest.Ifeq, 0},
		"target out":       classfiletest.Jump(classfiletest.Goto, 0, 100),
		"truncated switch": {classfiletest.Tableswitch, 0, 0},
		"truncated wide":   {0xc4},
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(code)
			assert.Error(t, err)
		})
	}
}
