package analysis

import (
	"archive/zip"
	"bytes"
	"context"
	"slices"
	"testing"

	"github.com/huangsam/covagg/internal/classfile"
	"github.com/huangsam/covagg/internal/classfile/classfiletest"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/execdata"
	"github.com/huangsam/covagg/schema"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pickCode is: return x != 0 ? 1 : 0 with two return probes.
var pickCode = slices.Concat(
	[]byte{classfiletest.Iload0},                 // 0
	classfiletest.Jump(classfiletest.Ifeq, 1, 6), // 1
	[]byte{classfiletest.Iconst1},                // 4
	[]byte{classfiletest.Ireturn},                // 5
	[]byte{classfiletest.Iconst0},                // 6
	[]byte{classfiletest.Ireturn},                // 7
)

func pickClass(name string) classfiletest.Class {
	return classfiletest.Class{
		Name:       name,
		SourceFile: "Foo.java",
		Methods: []classfiletest.Method{
			{
				Access: classfiletest.AccStatic, Name: "pick", Descriptor: "(I)I",
				Code: pickCode, Lines: [][2]int{{0, 10}, {4, 11}, {6, 12}},
			},
			{Access: classfiletest.AccStatic | classfiletest.AccSynthetic, Name: "access$000", Code: []byte{classfiletest.Return}},
			{Access: classfiletest.AccStatic | classfiletest.AccSynthetic, Name: "lambda$run$0", Code: []byte{classfiletest.Return}, Lines: [][2]int{{0, 20}}},
			{Access: classfiletest.AccAbstract, Name: "abstractOne"},
		},
	}
}

func newStore(t *testing.T, records ...schema.ExecutionRecord) *execdata.Store {
	t.Helper()
	s := execdata.NewStore()
	for _, r := range records {
		require.NoError(t, s.Put(r))
	}
	return s
}

func analyzeBytes(t *testing.T, data []byte, store *execdata.Store) *schema.ClassCoverage {
	t.Helper()
	a := New(afero.NewMemMapFs(), store, 1)
	res := a.analyzeClass(unit{location: "test", data: data})
	return res.coverage
}

func methodNamed(c *schema.ClassCoverage, name string) *schema.MethodCoverage {
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func TestAnalyzeBranchyMethod(t *testing.T) {
	data := pickClass("org/acme/Foo").Build()
	store := newStore(t, schema.ExecutionRecord{
		ID: classfile.ClassID(data), Name: "org/acme/Foo", Probes: []bool{true, false, true, true},
	})

	cc := analyzeBytes(t, data, store)
	require.NotNil(t, cc)
	assert.False(t, cc.NoMatch)
	assert.Equal(t, "Foo.java", cc.SourceFileName)

	pick := methodNamed(cc, "pick")
	require.NotNil(t, pick)
	assert.Equal(t, schema.Counter{Missed: 2, Covered: 4}, pick.Instruction)
	assert.Equal(t, schema.Counter{Missed: 1, Covered: 1}, pick.Branch)
	assert.Equal(t, schema.Counter{Missed: 1, Covered: 2}, pick.Line)
	assert.Equal(t, schema.Counter{Missed: 1, Covered: 1}, pick.Complexity)
	assert.Equal(t, schema.CounterCoveredOne, pick.Method)
	assert.Equal(t, 10, pick.FirstLine)
	assert.Equal(t, 12, pick.LastLine)
	assert.Equal(t, schema.LinePartlyCovered, pick.Lines[10].Status())
	assert.Equal(t, schema.LineNotCovered, pick.Lines[12].Status())

	assert.Nil(t, methodNamed(cc, "access$000"), "synthetic accessors are excluded")
	lambda := methodNamed(cc, "lambda$run$0")
	require.NotNil(t, lambda, "lambda bodies are kept")
	assert.Equal(t, schema.CounterCoveredOne, lambda.Instruction, "lambda reads the probe after the accessor's")

	assert.Equal(t, schema.CounterCoveredOne, cc.Class)
	assert.Equal(t, schema.Counter{Missed: 0, Covered: 2}, cc.Method)
}

func TestAnalyzeWithoutExecutionData(t *testing.T) {
	data := pickClass("org/acme/Foo").Build()
	cc := analyzeBytes(t, data, execdata.NewStore())
	require.NotNil(t, cc)
	assert.False(t, cc.NoMatch)
	assert.Equal(t, schema.Counter{Missed: 7}, cc.Instruction)
	assert.Equal(t, schema.Counter{Missed: 2}, cc.Branch)
	assert.Equal(t, schema.CounterMissedOne, cc.Class)
	assert.Equal(t, schema.Counter{Missed: 2}, cc.Method)
}

func TestAnalyzeMultiTargetProbes(t *testing.T) {
	// return (x == 0 ? 0 : 1) with both arms joining at one return.
	code := slices.Concat(
		[]byte{classfiletest.Iload0},                 // 0
		classfiletest.Jump(classfiletest.Ifeq, 1, 8), // 1
		[]byte{classfiletest.Iconst1},                // 4
		classfiletest.Jump(classfiletest.Goto, 5, 9), // 5
		[]byte{classfiletest.Iconst0},                // 8
		[]byte{classfiletest.Ireturn},                // 9
	)
	m := classfile.Method{Name: "join", Descriptor: "(I)I", Code: &classfile.Code{Bytecode: code}}

	mc, used, err := analyzeMethod(m, 0, []bool{true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 3, used, "goto edge, fall through into the join and the return")
	assert.Equal(t, schema.Counter{Missed: 1, Covered: 5}, mc.Instruction)
	assert.Equal(t, schema.Counter{Missed: 1, Covered: 1}, mc.Branch)

	mc, _, err = analyzeMethod(m, 0, []bool{false, true, true})
	require.NoError(t, err)
	assert.Equal(t, schema.Counter{Missed: 2, Covered: 4}, mc.Instruction)
}

func TestAnalyzeSwitch(t *testing.T) {
	code := slices.Concat(
		[]byte{classfiletest.Iload0},                         // 0
		classfiletest.TableSwitch(1, 28, 24, 26),             // 1
		[]byte{classfiletest.Iconst1, classfiletest.Ireturn}, // 24
		[]byte{classfiletest.Iconst0, classfiletest.Ireturn}, // 26
		[]byte{classfiletest.Iconst1, classfiletest.Ireturn}, // 28
	)
	m := classfile.Method{Name: "sw", Descriptor: "(I)I", Code: &classfile.Code{Bytecode: code}}

	mc, used, err := analyzeMethod(m, 0, []bool{false, true, false})
	require.NoError(t, err)
	assert.Equal(t, 3, used)
	assert.Equal(t, schema.Counter{Missed: 4, Covered: 4}, mc.Instruction)
	assert.Equal(t, schema.Counter{Missed: 2, Covered: 1}, mc.Branch)
	assert.Equal(t, schema.Counter{Missed: 2, Covered: 1}, mc.Complexity)

	// Duplicate case targets count as one branch.
	dup := slices.Concat(
		[]byte{classfiletest.Iload0},
		classfiletest.TableSwitch(1, 26, 24, 24),
		[]byte{classfiletest.Iconst1, classfiletest.Ireturn},
		[]byte{classfiletest.Iconst0, classfiletest.Ireturn},
	)
	m.Code = &classfile.Code{Bytecode: dup}
	mc, used, err = analyzeMethod(m, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, used)
	assert.Equal(t, schema.Counter{Missed: 2}, mc.Branch)
}

func TestAnalyzeMethodProbeOffset(t *testing.T) {
	m := classfile.Method{Name: "r", Descriptor: "()V", Code: &classfile.Code{Bytecode: []byte{classfiletest.Return}}}
	mc, used, err := analyzeMethod(m, 5, []bool{false, false, false, false, false, true})
	require.NoError(t, err)
	assert.Equal(t, 1, used)
	assert.Equal(t, schema.CounterCoveredOne, mc.Instruction)

	// Probes beyond the record count as not executed.
	mc, _, err = analyzeMethod(m, 9, []bool{true})
	require.NoError(t, err)
	assert.Equal(t, schema.CounterMissedOne, mc.Instruction)
}

func TestAnalyzeBundle(t *testing.T) {
	fs := afero.NewMemMapFs()
	foo := pickClass("org/acme/Foo").Build()
	inner := pickClass("org/acme/Foo$Inner").Build()
	other := classfiletest.Class{Name: "Top", Methods: []classfiletest.Method{{Name: "run", Code: []byte{classfiletest.Return}}}}.Build()
	mismatched := pickClass("org/acme/Changed").Build()

	require.NoError(t, afero.WriteFile(fs, "/c/org/acme/Foo.class", foo, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/c/org/acme/Foo$Inner.class", inner, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/c/Top.class", other, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/c/org/acme/Changed.class", mismatched, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/c/Broken.class", []byte{0xCA, 0xFE, 0xBA, 0xBE, 0}, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/c/readme.txt", []byte("ignored"), 0o644))

	store := newStore(t,
		schema.ExecutionRecord{ID: classfile.ClassID(foo), Name: "org/acme/Foo", Probes: []bool{true, false, false, false}},
		schema.ExecutionRecord{ID: 42, Name: "org/acme/Changed", Probes: []bool{true}},
	)
	files := []string{
		"/c/Broken.class", "/c/Top.class", "/c/org/acme/Changed.class",
		"/c/org/acme/Foo$Inner.class", "/c/org/acme/Foo.class", "/c/readme.txt",
	}

	bundle, noMatch, err := New(fs, store, 3).AnalyzeBundle(context.Background(), "app", files)
	require.NoError(t, err)
	assert.Equal(t, []string{"org/acme/Changed"}, noMatch)
	assert.Equal(t, "app", bundle.Name)
	assert.Equal(t, 3, bundle.ClassCount())
	assert.Equal(t, schema.Counter{Missed: 2, Covered: 1}, bundle.Class)

	require.Len(t, bundle.Packages, 2)
	assert.Equal(t, "", bundle.Packages[0].Name)
	acme := bundle.Packages[1]
	assert.Equal(t, "org/acme", acme.Name)
	require.Len(t, acme.Classes, 2)
	assert.Equal(t, "org/acme/Foo", acme.Classes[0].Name)
	assert.Equal(t, "org/acme/Foo$Inner", acme.Classes[1].Name)

	// Both classes share Foo.java; lines merge into one source file.
	require.Len(t, acme.SourceFiles, 1)
	src := acme.SourceFiles[0]
	assert.Equal(t, "Foo.java", src.Name)
	assert.Equal(t, schema.Counter{Missed: 10, Covered: 4}, src.Instruction)
	assert.Equal(t, schema.Counter{Missed: 2, Covered: 2}, src.Line)
	assert.Equal(t, acme.Counters, src.Counters)
}

func TestAnalyzeBundleArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := pickClass("org/acme/Foo").Build()

	var nested bytes.Buffer
	nw := zip.NewWriter(&nested)
	w, err := nw.Create("lib/Nested.class")
	require.NoError(t, err)
	_, err = w.Write(classfiletest.Class{Name: "lib/Nested", Methods: []classfiletest.Method{{Name: "n", Code: []byte{classfiletest.Return}}}}.Build())
	require.NoError(t, err)
	require.NoError(t, nw.Close())

	var jar bytes.Buffer
	zw := zip.NewWriter(&jar)
	for name, body := range map[string][]byte{
		"org/acme/Foo.class":   data,
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n"),
		"BOOT-INF/lib/dep.jar": nested.Bytes(),
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, "/libs/app.jar", jar.Bytes(), 0o644))

	bundle, _, err := New(fs, execdata.NewStore(), 2).AnalyzeBundle(context.Background(), "jar", []string{"/libs/app.jar"})
	require.NoError(t, err)
	assert.Equal(t, 2, bundle.ClassCount())
}

func TestAnalyzeBundleErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	a := New(fs, execdata.NewStore(), 1)

	var fsErr *contract.FilesystemError
	_, _, err := a.AnalyzeBundle(context.Background(), "x", []string{"/missing/A.class"})
	require.ErrorAs(t, err, &fsErr)

	require.NoError(t, afero.WriteFile(fs, "/bad.jar", []byte("not a zip"), 0o644))
	_, _, err = a.AnalyzeBundle(context.Background(), "x", []string{"/bad.jar"})
	require.ErrorAs(t, err, &fsErr)

	require.NoError(t, afero.WriteFile(fs, "/A.class", pickClass("A").Build(), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = a.AnalyzeBundle(ctx, "x", []string{"/A.class"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeBundleEmpty(t *testing.T) {
	bundle, noMatch, err := New(afero.NewMemMapFs(), execdata.NewStore(), 4).AnalyzeBundle(context.Background(), "empty", nil)
	require.NoError(t, err)
	assert.Empty(t, noMatch)
	assert.Empty(t, bundle.Packages)
	assert.Zero(t, bundle.Instruction.Total())
}

func TestAnalyzeSkipsCodelessAndSyntheticClasses(t *testing.T) {
	iface := classfiletest.Class{Name: "api/Service", Methods: []classfiletest.Method{{Access: classfiletest.AccAbstract, Name: "call"}}}.Build()
	assert.Nil(t, analyzeBytes(t, iface, execdata.NewStore()))

	synthetic := classfiletest.Class{
		Name: "gen/Synthetic", Access: classfiletest.AccPublic | classfiletest.AccSynthetic,
		Methods: []classfiletest.Method{{Name: "run", Code: []byte{classfiletest.Return}}},
	}.Build()
	assert.Nil(t, analyzeBytes(t, synthetic, execdata.NewStore()))
}

func TestCoverageBuilderDuplicates(t *testing.T) {
	b := NewCoverageBuilder()
	c := schema.NewClassCoverage("a/B", 1, false)
	c.AddMethod(&schema.MethodCoverage{Name: "m", SourceNode: schema.NewSourceNode()})
	require.NoError(t, b.Add(c))
	require.NoError(t, b.Add(c))
	assert.Error(t, b.Add(schema.NewClassCoverage("a/B", 2, false)))

	require.NoError(t, b.Add(schema.NewClassCoverage("a/C", 3, true)))
	require.NoError(t, b.Add(schema.NewClassCoverage("a/C", 3, true)))
	assert.Equal(t, []string{"a/C"}, b.NoMatchClasses())
	assert.Equal(t, 1, b.Bundle("b").ClassCount())
}
