package execdata

import (
	"bufio"
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, sessions []schema.SessionInfo, records []schema.ExecutionRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, s := range sessions {
		require.NoError(t, w.WriteSession(s))
	}
	for _, r := range records {
		require.NoError(t, w.WriteRecord(r))
	}
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) ([]schema.SessionInfo, []schema.ExecutionRecord, error) {
	t.Helper()
	var sessions []schema.SessionInfo
	var records []schema.ExecutionRecord
	r := NewReader(bytes.NewReader(data))
	r.OnSession = func(s schema.SessionInfo) { sessions = append(sessions, s) }
	r.OnRecord = func(rec schema.ExecutionRecord) error {
		records = append(records, rec)
		return nil
	}
	err := r.Read()
	return sessions, records, err
}

func TestRoundTrip(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	sessions := []schema.SessionInfo{{ID: "host-1", Start: start, Dump: start.Add(time.Minute)}}
	probes := make([]bool, 19)
	probes[0], probes[8], probes[18] = true, true, true
	records := []schema.ExecutionRecord{
		{ID: 0x1234567890ABCDEF, Name: "org/acme/Foo", Probes: probes},
		{ID: 1, Name: "org/acme/Empty", Probes: []bool{}},
		{ID: 0xFFFFFFFFFFFFFFFF, Name: "Ünïcode", Probes: []bool{false, true}},
	}

	gotSessions, gotRecords, err := decode(t, encode(t, sessions, records))
	require.NoError(t, err)
	require.Len(t, gotSessions, 1)
	assert.Equal(t, "host-1", gotSessions[0].ID)
	assert.True(t, start.Equal(gotSessions[0].Start))
	assert.Equal(t, records, gotRecords)
}

func TestModifiedUTF8Strings(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	sessions := []schema.SessionInfo{{ID: "host\x00😀", Start: start, Dump: start}}
	records := []schema.ExecutionRecord{{ID: 7, Name: "org/acme/Ω😀", Probes: []bool{true}}}

	data := encode(t, sessions, records)
	assert.True(t, bytes.Contains(data, []byte{'t', 0xC0, 0x80}), "NUL is written as C0 80")
	assert.True(t, bytes.Contains(data, []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}), "supplementary characters are surrogate pairs")
	assert.False(t, bytes.Contains(data, []byte("😀")), "no four byte sequences")

	gotSessions, gotRecords, err := decode(t, data)
	require.NoError(t, err)
	assert.Equal(t, sessions[0].ID, gotSessions[0].ID)
	assert.Equal(t, records, gotRecords)
}

func TestBoolArrayPacking(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{w: bufio.NewWriter(&buf)}
	require.NoError(t, w.writeBoolArray([]bool{true, false, true, false, false, false, false, false, true}))
	require.NoError(t, w.Flush())
	// length 9, then 0b00000101, then 0b00000001
	assert.Equal(t, []byte{9, 0x05, 0x01}, buf.Bytes())
}

func TestVarIntLongLength(t *testing.T) {
	probes := make([]bool, 300)
	probes[299] = true
	_, records, err := decode(t, encode(t, nil, []schema.ExecutionRecord{{ID: 7, Name: "A", Probes: probes}}))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Probes, 300)
	assert.True(t, records[0].Probes[299])
}

func TestReadConcatenatedDumps(t *testing.T) {
	a := encode(t, nil, []schema.ExecutionRecord{{ID: 1, Name: "A", Probes: []bool{true}}})
	b := encode(t, nil, []schema.ExecutionRecord{{ID: 2, Name: "B", Probes: []bool{false}}})
	_, records, err := decode(t, append(a, b...))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestReadEmpty(t *testing.T) {
	_, _, err := decode(t, nil)
	assert.NoError(t, err)
}

func TestReadCorrupt(t *testing.T) {
	valid := encode(t, nil, []schema.ExecutionRecord{{ID: 1, Name: "A", Probes: []bool{true, true}}})
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"no header", []byte{BlockSessionInfo, 0, 0}, ErrInvalidHeader},
		{"bad magic", []byte{BlockHeader, 0xCA, 0xFE, 0x10, 0x07}, ErrInvalidHeader},
		{"bad version", []byte{BlockHeader, 0xC0, 0xC0, 0x10, 0x06}, ErrUnsupportedFormat},
		{"unknown block", append(encode(t, nil, nil), 0x7F), ErrUnknownBlock},
		{"truncated", valid[:len(valid)-1], io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decode(t, tt.data)
			var corrupt *contract.CorruptDataError
			require.ErrorAs(t, err, &corrupt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStoreMerge(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(schema.ExecutionRecord{ID: 1, Name: "A", Probes: []bool{true, false, false}}))
	require.NoError(t, s.Put(schema.ExecutionRecord{ID: 1, Name: "A", Probes: []bool{false, false, true}}))

	rec, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, []bool{true, false, true}, rec.Probes)
	assert.True(t, s.Contains("A"))
	assert.False(t, s.Contains("B"))

	// Callers cannot mutate stored probes.
	rec.Probes[1] = true
	again, _ := s.Get(1)
	assert.False(t, again.Probes[1])

	var incompatible *contract.IncompatibleDataError
	err := s.Put(schema.ExecutionRecord{ID: 1, Name: "B", Probes: []bool{true, true, true}})
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "A", incompatible.Name)
	assert.Equal(t, "B", incompatible.OtherName)

	err = s.Put(schema.ExecutionRecord{ID: 1, Name: "A", Probes: []bool{true}})
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, 3, incompatible.Probes)
	assert.Equal(t, 1, incompatible.OtherProbes)

	s.Reset()
	assert.Zero(t, s.Len())
	assert.False(t, s.Contains("A"))
}

func TestStoreContentsSorted(t *testing.T) {
	s := NewStore()
	for _, rec := range []schema.ExecutionRecord{{ID: 3, Name: "c"}, {ID: 1, Name: "a"}, {ID: 2, Name: "b"}} {
		require.NoError(t, s.Put(rec))
	}
	var names []string
	for _, rec := range s.Contents() {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestSessionStoreSorted(t *testing.T) {
	s := NewSessionStore()
	s.Add(schema.SessionInfo{ID: "late", Start: time.UnixMilli(200)})
	s.Add(schema.SessionInfo{ID: "early", Start: time.UnixMilli(100)})
	infos := s.Infos()
	assert.Equal(t, "early", infos[0].ID)
	assert.Equal(t, "late", infos[1].ID)
}

func TestLoaderIdempotentAndUnion(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.exec",
		encode(t, nil, []schema.ExecutionRecord{{ID: 9, Name: "X", Probes: []bool{true, false}}}), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b.exec",
		encode(t, nil, []schema.ExecutionRecord{{ID: 9, Name: "X", Probes: []bool{false, true}}}), 0o644))

	l := NewLoader(fs)
	require.NoError(t, l.Load("/a.exec"))
	require.NoError(t, l.Load("/a.exec"))
	rec, _ := l.Store.Get(9)
	assert.Equal(t, []bool{true, false}, rec.Probes)

	require.NoError(t, l.Load("/b.exec"))
	rec, _ = l.Store.Get(9)
	assert.Equal(t, []bool{true, true}, rec.Probes)
}

func TestLoaderErrorsNamePath(t *testing.T) {
	fs := afero.NewMemMapFs()
	valid := encode(t, nil, []schema.ExecutionRecord{{ID: 1, Name: "A", Probes: []bool{true}}})
	require.NoError(t, afero.WriteFile(fs, "/trunc.exec", valid[:len(valid)-2], 0o644))
	require.NoError(t, afero.WriteFile(fs, "/other.exec",
		encode(t, nil, []schema.ExecutionRecord{{ID: 1, Name: "B", Probes: []bool{true}}}), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/ok.exec", valid, 0o644))

	l := NewLoader(fs)
	var corrupt *contract.CorruptDataError
	err := l.Load("/trunc.exec")
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, "/trunc.exec", corrupt.Path)
	assert.Contains(t, err.Error(), "/trunc.exec")

	var fsErr *contract.FilesystemError
	require.ErrorAs(t, l.Load("/missing.exec"), &fsErr)

	require.NoError(t, l.Load("/ok.exec"))
	var incompatible *contract.IncompatibleDataError
	err = l.Load("/other.exec")
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "/other.exec", incompatible.Path)
}

func TestInspectAndMerge(t *testing.T) {
	fs := afero.NewMemMapFs()
	s1 := schema.SessionInfo{ID: "s1", Start: time.UnixMilli(1000), Dump: time.UnixMilli(2000)}
	s2 := schema.SessionInfo{ID: "s2", Start: time.UnixMilli(500), Dump: time.UnixMilli(900)}
	require.NoError(t, afero.WriteFile(fs, "/a.exec", encode(t, []schema.SessionInfo{s1},
		[]schema.ExecutionRecord{{ID: 1, Name: "A", Probes: []bool{true, false}}}), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/b.exec", encode(t, []schema.SessionInfo{s2},
		[]schema.ExecutionRecord{{ID: 1, Name: "A", Probes: []bool{false, true}}, {ID: 2, Name: "B", Probes: []bool{false}}}), 0o644))

	info, err := Inspect(fs, "/b.exec")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Records)
	assert.Equal(t, 3, info.Probes)
	assert.Equal(t, 1, info.Hits)

	merged, err := Merge(fs, "/merged.exec", []string{"/a.exec", "/b.exec"})
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Records)
	assert.Equal(t, 2, merged.Hits)

	info, err = Inspect(fs, "/merged.exec")
	require.NoError(t, err)
	require.Len(t, info.Sessions, 2)
	assert.Equal(t, "s2", info.Sessions[0].ID)
	assert.Equal(t, 2, info.Hits)
}
