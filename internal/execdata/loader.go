package execdata

import (
	"errors"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"
	"github.com/spf13/afero"
)

// Loader reads exec files into one shared record store and session store.
type Loader struct {
	fs       afero.Fs
	Store    *Store
	Sessions *SessionStore
}

// NewLoader returns a loader with empty stores.
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{fs: fs, Store: NewStore(), Sessions: NewSessionStore()}
}

// Load reads one exec file and merges it into the stores.
func (l *Loader) Load(path string) error {
	contract.LogInfo("Loading execution data file %s", path)

	f, err := l.fs.Open(path)
	if err != nil {
		return &contract.FilesystemError{Op: "cannot read execution data", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	r := NewReader(f)
	r.OnSession = l.Sessions.Add
	r.OnRecord = l.Store.Put
	return withPath(r.Read(), path)
}

// withPath attaches the file path to typed data errors.
func withPath(err error, path string) error {
	if err == nil {
		return nil
	}
	var corrupt *contract.CorruptDataError
	if errors.As(err, &corrupt) {
		corrupt.Path = path
		return corrupt
	}
	var incompatible *contract.IncompatibleDataError
	if errors.As(err, &incompatible) {
		incompatible.Path = path
		return incompatible
	}
	return err
}

// Inspect summarizes a single exec file without merging it anywhere else.
func Inspect(fs afero.Fs, path string) (schema.ExecFileInfo, error) {
	l := NewLoader(fs)
	if err := l.Load(path); err != nil {
		return schema.ExecFileInfo{}, err
	}
	info := schema.ExecFileInfo{Path: path, Sessions: l.Sessions.Infos()}
	for _, rec := range l.Store.Contents() {
		info.Records++
		info.Probes += len(rec.Probes)
		info.Hits += rec.HitCount()
	}
	return info, nil
}

// Merge loads every source and writes the merged sessions and records to dest.
func Merge(fs afero.Fs, dest string, sources []string) (schema.ExecFileInfo, error) {
	l := NewLoader(fs)
	for _, src := range sources {
		if err := l.Load(src); err != nil {
			return schema.ExecFileInfo{}, err
		}
	}

	f, err := fs.Create(dest)
	if err != nil {
		return schema.ExecFileInfo{}, &contract.FilesystemError{Op: "cannot create file", Path: dest, Err: err}
	}
	defer func() { _ = f.Close() }()

	w, err := NewWriter(f)
	if err != nil {
		return schema.ExecFileInfo{}, err
	}
	info := schema.ExecFileInfo{Path: dest, Sessions: l.Sessions.Infos()}
	for _, s := range info.Sessions {
		if err := w.WriteSession(s); err != nil {
			return schema.ExecFileInfo{}, err
		}
	}
	for _, rec := range l.Store.Contents() {
		if err := w.WriteRecord(rec); err != nil {
			return schema.ExecFileInfo{}, err
		}
		info.Records++
		info.Probes += len(rec.Probes)
		info.Hits += rec.HitCount()
	}
	if err := w.Flush(); err != nil {
		return schema.ExecFileInfo{}, &contract.FilesystemError{Op: "cannot write file", Path: dest, Err: err}
	}
	return info, nil
}
