package outwriter

import (
	"io"
	"path"
	"path/filepath"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/spf13/afero"
)

// SourceFileLocator finds the source text of a class's source file.
type SourceFileLocator interface {
	// Open returns the source decoded to UTF-8, or false when it cannot be found.
	Open(packageName, fileName string) (io.ReadCloser, bool)

	// Encoding is the charset the sources are stored in.
	Encoding() string

	// TabWidth is the number of columns a tab expands to.
	TabWidth() int
}

// NoSourceLocator finds nothing.
type NoSourceLocator struct{}

// Open implements SourceFileLocator.
func (NoSourceLocator) Open(string, string) (io.ReadCloser, bool) { return nil, false }

// Encoding implements SourceFileLocator.
func (NoSourceLocator) Encoding() string { return contract.DefaultEncoding }

// TabWidth implements SourceFileLocator.
func (NoSourceLocator) TabWidth() int { return 0 }

// DirectorySourceLocator looks up sources below one or more source roots.
type DirectorySourceLocator struct {
	fs       afero.Fs
	roots    []string
	encoding string
	tabWidth int
}

// NewDirectorySourceLocator creates a locator over roots; an empty encoding means UTF-8.
func NewDirectorySourceLocator(fs afero.Fs, roots []string, encoding string, tabWidth int) *DirectorySourceLocator {
	if encoding == "" {
		encoding = contract.DefaultEncoding
	}
	if tabWidth <= 0 {
		tabWidth = contract.DefaultTabWidth
	}
	return &DirectorySourceLocator{fs: fs, roots: roots, encoding: encoding, tabWidth: tabWidth}
}

// Open implements SourceFileLocator; roots are tried in order.
func (l *DirectorySourceLocator) Open(packageName, fileName string) (io.ReadCloser, bool) {
	rel := fileName
	if packageName != "" {
		rel = path.Join(packageName, fileName)
	}
	for _, root := range l.roots {
		p := filepath.Join(root, filepath.FromSlash(rel))
		info, err := l.fs.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		f, err := l.fs.Open(p)
		if err != nil {
			contract.LogWarn("Cannot open source file "+p, err)
			continue
		}
		decoded, err := contract.NewDecodingReader(f, l.encoding)
		if err != nil {
			_ = f.Close()
			contract.LogWarn("Cannot decode source file "+p, err)
			return nil, false
		}
		return readCloser{Reader: decoded, Closer: f}, true
	}
	return nil, false
}

// Encoding implements SourceFileLocator.
func (l *DirectorySourceLocator) Encoding() string { return l.encoding }

// TabWidth implements SourceFileLocator.
func (l *DirectorySourceLocator) TabWidth() int { return l.tabWidth }

// MultiSourceLocator asks each locator in turn.
type MultiSourceLocator struct {
	locators []SourceFileLocator
}

// NewMultiSourceLocator combines locators; the first one sets encoding and tab width.
func NewMultiSourceLocator(locators ...SourceFileLocator) *MultiSourceLocator {
	return &MultiSourceLocator{locators: locators}
}

// Open implements SourceFileLocator.
func (m *MultiSourceLocator) Open(packageName, fileName string) (io.ReadCloser, bool) {
	for _, l := range m.locators {
		if rc, ok := l.Open(packageName, fileName); ok {
			return rc, true
		}
	}
	return nil, false
}

// Encoding implements SourceFileLocator.
func (m *MultiSourceLocator) Encoding() string {
	if len(m.locators) == 0 {
		return contract.DefaultEncoding
	}
	return m.locators[0].Encoding()
}

// TabWidth implements SourceFileLocator.
func (m *MultiSourceLocator) TabWidth() int {
	if len(m.locators) == 0 {
		return contract.DefaultTabWidth
	}
	return m.locators[0].TabWidth()
}

type readCloser struct {
	io.Reader
	io.Closer
}
