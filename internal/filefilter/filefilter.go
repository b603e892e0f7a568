// Package filefilter selects files below a directory with Ant-style include and exclude patterns.
package filefilter

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/spf13/afero"
)

// maxLinkHops bounds symlink chains when the filesystem cannot resolve them itself.
const maxLinkHops = 40

// Filter walks a directory tree and keeps files matching the include and exclude patterns.
type Filter struct {
	fs       afero.Fs
	includes []glob.Glob
	excludes []glob.Glob
}

// New compiles the patterns. Empty includes select every file.
func New(fs afero.Fs, includes, excludes []string) (*Filter, error) {
	inc, err := compileAll(includes)
	if err != nil {
		return nil, err
	}
	exc, err := compileAll(excludes)
	if err != nil {
		return nil, err
	}
	return &Filter{fs: fs, includes: inc, excludes: exc}, nil
}

// Match reports whether a root-relative, slash-separated path is selected.
func (f *Filter) Match(rel string) bool {
	if len(f.includes) > 0 && !matchAny(f.includes, rel) {
		return false
	}
	return !matchAny(f.excludes, rel)
}

// GetFiles returns the absolute paths of all selected regular files below rootDir, sorted.
func (f *Filter) GetFiles(rootDir string) ([]string, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, &contract.FilesystemError{Op: "invalid directory", Path: rootDir, Err: err}
	}
	info, err := f.fs.Stat(root)
	if err != nil {
		return nil, &contract.FilesystemError{Op: "directory not found", Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &contract.FilesystemError{Op: "not a directory", Path: root}
	}

	w := &walker{filter: f, visited: map[string]bool{f.realPath(root): true}}
	if err := w.walk(root, ""); err != nil {
		return nil, err
	}
	slices.Sort(w.files)
	return w.files, nil
}

type walker struct {
	filter  *Filter
	visited map[string]bool
	files   []string
}

func (w *walker) walk(dir, rel string) error {
	entries, err := afero.ReadDir(w.filter.fs, dir)
	if err != nil {
		return &contract.FilesystemError{Op: "cannot read directory", Path: dir, Err: err}
	}
	for _, entry := range entries {
		abs := filepath.Join(dir, entry.Name())
		childRel := path.Join(rel, entry.Name())

		isDir := entry.IsDir()
		if entry.Mode()&os.ModeSymlink != 0 {
			target, err := w.filter.fs.Stat(abs)
			if err != nil {
				contract.LogDebug("Skipping dangling link %s", abs)
				continue
			}
			isDir = target.IsDir()
		}

		if !isDir {
			if w.filter.Match(childRel) {
				w.files = append(w.files, abs)
			}
			continue
		}

		resolved := w.filter.realPath(abs)
		if w.visited[resolved] {
			contract.LogDebug("Skipping already visited directory %s", abs)
			continue
		}
		w.visited[resolved] = true
		if err := w.walk(abs, childRel); err != nil {
			return err
		}
	}
	return nil
}

// realPath resolves symlinks where the filesystem supports it.
func (f *Filter) realPath(p string) string {
	if _, ok := f.fs.(*afero.OsFs); ok {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return resolved
		}
		return p
	}
	lstater, okL := f.fs.(afero.Lstater)
	reader, okR := f.fs.(afero.LinkReader)
	if !okL || !okR {
		return filepath.Clean(p)
	}
	cur := filepath.Clean(p)
	for range maxLinkHops {
		info, _, err := lstater.LstatIfPossible(cur)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			return cur
		}
		target, err := reader.ReadlinkIfPossible(cur)
		if err != nil {
			return cur
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(cur), target)
		}
		cur = filepath.Clean(target)
	}
	return cur
}

func matchAny(globs []glob.Glob, rel string) bool {
	for _, g := range globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	var out []glob.Glob
	for _, p := range patterns {
		for _, variant := range expandPattern(p) {
			g, err := glob.Compile(variant, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid pattern '%s': %w", p, err)
			}
			out = append(out, g)
		}
	}
	return out, nil
}

// expandPattern rewrites one Ant pattern into glob variants.
// "**/" may also match zero directories, and a trailing "/" means "/**".
func expandPattern(p string) []string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}
	if strings.HasSuffix(p, "/") {
		p += "**"
	}

	variants := []string{p}
	for {
		var next []string
		changed := false
		for _, v := range variants {
			switch {
			case strings.HasPrefix(v, "**/"):
				next = append(next, v[3:], placeholder+"**/"+v[3:])
				changed = true
			case strings.Contains(v, "/**/"):
				i := strings.Index(v, "/**/")
				next = append(next, v[:i]+"/"+v[i+4:], v[:i]+"/"+placeholder+"**/"+v[i+4:])
				changed = true
			default:
				next = append(next, v)
			}
		}
		variants = next
		if !changed {
			break
		}
	}

	seen := map[string]bool{}
	var out []string
	for _, v := range variants {
		v = strings.ReplaceAll(v, placeholder, "")
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// placeholder marks an already expanded "**/" so it is not expanded again.
const placeholder = "\x00"
