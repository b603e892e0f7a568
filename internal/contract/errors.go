package contract

import (
	"fmt"
	"strings"
)

// FilesystemError reports a missing or unreadable path, or a failed directory creation.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// CorruptDataError reports malformed execution data content.
type CorruptDataError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("corrupt execution data file %s at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *CorruptDataError) Unwrap() error { return e.Err }

// IncompatibleDataError reports two records for the same class id that cannot be merged.
type IncompatibleDataError struct {
	Path        string
	ID          uint64
	Name        string
	OtherName   string
	Probes      int
	OtherProbes int
}

func (e *IncompatibleDataError) Error() string {
	var msg string
	if e.Name != e.OtherName {
		msg = fmt.Sprintf("different class names %s and %s for id %016x", e.Name, e.OtherName, e.ID)
	} else {
		msg = fmt.Sprintf("incompatible execution data for class %s with id %016x (%d vs %d probes)", e.Name, e.ID, e.Probes, e.OtherProbes)
	}
	if e.Path != "" {
		return e.Path + ": " + msg
	}
	return msg
}

// ModuleResolutionWarning reports a declared module that could not be resolved.
type ModuleResolutionWarning struct {
	Path string
	Err  error
}

func (w *ModuleResolutionWarning) Error() string {
	return fmt.Sprintf("could not resolve module %s: %v", w.Path, w.Err)
}

func (w *ModuleResolutionWarning) Unwrap() error { return w.Err }

// ClassMismatchWarning reports classes whose structure matches no loaded execution record.
type ClassMismatchWarning struct {
	Bundle  string
	Classes []string
}

func (w *ClassMismatchWarning) Error() string {
	return fmt.Sprintf("classes in bundle '%s' do not match with execution data: %s",
		w.Bundle, strings.Join(w.Classes, ", "))
}
