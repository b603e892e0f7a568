package schema

import "time"

// SessionInfo describes one recorded coverage session.
type SessionInfo struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	Dump  time.Time `json:"dump"`
}

// ExecutionRecord holds the probe hits recorded for one class.
type ExecutionRecord struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"` // VM name, e.g. org/acme/Foo
	Probes []bool `json:"-"`
}

// HitCount returns the number of probes that were executed.
func (r ExecutionRecord) HitCount() int {
	n := 0
	for _, p := range r.Probes {
		if p {
			n++
		}
	}
	return n
}

// ExecFileInfo summarizes the content of one execution data file.
type ExecFileInfo struct {
	Path     string        `json:"path"`
	Sessions []SessionInfo `json:"sessions"`
	Records  int           `json:"records"`
	Probes   int           `json:"probes"`
	Hits     int           `json:"hits"`
}
