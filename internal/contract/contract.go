// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/huangsam/covagg/schema"
)

// ModuleResolver resolves project descriptors into module descriptors.
// This allows the orchestration logic to be tested without real pom.xml trees.
type ModuleResolver interface {
	// Describe reads the descriptor at path (a pom.xml or its directory).
	Describe(path string) (schema.ModuleDescriptor, error)

	// Parent resolves the declared parent of a module, if it exists locally.
	Parent(module schema.ModuleDescriptor) (schema.ModuleDescriptor, bool)

	// Discover returns every module declared below root in pre-order.
	Discover(root schema.ModuleDescriptor) []schema.ModuleDescriptor
}

// BundleAnalyzer turns compiled classes plus execution data into bundle coverage.
type BundleAnalyzer interface {
	// AnalyzeBundle analyzes the given class files (or archives) as one bundle.
	// It returns the bundle and the VM names of classes whose structure did not match.
	AnalyzeBundle(ctx context.Context, name string, classFiles []string) (*schema.BundleCoverage, []string, error)
}

// HistoryManager defines the interface for accessing the history store.
// This allows the persistence layer to be mocked for testing.
type HistoryManager interface {
	GetHistoryStore() HistoryStore
}

// HistoryStore defines the interface for tracking report runs and bundle coverage.
type HistoryStore interface {
	// BeginRun creates a new report run and returns its unique ID
	BeginRun(startTime time.Time, title string, configParams map[string]any) (int64, error)

	// RecordBundle stores the counters of one bundle for a run
	RecordBundle(runID int64, bundle schema.BundleSummary, recordTime time.Time) error

	// EndRun updates the report run with completion data
	EndRun(runID int64, endTime time.Time, totalBundles int) error

	// GetStatus returns status information about the history store
	GetStatus() (schema.HistoryStatus, error)

	// GetAllRuns retrieves every report run ordered by ID
	GetAllRuns() ([]schema.ReportRunRecord, error)

	// GetAllBundleRecords retrieves every bundle record ordered by run and name
	GetAllBundleRecords() ([]schema.BundleCoverageRecord, error)

	// Close closes the underlying connection
	Close() error
}
