package history

import (
	"time"

	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/schema"
	"github.com/stretchr/testify/mock"
)

// MockHistoryManager is a mock implementation of HistoryManager for testing.
type MockHistoryManager struct {
	mock.Mock
}

var _ contract.HistoryManager = &MockHistoryManager{} // Compile-time check

// GetHistoryStore implements the HistoryManager interface.
func (m *MockHistoryManager) GetHistoryStore() contract.HistoryStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.HistoryStore)
	return store
}

// MockHistoryStore is a mock implementation of HistoryStore for testing.
type MockHistoryStore struct {
	mock.Mock
}

var _ contract.HistoryStore = &MockHistoryStore{} // Compile-time check

// BeginRun implements the HistoryStore interface.
func (m *MockHistoryStore) BeginRun(startTime time.Time, title string, configParams map[string]any) (int64, error) {
	args := m.Called(startTime, title, configParams)
	return args.Get(0).(int64), args.Error(1)
}

// RecordBundle implements the HistoryStore interface.
func (m *MockHistoryStore) RecordBundle(runID int64, bundle schema.BundleSummary, recordTime time.Time) error {
	args := m.Called(runID, bundle, recordTime)
	return args.Error(0)
}

// EndRun implements the HistoryStore interface.
func (m *MockHistoryStore) EndRun(runID int64, endTime time.Time, totalBundles int) error {
	args := m.Called(runID, endTime, totalBundles)
	return args.Error(0)
}

// GetStatus implements the HistoryStore interface.
func (m *MockHistoryStore) GetStatus() (schema.HistoryStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.HistoryStatus), args.Error(1)
}

// GetAllRuns implements the HistoryStore interface.
func (m *MockHistoryStore) GetAllRuns() ([]schema.ReportRunRecord, error) {
	args := m.Called()
	runs, _ := args.Get(0).([]schema.ReportRunRecord)
	return runs, args.Error(1)
}

// GetAllBundleRecords implements the HistoryStore interface.
func (m *MockHistoryStore) GetAllBundleRecords() ([]schema.BundleCoverageRecord, error) {
	args := m.Called()
	records, _ := args.Get(0).([]schema.BundleCoverageRecord)
	return records, args.Error(1)
}

// Close implements the HistoryStore interface.
func (m *MockHistoryStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
