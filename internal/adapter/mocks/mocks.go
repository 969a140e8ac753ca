// Package mocks provides testify mocks for the adapter interfaces.
package mocks

import (
	"context"
	"go/ast"
	"go/token"
	"os"

	"github.com/stretchr/testify/mock"

	"tessel.dev/pkg/tessel/internal/adapter"
	m "tessel.dev/pkg/tessel/internal/model"
)

type cleanupT interface {
	mock.TestingT
	Cleanup(func())
}

// MockQueryAdapter is a mock of adapter.QueryAdapter.
type MockQueryAdapter struct {
	mock.Mock
}

// NewMockQueryAdapter creates a MockQueryAdapter that asserts its expectations on cleanup.
func NewMockQueryAdapter(t cleanupT) *MockQueryAdapter {
	mockAdapter := &MockQueryAdapter{}
	mockAdapter.Mock.Test(t)

	t.Cleanup(func() { mockAdapter.AssertExpectations(t) })

	return mockAdapter
}

// Query provides a mock function.
func (_m *MockQueryAdapter) Query(ctx context.Context, workspace m.Path, expression, output string) (string, error) {
	ret := _m.Called(ctx, workspace, expression, output)

	return ret.String(0), ret.Error(1)
}

// MockTestRunnerAdapter is a mock of adapter.TestRunnerAdapter.
type MockTestRunnerAdapter struct {
	mock.Mock
}

// NewMockTestRunnerAdapter creates a MockTestRunnerAdapter that asserts its expectations on cleanup.
func NewMockTestRunnerAdapter(t cleanupT) *MockTestRunnerAdapter {
	mockAdapter := &MockTestRunnerAdapter{}
	mockAdapter.Mock.Test(t)

	t.Cleanup(func() { mockAdapter.AssertExpectations(t) })

	return mockAdapter
}

// RunTest provides a mock function. A func(adapter.TestRequest, adapter.LineFunc) m.ProcessResult
// return value is invoked so tests can emit output lines.
func (_m *MockTestRunnerAdapter) RunTest(ctx context.Context, req adapter.TestRequest, onLine adapter.LineFunc) m.ProcessResult {
	ret := _m.Called(ctx, req, onLine)

	if fn, ok := ret.Get(0).(func(adapter.TestRequest, adapter.LineFunc) m.ProcessResult); ok {
		return fn(req, onLine)
	}

	return ret.Get(0).(m.ProcessResult)
}

// MockSourceFSAdapter is a mock of adapter.SourceFSAdapter.
type MockSourceFSAdapter struct {
	mock.Mock
}

// NewMockSourceFSAdapter creates a MockSourceFSAdapter that asserts its expectations on cleanup.
func NewMockSourceFSAdapter(t cleanupT) *MockSourceFSAdapter {
	mockAdapter := &MockSourceFSAdapter{}
	mockAdapter.Mock.Test(t)

	t.Cleanup(func() { mockAdapter.AssertExpectations(t) })

	return mockAdapter
}

// Walk provides a mock function.
func (_m *MockSourceFSAdapter) Walk(root m.Path, recursive bool, fn adapter.FilepathWalkFunc) error {
	return _m.Called(root, recursive, fn).Error(0)
}

// ReadFile provides a mock function.
func (_m *MockSourceFSAdapter) ReadFile(path m.Path) ([]byte, error) {
	ret := _m.Called(path)

	data, _ := ret.Get(0).([]byte)

	return data, ret.Error(1)
}

// FileInfo provides a mock function.
func (_m *MockSourceFSAdapter) FileInfo(path m.Path) (os.FileInfo, error) {
	ret := _m.Called(path)

	info, _ := ret.Get(0).(os.FileInfo)

	return info, ret.Error(1)
}

// Exists provides a mock function.
func (_m *MockSourceFSAdapter) Exists(path m.Path) bool {
	return _m.Called(path).Bool(0)
}

// FindWorkspaceRoot provides a mock function.
func (_m *MockSourceFSAdapter) FindWorkspaceRoot(startPath m.Path) (m.Path, error) {
	ret := _m.Called(startPath)

	return ret.Get(0).(m.Path), ret.Error(1)
}

// BuildFile provides a mock function.
func (_m *MockSourceFSAdapter) BuildFile(pkgDir m.Path) (m.Path, bool) {
	ret := _m.Called(pkgDir)

	return ret.Get(0).(m.Path), ret.Bool(1)
}

// RelPath provides a mock function.
func (_m *MockSourceFSAdapter) RelPath(base, target m.Path) (m.Path, error) {
	ret := _m.Called(base, target)

	return ret.Get(0).(m.Path), ret.Error(1)
}

// JoinPath provides a mock function.
func (_m *MockSourceFSAdapter) JoinPath(elem ...string) m.Path {
	return _m.Called(elem).Get(0).(m.Path)
}

// MockGoFileAdapter is a mock of adapter.GoFileAdapter.
type MockGoFileAdapter struct {
	mock.Mock
}

// NewMockGoFileAdapter creates a MockGoFileAdapter that asserts its expectations on cleanup.
func NewMockGoFileAdapter(t cleanupT) *MockGoFileAdapter {
	mockAdapter := &MockGoFileAdapter{}
	mockAdapter.Mock.Test(t)

	t.Cleanup(func() { mockAdapter.AssertExpectations(t) })

	return mockAdapter
}

// Parse provides a mock function.
func (_m *MockGoFileAdapter) Parse(fileSet *token.FileSet, filename string, src []byte) (*ast.File, error) {
	ret := _m.Called(fileSet, filename, src)

	file, _ := ret.Get(0).(*ast.File)

	return file, ret.Error(1)
}

// LocateTestFunc provides a mock function.
func (_m *MockGoFileAdapter) LocateTestFunc(dir m.Path, funcName string) (*m.SourceLocation, bool) {
	ret := _m.Called(dir, funcName)

	loc, _ := ret.Get(0).(*m.SourceLocation)

	return loc, ret.Bool(1)
}

// MockReportStore is a mock of adapter.ReportStore.
type MockReportStore struct {
	mock.Mock
}

// NewMockReportStore creates a MockReportStore that asserts its expectations on cleanup.
func NewMockReportStore(t cleanupT) *MockReportStore {
	mockStore := &MockReportStore{}
	mockStore.Mock.Test(t)

	t.Cleanup(func() { mockStore.AssertExpectations(t) })

	return mockStore
}

// SaveCoverage provides a mock function.
func (_m *MockReportStore) SaveCoverage(dir m.Path, history adapter.CoverageHistory) error {
	return _m.Called(dir, history).Error(0)
}

// LoadCoverage provides a mock function.
func (_m *MockReportStore) LoadCoverage(dir m.Path) (adapter.CoverageHistory, error) {
	ret := _m.Called(dir)

	history, _ := ret.Get(0).(adapter.CoverageHistory)

	return history, ret.Error(1)
}

// MockBuildFileWatcher is a mock of adapter.BuildFileWatcher.
type MockBuildFileWatcher struct {
	mock.Mock
}

// NewMockBuildFileWatcher creates a MockBuildFileWatcher that asserts its expectations on cleanup.
func NewMockBuildFileWatcher(t cleanupT) *MockBuildFileWatcher {
	mockWatcher := &MockBuildFileWatcher{}
	mockWatcher.Mock.Test(t)

	t.Cleanup(func() { mockWatcher.AssertExpectations(t) })

	return mockWatcher
}

// Watch provides a mock function. A func(func([]string)) error return value is invoked
// so tests can deliver change batches.
func (_m *MockBuildFileWatcher) Watch(ctx context.Context, root m.Path, onChange func(paths []string)) error {
	ret := _m.Called(ctx, root, onChange)

	if fn, ok := ret.Get(0).(func(func([]string)) error); ok {
		return fn(onChange)
	}

	return ret.Error(0)
}
