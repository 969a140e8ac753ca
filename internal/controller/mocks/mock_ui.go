// Package mocks provides testify mocks for the controller interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tessel.dev/pkg/tessel/internal/controller"
	m "tessel.dev/pkg/tessel/internal/model"
)

// MockUI is a mock of controller.UI.
type MockUI struct {
	mock.Mock
}

// NewMockUI creates a MockUI that asserts its expectations on cleanup.
func NewMockUI(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUI {
	mockUI := &MockUI{}
	mockUI.Mock.Test(t)

	t.Cleanup(func() { mockUI.AssertExpectations(t) })

	return mockUI
}

// Start provides a mock function.
func (_m *MockUI) Start(ctx context.Context, options ...controller.StartOption) error {
	return _m.Called(ctx, options).Error(0)
}

// Close provides a mock function.
func (_m *MockUI) Close(ctx context.Context) {
	_m.Called(ctx)
}

// Wait provides a mock function.
func (_m *MockUI) Wait(ctx context.Context) {
	_m.Called(ctx)
}

// DisplayError provides a mock function.
func (_m *MockUI) DisplayError(ctx context.Context, err error) {
	_m.Called(ctx, err)
}

// DisplayDiscovery provides a mock function.
func (_m *MockUI) DisplayDiscovery(ctx context.Context, info controller.DiscoveryInfo) {
	_m.Called(ctx, info)
}

// DisplayTree provides a mock function.
func (_m *MockUI) DisplayTree(ctx context.Context, rows []controller.TreeRow) {
	_m.Called(ctx, rows)
}

// DisplayRunStart provides a mock function.
func (_m *MockUI) DisplayRunStart(ctx context.Context, runID string, targets int, parallel int) {
	_m.Called(ctx, runID, targets, parallel)
}

// DisplayTargetStarted provides a mock function.
func (_m *MockUI) DisplayTargetStarted(ctx context.Context, label string) {
	_m.Called(ctx, label)
}

// DisplayTargetFinished provides a mock function.
func (_m *MockUI) DisplayTargetFinished(ctx context.Context, outcome m.TargetOutcome) {
	_m.Called(ctx, outcome)
}

// DisplayRunSummary provides a mock function.
func (_m *MockUI) DisplayRunSummary(ctx context.Context, report m.RunReport) {
	_m.Called(ctx, report)
}

// DisplayCoverageHistory provides a mock function.
func (_m *MockUI) DisplayCoverageHistory(ctx context.Context, label string, runs []m.CoverageRun) {
	_m.Called(ctx, label, runs)
}

// DisplayCases provides a mock function.
func (_m *MockUI) DisplayCases(ctx context.Context, report m.StructuredReport) {
	_m.Called(ctx, report)
}

// DisplayFileCoverage provides a mock function.
func (_m *MockUI) DisplayFileCoverage(ctx context.Context, summary m.CoverageSummary) {
	_m.Called(ctx, summary)
}
