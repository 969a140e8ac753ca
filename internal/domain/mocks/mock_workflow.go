// Package mocks provides testify mocks for the domain interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tessel.dev/pkg/tessel/internal/domain"
)

// MockWorkflow is a mock of domain.Workflow.
type MockWorkflow struct {
	mock.Mock
}

// NewMockWorkflow creates a MockWorkflow that asserts its expectations on cleanup.
func NewMockWorkflow(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockWorkflow {
	mockWorkflow := &MockWorkflow{}
	mockWorkflow.Mock.Test(t)

	t.Cleanup(func() { mockWorkflow.AssertExpectations(t) })

	return mockWorkflow
}

// Discover provides a mock function.
func (_m *MockWorkflow) Discover(ctx context.Context, args domain.DiscoverArgs) error {
	return _m.Called(ctx, args).Error(0)
}

// Run provides a mock function.
func (_m *MockWorkflow) Run(ctx context.Context, args domain.RunArgs) error {
	return _m.Called(ctx, args).Error(0)
}

// Watch provides a mock function.
func (_m *MockWorkflow) Watch(ctx context.Context, args domain.WatchArgs) error {
	return _m.Called(ctx, args).Error(0)
}

// Coverage provides a mock function.
func (_m *MockWorkflow) Coverage(ctx context.Context, args domain.CoverageArgs) error {
	return _m.Called(ctx, args).Error(0)
}

// Report provides a mock function.
func (_m *MockWorkflow) Report(ctx context.Context, args domain.ReportArgs) error {
	return _m.Called(ctx, args).Error(0)
}

// Lcov provides a mock function.
func (_m *MockWorkflow) Lcov(ctx context.Context, args domain.LcovArgs) error {
	return _m.Called(ctx, args).Error(0)
}
