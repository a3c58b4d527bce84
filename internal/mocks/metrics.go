package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/theblitlabs/parity-monitor/internal/core/models"
)

type MockTickSampler struct {
	mock.Mock
}

func (m *MockTickSampler) Sample(ctx context.Context) (models.TickSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.TickSnapshot), args.Error(1)
}

type MockHostReader struct {
	mock.Mock
}

func (m *MockHostReader) MemoryUsage(ctx context.Context) (models.MemoryUsage, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.MemoryUsage), args.Error(1)
}

func (m *MockHostReader) LoadAverages(ctx context.Context) (models.LoadAverages, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.LoadAverages), args.Error(1)
}

type MockMetricsCollector struct {
	mock.Mock
}

func (m *MockMetricsCollector) Collect(ctx context.Context) (models.UtilizationSample, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.UtilizationSample), args.Error(1)
}

func (m *MockMetricsCollector) Probe(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
