package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/h2integrate/h2integrate/pkg/storage"
	"github.com/h2integrate/h2integrate/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) CreateRun(ctx context.Context, run types.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockDatabase) RecordCase(ctx context.Context, c types.Case) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockDatabase) GetRun(ctx context.Context, runID string) (types.Run, error) {
	args := m.Called(ctx, runID)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Run), args.Error(1)
	}
	return types.Run{}, nil
}

func (m *MockDatabase) ListRuns(ctx context.Context) ([]types.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Run), args.Error(1)
}

func (m *MockDatabase) ListCases(ctx context.Context, runID string) ([]types.Case, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Case), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
