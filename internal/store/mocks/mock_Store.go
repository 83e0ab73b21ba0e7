// Package mocks provides test doubles for the store.
package mocks

import (
	"context"

	model "github.com/sells-group/onboard-cli/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

// LatestStatus provides a mock function with given fields: ctx, workspaceID, wf
func (_m *MockStore) LatestStatus(ctx context.Context, workspaceID string, wf model.WorkflowType) (*model.StatusRecord, error) {
	ret := _m.Called(ctx, workspaceID, wf)

	if len(ret) == 0 {
		panic("no return value specified for LatestStatus")
	}

	var r0 *model.StatusRecord
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, model.WorkflowType) (*model.StatusRecord, error)); ok {
		return rf(ctx, workspaceID, wf)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.StatusRecord)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Count provides a mock function with given fields: ctx, workspaceID, key
func (_m *MockStore) Count(ctx context.Context, workspaceID string, key model.CountKey) (int64, error) {
	ret := _m.Called(ctx, workspaceID, key)

	if len(ret) == 0 {
		panic("no return value specified for Count")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, model.CountKey) (int64, error)); ok {
		return rf(ctx, workspaceID, key)
	}
	return ret.Get(0).(int64), ret.Error(1)
}

// InsertStatus provides a mock function with given fields: ctx, rec
func (_m *MockStore) InsertStatus(ctx context.Context, rec *model.StatusRecord) error {
	ret := _m.Called(ctx, rec)

	if len(ret) == 0 {
		panic("no return value specified for InsertStatus")
	}

	if rf, ok := ret.Get(0).(func(context.Context, *model.StatusRecord) error); ok {
		return rf(ctx, rec)
	}
	return ret.Error(0)
}

// Ping provides a mock function with given fields: ctx
func (_m *MockStore) Ping(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Ping")
	}
	return ret.Error(0)
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockStore) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}
	return ret.Error(0)
}

// Close provides a mock function with no fields
func (_m *MockStore) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}
	return ret.Error(0)
}

// NewMockStore creates a new instance of MockStore. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	m := &MockStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
