// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth interfaces. Each mock
// exposes a typed EXPECT() builder so tests can set expectations without
// stringly-typed method names.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/usermgmt/internal/auth"
)

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// MockUserRepository_Expecter builds typed expectations.
type MockUserRepository_Expecter struct {
	mock *mock.Mock
}

// EXPECT returns the typed expectation builder.
func (_m *MockUserRepository) EXPECT() *MockUserRepository_Expecter {
	return &MockUserRepository_Expecter{mock: &_m.Mock}
}

// userResult unpacks a (*auth.User, error) expectation.
func userResult[A any](ret mock.Arguments, method string, ctx context.Context, arg A) (*auth.User, error) {
	if len(ret) == 0 {
		panic("no return value specified for " + method)
	}
	if rf, ok := ret.Get(0).(func(context.Context, A) (*auth.User, error)); ok {
		return rf(ctx, arg)
	}
	var user *auth.User
	if ret.Get(0) != nil {
		user = ret.Get(0).(*auth.User)
	}
	return user, ret.Error(1)
}

// errorResult unpacks an error-only expectation.
func errorResult[A any](ret mock.Arguments, method string, ctx context.Context, arg A) error {
	if len(ret) == 0 {
		panic("no return value specified for " + method)
	}
	if rf, ok := ret.Get(0).(func(context.Context, A) error); ok {
		return rf(ctx, arg)
	}
	return ret.Error(0)
}

// FindByEmail records the call and returns the configured result.
func (_m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return userResult(_m.Called(ctx, email), "FindByEmail", ctx, email)
}

// MockUserRepository_FindByEmail_Call is a typed *mock.Call for FindByEmail.
type MockUserRepository_FindByEmail_Call struct {
	*mock.Call
}

// FindByEmail expects a FindByEmail call with the given arguments.
func (_e *MockUserRepository_Expecter) FindByEmail(ctx interface{}, email interface{}) *MockUserRepository_FindByEmail_Call {
	return &MockUserRepository_FindByEmail_Call{Call: _e.mock.On("FindByEmail", ctx, email)}
}

func (_c *MockUserRepository_FindByEmail_Call) Run(run func(ctx context.Context, email string)) *MockUserRepository_FindByEmail_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(string))
	})
	return _c
}

func (_c *MockUserRepository_FindByEmail_Call) Return(user *auth.User, err error) *MockUserRepository_FindByEmail_Call {
	_c.Call.Return(user, err)
	return _c
}

func (_c *MockUserRepository_FindByEmail_Call) RunAndReturn(run func(context.Context, string) (*auth.User, error)) *MockUserRepository_FindByEmail_Call {
	_c.Call.Return(run)
	return _c
}

// FindByID records the call and returns the configured result.
func (_m *MockUserRepository) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	return userResult(_m.Called(ctx, id), "FindByID", ctx, id)
}

// MockUserRepository_FindByID_Call is a typed *mock.Call for FindByID.
type MockUserRepository_FindByID_Call struct {
	*mock.Call
}

// FindByID expects a FindByID call with the given arguments.
func (_e *MockUserRepository_Expecter) FindByID(ctx interface{}, id interface{}) *MockUserRepository_FindByID_Call {
	return &MockUserRepository_FindByID_Call{Call: _e.mock.On("FindByID", ctx, id)}
}

func (_c *MockUserRepository_FindByID_Call) Run(run func(ctx context.Context, id int64)) *MockUserRepository_FindByID_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(int64))
	})
	return _c
}

func (_c *MockUserRepository_FindByID_Call) Return(user *auth.User, err error) *MockUserRepository_FindByID_Call {
	_c.Call.Return(user, err)
	return _c
}

func (_c *MockUserRepository_FindByID_Call) RunAndReturn(run func(context.Context, int64) (*auth.User, error)) *MockUserRepository_FindByID_Call {
	_c.Call.Return(run)
	return _c
}

// List records the call and returns the configured result.
func (_m *MockUserRepository) List(ctx context.Context, offset int, limit int) ([]*auth.User, error) {
	ret := _m.Called(ctx, offset, limit)
	if len(ret) == 0 {
		panic("no return value specified for List")
	}
	if rf, ok := ret.Get(0).(func(context.Context, int, int) ([]*auth.User, error)); ok {
		return rf(ctx, offset, limit)
	}
	var users []*auth.User
	if ret.Get(0) != nil {
		users = ret.Get(0).([]*auth.User)
	}
	return users, ret.Error(1)
}

// MockUserRepository_List_Call is a typed *mock.Call for List.
type MockUserRepository_List_Call struct {
	*mock.Call
}

// List expects a List call with the given arguments.
func (_e *MockUserRepository_Expecter) List(ctx interface{}, offset interface{}, limit interface{}) *MockUserRepository_List_Call {
	return &MockUserRepository_List_Call{Call: _e.mock.On("List", ctx, offset, limit)}
}

func (_c *MockUserRepository_List_Call) Run(run func(ctx context.Context, offset int, limit int)) *MockUserRepository_List_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(int), args[2].(int))
	})
	return _c
}

func (_c *MockUserRepository_List_Call) Return(users []*auth.User, err error) *MockUserRepository_List_Call {
	_c.Call.Return(users, err)
	return _c
}

func (_c *MockUserRepository_List_Call) RunAndReturn(run func(context.Context, int, int) ([]*auth.User, error)) *MockUserRepository_List_Call {
	_c.Call.Return(run)
	return _c
}

// Create records the call and returns the configured result.
func (_m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return errorResult(_m.Called(ctx, user), "Create", ctx, user)
}

// MockUserRepository_Create_Call is a typed *mock.Call for Create.
type MockUserRepository_Create_Call struct {
	*mock.Call
}

// Create expects a Create call with the given arguments.
func (_e *MockUserRepository_Expecter) Create(ctx interface{}, user interface{}) *MockUserRepository_Create_Call {
	return &MockUserRepository_Create_Call{Call: _e.mock.On("Create", ctx, user)}
}

func (_c *MockUserRepository_Create_Call) Run(run func(ctx context.Context, user *auth.User)) *MockUserRepository_Create_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(*auth.User))
	})
	return _c
}

func (_c *MockUserRepository_Create_Call) Return(err error) *MockUserRepository_Create_Call {
	_c.Call.Return(err)
	return _c
}

func (_c *MockUserRepository_Create_Call) RunAndReturn(run func(context.Context, *auth.User) error) *MockUserRepository_Create_Call {
	_c.Call.Return(run)
	return _c
}

// Update records the call and returns the configured result.
func (_m *MockUserRepository) Update(ctx context.Context, user *auth.User) error {
	return errorResult(_m.Called(ctx, user), "Update", ctx, user)
}

// MockUserRepository_Update_Call is a typed *mock.Call for Update.
type MockUserRepository_Update_Call struct {
	*mock.Call
}

// Update expects an Update call with the given arguments.
func (_e *MockUserRepository_Expecter) Update(ctx interface{}, user interface{}) *MockUserRepository_Update_Call {
	return &MockUserRepository_Update_Call{Call: _e.mock.On("Update", ctx, user)}
}

func (_c *MockUserRepository_Update_Call) Run(run func(ctx context.Context, user *auth.User)) *MockUserRepository_Update_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(*auth.User))
	})
	return _c
}

func (_c *MockUserRepository_Update_Call) Return(err error) *MockUserRepository_Update_Call {
	_c.Call.Return(err)
	return _c
}

func (_c *MockUserRepository_Update_Call) RunAndReturn(run func(context.Context, *auth.User) error) *MockUserRepository_Update_Call {
	_c.Call.Return(run)
	return _c
}

// Delete records the call and returns the configured result.
func (_m *MockUserRepository) Delete(ctx context.Context, id int64) error {
	return errorResult(_m.Called(ctx, id), "Delete", ctx, id)
}

// MockUserRepository_Delete_Call is a typed *mock.Call for Delete.
type MockUserRepository_Delete_Call struct {
	*mock.Call
}

// Delete expects a Delete call with the given arguments.
func (_e *MockUserRepository_Expecter) Delete(ctx interface{}, id interface{}) *MockUserRepository_Delete_Call {
	return &MockUserRepository_Delete_Call{Call: _e.mock.On("Delete", ctx, id)}
}

func (_c *MockUserRepository_Delete_Call) Run(run func(ctx context.Context, id int64)) *MockUserRepository_Delete_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(context.Context), args[1].(int64))
	})
	return _c
}

func (_c *MockUserRepository_Delete_Call) Return(err error) *MockUserRepository_Delete_Call {
	_c.Call.Return(err)
	return _c
}

func (_c *MockUserRepository_Delete_Call) RunAndReturn(run func(context.Context, int64) error) *MockUserRepository_Delete_Call {
	_c.Call.Return(run)
	return _c
}

// NewMockUserRepository creates a MockUserRepository bound to t. Expectations
// are asserted when the test finishes.
func NewMockUserRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ auth.UserRepository = (*MockUserRepository)(nil)
