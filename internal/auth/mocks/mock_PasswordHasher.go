// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/holomush/usermgmt/internal/auth"
)

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// MockPasswordHasher_Expecter builds typed expectations.
type MockPasswordHasher_Expecter struct {
	mock *mock.Mock
}

// EXPECT returns the typed expectation builder.
func (_m *MockPasswordHasher) EXPECT() *MockPasswordHasher_Expecter {
	return &MockPasswordHasher_Expecter{mock: &_m.Mock}
}

// Hash records the call and returns the configured result.
func (_m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := _m.Called(password)
	if len(ret) == 0 {
		panic("no return value specified for Hash")
	}
	if rf, ok := ret.Get(0).(func(string) (string, error)); ok {
		return rf(password)
	}
	return ret.String(0), ret.Error(1)
}

// MockPasswordHasher_Hash_Call is a typed *mock.Call for Hash.
type MockPasswordHasher_Hash_Call struct {
	*mock.Call
}

// Hash expects a Hash call with the given argument.
func (_e *MockPasswordHasher_Expecter) Hash(password interface{}) *MockPasswordHasher_Hash_Call {
	return &MockPasswordHasher_Hash_Call{Call: _e.mock.On("Hash", password)}
}

func (_c *MockPasswordHasher_Hash_Call) Run(run func(password string)) *MockPasswordHasher_Hash_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(string))
	})
	return _c
}

func (_c *MockPasswordHasher_Hash_Call) Return(digest string, err error) *MockPasswordHasher_Hash_Call {
	_c.Call.Return(digest, err)
	return _c
}

func (_c *MockPasswordHasher_Hash_Call) RunAndReturn(run func(string) (string, error)) *MockPasswordHasher_Hash_Call {
	_c.Call.Return(run)
	return _c
}

// Verify records the call and returns the configured result.
func (_m *MockPasswordHasher) Verify(password string, digest string) bool {
	ret := _m.Called(password, digest)
	if len(ret) == 0 {
		panic("no return value specified for Verify")
	}
	if rf, ok := ret.Get(0).(func(string, string) bool); ok {
		return rf(password, digest)
	}
	return ret.Bool(0)
}

// MockPasswordHasher_Verify_Call is a typed *mock.Call for Verify.
type MockPasswordHasher_Verify_Call struct {
	*mock.Call
}

// Verify expects a Verify call with the given arguments.
func (_e *MockPasswordHasher_Expecter) Verify(password interface{}, digest interface{}) *MockPasswordHasher_Verify_Call {
	return &MockPasswordHasher_Verify_Call{Call: _e.mock.On("Verify", password, digest)}
}

func (_c *MockPasswordHasher_Verify_Call) Run(run func(password string, digest string)) *MockPasswordHasher_Verify_Call {
	_c.Call.Run(func(args mock.Arguments) {
		run(args[0].(string), args[1].(string))
	})
	return _c
}

func (_c *MockPasswordHasher_Verify_Call) Return(ok bool) *MockPasswordHasher_Verify_Call {
	_c.Call.Return(ok)
	return _c
}

func (_c *MockPasswordHasher_Verify_Call) RunAndReturn(run func(string, string) bool) *MockPasswordHasher_Verify_Call {
	_c.Call.Return(run)
	return _c
}

// NewMockPasswordHasher creates a MockPasswordHasher bound to t. Expectations
// are asserted when the test finishes.
func NewMockPasswordHasher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)
