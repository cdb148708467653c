// Hand-written gomock-style mock, in MockGen's layout.
// Source: github.com/nazibul7/turboproxy/internal/backend (interfaces: Dialer)

package dispatcher

import (
	context "context"
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"
)

// MockDialer is a mock of the backend.Dialer interface, used by handler
// tests that need to control dial outcomes without opening a real socket.
type MockDialer struct {
	ctrl     *gomock.Controller
	recorder *MockDialerMockRecorder
}

type MockDialerMockRecorder struct {
	mock *MockDialer
}

func NewMockDialer(ctrl *gomock.Controller) *MockDialer {
	mock := &MockDialer{ctrl: ctrl}
	mock.recorder = &MockDialerMockRecorder{mock}
	return mock
}

func (m *MockDialer) EXPECT() *MockDialerMockRecorder {
	return m.recorder
}

func (m *MockDialer) Dial(ctx context.Context, host string, port uint16) (int, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Dial", ctx, host, port)
	ret0, _ := ret[0].(int)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockDialerMockRecorder) Dial(ctx, host, port interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Dial", reflect.TypeOf((*MockDialer)(nil).Dial), ctx, host, port)
}
