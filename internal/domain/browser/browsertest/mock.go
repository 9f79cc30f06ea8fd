package browsertest

import (
	"context"

	"github.com/GriffinCanCode/browserrelay/internal/domain/browser"
	"github.com/stretchr/testify/mock"
)

// MockHandle is a testify mock of browser.Handle.
type MockHandle struct {
	mock.Mock
}

func (m *MockHandle) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockHandle) Screenshot(ctx context.Context) (browser.Capture, error) {
	args := m.Called(ctx)
	return args.Get(0).(browser.Capture), args.Error(1)
}

func (m *MockHandle) PageInfo(ctx context.Context) (browser.PageInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(browser.PageInfo), args.Error(1)
}

func (m *MockHandle) Click(ctx context.Context, x, y float64) error {
	args := m.Called(ctx, x, y)
	return args.Error(0)
}

func (m *MockHandle) Scroll(ctx context.Context, deltaY float64) error {
	args := m.Called(ctx, deltaY)
	return args.Error(0)
}

func (m *MockHandle) SendKey(ctx context.Context, ev browser.KeyEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockHandle) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockLauncher is a testify mock of browser.Launcher.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Handle, error) {
	args := m.Called(ctx, opts)
	if h := args.Get(0); h != nil {
		return h.(browser.Handle), args.Error(1)
	}
	return nil, args.Error(1)
}
