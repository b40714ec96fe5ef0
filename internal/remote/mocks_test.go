package remote

import (
	"context"
	"io"
	"sync"

	"github.com/jbweber/vmw/internal/command"
)

// mockRunner is a mock implementation of command.Runner for testing.
type mockRunner struct {
	mu sync.Mutex

	outputFunc      func(cmd command.Cmd) ([]byte, error)
	interactiveFunc func(cmd command.Cmd) error

	outputCalls      []command.Cmd
	interactiveCalls []command.Cmd

	// stdin captured from Output calls
	stdin []string
}

func (m *mockRunner) Output(ctx context.Context, cmd command.Cmd) ([]byte, error) {
	m.mu.Lock()
	m.outputCalls = append(m.outputCalls, cmd)
	if cmd.Stdin != nil {
		data, _ := io.ReadAll(cmd.Stdin)
		m.stdin = append(m.stdin, string(data))
	}
	fn := m.outputFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(cmd)
	}
	return nil, nil
}

func (m *mockRunner) Interactive(ctx context.Context, cmd command.Cmd) error {
	m.mu.Lock()
	m.interactiveCalls = append(m.interactiveCalls, cmd)
	fn := m.interactiveFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(cmd)
	}
	return nil
}
