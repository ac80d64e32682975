// Package executortest provides a DataSource test double that records every
// batch it was asked to fetch, so tests can assert on round shape: how many
// calls were made, with what requests, and in what order.
package executortest

import (
	"context"
	"strconv"
	"sync"

	effect "github.com/gitter-badger/fetch-2/internal/effect"
	fetchsource "github.com/gitter-badger/fetch-2/internal/fetchsource"
)

// Call records one invocation of MockDataSource.Fetch.
type Call struct {
	Reqs []int
}

// MockDataSource is a fetchsource.DataSource[int, string] that answers every
// request with its decimal string and records each batch it receives.
type MockDataSource struct {
	NameValue string

	// Answer, if set, overrides the default stringified response and error
	// for a batch. Returning a nil map with no error falls back to the
	// default per-request answer.
	Answer func(reqs []int) (map[int]string, error)

	mu    sync.Mutex
	calls []Call
}

var _ fetchsource.DataSource[int, string] = (*MockDataSource)(nil)

// New constructs a MockDataSource named name.
func New(name string) *MockDataSource { return &MockDataSource{NameValue: name} }

func (m *MockDataSource) Name() string { return m.NameValue }

func (m *MockDataSource) Identity(req int) any { return req }

func (m *MockDataSource) Fetch(ctx context.Context, reqs []int) effect.Task[map[int]string] {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Reqs: append([]int{}, reqs...)})
	m.mu.Unlock()

	return effect.FromFunc(func(ctx context.Context) (map[int]string, error) {
		if m.Answer != nil {
			out, err := m.Answer(reqs)
			if err != nil || out != nil {
				return out, err
			}
		}
		out := make(map[int]string, len(reqs))
		for _, r := range reqs {
			out[r] = strconv.Itoa(r)
		}
		return out, nil
	})
}

// Calls returns every batch issued against the mock, in issue order.
func (m *MockDataSource) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call{}, m.calls...)
}

// CallCount reports how many times Fetch was invoked.
func (m *MockDataSource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
