package republish

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogger struct{}

func (fakeLogger) Infof(string, ...interface{}) {}
func (fakeLogger) Warnf(string, ...interface{}) {}

func TestRepublisherRunsFirstCycleAfterInitialDelay(t *testing.T) {
	var mu sync.Mutex
	var calls []string

	r := New(Options{
		Interval:     time.Hour,
		InitialDelay: 5 * time.Millisecond,
		Source: func() map[string][]byte {
			return map[string][]byte{"alice:deadbeef": []byte("record")}
		},
		Set: func(_ context.Context, key string, _ []byte) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, key)
			return nil
		},
		Logger: fakeLogger{},
	})

	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"alice:deadbeef"}, calls)
	mu.Unlock()
}

func TestRepublisherContinuesPastSetErrors(t *testing.T) {
	var mu sync.Mutex
	attempted := 0

	r := New(Options{
		Interval:     time.Hour,
		InitialDelay: 5 * time.Millisecond,
		Source: func() map[string][]byte {
			return map[string][]byte{
				"a:1": []byte("x"),
				"b:2": []byte("y"),
			}
		},
		Set: func(_ context.Context, key string, _ []byte) error {
			mu.Lock()
			defer mu.Unlock()
			attempted++
			if key == "a:1" {
				return assert.AnError
			}
			return nil
		},
		Logger: fakeLogger{},
	})

	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempted == 2
	}, time.Second, time.Millisecond)
}

func TestStopIsIdempotentAndSafeWithoutStart(t *testing.T) {
	r := New(Options{
		Source: func() map[string][]byte { return nil },
		Set:    func(context.Context, string, []byte) error { return nil },
	})
	r.Stop()
	r.Stop()
}

func TestDoubleStartIsNoop(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	r := New(Options{
		Interval:     time.Hour,
		InitialDelay: 5 * time.Millisecond,
		Source: func() map[string][]byte {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return nil
		},
		Set: func(context.Context, string, []byte) error { return nil },
	})

	r.Start(context.Background())
	r.Start(context.Background())
	defer r.Stop()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, calls, 1)
}
