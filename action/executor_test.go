package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, defs ...Definition) *Executor {
	t.Helper()
	r := NewRegistry()
	for _, d := range defs {
		require.NoError(t, r.Register(d))
	}
	return NewExecutor(r, ExecutorConfig{
		RetryCount:  2,
		RetryAfter:  time.Millisecond,
		MaxInterval: 5 * time.Millisecond,
	})
}

func TestExecutorInvoke(t *testing.T) {
	errBoom := errors.New("boom")
	for scenario, fn := range map[string]func(t *testing.T){
		"succeeds first time": func(t *testing.T) {
			ex := newTestExecutor(t, Definition{Name: "echo", Fn: func(ctx context.Context, call Call) (any, error) {
				return call.Args[0], nil
			}})
			res, err := ex.Invoke(context.Background(), "echo", []any{"hi"}, Options{})
			require.NoError(t, err)
			require.Equal(t, "hi", res)
		},
		"retries until success": func(t *testing.T) {
			ex := newTestExecutor(t, Definition{Name: "flaky", Fn: func(ctx context.Context, call Call) (any, error) {
				if call.Attempt < 3 {
					return nil, errBoom
				}
				return call.Attempt, nil
			}})
			res, err := ex.Invoke(context.Background(), "flaky", nil, Options{})
			require.NoError(t, err)
			require.Equal(t, 3, res)
		},
		"exhausts retries": func(t *testing.T) {
			calls := 0
			ex := newTestExecutor(t, Definition{Name: "broken", Fn: func(ctx context.Context, call Call) (any, error) {
				calls++
				return nil, errBoom
			}})
			_, err := ex.Invoke(context.Background(), "broken", nil, Options{})
			var actErr *ActivityError
			require.ErrorAs(t, err, &actErr)
			require.Equal(t, "broken", actErr.Name)
			require.Equal(t, 3, actErr.Attempts)
			require.Equal(t, 3, calls)
			require.ErrorIs(t, err, errBoom)
		},
		"fixed policy with definition retry count": func(t *testing.T) {
			calls := 0
			ex := newTestExecutor(t, Definition{Name: "fixed", RetryCount: 4, RetryPolicy: RETRY_POLICY_FIXED, RetryAfter: time.Millisecond, Fn: func(ctx context.Context, call Call) (any, error) {
				calls++
				return nil, errBoom
			}})
			_, err := ex.Invoke(context.Background(), "fixed", nil, Options{})
			require.Error(t, err)
			require.Equal(t, 5, calls)
		},
		"negative retry count disables retries": func(t *testing.T) {
			calls := 0
			ex := newTestExecutor(t, Definition{Name: "once", RetryCount: -1, Fn: func(ctx context.Context, call Call) (any, error) {
				calls++
				return nil, errBoom
			}})
			_, err := ex.Invoke(context.Background(), "once", nil, Options{})
			require.Error(t, err)
			require.Equal(t, 1, calls)
		},
		"permanent error is not retried": func(t *testing.T) {
			calls := 0
			ex := newTestExecutor(t, Definition{Name: "perm", Fn: func(ctx context.Context, call Call) (any, error) {
				calls++
				return nil, Permanent(errBoom)
			}})
			_, err := ex.Invoke(context.Background(), "perm", nil, Options{})
			require.ErrorIs(t, err, errBoom)
			require.Equal(t, 1, calls)
		},
		"attempt timeout": func(t *testing.T) {
			ex := newTestExecutor(t, Definition{Name: "slow", RetryCount: -1, Fn: func(ctx context.Context, call Call) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}})
			_, err := ex.Invoke(context.Background(), "slow", nil, Options{Timeout: 10 * time.Millisecond})
			require.ErrorIs(t, err, context.DeadlineExceeded)
		},
		"passes idempotency key": func(t *testing.T) {
			ex := newTestExecutor(t, Definition{Name: "key", Fn: func(ctx context.Context, call Call) (any, error) {
				return call.InstanceId + "|" + call.IdempotencyKey, nil
			}})
			res, err := ex.Invoke(context.Background(), "key", nil, Options{InstanceId: "i-1", IdempotencyKey: "i-1/2"})
			require.NoError(t, err)
			require.Equal(t, "i-1|i-1/2", res)
		},
		"unknown activity": func(t *testing.T) {
			ex := newTestExecutor(t)
			_, err := ex.Invoke(context.Background(), "nope", nil, Options{})
			require.ErrorIs(t, err, ErrActivityNotFound)
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestRegistryValidation(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(Definition{Name: "no-fn"}))
	require.Error(t, r.Register(Definition{Fn: func(ctx context.Context, call Call) (any, error) { return nil, nil }}))
	require.Error(t, r.Register(Definition{Name: "bad-policy", RetryPolicy: "SOMETIMES", Fn: func(ctx context.Context, call Call) (any, error) { return nil, nil }}))
	require.NoError(t, r.Register(Definition{Name: "b", Fn: func(ctx context.Context, call Call) (any, error) { return nil, nil }}))
	require.NoError(t, r.Register(Definition{Name: "a", Fn: func(ctx context.Context, call Call) (any, error) { return nil, nil }}))
	require.Equal(t, []string{"a", "b"}, r.Names())
}
