package action

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/ticketflow/logger"
	"go.uber.org/zap"
)

const DEFAULT_TIMEOUT = 5 * time.Minute
const DEFAULT_RETRY_COUNT = 3
const DEFAULT_RETRY_AFTER = time.Second
const DEFAULT_MAX_INTERVAL = 30 * time.Second

type ExecutorConfig struct {
	Timeout     time.Duration
	RetryCount  int
	RetryAfter  time.Duration
	MaxInterval time.Duration
}

// Options override the definition for a single invocation. Zero values keep
// the definition's setting.
type Options struct {
	InstanceId     string
	IdempotencyKey string
	Timeout        time.Duration
	RetryPolicy    RetryPolicy
}

type Executor struct {
	registry *Registry
	conf     ExecutorConfig
}

func NewExecutor(registry *Registry, conf ExecutorConfig) *Executor {
	if conf.Timeout <= 0 {
		conf.Timeout = DEFAULT_TIMEOUT
	}
	if conf.RetryCount == 0 {
		conf.RetryCount = DEFAULT_RETRY_COUNT
	}
	if conf.RetryAfter <= 0 {
		conf.RetryAfter = DEFAULT_RETRY_AFTER
	}
	if conf.MaxInterval <= 0 {
		conf.MaxInterval = DEFAULT_MAX_INTERVAL
	}
	return &Executor{
		registry: registry,
		conf:     conf,
	}
}

func (ex *Executor) Registry() *Registry {
	return ex.registry
}

func (ex *Executor) retryBackOff(def Definition, opts Options) backoff.BackOff {
	retryAfter := def.RetryAfter
	if retryAfter <= 0 {
		retryAfter = ex.conf.RetryAfter
	}
	policy := def.RetryPolicy
	if opts.RetryPolicy != "" {
		policy = opts.RetryPolicy
	}
	retries := def.RetryCount
	if retries == 0 {
		retries = ex.conf.RetryCount
	}
	if retries < 0 {
		retries = 0
	}
	var b backoff.BackOff
	if policy == RETRY_POLICY_FIXED {
		b = backoff.NewConstantBackOff(retryAfter)
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = retryAfter
		eb.RandomizationFactor = 0.5
		eb.Multiplier = 2
		eb.MaxInterval = ex.conf.MaxInterval
		eb.MaxElapsedTime = 0
		b = eb
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// Invoke runs the named activity until it succeeds, returns a permanent error
// or runs out of retries. Every attempt gets its own timeout.
func (ex *Executor) Invoke(ctx context.Context, name string, args []any, opts Options) (any, error) {
	def, err := ex.registry.Get(name)
	if err != nil {
		return nil, err
	}
	timeout := def.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if timeout <= 0 {
		timeout = ex.conf.Timeout
	}

	attempts := 0
	var result any
	operation := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		res, err := def.Fn(actx, Call{
			InstanceId:     opts.InstanceId,
			IdempotencyKey: opts.IdempotencyKey,
			Args:           args,
			Attempt:        attempts,
		})
		if err != nil {
			logger.Warn("activity attempt failed", zap.String("activity", name), zap.String("instanceId", opts.InstanceId), zap.Int("attempt", attempts), zap.Error(err))
			if IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(ex.retryBackOff(def, opts), ctx)); err != nil {
		return nil, &ActivityError{Name: name, Cause: err, Attempts: attempts}
	}
	return result, nil
}
