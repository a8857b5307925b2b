package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type RetryPolicy string

const RETRY_POLICY_FIXED RetryPolicy = "FIXED"
const RETRY_POLICY_BACKOFF RetryPolicy = "BACKOFF"

func ToRetryPolicy(p string) RetryPolicy {
	if strings.EqualFold(p, "fixed") {
		return RETRY_POLICY_FIXED
	}
	return RETRY_POLICY_BACKOFF
}

func ValidateRetryPolicy(p string) error {
	if strings.EqualFold(p, "fixed") || strings.EqualFold(p, "backoff") {
		return nil
	}
	return fmt.Errorf("invalid retry policy %s", p)
}

var ErrActivityNotFound = errors.New("activity not found")

// Call is what an activity sees of one invocation.
type Call struct {
	InstanceId     string
	IdempotencyKey string
	Args           []any
	Attempt        int
}

func (c Call) Arg(i int) (any, error) {
	if i >= len(c.Args) {
		return nil, Permanent(fmt.Errorf("missing argument %d, got %d", i, len(c.Args)))
	}
	return c.Args[i], nil
}

type Fn func(ctx context.Context, call Call) (any, error)

// Definition is a registered activity and its default invocation policy.
// Zero values fall back to the executor defaults, a negative RetryCount
// disables retries.
type Definition struct {
	Name        string
	Fn          Fn
	RetryCount  int
	RetryPolicy RetryPolicy
	RetryAfter  time.Duration
	Timeout     time.Duration
}

func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("activity name can not be empty")
	}
	if d.Fn == nil {
		return fmt.Errorf("activity %s has no implementation", d.Name)
	}
	if d.RetryPolicy != "" {
		if err := ValidateRetryPolicy(string(d.RetryPolicy)); err != nil {
			return err
		}
	}
	return nil
}

type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	return nil
}

func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrActivityNotFound, name)
	}
	return def, nil
}

// Names lists the registered activities, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ActivityError is returned once an activity has used up its attempts.
type ActivityError struct {
	Name     string
	Cause    error
	Attempts int
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed after %d attempt(s): %v", e.Name, e.Attempts, e.Cause)
}

func (e *ActivityError) Unwrap() error {
	return e.Cause
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string {
	return p.err.Error()
}

func (p *permanentError) Unwrap() error {
	return p.err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
