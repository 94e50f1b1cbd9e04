package similarity

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yungbote/decisiontrace-backend/internal/domain/tracegraph"
	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

// Provider mirrors the SimilarityProvider port so decorators here compose without
// importing the use-case layer.
type Provider interface {
	TopK(ctx context.Context, space tracegraph.Space, seedID string, k int) ([]tracegraph.SimilarityResult, error)
}

type BreakerSettings struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests"`
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Enabled:          true,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Breaker fails fast with dependency_unavailable while a space's index keeps erroring,
// so hybrid calls degrade immediately instead of waiting out the dependency timeout.
type Breaker struct {
	name  string
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

func WithBreaker(name string, inner Provider, s BreakerSettings, log *logger.Logger) Provider {
	if inner == nil || !s.Enabled {
		return inner
	}
	if log == nil {
		log = logger.Nop()
	}
	def := DefaultBreakerSettings()
	if s.MinRequests == 0 {
		s.MinRequests = def.MinRequests
	}
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = def.FailureThreshold
	}
	blog := log.With("service", "SimilarityBreaker", "breaker", name)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			blog.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
		},
		IsSuccessful: countsAsSuccess,
	})
	return &Breaker{name: name, inner: inner, cb: cb}
}

// countsAsSuccess keeps caller mistakes and caller cancellation from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch tracegraph.CodeOf(err) {
	case tracegraph.CodeValidation, tracegraph.CodeNotFound, tracegraph.CodeInconsistentData:
		return true
	}
	return false
}

func (b *Breaker) TopK(ctx context.Context, space tracegraph.Space, seedID string, k int) ([]tracegraph.SimilarityResult, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.TopK(ctx, space, seedID, k)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, tracegraph.NewError(tracegraph.CodeDependencyUnavailable, "similarity.Breaker."+b.name, "circuit open", err)
		}
		return nil, err
	}
	results, _ := out.([]tracegraph.SimilarityResult)
	return results, nil
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
