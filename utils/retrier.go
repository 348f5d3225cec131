package utils

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Sleeper waits for the given duration or until the context is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Retrier[T any] struct {
	strategy HandlingStrategy
	logger   *zap.Logger
	sleep    Sleeper
}

func NewRetrier[T any](strategy HandlingStrategy, logger *zap.Logger) *Retrier[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier[T]{strategy: strategy, logger: logger, sleep: ContextSleep}
}

func NewExponentialRetrierFactory[T any](logger *zap.Logger, maximumRetries int, initialDelay time.Duration, jitterPercentage float64, maxDelay time.Duration) func() *Retrier[T] {
	return func() *Retrier[T] {
		return NewRetrier[T](NewExponentialBackoffStrategy(maximumRetries, initialDelay, jitterPercentage, maxDelay), logger)
	}
}

func NewPolicyRetrierFactory[T any](logger *zap.Logger, rules ...RetryRule) func() *Retrier[T] {
	return func() *Retrier[T] {
		return NewRetrier[T](NewPolicyStrategy(rules...), logger)
	}
}

// WithSleeper replaces the function used to wait between attempts.
func (r *Retrier[T]) WithSleeper(sleep Sleeper) *Retrier[T] {
	r.sleep = sleep
	return r
}

func (r *Retrier[T]) DoWithReturn(ctx context.Context, action func() (T, error)) (T, error) {
	var defaultT T
	if r.strategy.IsPreRequestDelayNeeded() {
		timeToWait := r.strategy.ComputePreRequestDelay()
		r.logger.Info("recovering from errors", zap.Duration("wait", timeToWait))
		if err := r.sleep(ctx, timeToWait); err != nil {
			return defaultT, err
		}
	}
	for {
		result, err := action()
		if err == nil {
			r.strategy.HandleSuccess()
			return result, nil
		}
		decision := r.strategy.HandleError(err)
		if decision.ReturnError {
			return defaultT, err
		}
		r.logger.Warn("retrying after error", zap.Error(err), zap.Duration("wait", decision.TimeToWait))
		if sleepErr := r.sleep(ctx, decision.TimeToWait); sleepErr != nil {
			return defaultT, err
		}
	}
}

type Decision struct {
	TimeToWait  time.Duration
	ReturnError bool
}

type HandlingStrategy interface {
	HandleError(err error) Decision
	HandleSuccess()
	IsPreRequestDelayNeeded() bool
	ComputePreRequestDelay() time.Duration
}

//NOT THREAD SAFE

type ExponentialBackoffStrategy struct {
	maximumRetries   int
	initialDelay     time.Duration
	maxDelay         time.Duration
	jitterPercentage float64

	currentRetryNumber int
	nextDelay          time.Duration
	rndGenerator       *rand.Rand

	recoveredFromFailures bool
}

func NewExponentialBackoffStrategy(maximumRetries int, initialDelay time.Duration, jitterPercentage float64, maxDelay time.Duration) *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		maximumRetries:        maximumRetries,
		initialDelay:          initialDelay,
		maxDelay:              maxDelay,
		jitterPercentage:      jitterPercentage,
		currentRetryNumber:    0,
		nextDelay:             initialDelay,
		rndGenerator:          rand.New(rand.NewSource(time.Now().UnixNano())),
		recoveredFromFailures: true,
	}
}

func (ebs *ExponentialBackoffStrategy) HandleError(err error) Decision {
	ebs.recoveredFromFailures = false
	if ebs.currentRetryNumber >= ebs.maximumRetries && ebs.maximumRetries != -1 {
		return Decision{ReturnError: true}
	}
	currentDelay := ebs.nextDelay
	nextBaseDelay := ebs.nextDelay * 2
	if nextBaseDelay > ebs.maxDelay {
		nextBaseDelay = ebs.maxDelay
	}
	ebs.currentRetryNumber++
	ebs.nextDelay = ebs.modifyWithJitter(nextBaseDelay)
	return Decision{TimeToWait: currentDelay}
}

func (ebs *ExponentialBackoffStrategy) HandleSuccess() {
	ebs.nextDelay /= 2
	ebs.currentRetryNumber = 0
	if ebs.nextDelay <= ebs.initialDelay {
		ebs.nextDelay = ebs.initialDelay
		ebs.recoveredFromFailures = true
	}
}

func (ebs *ExponentialBackoffStrategy) modifyWithJitter(duration time.Duration) time.Duration {
	maxJitterMilliseconds := int64(float64(duration.Milliseconds()) * ebs.jitterPercentage)
	if maxJitterMilliseconds <= 0 {
		return duration
	}
	jitterMilliseconds := ebs.rndGenerator.Int63n(maxJitterMilliseconds)
	jitterMilliseconds -= maxJitterMilliseconds / 2
	return duration + time.Duration(jitterMilliseconds)*time.Millisecond
}

func (ebs *ExponentialBackoffStrategy) ComputePreRequestDelay() time.Duration {
	return ebs.nextDelay
}

func (ebs *ExponentialBackoffStrategy) IsPreRequestDelayNeeded() bool {
	return !ebs.recoveredFromFailures
}

// RetryRule describes how errors of one kind are retried. Errors that match
// no rule are returned immediately.
type RetryRule struct {
	Name       string
	Matches    func(err error) bool
	MaxRetries int
	Delay      time.Duration
}

type PolicyStrategy struct {
	rules   []RetryRule
	retries map[string]int
}

func NewPolicyStrategy(rules ...RetryRule) *PolicyStrategy {
	return &PolicyStrategy{rules: rules, retries: make(map[string]int)}
}

func (ps *PolicyStrategy) HandleError(err error) Decision {
	for _, rule := range ps.rules {
		if !rule.Matches(err) {
			continue
		}
		if ps.retries[rule.Name] >= rule.MaxRetries {
			return Decision{ReturnError: true}
		}
		ps.retries[rule.Name]++
		return Decision{TimeToWait: rule.Delay}
	}
	return Decision{ReturnError: true}
}

func (ps *PolicyStrategy) HandleSuccess() {
	clear(ps.retries)
}

func (ps *PolicyStrategy) IsPreRequestDelayNeeded() bool {
	return false
}

func (ps *PolicyStrategy) ComputePreRequestDelay() time.Duration {
	return time.Duration(0)
}
