// Package execadapter sits between the decision core and a venue
// adapter (internal/dryrun today; a real exchange client tomorrow),
// implementing the resilience policies the execution-adapter boundary
// owns: a failsafe-go retry policy composed with a circuit breaker
// around every place/cancel/cancel-all call, and a golang.org/x/time/rate
// limiter gating the cancel path. It is grounded on the teacher's own
// pkg/http/client.go (retry+breaker composition via failsafe.With) and
// internal/trading/order/executor.go (rate.Limiter on the order path).
//
// Structured business rejections (the wrapped call returning a
// classified, non-transient error) still count as failures for the
// purposes of api_fault_count — the venue adapter is expected to only
// return errors for conditions that warrant a retry/backoff count, and
// to handle rejection classification before it reaches this layer.
package execadapter

import (
	"context"
	"time"

	"gridcore/internal/domain"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Target is the venue-level surface a real or dry-run adapter exposes.
type Target interface {
	CancelOrder(orderID string) (bool, error)
	CancelAllOrders(symbol string) (int, error)
	ReduceTo(targetRatio decimal.Decimal) error
	ForcedReduce() error
	PrepareReanchorOrExit() error
	KillSwitch() error
	EmergencyExit() error
}

// Placer is the context-carrying order-placement surface.
type Placer interface {
	PlaceOrder(ctx context.Context, order domain.GridOrder) error
}

// FaultSink receives consecutive-failure bookkeeping for the emergency
// api-fault axis; riskengine.EmergencyTrigger satisfies this.
type FaultSink interface {
	IncrementAPIFaultCount()
	ResetAPIFaultCount()
}

// Config shapes the retry/circuit-breaker/rate-limit policies.
type Config struct {
	MaxRetries          int
	BackoffMin          time.Duration
	BackoffMax          time.Duration
	BreakerFailures     uint
	BreakerCapacity     uint
	BreakerDelay        time.Duration
	CancelRatePerSecond float64
	CancelBurst         int
}

// DefaultConfig mirrors pkg/http/client.go's retry/breaker shape (3
// retries, 100ms-2s backoff, breaker opens at 5 failures of the last 10,
// 10s open delay) and a 10/sec, burst-10 cancel-path limiter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          3,
		BackoffMin:          100 * time.Millisecond,
		BackoffMax:          2 * time.Second,
		BreakerFailures:     5,
		BreakerCapacity:     10,
		BreakerDelay:        10 * time.Second,
		CancelRatePerSecond: 10,
		CancelBurst:         10,
	}
}

// Adapter wraps a Target with the retry+circuit-breaker pipeline and
// feeds the emergency api-fault axis. It satisfies
// ordermgr.ExecutionAdapter, ordermgr.PositionActuator, and
// riskengine.EmergencyActions directly, so it can be handed to those
// constructors in place of the raw venue adapter.
type Adapter struct {
	target Target
	faults FaultSink
	logger *zap.Logger

	cancelLimiter *rate.Limiter

	boolPipeline failsafe.Executor[bool]
	intPipeline  failsafe.Executor[int]
	voidPipeline failsafe.Executor[struct{}]
}

// New builds an Adapter around target, reporting retry exhaustion and
// recovery to faults.
func New(target Target, faults FaultSink, cfg Config, logger *zap.Logger) *Adapter {
	boolRetry := retrypolicy.NewBuilder[bool]().
		HandleIf(func(_ bool, err error) bool { return err != nil }).
		WithBackoff(cfg.BackoffMin, cfg.BackoffMax).
		WithMaxRetries(cfg.MaxRetries).
		Build()
	boolBreaker := circuitbreaker.NewBuilder[bool]().
		HandleIf(func(_ bool, err error) bool { return err != nil }).
		WithFailureThresholdRatio(cfg.BreakerFailures, cfg.BreakerCapacity).
		WithDelay(cfg.BreakerDelay).
		Build()

	intRetry := retrypolicy.NewBuilder[int]().
		HandleIf(func(_ int, err error) bool { return err != nil }).
		WithBackoff(cfg.BackoffMin, cfg.BackoffMax).
		WithMaxRetries(cfg.MaxRetries).
		Build()
	intBreaker := circuitbreaker.NewBuilder[int]().
		HandleIf(func(_ int, err error) bool { return err != nil }).
		WithFailureThresholdRatio(cfg.BreakerFailures, cfg.BreakerCapacity).
		WithDelay(cfg.BreakerDelay).
		Build()

	voidRetry := retrypolicy.NewBuilder[struct{}]().
		HandleIf(func(_ struct{}, err error) bool { return err != nil }).
		WithBackoff(cfg.BackoffMin, cfg.BackoffMax).
		WithMaxRetries(cfg.MaxRetries).
		Build()
	voidBreaker := circuitbreaker.NewBuilder[struct{}]().
		HandleIf(func(_ struct{}, err error) bool { return err != nil }).
		WithFailureThresholdRatio(cfg.BreakerFailures, cfg.BreakerCapacity).
		WithDelay(cfg.BreakerDelay).
		Build()

	return &Adapter{
		target:        target,
		faults:        faults,
		logger:        logger,
		cancelLimiter: rate.NewLimiter(rate.Limit(cfg.CancelRatePerSecond), cfg.CancelBurst),
		boolPipeline:  failsafe.With[bool](boolRetry, boolBreaker),
		intPipeline:   failsafe.With[int](intRetry, intBreaker),
		voidPipeline:  failsafe.With[struct{}](voidRetry, voidBreaker),
	}
}

// recordOutcome feeds the emergency api-fault axis: a call that still
// errors once the retry policy and circuit breaker have had their say
// increments the consecutive-fault count; any success resets it.
func (a *Adapter) recordOutcome(err error) {
	if err != nil {
		a.faults.IncrementAPIFaultCount()
		a.logger.Warn("execadapter: call failed after retry/breaker", zap.Error(err))
		return
	}
	a.faults.ResetAPIFaultCount()
}

// CancelOrder waits for the cancel-path limiter, then runs the cancel
// through the retry+breaker pipeline.
func (a *Adapter) CancelOrder(orderID string) (bool, error) {
	if err := a.cancelLimiter.Wait(context.Background()); err != nil {
		return false, err
	}
	ok, err := a.boolPipeline.GetWithExecution(func(_ failsafe.Execution[bool]) (bool, error) {
		return a.target.CancelOrder(orderID)
	})
	a.recordOutcome(err)
	return ok, err
}

// CancelAllOrders waits for the cancel-path limiter, then runs the
// cancel-all through the retry+breaker pipeline.
func (a *Adapter) CancelAllOrders(symbol string) (int, error) {
	if err := a.cancelLimiter.Wait(context.Background()); err != nil {
		return 0, err
	}
	n, err := a.intPipeline.GetWithExecution(func(_ failsafe.Execution[int]) (int, error) {
		return a.target.CancelAllOrders(symbol)
	})
	a.recordOutcome(err)
	return n, err
}

// ReduceTo runs the position-reduction call through the retry+breaker
// pipeline.
func (a *Adapter) ReduceTo(targetRatio decimal.Decimal) error {
	_, err := a.voidPipeline.GetWithExecution(func(_ failsafe.Execution[struct{}]) (struct{}, error) {
		return struct{}{}, a.target.ReduceTo(targetRatio)
	})
	a.recordOutcome(err)
	return err
}

// ForcedReduce runs the forced reduction through the retry+breaker
// pipeline.
func (a *Adapter) ForcedReduce() error {
	_, err := a.voidPipeline.GetWithExecution(func(_ failsafe.Execution[struct{}]) (struct{}, error) {
		return struct{}{}, a.target.ForcedReduce()
	})
	a.recordOutcome(err)
	return err
}

// PrepareReanchorOrExit runs the structural-break recovery call through
// the retry+breaker pipeline.
func (a *Adapter) PrepareReanchorOrExit() error {
	_, err := a.voidPipeline.GetWithExecution(func(_ failsafe.Execution[struct{}]) (struct{}, error) {
		return struct{}{}, a.target.PrepareReanchorOrExit()
	})
	a.recordOutcome(err)
	return err
}

// KillSwitch bypasses the retry policy: an emergency kill must act once,
// immediately, rather than wait out a backoff schedule.
func (a *Adapter) KillSwitch() error {
	err := a.target.KillSwitch()
	a.recordOutcome(err)
	return err
}

// EmergencyExit bypasses the retry policy for the same reason as
// KillSwitch.
func (a *Adapter) EmergencyExit() error {
	err := a.target.EmergencyExit()
	a.recordOutcome(err)
	return err
}

// PlacerAdapter wraps a Placer with the same retry+breaker pipeline used
// for cancellation, and delegates its CancelOrder to a venue Adapter. It
// is kept distinct from Adapter for the same reason internal/dryrun
// splits VenueAdapter from OrderPlacer: the context-carrying
// PlaceOrder/CancelOrder pair would otherwise collide with Adapter's
// venue-level CancelOrder(orderID string) (bool, error).
type PlacerAdapter struct {
	placer Placer
	venue  *Adapter
}

// NewPlacer builds a PlacerAdapter that places through placer (itself run
// through venue's retry+breaker pipeline) and cancels by delegating to
// venue.
func NewPlacer(placer Placer, venue *Adapter) *PlacerAdapter {
	return &PlacerAdapter{placer: placer, venue: venue}
}

// PlaceOrder runs placement through the same retry+breaker pipeline and
// api-fault bookkeeping as the venue-level calls.
func (p *PlacerAdapter) PlaceOrder(ctx context.Context, order domain.GridOrder) error {
	_, err := p.venue.voidPipeline.GetWithExecution(func(_ failsafe.Execution[struct{}]) (struct{}, error) {
		return struct{}{}, p.placer.PlaceOrder(ctx, order)
	})
	p.venue.recordOutcome(err)
	return err
}

// CancelOrder delegates to the venue Adapter, discarding the "existed"
// bool the narrower PlacerCanceller interface doesn't carry.
func (p *PlacerAdapter) CancelOrder(ctx context.Context, clientOrderID string) error {
	_, err := p.venue.CancelOrder(clientOrderID)
	return err
}
