/*

This file contains the basket engine: the single writer that turns mint, swap and redemption
requests into committed basket states. Each operation validates against a snapshot, moves
tokens through the cache manager, and commits the new basket only when every external step
succeeded. Failed operations run their compensations in reverse order.

*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/cache"
	"github.com/elys-network/basket-engine/internal/ledger"
	"github.com/elys-network/basket-engine/internal/logger"
	"github.com/elys-network/basket-engine/internal/metrics"
	"github.com/elys-network/basket-engine/internal/token"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/validator"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Error definitions for zero-tolerance error handling
var (
	ErrValidation    = errors.New("validation failed")
	ErrArithmetic    = errors.New("arithmetic overflow")
	ErrInvalidConfig = errors.New("engine configuration is invalid")
	ErrCompensation  = errors.New("compensation failed")
)

// Entry-point rejection reasons.
const (
	ReasonZeroQty           = "Qty==0"
	ReasonBelowMinOutput    = "Output qty < minimum qty"
	ReasonMaxInput          = "Max input exceeded"
	ReasonInvalidPair       = "Invalid pair"
	ReasonInvalidAsset      = "Invalid asset"
	ReasonDuplicateAsset    = "bAsset already exists"
	ReasonMaxBassets        = "Max bassets reached"
	ReasonCacheSize         = "Must be <= 20%"
	ReasonMinWeight         = "Min weight oob"
	ReasonMaxWeight         = "Max weight oob"
	ReasonSoftLimits        = "Soft limits oob"
	ReasonPenalty           = "Penalty oob"
	ReasonSwapRate          = "Swap rate oob"
	ReasonRedemptionRate    = "Redemption rate oob"
	ReasonUnknownIntegrator = "Integrator not registered"
	ReasonNothingToCollect  = "Nothing to collect"
	ReasonNoSavings         = "No savings recipient"
	ReasonDecimals          = "Token decimals must be <= 18"
	ReasonAssetState        = "Asset state unchanged"
	ReasonInvalidStatus     = "Invalid status"
)

// MaxBassets is the largest number of assets a basket may hold.
const MaxBassets = 10

// RejectionError is returned when an operation is not admissible. It matches ErrValidation.
type RejectionError struct {
	Kind   types.OperationKind
	Reason string
	cause  error
}

func (e *RejectionError) Error() string {
	if e.Kind == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s rejected: %s", strings.ToLower(string(e.Kind)), e.Reason)
}

// Unwrap exposes ErrValidation and the underlying cause, if any.
func (e *RejectionError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrValidation, e.cause}
	}
	return []error{ErrValidation}
}

func reject(kind types.OperationKind, reason string) error {
	return &RejectionError{Kind: kind, Reason: reason}
}

// Reason returns the rejection reason carried by err, or "" when err is not a rejection.
func Reason(err error) string {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}

// Recorder persists receipts and parameter history. Failures are logged and never undo a commit.
type Recorder interface {
	SaveReceipt(ctx context.Context, r types.Receipt) (int64, error)
	SaveParameters(ctx context.Context, p types.BasketParameters, reason string) error
}

// Config holds the dependencies for creating a new Engine.
type Config struct {
	Ledger           *ledger.Ledger
	Cache            *cache.Manager
	Tokens           token.Ledger
	Recorder         Recorder           // optional
	Metrics          *metrics.Collector // optional
	SavingsRecipient string             // receives collected interest
}

// Engine is the basket's single writer.
type Engine struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	cache    *cache.Manager
	tokens   token.Ledger
	recorder Recorder
	metrics  *metrics.Collector
	savings  string
	pool     string
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates an engine over an existing ledger.
func New(cfg Config) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	e := &Engine{
		ledger:   cfg.Ledger,
		cache:    cfg.Cache,
		tokens:   cfg.Tokens,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		savings:  cfg.SavingsRecipient,
		pool:     cfg.Cache.Pool(),
		logger:   logger.GetForComponent("basket_engine"),
		now:      time.Now,
	}
	e.metrics.RecordBasket(e.ledger.Snapshot())

	e.logger.Info().
		Str("pool", e.pool).
		Str("poolDenom", e.tokens.PoolDenom()).
		Uint64("sequence", e.ledger.Sequence()).
		Msg("Basket engine created")
	return e, nil
}

// validateEngineConfig validates the engine configuration
func validateEngineConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return errors.Join(ErrInvalidConfig, errors.New("ledger cannot be nil"))
	}
	if cfg.Cache == nil {
		return errors.Join(ErrInvalidConfig, errors.New("cache manager cannot be nil"))
	}
	if cfg.Tokens == nil {
		return errors.Join(ErrInvalidConfig, errors.New("token ledger cannot be nil"))
	}
	if cfg.Cache.Pool() == "" {
		return errors.Join(ErrInvalidConfig, errors.New("pool account cannot be empty"))
	}
	return nil
}

// operation carries one mutation from validation to commit.
type operation struct {
	kind    types.OperationKind
	started time.Time
	undo    []func(ctx context.Context) error
	receipt types.Receipt
}

// onFailure registers a compensation to run if the operation does not commit.
func (o *operation) onFailure(f func(ctx context.Context) error) {
	o.undo = append(o.undo, f)
}

func (o *operation) addCacheMove(action types.CacheAction) {
	o.receipt.CacheMoves = append(o.receipt.CacheMoves, action)
}

// execute runs body against a fresh snapshot under the writer lock and commits the result.
// Panics raised by overflowing arithmetic are reported as ErrArithmetic.
func (e *Engine) execute(ctx context.Context, kind types.OperationKind, sender, recipient string, body func(o *operation, next *types.Basket) error) (receipt types.Receipt, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := &operation{
		kind:    kind,
		started: e.now(),
		receipt: types.Receipt{
			OperationID: uuid.New().String(),
			Kind:        kind,
			Sender:      sender,
			Recipient:   recipient,
			MassetDelta: sdkmath.ZeroInt(),
			Fee:         sdkmath.ZeroInt(),
		},
	}
	log := e.logger.With().Str("operation_id", o.receipt.OperationID).Str("kind", string(kind)).Logger()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrArithmetic, r)
		}
		if err == nil {
			return
		}
		if uerr := e.compensate(ctx, o); uerr != nil {
			log.Error().Err(uerr).Msg("Compensation incomplete, manual reconciliation required")
			err = errors.Join(err, uerr)
		}
		if reason := Reason(err); reason != "" {
			e.metrics.RecordRejection(kind, reason)
			log.Debug().Str("reason", reason).Msg("Operation rejected")
		} else {
			log.Error().Err(err).Msg("Operation failed")
		}
		e.metrics.RecordOperation(kind, e.now().Sub(o.started), err)
	}()

	next := e.ledger.Snapshot()
	if err = body(o, next); err != nil {
		return types.Receipt{}, err
	}
	if report, cerr := ledger.CheckConservation(next); cerr != nil {
		log.Error().
			Str("vaultValue", report.VaultValue.String()).
			Str("difference", report.Difference.String()).
			Msg("Basket value drifted from supply plus surplus, refusing to commit")
		return types.Receipt{}, cerr
	}

	seq, err := e.ledger.Commit(ctx, next)
	if err != nil {
		return types.Receipt{}, err
	}

	o.receipt.Sequence = seq
	o.receipt.Timestamp = e.now()
	o.receipt.Duration = o.receipt.Timestamp.Sub(o.started)
	e.record(ctx, o.receipt)

	e.metrics.RecordOperation(kind, o.receipt.Duration, nil)
	e.metrics.RecordFee(kind, o.receipt.Fee)
	for _, action := range o.receipt.CacheMoves {
		e.metrics.RecordCacheAction(action)
	}
	e.metrics.RecordBasket(next)

	log.Info().
		Uint64("sequence", seq).
		Str("sender", sender).
		Str("recipient", recipient).
		Str("massetDelta", o.receipt.MassetDelta.String()).
		Str("fee", o.receipt.Fee.String()).
		Dur("duration", o.receipt.Duration).
		Msg("Operation committed")
	return o.receipt, nil
}

// compensate runs the registered compensations in reverse order.
func (e *Engine) compensate(ctx context.Context, o *operation) error {
	var errs []error
	for i := len(o.undo) - 1; i >= 0; i-- {
		if err := o.undo[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrCompensation}, errs...)...)
}

func (e *Engine) record(ctx context.Context, r types.Receipt) {
	if e.recorder == nil {
		return
	}
	if _, err := e.recorder.SaveReceipt(ctx, r); err != nil {
		e.metrics.RecordCheckpointFailure()
		e.logger.Error().Err(err).Str("operation_id", r.OperationID).Msg("Failed to record receipt")
	}
}

// pullIn transfers amount of asset from sender to the pool and registers its refund.
func (e *Engine) pullIn(ctx context.Context, o *operation, sender, asset string, amount sdkmath.Int) (sdkmath.Int, error) {
	received, err := e.tokens.TransferIn(ctx, sender, e.pool, sdk.NewCoin(asset, amount))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("transfer of %s%s from %s failed: %w", amount, asset, sender, err)
	}
	o.onFailure(func(ctx context.Context) error {
		_, err := e.tokens.TransferOut(ctx, e.pool, sender, sdk.NewCoin(asset, received))
		return err
	})
	return received, nil
}

// deposit settles received funds with the cache manager and registers the unwind.
func (e *Engine) deposit(ctx context.Context, o *operation, b types.Basset, received, maxCache sdkmath.Int) (sdkmath.Int, error) {
	credited, action, err := e.cache.Deposit(ctx, b, received, maxCache)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	o.onFailure(func(ctx context.Context) error {
		return e.cache.Unwind(ctx, b, action)
	})
	o.addCacheMove(action)
	return credited, nil
}

// burn destroys pool tokens held by from and registers their re-issue.
func (e *Engine) burn(ctx context.Context, o *operation, from string, amount sdkmath.Int) error {
	if err := e.tokens.BurnPoolToken(ctx, from, amount); err != nil {
		return fmt.Errorf("burn of %s from %s failed: %w", amount, from, err)
	}
	o.onFailure(func(ctx context.Context) error {
		return e.tokens.MintPoolToken(ctx, from, amount)
	})
	return nil
}

// mint issues pool tokens to recipient and registers their burn.
func (e *Engine) mint(ctx context.Context, o *operation, to string, amount sdkmath.Int) error {
	if err := e.tokens.MintPoolToken(ctx, to, amount); err != nil {
		return fmt.Errorf("mint of %s to %s failed: %w", amount, to, err)
	}
	o.onFailure(func(ctx context.Context) error {
		return e.tokens.BurnPoolToken(ctx, to, amount)
	})
	return nil
}

// resolve returns the index of asset in next or an "Invalid asset" rejection.
func resolve(kind types.OperationKind, next *types.Basket, asset string) (int, error) {
	i := next.Index(asset)
	if i < 0 {
		return -1, &RejectionError{Kind: kind, Reason: ReasonInvalidAsset, cause: fmt.Errorf("%w: %s", ledger.ErrInvalidAsset, asset)}
	}
	return i, nil
}

// resolveAll resolves a list of distinct assets.
func resolveAll(kind types.OperationKind, next *types.Basket, assets []string) ([]int, error) {
	idx := make([]int, len(assets))
	seen := make(map[string]bool, len(assets))
	for k, a := range assets {
		if seen[a] {
			return nil, reject(kind, ReasonDuplicateAsset)
		}
		seen[a] = true
		i, err := resolve(kind, next, a)
		if err != nil {
			return nil, err
		}
		idx[k] = i
	}
	return idx, nil
}

func isPositive(x sdkmath.Int) bool {
	return !x.IsNil() && x.IsPositive()
}

func orZero(x sdkmath.Int) sdkmath.Int {
	if x.IsNil() {
		return sdkmath.ZeroInt()
	}
	return x
}

func params(b *types.Basket) validator.Params {
	return validator.ParamsFromBasket(b)
}
