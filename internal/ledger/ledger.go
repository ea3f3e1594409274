/*
This file contains the basket ledger: the single owner of the basket aggregate. Readers get deep
copies, the writer commits a whole new aggregate, so nobody ever observes a half-applied operation.
*/

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/elys-network/basket-engine/internal/logger"
	"github.com/elys-network/basket-engine/internal/types"
	"github.com/elys-network/basket-engine/internal/utils"
	"github.com/rs/zerolog"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidAsset   = errors.New("Invalid asset")
	ErrDuplicateAsset = errors.New("bAsset already exists")
	ErrInvalidBasket  = errors.New("basket is invalid")
	ErrStaleSnapshot  = errors.New("snapshot is stale")
	ErrConservation   = errors.New("basket value is not conserved")
)

// Persister checkpoints committed baskets.
type Persister interface {
	SaveBasket(ctx context.Context, b *types.Basket) error
}

// Ledger owns the basket aggregate.
type Ledger struct {
	mu        sync.RWMutex
	basket    *types.Basket
	persister Persister
	log       zerolog.Logger
}

// New validates the initial basket and takes ownership of a copy of it. persister may be nil.
func New(initial *types.Basket, persister Persister) (*Ledger, error) {
	if initial == nil {
		return nil, errors.Join(ErrInvalidBasket, errors.New("basket cannot be nil"))
	}
	if err := ValidateBasket(initial); err != nil {
		return nil, err
	}
	return &Ledger{
		basket:    initial.Clone(),
		persister: persister,
		log:       logger.GetForComponent("basket_ledger"),
	}, nil
}

// ValidateBasket checks structural invariants: unique valid denoms, positive ratios, and
// non-negative balances.
func ValidateBasket(b *types.Basket) error {
	if b.TotalSupply.IsNil() || b.TotalSupply.IsNegative() {
		return errors.Join(ErrInvalidBasket, errors.New("total supply must be non-negative"))
	}
	if b.Surplus.IsNil() || b.Surplus.IsNegative() {
		return errors.Join(ErrInvalidBasket, errors.New("surplus must be non-negative"))
	}
	seen := make(map[string]bool, len(b.Bassets))
	for i, ba := range b.Bassets {
		if err := sdk.ValidateDenom(ba.Address); err != nil {
			return errors.Join(ErrInvalidBasket, fmt.Errorf("bAsset %d: %w", i, err))
		}
		if seen[ba.Address] {
			return errors.Join(ErrDuplicateAsset, fmt.Errorf("bAsset %s listed twice", ba.Address))
		}
		seen[ba.Address] = true
		if err := utils.ValidateRatio(ba.Ratio); err != nil {
			return errors.Join(ErrInvalidBasket, fmt.Errorf("bAsset %s: %w", ba.Address, err))
		}
		if ba.VaultBalance.IsNil() || ba.VaultBalance.IsNegative() {
			return errors.Join(ErrInvalidBasket, fmt.Errorf("bAsset %s has invalid vault balance", ba.Address))
		}
	}
	return nil
}

// Snapshot returns a deep copy of the committed basket.
func (l *Ledger) Snapshot() *types.Basket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.basket.Clone()
}

// Sequence returns the number of committed operations.
func (l *Ledger) Sequence() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.basket.Sequence
}

// Commit replaces the basket with next, which must be derived from the current snapshot. The
// ledger takes ownership of next. A failed checkpoint is logged and does not undo the commit.
func (l *Ledger) Commit(ctx context.Context, next *types.Basket) (uint64, error) {
	if err := ValidateBasket(next); err != nil {
		return 0, err
	}

	l.mu.Lock()
	if next.Sequence != l.basket.Sequence {
		current := l.basket.Sequence
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: built on %d, ledger at %d", ErrStaleSnapshot, next.Sequence, current)
	}
	next.Sequence++
	l.basket = next
	checkpoint := next.Clone()
	l.mu.Unlock()

	if l.persister != nil {
		if err := l.persister.SaveBasket(ctx, checkpoint); err != nil {
			l.log.Error().Err(err).Uint64("sequence", checkpoint.Sequence).Msg("Failed to checkpoint basket")
		}
	}
	return checkpoint.Sequence, nil
}

// Index returns the position of address in the basket.
func (l *Ledger) Index(address string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := l.basket.Index(address)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", ErrInvalidAsset, address)
	}
	return i, nil
}

// GetBasset returns a copy of one asset.
func (l *Ledger) GetBasset(address string) (types.Basset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := l.basket.Index(address)
	if i < 0 {
		return types.Basset{}, fmt.Errorf("%w: %s", ErrInvalidAsset, address)
	}
	return l.basket.Bassets[i].Clone(), nil
}

// GetBassets returns a copy of every asset in basket order.
func (l *Ledger) GetBassets() []types.Basset {
	return l.Snapshot().Bassets
}

// ConservationReport compares the normalized vault total with the pool token claims on it.
type ConservationReport struct {
	VaultValue  sdkmath.Int `json:"vault_value"`
	TotalSupply sdkmath.Int `json:"total_supply"`
	Surplus     sdkmath.Int `json:"surplus"`
	Difference  sdkmath.Int `json:"difference"` // vault value minus supply and surplus
}

// CheckConservation returns ErrConservation when the normalized vault balances differ from
// TotalSupply + Surplus.
func CheckConservation(b *types.Basket) (ConservationReport, error) {
	sum := sdkmath.ZeroInt()
	for _, ba := range b.Bassets {
		sum = sum.Add(utils.ToNormalized(ba.VaultBalance, ba.Ratio))
	}
	report := ConservationReport{
		VaultValue:  sum,
		TotalSupply: b.TotalSupply,
		Surplus:     b.Surplus,
		Difference:  sum.Sub(b.TotalValue()),
	}
	if !report.Difference.IsZero() {
		return report, fmt.Errorf("%w: vault value %s, supply+surplus %s", ErrConservation, sum, b.TotalValue())
	}
	return report, nil
}

// CheckConservation runs the check against the committed basket.
func (l *Ledger) CheckConservation() (ConservationReport, error) {
	return CheckConservation(l.Snapshot())
}
