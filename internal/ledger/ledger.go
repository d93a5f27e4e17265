// Package ledger implements a FIFO cost-basis ledger over a storage.LotStore.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/idhash"
	"chain-tax-lab/internal/observability"
	"chain-tax-lab/internal/pricing"
	"chain-tax-lab/internal/storage"
)

const (
	msPerDay = 86_400_000

	// DefaultHoldingThresholdDays is the minimum holding period of a long-term disposal.
	DefaultHoldingThresholdDays = 365

	// basisScale is the number of fractional digits kept when splitting a lot's basis.
	basisScale = 18

	// maxLotSeq bounds the sequence numbers tried for lots acquired by the same transaction.
	maxLotSeq = 64
)

// Options configures a Ledger.
type Options struct {
	Store                storage.LotStore    // required, owned by the caller
	Prices               pricing.PriceLookup // required by UnrealizedPositions only
	HoldingThresholdDays int                 // DefaultHoldingThresholdDays if zero
	Logger               *zerolog.Logger     // defaults to the global logger
}

// Ledger tracks cost lots and realizes gains FIFO.
// Lot mutations for one (address, token) are serialized; different pairs proceed in parallel.
type Ledger struct {
	store     storage.LotStore
	prices    pricing.PriceLookup
	threshold int
	locks     *keyedMutex
	logger    zerolog.Logger
}

// New creates a ledger over opts.Store.
func New(opts Options) (*Ledger, error) {
	if opts.Store == nil {
		return nil, errors.New("ledger: lot store is required")
	}
	threshold := opts.HoldingThresholdDays
	if threshold == 0 {
		threshold = DefaultHoldingThresholdDays
	}
	if threshold < 0 {
		return nil, fmt.Errorf("ledger: holding threshold %d must be positive", threshold)
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Ledger{
		store:     opts.Store,
		prices:    opts.Prices,
		threshold: threshold,
		locks:     newKeyedMutex(),
		logger:    logger.With().Str("component", "ledger").Logger(),
	}, nil
}

// AcquireRequest describes a new lot.
type AcquireRequest struct {
	Address      string
	Token        string
	Symbol       string
	Decimals     int
	Timestamp    int64 // ms
	TxHash       string
	Amount       *big.Int        // raw amount, > 0
	CostBasisUSD decimal.Decimal // cost of the whole amount, >= 0
}

// DisposeRequest describes a disposal of Amount of Token.
type DisposeRequest struct {
	Address          string
	Token            string
	Timestamp        int64 // ms
	TxHash           string
	Amount           *big.Int // raw amount, > 0
	GrossProceedsUSD decimal.Decimal
	GasFeeUSD        decimal.Decimal
}

// Acquire appends a lot with remaining = original = req.Amount.
func (l *Ledger) Acquire(ctx context.Context, req AcquireRequest) (*domain.CostLot, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("acquire %s: %w: amount must be positive", req.Token, ErrInvalidAmount)
	}
	if req.CostBasisUSD.IsNegative() {
		return nil, fmt.Errorf("acquire %s: %w: negative cost basis", req.Token, ErrInvalidAmount)
	}
	if req.Address == "" || req.Token == "" {
		return nil, fmt.Errorf("acquire: %w: address and token are required", ErrInvalidAmount)
	}

	address, token := normalize(req.Address), normalize(req.Token)
	unlock := l.locks.Lock(lockKey(address, token))
	defer unlock()

	lot := &domain.CostLot{
		Address:         address,
		Token:           token,
		Symbol:          req.Symbol,
		Decimals:        req.Decimals,
		AcquiredAt:      req.Timestamp,
		AcquiredTx:      req.TxHash,
		OriginalAmount:  new(big.Int).Set(req.Amount),
		RemainingAmount: new(big.Int).Set(req.Amount),
		CostBasisUSD:    req.CostBasisUSD,
	}

	// A transaction may acquire the same token more than once
	for seq := 0; seq < maxLotSeq; seq++ {
		lot.LotID = idhash.ComputeLotID(address, token, req.TxHash, req.Timestamp, seq)
		err := l.store.Insert(ctx, lot)
		if err == nil {
			observability.RecordLotAcquired()
			return lot.Clone(), nil
		}
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("insert lot: %w", err)
		}
	}
	return nil, fmt.Errorf("insert lot: %w: too many lots for tx %s", ErrLedgerInconsistent, req.TxHash)
}

// Dispose consumes open lots of (address, token) oldest first.
//
// Each lot contributes costBasis × taken / original; a fully consumed lot contributes
// its exact basis. A shortfall is treated as zero-cost and flagged as underflow.
// The consumption plan is validated in full and applied atomically, so either every
// lot decrement lands or none does.
func (l *Ledger) Dispose(ctx context.Context, req DisposeRequest) (*domain.DisposalResult, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("dispose %s: %w: amount must be positive", req.Token, ErrInvalidAmount)
	}
	if req.GasFeeUSD.IsNegative() || req.GrossProceedsUSD.IsNegative() {
		return nil, fmt.Errorf("dispose %s: %w: negative proceeds or gas", req.Token, ErrInvalidAmount)
	}

	address, token := normalize(req.Address), normalize(req.Token)
	unlock := l.locks.Lock(lockKey(address, token))
	defer unlock()

	lots, err := l.store.GetOpenLots(ctx, address, token)
	if err != nil {
		return nil, fmt.Errorf("get open lots: %w", err)
	}

	remainder := new(big.Int).Set(req.Amount)
	covered := new(big.Int)
	weighted := new(big.Int)
	costBasis := decimal.Zero
	var consumptions []domain.LotConsumption

	for _, lot := range lots {
		if remainder.Sign() == 0 {
			break
		}
		if lot.AcquiredAt > req.Timestamp {
			break
		}
		if err := checkLot(lot); err != nil {
			return nil, err
		}

		take := lot.RemainingAmount
		if take.Cmp(remainder) > 0 {
			take = remainder
		}
		take = new(big.Int).Set(take)

		costBasis = costBasis.Add(proportionalBasis(lot.CostBasisUSD, take, lot.OriginalAmount))

		days := holdingDays(lot.AcquiredAt, req.Timestamp)
		weighted.Add(weighted, new(big.Int).Mul(big.NewInt(days), take))
		covered.Add(covered, take)
		remainder.Sub(remainder, take)

		consumptions = append(consumptions, domain.LotConsumption{
			LotID:     lot.LotID,
			TxHash:    req.TxHash,
			Timestamp: req.Timestamp,
			Amount:    take,
		})
	}

	if len(consumptions) > 0 {
		if err := l.store.ApplyConsumptions(ctx, consumptions); err != nil {
			if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidInput) {
				return nil, fmt.Errorf("apply consumptions: %w: %w", ErrLedgerInconsistent, err)
			}
			return nil, fmt.Errorf("apply consumptions: %w", err)
		}
	}

	days := 0
	if covered.Sign() > 0 {
		days = int(new(big.Int).Quo(weighted, covered).Int64())
	}

	proceeds := req.GrossProceedsUSD.Sub(req.GasFeeUSD)
	result := &domain.DisposalResult{
		CostBasisUSD:      costBasis,
		ProceedsUSD:       proceeds,
		RealizedGainUSD:   proceeds.Sub(costBasis),
		HoldingPeriodDays: days,
		LongTerm:          days >= l.threshold,
		CoveredAmount:     covered,
		UncoveredAmount:   remainder,
		Underflow:         remainder.Sign() > 0,
		Consumptions:      consumptions,
	}

	if result.Underflow {
		l.logger.Warn().
			Str("address", address).
			Str("token", token).
			Str("tx", req.TxHash).
			Str("uncovered", remainder.String()).
			Msg("disposal exceeds tracked lots, shortfall treated as zero cost")
	}
	observability.RecordDisposal(result.LongTerm, result.Underflow)

	return result, nil
}

// Lots returns every lot of address, open or disposed, in FIFO order.
func (l *Ledger) Lots(ctx context.Context, address string) ([]*domain.CostLot, error) {
	lots, err := l.store.GetByAddress(ctx, normalize(address))
	if err != nil {
		return nil, fmt.Errorf("get lots: %w", err)
	}
	return lots, nil
}

// checkLot validates 0 < remaining <= original.
func checkLot(lot *domain.CostLot) error {
	if lot.OriginalAmount == nil || lot.RemainingAmount == nil ||
		lot.OriginalAmount.Sign() <= 0 || lot.RemainingAmount.Sign() <= 0 ||
		lot.RemainingAmount.Cmp(lot.OriginalAmount) > 0 {
		return fmt.Errorf("lot %s: %w: remaining %v of original %v",
			lot.LotID, ErrLedgerInconsistent, lot.RemainingAmount, lot.OriginalAmount)
	}
	return nil
}

// proportionalBasis returns basis × part / whole, multiplying first.
func proportionalBasis(basis decimal.Decimal, part, whole *big.Int) decimal.Decimal {
	if part.Cmp(whole) == 0 {
		return basis
	}
	num := basis.Mul(decimal.NewFromBigInt(part, 0))
	return num.DivRound(decimal.NewFromBigInt(whole, 0), basisScale)
}

// holdingDays returns whole days between two ms timestamps, floored at zero.
func holdingDays(acquiredAt, disposedAt int64) int64 {
	if disposedAt <= acquiredAt {
		return 0
	}
	return (disposedAt - acquiredAt) / msPerDay
}

func normalize(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strings.ToLower(s)
	}
	return s
}

func lockKey(address, token string) string {
	return address + "|" + token
}
