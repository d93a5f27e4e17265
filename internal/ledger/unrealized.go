package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/tokens"
)

// LotPosition is the unrealized state of one lot at a point in time.
type LotPosition struct {
	LotID           string
	Token           string
	AcquiredAt      int64
	RemainingAmount *big.Int        // raw amount held as of the view time
	CostBasisUSD    decimal.Decimal // basis of RemainingAmount
	MarketValueUSD  decimal.Decimal
	UnrealizedUSD   decimal.Decimal
}

// UnrealizedReport is the result of UnrealizedPositions.
type UnrealizedReport struct {
	AsOf               int64
	Positions          []domain.HoldingView // per token, ordered by token
	Lots               []LotPosition        // per lot, FIFO order
	Skipped            []string             // tokens without a resolvable price
	TotalUnrealizedUSD decimal.Decimal
}

// UnrealizedPositions values the lots address held at asOf.
//
// A lot counts when it was acquired at or before asOf and was not fully disposed by then.
// Its remaining amount is reconstructed as of asOf from the consumption history, so the
// same ledger can answer both "now" and a past period end. Tokens whose price cannot be
// resolved are excluded and listed in Skipped.
func (l *Ledger) UnrealizedPositions(ctx context.Context, address string, asOf int64, network string) (*UnrealizedReport, error) {
	if l.prices == nil {
		return nil, ErrNoPriceLookup
	}
	address = normalize(address)

	lots, err := l.store.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get lots: %w", err)
	}
	consumptions, err := l.store.GetConsumptions(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("get consumptions: %w", err)
	}

	// Amounts consumed after asOf are still held at asOf
	consumedLater := make(map[string]*big.Int)
	for _, c := range consumptions {
		if c.Timestamp <= asOf {
			continue
		}
		sum, ok := consumedLater[c.LotID]
		if !ok {
			sum = new(big.Int)
			consumedLater[c.LotID] = sum
		}
		sum.Add(sum, c.Amount)
	}

	type held struct {
		lot       *domain.CostLot
		remaining *big.Int
	}
	byToken := make(map[string][]held)
	var order []string
	for _, lot := range lots {
		if lot.AcquiredAt > asOf {
			continue
		}
		remaining := new(big.Int).Set(lot.RemainingAmount)
		if later, ok := consumedLater[lot.LotID]; ok {
			remaining.Add(remaining, later)
		}
		if remaining.Sign() <= 0 {
			continue
		}
		if remaining.Cmp(lot.OriginalAmount) > 0 {
			return nil, fmt.Errorf("lot %s: %w: reconstructed remaining %s exceeds original %s",
				lot.LotID, ErrLedgerInconsistent, remaining, lot.OriginalAmount)
		}
		if _, ok := byToken[lot.Token]; !ok {
			order = append(order, lot.Token)
		}
		byToken[lot.Token] = append(byToken[lot.Token], held{lot: lot, remaining: remaining})
	}
	sort.Strings(order)

	report := &UnrealizedReport{AsOf: asOf, TotalUnrealizedUSD: decimal.Zero}
	for _, token := range order {
		price, source, err := l.prices.Resolve(ctx, token, asOf, network)
		if err != nil || !price.IsPositive() {
			l.logger.Debug().Err(err).Str("token", token).Int64("as_of", asOf).Msg("token skipped from unrealized positions")
			report.Skipped = append(report.Skipped, token)
			continue
		}

		first := byToken[token][0].lot
		view := domain.HoldingView{
			Token:          token,
			Symbol:         first.Symbol,
			Amount:         new(big.Int),
			CostBasisUSD:   decimal.Zero,
			PriceUSD:       price,
			PriceSource:    source,
			MarketValueUSD: decimal.Zero,
			UnrealizedUSD:  decimal.Zero,
			OldestAcquired: first.AcquiredAt,
		}
		for _, h := range byToken[token] {
			basis := proportionalBasis(h.lot.CostBasisUSD, h.remaining, h.lot.OriginalAmount)
			value := tokens.ValueUSD(h.remaining, h.lot.Decimals, price)
			gain := value.Sub(basis)

			report.Lots = append(report.Lots, LotPosition{
				LotID:           h.lot.LotID,
				Token:           token,
				AcquiredAt:      h.lot.AcquiredAt,
				RemainingAmount: h.remaining,
				CostBasisUSD:    basis,
				MarketValueUSD:  value,
				UnrealizedUSD:   gain,
			})

			view.Amount.Add(view.Amount, h.remaining)
			view.CostBasisUSD = view.CostBasisUSD.Add(basis)
			view.MarketValueUSD = view.MarketValueUSD.Add(value)
			view.UnrealizedUSD = view.UnrealizedUSD.Add(gain)
			view.OpenLots++
			if h.lot.AcquiredAt < view.OldestAcquired {
				view.OldestAcquired = h.lot.AcquiredAt
			}
		}

		report.Positions = append(report.Positions, view)
		report.TotalUnrealizedUSD = report.TotalUnrealizedUSD.Add(view.UnrealizedUSD)
	}

	return report, nil
}
