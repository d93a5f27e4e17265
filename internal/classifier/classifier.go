// Package classifier turns raw transactions into tax-categorized events for one address.
package classifier

import (
	"context"
	"math/big"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chain-tax-lab/internal/domain"
	"chain-tax-lab/internal/idhash"
	"chain-tax-lab/internal/observability"
	"chain-tax-lab/internal/tokens"
)

// Options configures a Classifier.
type Options struct {
	Registry *Registry        // DefaultProtocols() if nil
	Tokens   *tokens.Registry // token symbols and decimals, required
	Logger   *zerolog.Logger  // defaults to the global logger
}

// Classifier classifies transactions. It holds no per-call state and is safe for concurrent use.
type Classifier struct {
	registry *Registry
	tokens   *tokens.Registry
	logger   zerolog.Logger
}

// New creates a classifier.
func New(opts Options) *Classifier {
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry(DefaultProtocols())
	}
	tr := opts.Tokens
	if tr == nil {
		tr = tokens.NewRegistry(tokens.Options{})
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Classifier{
		registry: reg,
		tokens:   tr,
		logger:   logger.With().Str("component", "classifier").Logger(),
	}
}

// Classify returns the events tx produces for user, in order.
//
// Resolution order:
//  1. a known protocol contract and selector decide the category;
//  2. the user's ERC-20 transfer legs decide it (pairs are disposals, unpaired
//     or minted inflows are airdrops, unpaired outflows are transfers), or, when the
//     user only sent the transaction, the token flow through it decides it;
//  3. a bare native value transfer is a transfer;
//  4. anything else the user paid gas for is a deduction.
//
// Every event carries the transaction's gas fee when user is the sender; only the
// first is GasPrimary.
func (c *Classifier) Classify(ctx context.Context, tx *domain.RawTransaction, user string) []*domain.ClassifiedEvent {
	user = strings.ToLower(user)
	b := &builder{c: c, ctx: ctx, tx: tx, user: user}

	switch {
	case !tx.Status:
		b.deduction("failed transaction")
	default:
		c.classifySuccessful(b)
	}

	cats := make([]string, len(b.events))
	for i, e := range b.events {
		cats[i] = e.Category().String()
	}
	observability.RecordClassified(cats...)
	return b.finish()
}

func (c *Classifier) classifySuccessful(b *builder) {
	tx := b.tx
	transfers := parseTransfers(tx.Logs)

	var ins, outs []transfer
	involved := false
	for _, t := range transfers {
		if t.From == b.user || t.To == b.user {
			involved = true
		}
		switch {
		case t.From == b.user && t.To == b.user:
			// self transfer moves nothing
		case t.To == b.user:
			ins = append(ins, t)
		case t.From == b.user:
			outs = append(outs, t)
		}
	}

	// 1. Known protocol
	if entry, kind, ok := c.registry.Match(tx.Network, tx.To, tx.MethodSelector); ok {
		category, _ := kind.Category()
		ev := b.add(category)
		ev.Protocol = entry.Name
		ev.Note = string(kind)
		if len(ins) > 0 {
			last := ins[len(ins)-1]
			ev.TokenIn = b.leg(last.Token, last.Amount)
		}
		if len(outs) > 0 {
			ev.TokenOut = b.leg(outs[0].Token, outs[0].Amount)
		} else if b.sentNative() {
			ev.TokenOut = b.leg(domain.NativeToken, tx.NativeValue())
		}
		return
	}

	// 2a. Direct transfer legs
	if len(ins) > 0 || len(outs) > 0 {
		c.classifyLegs(b, ins, outs)
		return
	}

	// 2b. User sent the transaction but is absent from its transfers: proxy or aggregator
	if b.isSender() && len(transfers) > 0 && !involved {
		groups := groupByToken(transfers)
		if len(groups) >= 2 {
			first := groups[0].Transfers[0]
			lastGroup := groups[len(groups)-1].Transfers
			last := lastGroup[len(lastGroup)-1]

			ev := b.add(domain.CategoryDisposal)
			ev.TokenOut = b.leg(first.Token, first.Amount)
			ev.TokenIn = b.leg(last.Token, last.Amount)
			ev.Note = "swap via proxy"
			return
		}
		first := groups[0].Transfers[0]
		ev := b.add(domain.CategoryTransfer)
		ev.TokenOut = b.leg(first.Token, first.Amount)
		ev.Note = "interaction via proxy"
		return
	}

	// 3. Bare native transfer
	if tx.NativeValue().Sign() > 0 {
		switch {
		case b.isSender():
			ev := b.add(domain.CategoryTransfer)
			ev.TokenOut = b.leg(domain.NativeToken, tx.NativeValue())
			return
		case strings.EqualFold(tx.To, b.user):
			ev := b.add(domain.CategoryTransfer)
			ev.TokenIn = b.leg(domain.NativeToken, tx.NativeValue())
			return
		}
	}

	// 4. Gas only
	b.deduction("")
}

// classifyLegs pairs the user's inflows and outflows within one transaction.
func (c *Classifier) classifyLegs(b *builder, ins, outs []transfer) {
	var regular []transfer
	for _, t := range ins {
		if t.isMint() {
			ev := b.add(domain.CategoryAirdrop)
			ev.TokenIn = b.leg(t.Token, t.Amount)
			ev.Note = "minted"
			continue
		}
		regular = append(regular, t)
	}

	// Native value paid alongside token inflows is the outflow of a swap
	nativeOut := len(outs) == 0 && len(regular) > 0 && b.sentNative()

	pairs := min(len(regular), len(outs))
	if nativeOut {
		pairs = 1
	}
	for i := 0; i < pairs; i++ {
		ev := b.add(domain.CategoryDisposal)
		if nativeOut {
			ev.TokenOut = b.leg(domain.NativeToken, b.tx.NativeValue())
		} else {
			ev.TokenOut = b.leg(outs[i].Token, outs[i].Amount)
		}
		ev.TokenIn = b.leg(regular[i].Token, regular[i].Amount)
	}

	for _, t := range regular[pairs:] {
		ev := b.add(domain.CategoryAirdrop)
		ev.TokenIn = b.leg(t.Token, t.Amount)
	}
	if len(outs) > pairs {
		for _, t := range outs[pairs:] {
			ev := b.add(domain.CategoryTransfer)
			ev.TokenOut = b.leg(t.Token, t.Amount)
		}
	}
}

// builder accumulates the events of one Classify call.
type builder struct {
	c      *Classifier
	ctx    context.Context
	tx     *domain.RawTransaction
	user   string
	events []*domain.ClassifiedEvent
}

func (b *builder) isSender() bool {
	return strings.EqualFold(b.tx.From, b.user)
}

func (b *builder) sentNative() bool {
	return b.isSender() && b.tx.NativeValue().Sign() > 0
}

func (b *builder) add(category domain.Category) *domain.ClassifiedEvent {
	ev := domain.NewClassifiedEvent(category, b.tx, b.user, len(b.events))
	b.events = append(b.events, ev)
	return ev
}

// deduction emits a gas-only event when the user paid gas.
func (b *builder) deduction(note string) {
	if !b.isSender() {
		return
	}
	ev := b.add(domain.CategoryDeduction)
	ev.Note = note
}

func (b *builder) leg(token string, amount *big.Int) *domain.TokenLeg {
	network := b.tx.Network
	return &domain.TokenLeg{
		Token:    token,
		Symbol:   b.c.tokens.Symbol(network, token),
		Decimals: b.c.tokens.Decimals(b.ctx, network, token),
		Amount:   new(big.Int).Set(amount),
	}
}

// finish assigns ids and gas.
func (b *builder) finish() []*domain.ClassifiedEvent {
	fee := new(big.Int)
	if b.isSender() {
		fee = b.tx.GasFee()
	}
	for i, ev := range b.events {
		ev.Index = i
		ev.EventID = idhash.ComputeEventID(ev.Network, ev.TxHash, ev.Address, i)
		ev.GasFeeWei = new(big.Int).Set(fee)
		ev.GasPrimary = i == 0 && fee.Sign() > 0
	}
	return b.events
}
