package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chain-tax-lab/internal/chain"
	"chain-tax-lab/internal/domain"
)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	WS      chain.WSClient
	Client  chain.Client // used to hydrate notified transactions
	Network string
	Address string
	Buffer  int             // output channel capacity, default 100
	Logger  *zerolog.Logger // defaults to the global logger
}

// Watcher streams new transactions of one address from websocket log subscriptions.
type Watcher struct {
	ws       chain.WSClient
	hydrator *Hydrator
	network  string
	address  string
	buffer   int
	logger   zerolog.Logger
}

// NewWatcher creates a new watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "watcher").Str("address", opts.Address).Logger()

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 100
	}

	return &Watcher{
		ws:       opts.WS,
		hydrator: NewHydrator(opts.Client, opts.Network, logger),
		network:  opts.Network,
		address:  strings.ToLower(opts.Address),
		buffer:   buffer,
		logger:   logger,
	}
}

// Watch subscribes to Transfer logs from and to the address and returns a channel
// of hydrated transactions, each delivered once. The channel is closed when ctx is
// cancelled or both subscriptions end. Cancelling ctx also unsubscribes.
func (w *Watcher) Watch(ctx context.Context) (<-chan *domain.RawTransaction, error) {
	topic := chain.AddressTopic(w.address)
	filters := []chain.LogFilter{
		{Topics: [][]string{{chain.TransferTopic}, {topic}}},
		{Topics: [][]string{{chain.TransferTopic}, nil, {topic}}},
	}

	var logChannels []<-chan chain.Log
	for _, f := range filters {
		ch, err := w.ws.SubscribeLogs(ctx, f)
		if err != nil {
			w.unsubscribe(logChannels)
			return nil, fmt.Errorf("subscribe transfer logs: %w", err)
		}
		logChannels = append(logChannels, ch)
	}
	w.logger.Info().Msg("subscribed to transfer logs")

	merged := make(chan chain.Log, w.buffer)
	done := make(chan struct{})
	for _, ch := range logChannels {
		go func(logs <-chan chain.Log) {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case l, ok := <-logs:
					if !ok {
						return
					}
					select {
					case merged <- l:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		for range logChannels {
			<-done
		}
		close(merged)
	}()

	out := make(chan *domain.RawTransaction, w.buffer)
	go func() {
		defer close(out)
		defer func() {
			if ctx.Err() != nil {
				w.unsubscribe(logChannels)
			}
		}()
		seen := make(map[string]bool)
		for {
			select {
			case <-ctx.Done():
				return
			case l, ok := <-merged:
				if !ok {
					w.logger.Info().Msg("subscriptions closed")
					return
				}
				hash := strings.ToLower(l.TransactionHash)
				if l.Removed || seen[hash] {
					continue
				}
				seen[hash] = true

				tx, err := w.hydrator.Hydrate(ctx, hash)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					w.logger.Warn().Err(err).Str("tx", hash).Msg("dropping unhydrated transaction")
					delete(seen, hash)
					continue
				}
				select {
				case out <- tx:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (w *Watcher) unsubscribe(chs []<-chan chain.Log) {
	for _, ch := range chs {
		if err := w.ws.Unsubscribe(ch); err != nil {
			w.logger.Debug().Err(err).Msg("unsubscribe transfer logs")
		}
	}
}
