package chain

import "context"

// WSClient defines the websocket log subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to logs matching the filter. Block range fields are ignored.
	SubscribeLogs(ctx context.Context, filter LogFilter) (<-chan Log, error)

	// Unsubscribe ends the subscription delivering to ch. The channel is left open
	// and receives nothing further.
	Unsubscribe(ch <-chan Log) error

	// Close closes the connection and every subscription channel.
	Close() error
}
