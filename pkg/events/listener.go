package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Broadcaster receives payloads from the LISTEN connection. Implemented
// by Bus.
type Broadcaster interface {
	Broadcast(channel string, payload []byte)
}

// NotifyListener holds a dedicated pgx connection in LISTEN mode on a
// fixed channel set and forwards every notification to the broadcaster.
// The channel set is fixed at Start: the gateway has exactly two outbox
// streams, so dynamic LISTEN management is not needed.
type NotifyListener struct {
	connString  string
	channels    []string
	broadcaster Broadcaster

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewNotifyListener creates a listener for the given channels.
func NewNotifyListener(connString string, broadcaster Broadcaster, channels ...string) *NotifyListener {
	if len(channels) == 0 {
		channels = []string{JobEventsChannel, CoachingEventsChannel}
	}
	return &NotifyListener{
		connString:  connString,
		channels:    channels,
		broadcaster: broadcaster,
	}
}

// Start establishes the dedicated connection, issues LISTEN for every
// channel, and begins the receive loop.
func (l *NotifyListener) Start(ctx context.Context) error {
	conn, err := l.connect(ctx)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancelLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.receiveLoop(loopCtx, conn)
	}()

	slog.Info("NOTIFY listener started", "channels", l.channels)
	return nil
}

// Stop signals the receive loop to exit and waits for it to finish.
func (l *NotifyListener) Stop() {
	if l.cancelLoop != nil {
		l.cancelLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}
}

// connect opens the dedicated connection and subscribes to all channels.
func (l *NotifyListener) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect for LISTEN: %w", err)
	}
	for _, ch := range l.channels {
		sanitized := pgx.Identifier{ch}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("LISTEN %s failed: %w", sanitized, err)
		}
	}
	return conn, nil
}

// receiveLoop waits for notifications and dispatches them, reconnecting
// with exponential backoff when the connection drops. It is the sole
// goroutine touching the pgx connection.
func (l *NotifyListener) receiveLoop(ctx context.Context, conn *pgx.Conn) {
	defer func() {
		if conn != nil {
			_ = conn.Close(context.Background())
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("NOTIFY receive error, reconnecting", "error", err)
			_ = conn.Close(ctx)
			conn = l.reconnect(ctx)
			if conn == nil {
				return
			}
			continue
		}

		l.broadcaster.Broadcast(notification.Channel, []byte(notification.Payload))
	}
}

// reconnect re-establishes the LISTEN connection with exponential backoff.
// Returns nil only when the context ends first.
func (l *NotifyListener) reconnect(ctx context.Context) *pgx.Conn {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		conn, err := l.connect(ctx)
		if err != nil {
			slog.Error("LISTEN reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		slog.Info("NOTIFY listener reconnected")
		return conn
	}
}
