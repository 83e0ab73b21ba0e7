package notify

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/onboard-cli/internal/resilience"
)

// listenConn is a connection dedicated to LISTEN.
type listenConn interface {
	Listen(ctx context.Context, channel string) error
	Wait(ctx context.Context) (*pgconn.Notification, error)
	Release()
}

type poolConn struct {
	conn *pgxpool.Conn
}

func (c *poolConn) Listen(ctx context.Context, channel string) error {
	_, err := c.conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	return err
}

func (c *poolConn) Wait(ctx context.Context) (*pgconn.Notification, error) {
	return c.conn.Conn().WaitForNotification(ctx)
}

func (c *poolConn) Release() {
	c.conn.Release()
}

// PGListener turns Postgres NOTIFY events raised by the change triggers
// into hub wake-ups. The payload is the workspace id.
type PGListener struct {
	channel string
	acquire func(ctx context.Context) (listenConn, error)
	backoff resilience.Policy
}

// NewPGListener listens on channel using a connection from pool.
func NewPGListener(pool *pgxpool.Pool, channel string) *PGListener {
	if channel == "" {
		channel = "onboard_changes"
	}
	return &PGListener{
		channel: channel,
		acquire: func(ctx context.Context) (listenConn, error) {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return &poolConn{conn: conn}, nil
		},
		backoff: resilience.Policy{Backoff: time.Second, MaxBackoff: 30 * time.Second},
	}
}

func (l *PGListener) Name() string { return "postgres" }

// Run listens until ctx is done, reconnecting with backoff when the
// connection drops.
func (l *PGListener) Run(ctx context.Context, hub *Hub) error {
	log := zap.L().With(zap.String("component", "notify.postgres"), zap.String("channel", l.channel))

	for attempt := 0; ; attempt++ {
		err := l.listen(ctx, hub, log, func() { attempt = 0 })
		if ctx.Err() != nil {
			return nil
		}
		delay := l.backoff.Delay(attempt)
		log.Warn("notify: listener dropped, reconnecting", zap.Error(err), zap.Duration("delay", delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// listen serves one connection. connected is called once LISTEN succeeds.
func (l *PGListener) listen(ctx context.Context, hub *Hub, log *zap.Logger, connected func()) error {
	conn, err := l.acquire(ctx)
	if err != nil {
		return eris.Wrap(err, "notify: acquire listen connection")
	}
	defer conn.Release()

	if err := conn.Listen(ctx, l.channel); err != nil {
		return eris.Wrapf(err, "notify: listen %s", l.channel)
	}
	connected()
	log.Info("notify: listening")

	for {
		n, err := conn.Wait(ctx)
		if err != nil {
			return eris.Wrap(err, "notify: wait for notification")
		}
		ws := ParsePayload(n.Payload)
		if ws == "" {
			continue
		}
		hub.Notify(ws)
	}
}
