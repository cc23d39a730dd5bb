package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultOrderTimeout = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
	defaultQueueSize    = 64
	cancelTimeout       = 10 * time.Second
)

// Config tunes the bridge
type Config struct {
	OrderTimeout  time.Duration // measured from ExecuteOrder entry, queue wait included
	PollInterval  time.Duration
	PriceCooldown time.Duration
	QueueSize     int
	Now           func() time.Time
}

func (c Config) withDefaults() Config {
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = defaultOrderTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PriceCooldown <= 0 {
		c.PriceCooldown = DefaultPriceCooldown
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type request struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

// Bridge funnels all session calls through one worker goroutine, in arrival order
type Bridge struct {
	session  Session
	fallback PriceSource
	health   *PriceHealth
	cfg      Config
	log      zerolog.Logger

	requests  chan request
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	connected bool
}

// NewBridge starts the worker. fallback may be nil.
func NewBridge(session Session, fallback PriceSource, cfg Config, log zerolog.Logger) *Bridge {
	cfg = cfg.withDefaults()
	b := &Bridge{
		session:  session,
		fallback: fallback,
		health:   NewPriceHealth(cfg.PriceCooldown),
		cfg:      cfg,
		log:      log.With().Str("component", "execution_bridge").Logger(),
		requests: make(chan request, cfg.QueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case req := <-b.requests:
			if err := req.ctx.Err(); err != nil {
				req.reply <- err
				continue
			}
			req.reply <- b.invoke(req)
		}
	}
}

func (b *Bridge) invoke(req request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("Broker call panicked")
			err = fmt.Errorf("broker call panicked: %v", r)
		}
	}()
	return req.fn(req.ctx)
}

// do enqueues fn and blocks until the worker has run it. Once accepted, the
// caller always waits for the reply so captured results are safe to read.
func (b *Bridge) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := request{ctx: ctx, fn: fn, reply: make(chan error, 1)}

	select {
	case b.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrBridgeClosed
	}

	select {
	case err := <-req.reply:
		return err
	case <-b.done:
		return ErrBridgeClosed
	}
}

// Close stops the worker. Queued requests fail with ErrBridgeClosed.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.stop)
	})
	<-b.done
}

// IsConnected reports the last known session state
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *Bridge) setConnected(v bool) {
	b.mu.Lock()
	b.connected = v
	b.mu.Unlock()
}

// Connect opens the session. Calling it while connected is a no-op. A failed
// attempt leaves the bridge disconnected and returns false.
func (b *Bridge) Connect(ctx context.Context) bool {
	err := b.do(ctx, func(ctx context.Context) error {
		if b.IsConnected() {
			return nil
		}
		if err := b.session.Connect(ctx); err != nil {
			return err
		}
		b.setConnected(true)
		b.log.Info().Msg("Connected to broker")
		return nil
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("Broker connection failed")
		return false
	}
	return true
}

// Disconnect closes the session. Calling it while disconnected is a no-op.
func (b *Bridge) Disconnect(ctx context.Context) {
	err := b.do(ctx, func(ctx context.Context) error {
		if !b.IsConnected() {
			return nil
		}
		b.setConnected(false)
		b.log.Info().Msg("Disconnected from broker")
		return b.session.Disconnect(ctx)
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("Error while disconnecting from broker")
	}
}

// CashBalance returns available cash
func (b *Bridge) CashBalance(ctx context.Context) (float64, error) {
	var cash float64
	err := b.connectedCall(ctx, func(ctx context.Context) error {
		var err error
		cash, err = b.session.CashBalance(ctx)
		return err
	})
	return cash, err
}

// PortfolioValue returns net liquidation value
func (b *Bridge) PortfolioValue(ctx context.Context) (float64, error) {
	var value float64
	err := b.connectedCall(ctx, func(ctx context.Context) error {
		var err error
		value, err = b.session.PortfolioValue(ctx)
		return err
	})
	return value, err
}

// Positions returns open positions
func (b *Bridge) Positions(ctx context.Context) ([]Position, error) {
	var positions []Position
	err := b.connectedCall(ctx, func(ctx context.Context) error {
		var err error
		positions, err = b.session.Positions(ctx)
		return err
	})
	return positions, err
}

// Account reads cash, value and positions in a single worker turn
func (b *Bridge) Account(ctx context.Context) (Account, error) {
	var acct Account
	err := b.connectedCall(ctx, func(ctx context.Context) error {
		var err error
		if acct.Cash, err = b.session.CashBalance(ctx); err != nil {
			return fmt.Errorf("cash balance: %w", err)
		}
		if acct.TotalValue, err = b.session.PortfolioValue(ctx); err != nil {
			return fmt.Errorf("portfolio value: %w", err)
		}
		if acct.Positions, err = b.session.Positions(ctx); err != nil {
			return fmt.Errorf("positions: %w", err)
		}
		return nil
	})
	return acct, err
}

// PriceHealth exposes the subscription cooldown map
func (b *Bridge) PriceHealth() *PriceHealth {
	return b.health
}

func (b *Bridge) connectedCall(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}
	return b.do(ctx, func(ctx context.Context) error {
		// The session may have been dropped while this request was queued
		if !b.IsConnected() {
			return ErrNotConnected
		}
		return fn(ctx)
	})
}
