// Package chain ingests raw bonding-curve trade events from the node's
// websocket relay. It owns connection health (reconnect, ping, resubscribe);
// everything downstream sees only validated TradeEvents.
package chain

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"curvefeed/internal/common"
	"curvefeed/pkg/models"
)

// Handler consumes decoded trade events. The coordinator implements it.
type Handler interface {
	Process(ev models.TradeEvent) error
}

// Config for the listener connection.
type Config struct {
	URL               string
	ChainID           uint64
	PingInterval      time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// Listener is the websocket client for the curve trade stream. Delivery is
// at-least-once: reconnects can replay events, deduplication happens in the
// aggregation core, not here.
type Listener struct {
	cfg     Config
	handler Handler

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
	done    chan struct{}
}

func NewListener(cfg Config, handler Handler) *Listener {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = common.DefaultPingIntervalSec * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = common.DefaultReconnectIntervalSec * time.Second
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = common.DefaultMaxReconnectDelaySec * time.Second
	}
	return &Listener{
		cfg:     cfg,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Connect dials the relay, subscribes, and starts the read and ping loops.
func (l *Listener) Connect() error {
	conn, err := l.dial()
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.running = true
	l.mu.Unlock()

	go l.readLoop()
	go l.pingLoop()
	return nil
}

func (l *Listener) dial() (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(l.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	sub := map[string]interface{}{
		"method": "subscribe",
		"params": []string{"curve_trades"},
		"id":     time.Now().UnixNano(),
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info().Str("url", l.cfg.URL).Msg("Subscribed to curve trade stream")
	return conn, nil
}

func (l *Listener) readLoop() {
	delay := l.cfg.ReconnectDelay
	for l.isRunning() {
		conn := l.current()
		if conn == nil {
			if !l.sleep(delay) {
				return
			}
			delay = l.nextDelay(delay)
			l.reconnect()
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if !l.isRunning() {
				return
			}
			log.Error().
				Err(err).
				Str("error_code", common.ErrCodeChainReadFailed.String()).
				Str("error_message", common.ErrMsgChainReadFailed.String()).
				Msg("Chain read error, reconnecting")
			l.dropConn(conn)
			continue
		}
		delay = l.cfg.ReconnectDelay

		ev, err := DecodeTrade(l.cfg.ChainID, data)
		if err != nil {
			log.Warn().
				Err(err).
				Str("error_code", common.ErrCodeEventDecodeFailed.String()).
				Str("error_message", common.ErrMsgEventDecodeFailed.String()).
				Msg("Skipping undecodable payload")
			continue
		}
		if err := l.handler.Process(ev); err != nil {
			log.Warn().Err(err).Str("tx_hash", ev.TxHash).Msg("Trade event not processed")
		}
	}
}

func (l *Listener) pingLoop() {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			conn := l.current()
			if conn == nil {
				continue
			}
			deadline := time.Now().Add(l.cfg.PingInterval / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Error().
					Err(err).
					Str("error_code", common.ErrCodeChainPingFailed.String()).
					Str("error_message", common.ErrMsgChainPingFailed.String()).
					Msg("Chain ping error")
			}
		}
	}
}

func (l *Listener) reconnect() {
	conn, err := l.dial()
	if err != nil {
		log.Error().
			Err(err).
			Str("error_code", common.ErrCodeChainConnectFailed.String()).
			Str("error_message", common.ErrMsgChainConnectFailed.String()).
			Msg("Chain reconnect failed")
		return
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
}

func (l *Listener) dropConn(conn *websocket.Conn) {
	conn.Close()
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()
}

func (l *Listener) current() *websocket.Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

func (l *Listener) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// sleep waits for d unless the listener is closed first.
func (l *Listener) sleep(d time.Duration) bool {
	select {
	case <-l.done:
		return false
	case <-time.After(d):
		return true
	}
}

func (l *Listener) nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > l.cfg.MaxReconnectDelay {
		d = l.cfg.MaxReconnectDelay
	}
	return d
}

func (l *Listener) Close() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	close(l.done)
	var err error
	if l.conn != nil {
		err = l.conn.Close()
		l.conn = nil
	}
	l.mu.Unlock()
	return err
}
