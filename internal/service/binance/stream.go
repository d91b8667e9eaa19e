package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"DeepResearch/internal/domain/models"
	domrepo "DeepResearch/internal/domain/repository"
	"DeepResearch/pkg/logger"
)

const DefaultLiquidationURL = "wss://fstream.binance.com/ws/!forceOrder@arr"

// LiquidationStream reads the all-market force order websocket. The
// channels returned by Read survive reconnects.
type LiquidationStream struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	gen       int
}

var _ domrepo.LiquidationStream = (*LiquidationStream)(nil)

func NewLiquidationStream(url string, reconnectDelay time.Duration, log *logger.Logger) *LiquidationStream {
	if url == "" {
		url = DefaultLiquidationURL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LiquidationStream{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   3 * time.Minute,
		log:            log.With(logger.String("component", "binance_liquidations")),
	}
}

func (s *LiquidationStream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("binance liquidation connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.gen++
	s.mu.Unlock()
	s.log.Info("connected", logger.String("url", s.url))
	return nil
}

type forceOrderMsg struct {
	Order struct {
		Symbol string `json:"s"`
		Side   string `json:"S"`
		Price  string `json:"p"`
		AvgP   string `json:"ap"`
		Qty    string `json:"q"`
		Time   int64  `json:"T"`
	} `json:"o"`
}

// parseForceOrder prefers the average fill price over the order price.
func parseForceOrder(b []byte) (models.LiquidationEvent, bool) {
	var m forceOrderMsg
	if err := json.Unmarshal(b, &m); err != nil || m.Order.Symbol == "" {
		return models.LiquidationEvent{}, false
	}
	price, ok := parse(m.Order.AvgP)
	if !ok || price == 0 {
		if price, ok = parse(m.Order.Price); !ok {
			return models.LiquidationEvent{}, false
		}
	}
	qty, ok := parse(m.Order.Qty)
	if !ok {
		return models.LiquidationEvent{}, false
	}
	return models.LiquidationEvent{
		Symbol:   m.Order.Symbol,
		Side:     m.Order.Side,
		Price:    price,
		Quantity: qty,
		Time:     time.UnixMilli(m.Order.Time).UTC(),
	}, true
}

func (s *LiquidationStream) current() (*websocket.Conn, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, s.gen
	}
	return s.conn, s.gen
}

// Read starts the ping and read loops. A read error is reported once per
// connection; the loop then waits for Reconnect to install a new one.
func (s *LiquidationStream) Read(ctx context.Context) (<-chan models.LiquidationEvent, <-chan error) {
	events := make(chan models.LiquidationEvent, 1024)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if conn, _ := s.current(); conn != nil {
					_ = conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
				}
			}
		}
	}()

	go func() {
		defer close(events)
		failed := -1
		for ctx.Err() == nil {
			conn, gen := s.current()
			if conn == nil || gen == failed {
				select {
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
				}
				continue
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				failed = gen
				if ctx.Err() != nil {
					return
				}
				select {
				case errs <- fmt.Errorf("binance liquidation read: %w", err):
				default:
				}
				continue
			}
			ev, ok := parseForceOrder(b)
			if !ok {
				continue
			}
			select {
			case events <- ev:
			default:
				// drop on backpressure
			}
		}
	}()

	return events, errs
}

func (s *LiquidationStream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	return s.Connect(ctx)
}

func (s *LiquidationStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *LiquidationStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
