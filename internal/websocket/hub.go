package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Yusufzhafir/go-dex/backend/pkg/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 512 * 1024 // 512 KB
	defaultSendBuf      = 256
	defaultPublishBuf   = 4096
	maxConsecutiveDrops = 50
)

// TradeEvent is the public trade payload. It carries no order or session
// identity and no side: book depth and executions are public, who traded
// is not. This mirrors the private-by-default trade feed of the venue.
type TradeEvent struct {
	TradeID    string         `json:"tradeId"`
	Pair       string         `json:"pair"`
	Price      model.Price    `json:"price"`
	Quantity   model.Quantity `json:"quantity"`
	ExecutedAt int64          `json:"executedAt"` // unix ms
	Seq        uint64         `json:"seq,omitempty"`
}

// SettlementEvent reports asynchronous settlement status per trade.
type SettlementEvent struct {
	TradeID string `json:"tradeId"`
	Pair    string `json:"pair"`
	Status  string `json:"status"`
	Seq     uint64 `json:"seq,omitempty"`
}

type publishMsg struct {
	Topic string
	Data  []byte
}

type subscription struct {
	client *Client
	topic  string
}

// Hub manages clients, per-pair subscriptions and publishes. A slow
// subscriber is evicted after too many consecutive drops instead of ever
// back-pressuring the matching path.
type Hub struct {
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan publishMsg

	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}

	sendBuf int

	// read from HTTP handlers while Run mutates h.clients, so the
	// count lives outside the map
	clientCount  int64
	publishDrops uint64

	logger *zap.Logger
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	subscribed map[string]struct{}

	// consecutive drops counter: if it grows too large we evict the client
	drops int
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan publishMsg, defaultPublishBuf),
		clients:     make(map[*Client]struct{}),
		topics:      make(map[string]map[*Client]struct{}),
		sendBuf:     defaultSendBuf,
		logger:      logger,
	}
}

// Run runs the hub event loop. Call as: go hub.Run(ctx).
// The hub stops when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub started")
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			atomic.AddInt64(&h.clientCount, 1)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.dropClient(c)
			}

		case sub := <-h.subscribe:
			subs := h.topics[sub.topic]
			if subs == nil {
				subs = make(map[*Client]struct{})
				h.topics[sub.topic] = subs
			}
			subs[sub.client] = struct{}{}
			sub.client.subscribed[sub.topic] = struct{}{}

		case sub := <-h.unsubscribe:
			if subs := h.topics[sub.topic]; subs != nil {
				delete(subs, sub.client)
				if len(subs) == 0 {
					delete(h.topics, sub.topic)
				}
			}
			delete(sub.client.subscribed, sub.topic)

		case p := <-h.publish:
			targets := h.clients
			if p.Topic != "" {
				targets = h.topics[p.Topic]
			}
			for c := range targets {
				select {
				case c.send <- p.Data:
					c.drops = 0
				default:
					atomic.AddUint64(&h.publishDrops, 1)
					c.drops++
					if c.drops > maxConsecutiveDrops {
						h.logger.Warn("evicting slow subscriber", zap.Int("drops", c.drops))
						h.dropClient(c)
						_ = c.conn.Close()
					}
				}
			}

		case <-ctx.Done():
			h.logger.Info("ws hub shutting down")
			for c := range h.clients {
				close(c.send)
				_ = c.conn.Close()
				delete(h.clients, c)
				atomic.AddInt64(&h.clientCount, -1)
			}
			return
		}
	}
}

// dropClient removes a client from the hub and all its topics. Hub
// goroutine only.
func (h *Hub) dropClient(c *Client) {
	delete(h.clients, c)
	atomic.AddInt64(&h.clientCount, -1)
	for t := range c.subscribed {
		if subs := h.topics[t]; subs != nil {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.topics, t)
			}
		}
	}
	close(c.send)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// In prod, check origin and require auth.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and registers a client.
// Initial pairs can be passed via ?pairs=BTC-USDC,ETH-USDC
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuf),
		subscribed: make(map[string]struct{}),
	}

	if s := r.URL.Query().Get("pairs"); s != "" {
		for _, p := range strings.Split(s, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			client.subscribed[p] = struct{}{}
		}
	}

	h.register <- client
	for p := range client.subscribed {
		h.subscribe <- subscription{client: client, topic: p}
	}

	go client.writePump()
	go client.readPump()
}

// readPump reads control messages from the client and turns them into
// subscribe/unsubscribe requests.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			) {
				c.hub.logger.Debug("ws read error", zap.Error(err))
			}
			return
		}

		var cmd struct {
			Type string `json:"type"` // "subscribe" | "unsubscribe"
			Pair string `json:"pair"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Debug("invalid client msg", zap.Error(err))
			continue
		}

		switch cmd.Type {
		case "subscribe":
			if cmd.Pair != "" {
				c.hub.subscribe <- subscription{client: c, topic: cmd.Pair}
			}
		case "unsubscribe":
			if cmd.Pair != "" {
				c.hub.unsubscribe <- subscription{client: c, topic: cmd.Pair}
			}
		default:
			// unknown: ignore
		}
	}
}

// writePump serializes all writes to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(message); err != nil {
				_ = w.Close()
				return
			}

			// batch queued messages into same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				if msg := <-c.send; msg != nil {
					if _, err := w.Write([]byte("\n")); err != nil {
						break
					}
					if _, err := w.Write(msg); err != nil {
						break
					}
				}
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) publishPayload(topic string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal event", zap.Error(err))
		return
	}
	select {
	case h.publish <- publishMsg{Topic: topic, Data: b}:
	default:
		// never block producers; track drops
		atomic.AddUint64(&h.publishDrops, 1)
		h.logger.Warn("publish channel full, dropping event")
	}
}

// PublishTrade publishes the redacted execution record to the pair topic.
// Fire-and-forget relative to the matching critical section.
func (h *Hub) PublishTrade(t *model.Trade) {
	ev := TradeEvent{
		TradeID:    t.ID.String(),
		Pair:       t.Pair,
		Price:      t.Price,
		Quantity:   t.Quantity,
		ExecutedAt: t.ExecutedAt.UnixMilli(),
		Seq:        nextSeq(t.Pair),
	}
	h.publishPayload(t.Pair, struct {
		Type  string     `json:"type"`
		Trade TradeEvent `json:"trade"`
	}{"trade", ev})
}

// PublishBookDelta publishes an incremental depth change to the pair topic.
func (h *Hub) PublishBookDelta(d model.BookDelta) {
	h.publishPayload(d.Pair, struct {
		Type  string          `json:"type"`
		Seq   uint64          `json:"seq"`
		Delta model.BookDelta `json:"delta"`
	}{"book_delta", nextSeq(d.Pair), d})
}

// PublishSettlement surfaces asynchronous settlement status changes.
func (h *Hub) PublishSettlement(t *model.Trade) {
	h.publishPayload(t.Pair, struct {
		Type  string          `json:"type"`
		Event SettlementEvent `json:"settlement"`
	}{"settlement", SettlementEvent{
		TradeID: t.ID.String(),
		Pair:    t.Pair,
		Status:  t.Settlement.String(),
		Seq:     nextSeq(t.Pair),
	}})
}

// Stats returns simple metrics (clients count and publish drops).
func (h *Hub) Stats() (clients int, drops uint64) {
	clients = int(atomic.LoadInt64(&h.clientCount))
	drops = atomic.LoadUint64(&h.publishDrops)
	return
}
