package presenter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/service/config"
	"github.com/khaledhikmat/vs-traffic/service/lgr"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
)

const (
	MessageFrame  = "frame"
	MessageStatus = "status"
	MessageCount  = "count"
	MessageTrend  = "trend"

	broadcastBuffer = 64
	writeWait       = 5 * time.Second
	pongWait        = 60 * time.Second

	// Send pings to viewers with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Message is the JSON envelope pushed to websocket viewers. Frame JPEGs are
// base64 encoded by encoding/json.
type Message struct {
	Type      string       `json:"type"`
	SessionID string       `json:"sessionId,omitempty"`
	Sequence  int64        `json:"sequence,omitempty"`
	Width     int          `json:"width,omitempty"`
	Height    int          `json:"height,omitempty"`
	JPEG      []byte       `json:"jpeg,omitempty"`
	Text      string       `json:"text,omitempty"`
	Count     int          `json:"count"`
	Trend     []TrendPoint `json:"trend,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts monitor output to every connected viewer. Publishing never
// blocks: when the broadcast buffer is full the message is dropped.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex

	trend       *Trend
	trendPeriod time.Duration
	frameEvery  int64
	pongWait    time.Duration
	pingPeriod  time.Duration
	frames      atomic.Int64
	dropped     atomic.Int64
	metrics     *metrics.Metrics
}

// NewHub creates a hub. m may be nil.
func NewHub(cfgSvc config.IService, m *metrics.Metrics) *Hub {
	every := int64(cfgSvc.GetFrameBroadcastEvery())
	if every < 1 {
		every = 1
	}
	period := cfgSvc.GetTrendPeriod()
	if period <= 0 {
		period = time.Second
	}

	return &Hub{
		clients:     make(map[*websocket.Conn]bool),
		broadcast:   make(chan []byte, broadcastBuffer),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		done:        make(chan struct{}),
		trend:       NewTrend(cfgSvc.GetTrendLength()),
		trendPeriod: period,
		frameEvery:  every,
		pongWait:    pongWait,
		pingPeriod:  pingPeriod,
		metrics:     m,
	}
}

// Run owns the client set until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.trendPeriod)
	defer ticker.Stop()

	pingTicker := time.NewTicker(h.pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			lgr.Logger.Info(
				"hub context cancelled",
			)
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			h.reportClients()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.reportClients()
			lgr.Logger.Info(
				"viewer connected",
				slog.Int("clients", h.ClientCount()),
			)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			h.reportClients()
			lgr.Logger.Info(
				"viewer disconnected",
				slog.Int("clients", h.ClientCount()),
			)

		case message := <-h.broadcast:
			h.write(message)

		case <-pingTicker.C:
			h.ping()
			h.reportClients()

		case now := <-ticker.C:
			point := h.trend.Sample(now)
			lgr.Logger.Debug(
				"trend sampled",
				slog.Int("count", point.Count),
			)
			if payload, err := json.Marshal(Message{
				Type:      MessageTrend,
				Count:     point.Count,
				Trend:     h.trend.Points(),
				Timestamp: point.Timestamp,
			}); err == nil {
				h.write(payload)
			}
		}
	}
}

func (h *Hub) write(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			lgr.Logger.Warn(
				"error sending message to viewer",
				slog.Any("error", err),
			)
			delete(h.clients, client)
			client.Close()
		}
	}
}

// ping keeps listen-only viewers alive: their pongs extend the read deadline
// set in ServeWS.
func (h *Hub) ping() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if err := client.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			lgr.Logger.Warn(
				"error pinging viewer",
				slog.Any("error", err),
			)
			delete(h.clients, client)
			client.Close()
		}
	}
}

// ServeWS upgrades a viewer connection and keeps it registered until the
// viewer goes away or the hub stops.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	connection, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		lgr.Logger.Error(
			"websocket upgrade error",
			slog.Any("error", err),
		)
		return
	}
	connection.SetReadLimit(512)
	connection.SetReadDeadline(time.Now().Add(h.pongWait))
	connection.SetPongHandler(func(string) error {
		connection.SetReadDeadline(time.Now().Add(h.pongWait))
		return nil
	})

	select {
	case h.register <- connection:
	case <-h.done:
		connection.Close()
		return
	}

	for {
		if _, _, err := connection.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- connection:
	case <-h.done:
	}
}

func (h *Hub) OnFrame(frame model.RenderedFrame) {
	if h.frames.Add(1)%h.frameEvery != 0 {
		return
	}
	h.publish(Message{
		Type:      MessageFrame,
		SessionID: frame.SessionID,
		Sequence:  frame.Sequence,
		Width:     frame.Width,
		Height:    frame.Height,
		JPEG:      frame.JPEG,
		Timestamp: frame.Timestamp.Unix(),
	})
}

func (h *Hub) OnStatusText(text string) {
	h.publish(Message{
		Type:      MessageStatus,
		Text:      text,
		Count:     h.trend.Latest(),
		Timestamp: time.Now().Unix(),
	})
}

func (h *Hub) OnCount(count int) {
	h.trend.Record(count)
	h.publish(Message{
		Type:      MessageCount,
		Count:     count,
		Timestamp: time.Now().Unix(),
	})
}

func (h *Hub) publish(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		lgr.Logger.Error(
			"failed to encode hub message",
			slog.String("type", msg.Type),
			slog.Any("error", err),
		)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hub) reportClients() {
	if h.metrics != nil {
		h.metrics.ActiveClients.Store(int64(h.ClientCount()))
	}
}

func (h *Hub) Trend() *Trend {
	return h.trend
}

func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
