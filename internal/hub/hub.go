// Package hub fans job events out to WebSocket and line-delimited TCP
// subscribers and keeps a short backlog replayed to new subscribers.
package hub

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"gamehub/internal/metrics"
	"gamehub/pkg/logger"
)

const (
	defaultBacklog = 50
	writeTimeout   = 2 * time.Second
)

// Topical events are filtered per subscriber by Topic. Events without a
// topic reach everyone.
type Topical interface {
	Topic() string
}

type message struct {
	topic   string
	payload []byte
}

type Hub struct {
	mu        sync.Mutex
	tcp       map[net.Conn]struct{}
	ws        map[*websocket.Conn]string // conn -> topic filter, "" for all
	backlog   []message
	backlogSz int
	log       *logger.Logger
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
	Backlog    int `json:"backlog"`
}

func New(backlog int, log *logger.Logger) *Hub {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		tcp:       make(map[net.Conn]struct{}),
		ws:        make(map[*websocket.Conn]string),
		backlogSz: backlog,
		log:       log,
	}
}

// AddWS registers a WebSocket subscriber and replays the backlog matching
// topic to it before any live event.
func (h *Hub) AddWS(ws *websocket.Conn, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, m := range h.backlog {
		if !matches(topic, m.topic) {
			continue
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, m.payload); err != nil {
			_ = ws.Close()
			return
		}
	}
	h.ws[ws] = topic
	metrics.WSClients.Set(float64(len(h.ws)))
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.ws, ws)
	metrics.WSClients.Set(float64(len(h.ws)))
	h.mu.Unlock()
	_ = ws.Close()
}

func (h *Hub) AddTCP(conn net.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.backlog {
		if err := writeLine(conn, m.payload); err != nil {
			_ = conn.Close()
			return
		}
	}
	h.tcp[conn] = struct{}{}
}

func (h *Hub) RemoveTCP(conn net.Conn) {
	h.mu.Lock()
	delete(h.tcp, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// BroadcastJSON encodes v once and writes it to every subscriber. Slow or
// broken subscribers are dropped.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("hub: marshal event", "err", err)
		return
	}
	m := message{payload: b}
	if t, ok := v.(Topical); ok {
		m.topic = t.Topic()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.backlog = append(h.backlog, m)
	if len(h.backlog) > h.backlogSz {
		h.backlog = h.backlog[len(h.backlog)-h.backlogSz:]
	}

	for c := range h.tcp {
		if err := writeLine(c, b); err != nil {
			_ = c.Close()
			delete(h.tcp, c)
		}
	}

	for ws, topic := range h.ws {
		if !matches(topic, m.topic) {
			continue
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.ws, ws)
		}
	}
	metrics.WSClients.Set(float64(len(h.ws)))
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{TCPClients: len(h.tcp), WSClients: len(h.ws), Backlog: len(h.backlog)}
}

func matches(filter, topic string) bool {
	return filter == "" || topic == "" || filter == topic
}

func writeLine(c net.Conn, b []byte) error {
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	w := bufio.NewWriter(c)
	if _, err := w.Write(b); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
