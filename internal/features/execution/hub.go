package execution

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

const clientBuffer = 32

// Event is the websocket payload for one status transition.
type Event struct {
	ExecutionID string `json:"execution_id"`
	ReportID    string `json:"report_id"`
	ScheduleID  string `json:"schedule_id,omitempty"`
	Status      Status `json:"status"`
	ErrorKind   string `json:"error_kind,omitempty"`
	RowCount    int64  `json:"row_count"`
}

type subscriber struct {
	org  string
	send chan []byte
}

// Hub fans execution events out to websocket subscribers of the same
// organization. Slow subscribers drop events rather than block runs.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger.Named("execution_hub"),
	}
}

func (h *Hub) Publish(e Execution) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(Event{
		ExecutionID: e.ID.Hex(),
		ReportID:    e.ReportID,
		ScheduleID:  e.ScheduleID,
		Status:      e.Status,
		ErrorKind:   string(e.ErrorKind),
		RowCount:    e.RowCount,
	})
	if err != nil {
		h.logger.Warn("failed to encode execution event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subscribers {
		if s.org != e.OrganizationID {
			continue
		}
		select {
		case s.send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribe(org string) *subscriber {
	s := &subscriber{org: org, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.send)
	}
	h.mu.Unlock()
}

// Serve streams events to one connection until the client goes away. The
// organization is put in Locals by the upgrade handler.
func (h *Hub) Serve(c *websocket.Conn) {
	org, _ := c.Locals(orgLocalKey).(string)
	if org == "" {
		_ = c.Close()
		return
	}
	s := h.subscribe(org)
	defer h.unsubscribe(s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
