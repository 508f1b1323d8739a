// Package wshandler pushes verification status updates to connected clients
// over websocket, so the app does not have to poll while the external
// verification of a step photo is still pending.
package wshandler

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"
)

type VerifyEvent struct {
	Typ       string `json:"type"`
	MeetingID uint   `json:"meeting_id"`
	StepIndex int    `json:"step_index"`
	Status    string `json:"status"`
	Reasoning string `json:"reasoning,omitempty"`
}

type JSONWsHandler struct {
	log    *slog.Logger
	userID uint
	ws     *websocket.Conn
	ch     chan *VerifyEvent
	active int32
}

func NewHandler(log *slog.Logger, userID uint, ws *websocket.Conn) *JSONWsHandler {
	return &JSONWsHandler{
		log:    log.With(slog.Any("user", userID)),
		userID: userID,
		ws:     ws,
		ch:     make(chan *VerifyEvent, 10),
		active: 1,
	}
}

func (w *JSONWsHandler) IsActive() bool {
	return w != nil && atomic.LoadInt32(&w.active) == 1
}

func (w *JSONWsHandler) stop() {
	if atomic.CompareAndSwapInt32(&w.active, 1, 0) {
		close(w.ch)
		w.ws.Close()
	}
}

func (w *JSONWsHandler) writer() {
	for item := range w.ch {
		if !w.IsActive() {
			return
		}

		if item == nil {
			continue
		}

		_ = w.ws.WriteJSON(item)
	}
}

func (w *JSONWsHandler) reader() {
	defer w.stop()

	for {
		if _, _, err := w.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (w *JSONWsHandler) Send(ev *VerifyEvent) bool {
	if w == nil || !w.IsActive() {
		return false
	}

	select {
	case w.ch <- ev:
	default:
	}

	return true
}

func (w *JSONWsHandler) closehandler(code int, text string) error {
	w.log.Info(fmt.Sprintf("closed with code %d, msg %s", code, text))
	w.stop()

	return nil
}

func (w *JSONWsHandler) Listen() {
	w.log.Debug("ws start")
	w.ws.SetCloseHandler(w.closehandler)

	go w.writer()
	w.reader()
	w.log.Debug("ws stop")
}

// Hub tracks the open websocket connections per user.
type Hub struct {
	mx       sync.RWMutex
	handlers map[uint][]*JSONWsHandler
	logger   *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		handlers: make(map[uint][]*JSONWsHandler),
		logger:   slog.Default().With("logger", "ws"),
	}
}

func (h *Hub) Add(w *JSONWsHandler) {
	h.mx.Lock()
	defer h.mx.Unlock()

	h.handlers[w.userID] = append(h.handlers[w.userID], w)
}

// Notify sends the event to every live connection of the user and drops the
// dead ones.
func (h *Hub) Notify(userID uint, ev *VerifyEvent) {
	h.mx.Lock()
	defer h.mx.Unlock()

	alive := h.handlers[userID][:0]

	for _, w := range h.handlers[userID] {
		if w.Send(ev) {
			alive = append(alive, w)
		}
	}

	if len(alive) == 0 {
		delete(h.handlers, userID)

		return
	}

	h.handlers[userID] = alive
}
