package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/meetscout/platform/internal/metrics"
	"github.com/meetscout/platform/internal/pipeline"
	"github.com/meetscout/platform/internal/session"
	"github.com/meetscout/platform/internal/sessionlog"
	"github.com/meetscout/platform/internal/trace"
)

// Controller is the pipeline surface the server drives.
type Controller interface {
	Send(pipeline.Command)
	Status() pipeline.Snapshot
	Events() <-chan session.Event
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

type CommandMessage struct {
	Type    string `json:"type"` // pause, resume, search, dismiss, set_context
	Topic   string `json:"topic,omitempty"`
	Context string `json:"context,omitempty"`
}

type StateMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

type AnswerMessage struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Answer string `json:"answer"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Topic   string `json:"topic,omitempty"`
	Message string `json:"message"`
}

type NoteMessage struct {
	Type string `json:"type"`
	Note string `json:"note"`
}

type AwaitTopicMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

type DismissMessage struct {
	Type string `json:"type"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl       Controller
	store      *sessionlog.Store // optional
	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter
}

// New creates a server and starts the event broadcaster.
func New(ctrl Controller, store *sessionlog.Store) *Server {
	s := &Server{
		ctrl:       ctrl,
		store:      store,
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
	}

	go s.broadcastEvents()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint for the overlay and tray
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/pause", s.handlePause)
	mux.HandleFunc("POST /api/resume", s.handleResume)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/context", s.handleContext)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	// Prometheus metrics
	mux.Handle("GET /metrics", metrics.Handler())

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = &rateLimiter{}
	s.mu.Unlock()
	metrics.OverlayClients.Inc()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
		metrics.OverlayClients.Dec()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("overlay connected", "remote", r.RemoteAddr)

	// Current state so a reconnecting overlay does not render stale.
	_ = wsjson.Write(baseCtx, conn, StateMessage{Type: "state", State: s.ctrl.Status().State})

	for {
		var msg CommandMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		s.mu.RLock()
		rl := s.rateLimits[conn]
		s.mu.RUnlock()

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		if cmd, ok := commandFromMessage(msg); ok {
			s.ctrl.Send(cmd)
		} else {
			log.Debug("unknown websocket command", "type", msg.Type)
		}
	}
}

func commandFromMessage(msg CommandMessage) (pipeline.Command, bool) {
	switch msg.Type {
	case "pause":
		return pipeline.Command{Kind: pipeline.CmdPause}, true
	case "resume":
		return pipeline.Command{Kind: pipeline.CmdResume}, true
	case "search":
		return pipeline.Command{Kind: pipeline.CmdManualSearch, Topic: msg.Topic}, true
	case "dismiss":
		return pipeline.Command{Kind: pipeline.CmdDismiss}, true
	case "set_context":
		return pipeline.Command{Kind: pipeline.CmdSetMeetingContext, Context: msg.Context}, true
	default:
		return pipeline.Command{}, false
	}
}

// broadcastEvents fans session events out to every connected overlay.
func (s *Server) broadcastEvents() {
	for evt := range s.ctrl.Events() {
		msg, ok := messageFromEvent(evt)
		if !ok {
			continue
		}

		s.mu.RLock()
		for conn := range s.conns {
			go func(c *websocket.Conn, m interface{}) {
				_ = wsjson.Write(context.Background(), c, m)
			}(conn, msg)
		}
		s.mu.RUnlock()
	}
}

func messageFromEvent(evt session.Event) (interface{}, bool) {
	switch evt.Type {
	case session.EventStateChanged:
		return StateMessage{Type: "state", State: evt.State.String()}, true
	case session.EventShowAnswer:
		return AnswerMessage{Type: "answer", Topic: evt.Topic, Answer: evt.Answer}, true
	case session.EventShowError:
		return ErrorMessage{Type: "error", Topic: evt.Topic, Message: evt.Err.Error()}, true
	case session.EventNoteSaved:
		return NoteMessage{Type: "note", Note: evt.Note}, true
	case session.EventAwaitTopic:
		return AwaitTopicMessage{Type: "await_topic", Topic: evt.Topic}, true
	case session.EventDismiss:
		return DismissMessage{Type: "dismiss"}, true
	default:
		return nil, false
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(s.ctrl.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Send(pipeline.Command{Kind: pipeline.CmdPause})
	json.NewEncoder(w).Encode(map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Send(pipeline.Command{Kind: pipeline.CmdResume})
	json.NewEncoder(w).Encode(map[string]string{"status": "resumed"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Topic string `json:"topic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Topic == "" {
		http.Error(w, "topic is required", http.StatusBadRequest)
		return
	}
	s.ctrl.Send(pipeline.Command{Kind: pipeline.CmdManualSearch, Topic: body.Topic})
	json.NewEncoder(w).Encode(map[string]string{"status": "searching", "topic": body.Topic})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Context string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	s.ctrl.Send(pipeline.Command{Kind: pipeline.CmdSetMeetingContext, Context: body.Context})
	json.NewEncoder(w).Encode(map[string]string{"status": "context_updated"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, MaxHistoryLimit)
		}
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = s.ctrl.Status().SessionID
	}

	entries, err := s.store.History(r.Context(), sessionID, limit)
	if err != nil {
		trace.Logger(r.Context()).Error("history query failed", "error", err)
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []sessionlog.Entry{}
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session_id": sessionID,
		"entries":    entries,
	})
}
