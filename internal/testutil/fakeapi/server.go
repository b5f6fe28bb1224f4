// Package fakeapi is an in-process chat backend for adapter and end-to-end
// tests. It serves conversation history and scripted message streams.
package fakeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	sse "github.com/tmaxmax/go-sse"

	"chatstream/internal/domain"
)

// Frame is one server-sent event.
type Frame struct {
	Event string
	Data  string
}

// Script describes how the stream endpoint answers the next request for a
// chat.
type Script struct {
	Status int           // non-2xx answers with this status and no stream
	Frames []Frame       // sent through go-sse, flushed one by one
	Raw    []string      // written verbatim instead of Frames, flushed per chunk
	Delay  time.Duration // pause between frames or chunks
	Hold   bool          // keep the response open until the client leaves
	Empty  bool          // 200 with an empty body
}

// Request records one call to the stream endpoint.
type Request struct {
	ProjectID     string
	ChatID        string
	Content       string
	Query         map[string]string
	Authorization string
	RequestID     string
}

// Server is a fake chat API backed by httptest.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	chats    map[string]*domain.Conversation
	scripts  map[string]Script
	requests []Request
	gone     chan struct{}
}

// New starts a fake server. Close it with Server.Close.
func New() *Server {
	s := &Server{
		chats:   make(map[string]*domain.Conversation),
		scripts: make(map[string]Script),
		gone:    make(chan struct{}, 16),
	}

	r := chi.NewRouter()
	r.Get("/api/chats/{chatID}", s.getChat)
	r.Post("/api/projects/{projectID}/chats/{chatID}/messages/stream", s.stream)
	s.Server = httptest.NewServer(r)
	return s
}

// AddChat makes conv available through the history endpoint.
func (s *Server) AddChat(conv *domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[conv.ID] = conv.Clone()
}

// Script sets how the stream endpoint answers for chatID.
func (s *Server) Script(chatID string, sc Script) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[chatID] = sc
}

// Requests returns the stream requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// ClientGone is signalled whenever a held stream observes its client
// disconnecting.
func (s *Server) ClientGone() <-chan struct{} { return s.gone }

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	conv, ok := s.chats[chi.URLParam(r, "chatID")]
	s.mu.Unlock()
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": conv})
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	data, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(data, &body)

	query := map[string]string{}
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}

	chatID := chi.URLParam(r, "chatID")
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		ProjectID:     chi.URLParam(r, "projectID"),
		ChatID:        chatID,
		Content:       body.Content,
		Query:         query,
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-ID"),
	})
	sc := s.scripts[chatID]
	s.mu.Unlock()

	if sc.Status != 0 && (sc.Status < 200 || sc.Status > 299) {
		w.WriteHeader(sc.Status)
		return
	}
	if sc.Empty {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
		return
	}

	if len(sc.Raw) > 0 {
		s.writeRaw(w, r, sc)
	} else {
		s.writeFrames(w, r, sc)
	}

	if sc.Hold {
		<-r.Context().Done()
		select {
		case s.gone <- struct{}{}:
		default:
		}
	}
}

func (s *Server) writeRaw(w http.ResponseWriter, r *http.Request, sc Script) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, chunk := range sc.Raw {
		if !pause(r, sc.Delay) {
			return
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) writeFrames(w http.ResponseWriter, r *http.Request, sc Script) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// Headers go out before the first frame so the client sees the status.
	if err := sess.Flush(); err != nil {
		return
	}
	for _, f := range sc.Frames {
		if !pause(r, sc.Delay) {
			return
		}
		msg := &sse.Message{Type: sse.Type(f.Event)}
		msg.AppendData(f.Data)
		if err := sess.Send(msg); err != nil {
			return
		}
		if err := sess.Flush(); err != nil {
			return
		}
	}
}

func pause(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return r.Context().Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

// DoneFrame builds the terminal frame for a completed exchange.
func DoneFrame(user, ai domain.Message) Frame {
	data, _ := json.Marshal(map[string]domain.Message{"userMessage": user, "aiMessage": ai})
	return Frame{Event: domain.StreamEventDone, Data: string(data)}
}

// TokenFrame builds a token frame.
func TokenFrame(text string) Frame {
	data, _ := json.Marshal(map[string]string{"content": text})
	return Frame{Event: domain.StreamEventToken, Data: string(data)}
}

// StatusFrame builds a status frame.
func StatusFrame(label string) Frame {
	data, _ := json.Marshal(map[string]string{"status": label})
	return Frame{Event: domain.StreamEventStatus, Data: string(data)}
}

// ErrorFrame builds an error frame.
func ErrorFrame(message string) Frame {
	data, _ := json.Marshal(map[string]string{"message": message})
	return Frame{Event: domain.StreamEventError, Data: string(data)}
}
