package stubserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chatportal/conversation-core/internal/model"
	"github.com/chatportal/conversation-core/pkg/logger"
)

// Options configures the stub server.
type Options struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Server serves the chat service endpoint table.
type Server struct {
	store     *Store
	responder Responder
	logger    *logger.Logger
	opts      Options
}

// New creates a stub server over the given store and responder.
func New(store *Store, responder Responder, log *logger.Logger, opts Options) *Server {
	if opts.RateLimitRequests <= 0 {
		opts.RateLimitRequests = 60
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	return &Server{
		store:     store,
		responder: responder,
		logger:    log,
		opts:      opts,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(requestLogging(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/chat", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.opts.RateLimitRequests, s.opts.RateLimitWindow))

		r.Get("/", s.handleList)
		r.Post("/create/", s.handleCreate)
		r.Get("/status/", s.handleStatus)
		r.Post("/search/", s.handleSearch)
		r.Get("/dashboard/", s.handleDashboard)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleDetail)
			r.Post("/send/", s.handleSend)
			r.Get("/messages/", s.handleMessages)
			r.Post("/end/", s.handleEnd)
		})
	})

	return r
}

// handleList handles GET /api/chat/
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

// handleDetail handles GET /api/chat/{id}/
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// handleCreate handles POST /api/chat/create/
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv := s.store.Create(strings.TrimSpace(req.Title))
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("title", conv.Title),
	)

	writeJSON(w, http.StatusCreated, conv)
}

// handleSend handles POST /api/chat/{id}/send/
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "message content cannot be empty")
		return
	}

	conv, err := s.store.Get(conversationID)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.Ended() {
		writeError(w, http.StatusConflict, "conversation already ended")
		return
	}

	history, err := s.store.Messages(conversationID)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	reply, err := s.responder.Reply(r.Context(), history, content)
	if err != nil {
		s.logger.Error("reply generation failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "ai backend failed")
		return
	}

	userMsg, aiMsg, err := s.store.AppendExchange(conversationID, content, reply)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, ErrAlreadyEnded) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]model.Message{
		"user": userMsg,
		"ai":   aiMsg,
	})
}

// handleMessages handles GET /api/chat/{id}/messages/
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	msgs, err := s.store.Messages(conversationID)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	writeJSON(w, http.StatusOK, msgs)
}

// handleEnd handles POST /api/chat/{id}/end/
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	// Reject before involving the responder; a duplicate end must not pay
	// for a summary round trip.
	conv, err := s.store.Get(conversationID)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if conv.Ended() {
		writeError(w, http.StatusConflict, "conversation already ended")
		return
	}

	history, err := s.store.Messages(conversationID)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	summary, err := s.responder.Summarize(r.Context(), history)
	if err != nil {
		s.logger.Warn("summary generation failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		summary = "Summary unavailable due to AI error."
	}

	conv, err = s.store.End(conversationID, summary)
	if err != nil {
		if errors.Is(err, ErrAlreadyEnded) {
			writeError(w, http.StatusConflict, "conversation already ended")
			return
		}
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	s.logger.Info("conversation ended",
		zap.String("conversation_id", conversationID),
	)

	writeJSON(w, http.StatusOK, model.EndConversationResponse{
		Status:  conv.Status,
		EndedAt: conv.EndedAt,
		Summary: summary,
	})
}

// handleStatus handles GET /api/chat/status/
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.StatusResponse{Status: "ok"})
}

// handleSearch handles POST /api/chat/search/
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req model.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query cannot be empty")
		return
	}

	results := rankMessages(s.store.AllMessages(), query)
	if results == nil {
		results = []model.SearchResult{}
	}

	writeJSON(w, http.StatusOK, model.SearchResponse{Results: results})
}

// handleDashboard handles GET /api/chat/dashboard/
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	total, active, ended, avgMins := s.store.Stats()

	writeJSON(w, http.StatusOK, map[string]any{
		"total":             total,
		"active":            active,
		"ended":             ended,
		"avg_duration_mins": avgMins,
		"using_local_llm":   s.responder.Local(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
