package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/interviewer/internal/agent"
	"github.com/antoniostano/interviewer/internal/config"
	"github.com/antoniostano/interviewer/internal/interview"
	"github.com/antoniostano/interviewer/internal/observability"
	"github.com/antoniostano/interviewer/internal/session"
	"github.com/antoniostano/interviewer/internal/transcript"
)

type Server struct {
	cfg       config.Config
	contexts  interview.Store
	sessions  *session.Manager
	archive   *transcript.Archive
	metrics   *observability.Metrics
	logger    *slog.Logger
	agentOpts agent.Options
	upgrader  websocket.Upgrader
	static    http.Handler
}

// New wires the HTTP surface. archive may be nil, in which case nothing is
// archived and /transcript reports 404.
func New(cfg config.Config, contexts interview.Store, sessions *session.Manager, archive *transcript.Archive, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace, nil)
	}
	return &Server{
		cfg:       cfg,
		contexts:  contexts,
		sessions:  sessions,
		archive:   archive,
		metrics:   metrics,
		logger:    logger,
		agentOpts: agent.Options{Model: cfg.AgentModel},
		static:    newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				if originAllowed(cfg.CORSAllowedOrigins, origin) {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg))

	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	r.Post("/setup/{user_id}", s.handleSetup)
	r.Get("/events/{user_id}", s.handleEvents)
	r.Post("/send/{user_id}", s.handleSend)
	r.Get("/ws/{user_id}", s.handleWS)
	r.Get("/transcript/{user_id}", s.handleTranscript)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"live_provider": s.cfg.LiveProvider,
		"agent_model":   s.cfg.AgentModel,
		"transcripts":   s.archive != nil,
	})
}

// userIDParam reads and canonicalizes the {user_id} path segment. Ids are
// integers, so "042" and "42" name the same user.
func userIDParam(r *http.Request) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "user_id"))
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", errInvalidUserID
	}
	return strconv.FormatInt(n, 10), nil
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type statusResponse struct {
	Status string `json:"status"`
}

var (
	errEmptyBody     = errors.New("empty body")
	errInvalidUserID = errors.New("user id must be an integer")
)

const maxBodyBytes = 8 << 20

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
