package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/interviewer/internal/agent"
	"github.com/antoniostano/interviewer/internal/interview"
	"github.com/antoniostano/interviewer/internal/live"
	"github.com/antoniostano/interviewer/internal/protocol"
	"github.com/antoniostano/interviewer/internal/relay"
	"github.com/antoniostano/interviewer/internal/session"
	"github.com/antoniostano/interviewer/internal/transcript"
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_user_id", err.Error())
		return
	}
	sw, err := newSSEWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}

	sess, err := s.startSession(r.Context(), userID, live.ModalityFor(isAudioParam(r)))
	if err != nil {
		s.respondSessionError(w, userID, err)
		return
	}
	defer s.endSession(sess)

	sw.start()
	s.pump(r.Context(), sess, sw.send)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_user_id", err.Error())
		return
	}
	sess, err := s.sessions.Get(userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "no_active_session", err.Error())
		return
	}

	raw, err := readBody(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	msg, err := protocol.ParseClientMessage(raw)
	if err != nil {
		respondClientMessageError(w, err)
		return
	}

	if err := s.deliver(r.Context(), sess, msg); err != nil {
		switch {
		case errors.Is(err, live.ErrQueueClosed):
			respondError(w, http.StatusNotFound, "no_active_session", session.ErrNoActiveSession.Error())
		case errors.Is(err, protocol.ErrUnsupportedMimeType):
			respondError(w, http.StatusUnsupportedMediaType, "unsupported_mime_type", err.Error())
		default:
			respondError(w, http.StatusServiceUnavailable, "send_failed", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{Status: "sent"})
}

// startSession builds the interviewer for userID's stored context and opens a
// live session for it.
func (s *Server) startSession(ctx context.Context, userID string, modality live.Modality) (*session.Session, error) {
	ic, err := s.contexts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	cfg, err := agent.Build(ic, s.agentOpts)
	if err != nil {
		return nil, fmt.Errorf("build agent: %w", err)
	}
	sess, err := s.sessions.Start(ctx, userID, cfg, modality)
	if err != nil {
		return nil, err
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("started").Inc()
	s.logger.Info("live session started", "user_id", userID, "session_id", sess.ID, "modality", modality)
	return sess, nil
}

func (s *Server) endSession(sess *session.Session) {
	sess.Release()
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	s.logger.Info("live session ended", "user_id", sess.UserID, "session_id", sess.ID,
		"duration", time.Since(sess.StartedAt).Round(time.Millisecond))
}

func (s *Server) respondSessionError(w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, interview.ErrNotConfigured):
		respondError(w, http.StatusConflict, "not_configured", err.Error())
	case errors.Is(err, session.ErrSessionStartFailed):
		s.metrics.SessionEvents.WithLabelValues("start_failed").Inc()
		s.logger.Error("live session start failed", "user_id", userID, "err", err)
		respondError(w, http.StatusBadGateway, "session_start_failed", err.Error())
	default:
		s.logger.Error("open live session", "user_id", userID, "err", err)
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// pump relays sess's events to send until the stream ends or the client goes
// away, archiving the agent side when an archive is configured.
func (s *Server) pump(ctx context.Context, sess *session.Session, send func(protocol.ServerMessage) error) {
	logger := s.logger.With("user_id", sess.UserID, "session_id", sess.ID)
	out := relay.Outbound{
		Logger: logger,
		Sent: func(m protocol.ServerMessage) {
			s.metrics.ObserveRelay("outbound", mimeLabel(m))
		},
	}
	var rec *transcript.Recorder
	if s.archive != nil {
		rec = s.archive.NewRecorder(sess.UserID, sess.ID, sess.Modality)
		out.Observer = rec
	}

	err := out.Run(ctx, sess.Events, send)
	if rec != nil {
		rec.Flush(context.WithoutCancel(ctx))
	}
	switch {
	case errors.Is(err, relay.ErrStreamFault):
		s.metrics.StreamFaults.Inc()
	case err != nil:
		logger.Debug("client stream closed", "err", err)
	}
}

// deliver enqueues msg on sess and archives candidate text.
func (s *Server) deliver(ctx context.Context, sess *session.Session, msg protocol.ClientMessage) error {
	if err := relay.Deliver(ctx, sess.Queue, msg); err != nil {
		return err
	}
	s.metrics.ObserveRelay("inbound", msg.MimeType)
	switch msg.MimeType {
	case protocol.MimeText:
		s.logger.Debug("client to agent", "user_id", sess.UserID, "mime_type", msg.MimeType, "text", msg.Text)
	case protocol.MimeAudioPCM:
		s.logger.Debug("client to agent", "user_id", sess.UserID, "mime_type", msg.MimeType, "bytes", len(msg.Audio))
	}
	if s.archive != nil && msg.MimeType == protocol.MimeText {
		err := s.archive.Record(context.WithoutCancel(ctx), transcript.TurnRecord{
			UserID:    sess.UserID,
			SessionID: sess.ID,
			Role:      transcript.RoleCandidate,
			Modality:  string(sess.Modality),
			Content:   msg.Text,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			s.logger.Warn("transcript save failed", "user_id", sess.UserID, "err", err)
		}
	}
	return nil
}

func respondClientMessageError(w http.ResponseWriter, err error) {
	if errors.Is(err, protocol.ErrUnsupportedMimeType) {
		respondError(w, http.StatusUnsupportedMediaType, "unsupported_mime_type", err.Error())
		return
	}
	respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

func isAudioParam(r *http.Request) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get("is_audio")))
	return err == nil && v
}

func mimeLabel(m protocol.ServerMessage) string {
	switch m.Kind {
	case protocol.KindText:
		return protocol.MimeText
	case protocol.KindAudioPCM:
		return protocol.MimeAudioPCM
	default:
		return "control"
	}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errEmptyBody
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errEmptyBody
	}
	return raw, nil
}
