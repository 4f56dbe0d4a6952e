package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/interviewer/internal/live"
	"github.com/antoniostano/interviewer/internal/protocol"
)

const wsWriteTimeout = 10 * time.Second

// handleWS carries one live session over a websocket. Server frames are the
// same JSON payloads as the SSE stream; client frames use the /send schema.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_user_id", err.Error())
		return
	}

	// A hijacked connection outlives r.Context(), so the session is bound to
	// a context the read loop cancels.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, err := s.startSession(ctx, userID, live.ModalityFor(isAudioParam(r)))
	if err != nil {
		s.respondSessionError(w, userID, err)
		return
	}
	defer s.endSession(sess)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ws := &wsWriter{conn: conn}
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.pump(ctx, sess, ws.send)
		// Unblocks the read loop when the agent side ends first.
		ws.close()
	}()

	conn.SetReadLimit(2 << 20)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseClientMessage(data)
		if err != nil {
			code := "invalid_client_message"
			if errors.Is(err, protocol.ErrUnsupportedMimeType) {
				code = "unsupported_mime_type"
			}
			_ = ws.sendError(code, err)
			continue
		}
		if err := s.deliver(ctx, sess, msg); err != nil {
			if errors.Is(err, live.ErrQueueClosed) {
				break
			}
			_ = ws.sendError("send_failed", err)
		}
	}

	cancel()
	<-pumpDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// wsWriter serializes writes on a websocket connection.
type wsWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (ws *wsWriter) send(msg protocol.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.write(payload)
}

func (ws *wsWriter) sendError(code string, err error) error {
	payload, mErr := json.Marshal(errorResponse{Error: err.Error(), Code: code})
	if mErr != nil {
		return mErr
	}
	return ws.write(payload)
}

func (ws *wsWriter) write(payload []byte) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return websocket.ErrCloseSent
	}
	_ = ws.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return ws.conn.WriteMessage(websocket.TextMessage, payload)
}

func (ws *wsWriter) close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return
	}
	ws.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
	_ = ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = ws.conn.Close()
}
