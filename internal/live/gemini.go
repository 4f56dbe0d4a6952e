package live

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

// GeminiConfig selects the Gemini backend and live connection settings.
type GeminiConfig struct {
	APIKey   string
	VertexAI bool
	Project  string
	Location string

	// AudioInputRate is the sample rate of client PCM, advertised on every
	// realtime audio blob.
	AudioInputRate  int
	ConnectAttempts int
}

// conn is the subset of *genai.Session the runner drives.
type conn interface {
	SendClientContent(input genai.LiveClientContentInput) error
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type dialFunc func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (conn, error)

// GeminiRunner runs agents on the Gemini Live API.
type GeminiRunner struct {
	cfg    GeminiConfig
	dial   dialFunc
	logger *slog.Logger
}

func NewGeminiRunner(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*GeminiRunner, error) {
	cc := &genai.ClientConfig{}
	if cfg.VertexAI {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
	} else {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	dial := func(ctx context.Context, model string, lc *genai.LiveConnectConfig) (conn, error) {
		return client.Live.Connect(ctx, model, lc)
	}
	return newGeminiRunner(cfg, dial, logger), nil
}

func newGeminiRunner(cfg GeminiConfig, dial dialFunc, logger *slog.Logger) *GeminiRunner {
	if cfg.AudioInputRate <= 0 {
		cfg.AudioInputRate = 16000
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiRunner{cfg: cfg, dial: dial, logger: logger}
}

func (r *GeminiRunner) RunLive(ctx context.Context, req RunRequest) (iter.Seq2[*Event, error], error) {
	if req.Queue == nil {
		return nil, errors.New("run live: nil request queue")
	}
	logger := r.logger.With("user_id", req.UserID, "session_id", req.SessionID)

	lc := r.connectConfig(req)
	c, err := retry(ctx, r.cfg.ConnectAttempts, connectBackoffBase, connectBackoffCap, func(ctx context.Context) (conn, error) {
		c, err := r.dial(ctx, req.Agent.Model, lc)
		if err != nil {
			logger.Warn("live connect failed", "model", req.Agent.Model, "err", err)
		}
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}

	var closeOnce sync.Once
	connDone := make(chan struct{})
	closeConn := func() {
		closeOnce.Do(func() {
			close(connDone)
			_ = c.Close()
		})
	}
	// Closing the connection is what unblocks a pending Receive.
	stop := context.AfterFunc(ctx, closeConn)

	go r.forward(c, req.Queue, connDone, closeConn, logger)

	return func(yield func(*Event, error) bool) {
		defer stop()
		defer closeConn()
		for {
			msg, err := c.Receive()
			if err != nil {
				if ctx.Err() != nil || req.Queue.Closed() || isNormalClose(err) {
					return
				}
				yield(nil, fmt.Errorf("receive live message: %w", err))
				return
			}
			if msg.GoAway != nil {
				logger.Warn("live session going away", "time_left", msg.GoAway.TimeLeft)
			}
			if u := msg.SessionResumptionUpdate; u != nil && u.NewHandle != "" {
				logger.Debug("live session resumption handle", "resumable", u.Resumable)
			}
			for _, ev := range convertMessage(msg) {
				if !yield(ev, nil) {
					return
				}
			}
		}
	}, nil
}

// forward is the single writer on c. It exits when the queue closes, the
// connection closes or a send fails, closing the connection so the reader
// observes the end.
func (r *GeminiRunner) forward(c conn, q *RequestQueue, connDone <-chan struct{}, closeConn func(), logger *slog.Logger) {
	defer closeConn()
	for {
		select {
		case <-q.Done():
			return
		case <-connDone:
			return
		case req := <-q.Requests():
			if err := r.send(c, req); err != nil {
				logger.Warn("live send failed", "err", err)
				return
			}
		}
	}
}

func (r *GeminiRunner) send(c conn, req Request) error {
	switch {
	case req.Content != nil:
		return c.SendClientContent(genai.LiveClientContentInput{
			Turns:        []*genai.Content{req.Content},
			TurnComplete: genai.Ptr(true),
		})
	case req.Blob != nil:
		blob := *req.Blob
		if blob.MIMEType == "audio/pcm" {
			blob.MIMEType = "audio/pcm;rate=" + strconv.Itoa(r.cfg.AudioInputRate)
		}
		return c.SendRealtimeInput(genai.LiveRealtimeInput{Audio: &blob})
	default:
		return nil
	}
}

func (r *GeminiRunner) connectConfig(req RunRequest) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityText},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.Agent.Instruction}},
		},
		SessionResumption: &genai.SessionResumptionConfig{},
	}
	if req.Modality == ModalityAudio {
		lc.ResponseModalities = []genai.Modality{genai.ModalityAudio}
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

// convertMessage splits one server message into events in emission order:
// transcriptions, model content, then the turn marker.
func convertMessage(msg *genai.LiveServerMessage) []*Event {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	sc := msg.ServerContent
	var out []*Event
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		out = append(out, &Event{InputTranscription: t, Partial: !t.Finished})
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		out = append(out, &Event{OutputTranscription: t, Partial: !t.Finished})
	}
	if sc.ModelTurn != nil && len(sc.ModelTurn.Parts) > 0 {
		// Live model turns arrive as incremental chunks.
		out = append(out, &Event{Content: sc.ModelTurn, Partial: true})
	}
	if sc.TurnComplete || sc.Interrupted {
		out = append(out, &Event{TurnComplete: sc.TurnComplete, Interrupted: sc.Interrupted})
	}
	return out
}

func isNormalClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}
