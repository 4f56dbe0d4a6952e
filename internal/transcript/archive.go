package transcript

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/antoniostano/interviewer/internal/live"
)

// Archive writes turns to a Store, redacting PII first when enabled.
type Archive struct {
	store  Store
	redact bool
	logger *slog.Logger
}

func NewArchive(store Store, redact bool, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{store: store, redact: redact, logger: logger}
}

// Record saves one turn. Blank content is skipped.
func (a *Archive) Record(ctx context.Context, rec TurnRecord) error {
	if strings.TrimSpace(rec.Content) == "" {
		return nil
	}
	if a.redact {
		rec.Content, rec.PIIRedacted = RedactPII(rec.Content)
	}
	return a.store.SaveTurn(ctx, rec)
}

func (a *Archive) Recent(ctx context.Context, userID string, limit int) ([]TurnRecord, error) {
	return a.store.Recent(ctx, userID, limit)
}

// NewRecorder returns a Recorder that archives the agent side of one session.
func (a *Archive) NewRecorder(userID, sessionID string, modality live.Modality) *Recorder {
	return &Recorder{
		archive:   a,
		userID:    userID,
		sessionID: sessionID,
		modality:  string(modality),
	}
}

// Recorder assembles streamed agent output into whole turns. It is driven by
// a single relay goroutine and is not safe for concurrent use.
type Recorder struct {
	archive   *Archive
	userID    string
	sessionID string
	modality  string

	agentText   strings.Builder
	agentSpoken strings.Builder
	userSpoken  strings.Builder
}

// Observe folds ev into the pending turn and archives it on turn boundaries.
func (r *Recorder) Observe(ctx context.Context, ev *live.Event) {
	if ev == nil {
		return
	}
	if t := ev.InputTranscription; t != nil {
		r.userSpoken.WriteString(t.Text)
		if t.Finished {
			r.flushUser(ctx)
		}
	}
	if t := ev.OutputTranscription; t != nil {
		r.agentSpoken.WriteString(t.Text)
	}
	if p := ev.FirstPart(); p != nil && ev.Partial && p.Text != "" {
		r.agentText.WriteString(p.Text)
	}
	if ev.TurnComplete || ev.Interrupted {
		r.flushUser(ctx)
		r.flushAgent(ctx, ev.Interrupted)
	}
}

// Flush archives whatever is pending, e.g. when the stream ends mid-turn.
func (r *Recorder) Flush(ctx context.Context) {
	r.flushUser(ctx)
	r.flushAgent(ctx, true)
}

func (r *Recorder) flushUser(ctx context.Context) {
	text := r.userSpoken.String()
	r.userSpoken.Reset()
	r.save(ctx, RoleCandidate, text, false)
}

func (r *Recorder) flushAgent(ctx context.Context, interrupted bool) {
	text := r.agentText.String()
	if strings.TrimSpace(text) == "" {
		text = r.agentSpoken.String()
	}
	r.agentText.Reset()
	r.agentSpoken.Reset()
	r.save(ctx, RoleInterviewer, text, interrupted)
}

func (r *Recorder) save(ctx context.Context, role Role, text string, interrupted bool) {
	if strings.TrimSpace(text) == "" {
		return
	}
	err := r.archive.Record(ctx, TurnRecord{
		UserID:      r.userID,
		SessionID:   r.sessionID,
		Role:        role,
		Modality:    r.modality,
		Content:     text,
		Interrupted: interrupted,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		r.archive.logger.Warn("transcript save failed", "user_id", r.userID, "session_id", r.sessionID, "err", err)
	}
}
