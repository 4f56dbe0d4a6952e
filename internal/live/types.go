// Package live is the boundary to the hosted live-agent runtime. It hides the
// SDK behind a Runner that turns a request queue into a stream of Events.
package live

import (
	"context"
	"iter"

	"google.golang.org/genai"

	"github.com/antoniostano/interviewer/internal/agent"
)

// Modality is the response modality requested from the runtime.
type Modality string

const (
	ModalityText  Modality = "TEXT"
	ModalityAudio Modality = "AUDIO"
)

func ModalityFor(isAudio bool) Modality {
	if isAudio {
		return ModalityAudio
	}
	return ModalityText
}

// Event is one unit of runtime output.
type Event struct {
	Content      *genai.Content
	Partial      bool
	TurnComplete bool
	Interrupted  bool

	// Populated in audio sessions only.
	InputTranscription  *genai.Transcription
	OutputTranscription *genai.Transcription
}

// FirstPart returns the first content part, or nil.
func (e *Event) FirstPart() *genai.Part {
	if e == nil || e.Content == nil || len(e.Content.Parts) == 0 {
		return nil
	}
	return e.Content.Parts[0]
}

// RunRequest describes a live session to start.
type RunRequest struct {
	AppName   string
	UserID    string
	SessionID string
	Agent     agent.Config
	Modality  Modality
	Queue     *RequestQueue
}

// Runner starts live agent sessions. RunLive returns once the session is
// established; the returned sequence yields events until ctx is canceled, the
// request queue is closed, or the runtime ends the session.
type Runner interface {
	RunLive(ctx context.Context, req RunRequest) (iter.Seq2[*Event, error], error)
}
