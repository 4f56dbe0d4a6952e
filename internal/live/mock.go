package live

import (
	"context"
	"iter"
	"strings"
	"time"

	"google.golang.org/genai"
)

// MockRunner is a local stand-in for the hosted runtime, used when no Gemini
// credentials are configured. It echoes text input back word by word and
// audio input back verbatim.
type MockRunner struct {
	// ChunkDelay spaces out streamed text chunks.
	ChunkDelay time.Duration
	// StartErr, when set, makes every RunLive call fail.
	StartErr error
}

func NewMockRunner() *MockRunner {
	return &MockRunner{ChunkDelay: 40 * time.Millisecond}
}

func (m *MockRunner) RunLive(ctx context.Context, req RunRequest) (iter.Seq2[*Event, error], error) {
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	q := req.Queue
	return func(yield func(*Event, error) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.Done():
				return
			case r := <-q.Requests():
				for _, ev := range m.reply(req.Modality, r) {
					if !m.pause(ctx) || !yield(ev, nil) {
						return
					}
				}
			}
		}
	}, nil
}

func (m *MockRunner) pause(ctx context.Context) bool {
	if m.ChunkDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(m.ChunkDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (m *MockRunner) reply(modality Modality, r Request) []*Event {
	var out []*Event
	switch {
	case r.Content != nil:
		var said []string
		for _, p := range r.Content.Parts {
			if p != nil && p.Text != "" {
				said = append(said, p.Text)
			}
		}
		text := "You said: " + strings.Join(said, " ")
		words := strings.Fields(text)
		for i, w := range words {
			if i < len(words)-1 {
				w += " "
			}
			out = append(out, &Event{Content: genai.NewContentFromText(w, genai.RoleModel), Partial: true})
		}
		if modality == ModalityAudio {
			out = append(out, &Event{OutputTranscription: &genai.Transcription{Text: text, Finished: true}})
		}
		// The final aggregate is not partial and carries the full text.
		out = append(out, &Event{Content: genai.NewContentFromText(text, genai.RoleModel)})
	case r.Blob != nil:
		data := append([]byte(nil), r.Blob.Data...)
		out = append(out, &Event{
			Content: &genai.Content{
				Role:  string(genai.RoleModel),
				Parts: []*genai.Part{{InlineData: &genai.Blob{MIMEType: "audio/pcm", Data: data}}},
			},
			Partial: true,
		})
	default:
		return nil
	}
	return append(out, &Event{TurnComplete: true})
}
