package relay

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/antoniostano/interviewer/internal/live"
	"github.com/antoniostano/interviewer/internal/protocol"
)

// Deliver enqueues a client message on q: text as a full user turn, audio as
// a realtime PCM blob.
func Deliver(ctx context.Context, q *live.RequestQueue, msg protocol.ClientMessage) error {
	switch msg.MimeType {
	case protocol.MimeText:
		return q.SendContent(ctx, genai.NewContentFromText(msg.Text, genai.RoleUser))
	case protocol.MimeAudioPCM:
		return q.SendRealtime(ctx, &genai.Blob{MIMEType: protocol.MimeAudioPCM, Data: msg.Audio})
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnsupportedMimeType, msg.MimeType)
	}
}
