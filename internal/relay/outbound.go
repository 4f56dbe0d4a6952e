package relay

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/antoniostano/interviewer/internal/live"
	"github.com/antoniostano/interviewer/internal/protocol"
)

var ErrStreamFault = errors.New("agent event stream fault")

// Translate maps one runtime event to at most one client message.
//
// Turn markers always become control messages. Otherwise only the first
// content part is considered: non-empty PCM audio wins, then partial text.
// Everything else is dropped.
func Translate(ev *live.Event) (protocol.ServerMessage, bool) {
	if ev == nil {
		return protocol.ServerMessage{}, false
	}
	if ev.TurnComplete || ev.Interrupted {
		return protocol.ControlMessage(ev.TurnComplete, ev.Interrupted), true
	}
	part := ev.FirstPart()
	if part == nil {
		return protocol.ServerMessage{}, false
	}
	if blob := part.InlineData; blob != nil && strings.HasPrefix(blob.MIMEType, protocol.MimeAudioPCM) && len(blob.Data) > 0 {
		return protocol.AudioMessage(blob.Data), true
	}
	if part.Text != "" && ev.Partial {
		return protocol.TextMessage(part.Text), true
	}
	return protocol.ServerMessage{}, false
}

// Observer sees every runtime event before translation.
type Observer interface {
	Observe(ctx context.Context, ev *live.Event)
}

// Outbound pumps runtime events to a client.
type Outbound struct {
	Logger   *slog.Logger
	Observer Observer
	// Sent is called after each message is delivered.
	Sent func(protocol.ServerMessage)
}

// Run forwards events to send until the source ends, ctx is done or send
// fails. A source fault, including a panic inside the source, is logged and
// returned wrapped in ErrStreamFault; it never escapes as a panic.
func (o Outbound) Run(ctx context.Context, events iter.Seq2[*live.Event, error], send func(protocol.ServerMessage) error) (err error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("agent stream panic", "panic", r)
			err = fmt.Errorf("%w: panic: %v", ErrStreamFault, r)
		}
	}()

	for ev, evErr := range events {
		if evErr != nil {
			logger.Error("agent stream fault", "err", evErr)
			return fmt.Errorf("%w: %v", ErrStreamFault, evErr)
		}
		if ctx.Err() != nil {
			return nil
		}
		if o.Observer != nil {
			o.Observer.Observe(ctx, ev)
		}
		msg, ok := Translate(ev)
		if !ok {
			continue
		}
		if err := send(msg); err != nil {
			return fmt.Errorf("deliver to client: %w", err)
		}
		if o.Sent != nil {
			o.Sent(msg)
		}
		logOutbound(logger, msg)
	}
	return nil
}

func logOutbound(logger *slog.Logger, msg protocol.ServerMessage) {
	switch msg.Kind {
	case protocol.KindControl:
		logger.Debug("agent to client", "turn_complete", msg.TurnComplete, "interrupted", msg.Interrupted)
	case protocol.KindAudioPCM:
		logger.Debug("agent to client", "mime_type", protocol.MimeAudioPCM, "bytes", len(msg.Audio))
	case protocol.KindText:
		logger.Debug("agent to client", "mime_type", protocol.MimeText, "text", msg.Text)
	}
}
