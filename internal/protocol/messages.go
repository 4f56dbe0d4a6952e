package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Supported payload MIME types, in both directions.
const (
	MimeText     = "text/plain"
	MimeAudioPCM = "audio/pcm"
)

var (
	ErrUnsupportedMimeType = errors.New("mime type not supported")
	ErrInvalidPayload      = errors.New("invalid payload")
)

// Kind tags a ServerMessage variant.
type Kind int

const (
	KindText Kind = iota + 1
	KindAudioPCM
	KindControl
)

// ServerMessage is one agent-to-client message. Only the fields of its Kind
// are meaningful.
type ServerMessage struct {
	Kind         Kind
	Text         string
	Audio        []byte
	TurnComplete bool
	Interrupted  bool
}

func TextMessage(text string) ServerMessage {
	return ServerMessage{Kind: KindText, Text: text}
}

func AudioMessage(pcm []byte) ServerMessage {
	return ServerMessage{Kind: KindAudioPCM, Audio: pcm}
}

func ControlMessage(turnComplete, interrupted bool) ServerMessage {
	return ServerMessage{Kind: KindControl, TurnComplete: turnComplete, Interrupted: interrupted}
}

type controlPayload struct {
	TurnComplete bool `json:"turn_complete"`
	Interrupted  bool `json:"interrupted"`
}

type contentPayload struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// MarshalJSON renders the wire envelope: a control marker or a
// {mime_type, data} pair with audio base64-encoded.
func (m ServerMessage) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindControl:
		return json.Marshal(controlPayload{TurnComplete: m.TurnComplete, Interrupted: m.Interrupted})
	case KindText:
		return json.Marshal(contentPayload{MimeType: MimeText, Data: m.Text})
	case KindAudioPCM:
		return json.Marshal(contentPayload{MimeType: MimeAudioPCM, Data: base64.StdEncoding.EncodeToString(m.Audio)})
	default:
		return nil, fmt.Errorf("unknown server message kind %d", m.Kind)
	}
}

// Frame encodes m as a single SSE frame: "data: <json>\n\n".
func Frame(m ServerMessage) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// ClientMessage is one decoded client-to-agent message.
type ClientMessage struct {
	MimeType string
	Text     string
	Audio    []byte
}

type clientEnvelope struct {
	MimeType *string `json:"mime_type"`
	Data     *string `json:"data"`
}

// ParseClientMessage decodes {mime_type, data}. Audio data is base64-decoded.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var env clientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.MimeType == nil || env.Data == nil {
		return ClientMessage{}, fmt.Errorf("%w: mime_type and data are required", ErrInvalidPayload)
	}

	switch mt := strings.TrimSpace(*env.MimeType); mt {
	case MimeText:
		return ClientMessage{MimeType: MimeText, Text: *env.Data}, nil
	case MimeAudioPCM:
		pcm, err := base64.StdEncoding.DecodeString(*env.Data)
		if err != nil {
			return ClientMessage{}, fmt.Errorf("%w: audio data is not base64: %v", ErrInvalidPayload, err)
		}
		return ClientMessage{MimeType: MimeAudioPCM, Audio: pcm}, nil
	default:
		return ClientMessage{}, fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mt)
	}
}
