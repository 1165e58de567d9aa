package server

import "github.com/MrWong99/streamscribe/internal/session"

// Message types sent by the server.
const (
	TypeTranscript = string(session.EventTranscript)
	TypePartial    = string(session.EventPartial)
	TypeRemainder  = string(session.EventRemainder)
	TypeError      = string(session.EventError)
	TypeDone       = "done"
)

// TypeEnd is the control message a client sends to end its audio stream.
const TypeEnd = "end"

// Message is the JSON envelope of every text frame on the stream endpoint.
// Fields that do not apply to a Type are omitted.
type Message struct {
	Type string `json:"type"`

	Start   *float64 `json:"start,omitempty"`
	End     *float64 `json:"end,omitempty"`
	Text    string   `json:"text,omitempty"`
	RawText string   `json:"raw_text,omitempty"`
	Final   *bool    `json:"final,omitempty"`

	Error     string `json:"error,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// messageFor converts a session event into its wire form.
func messageFor(ev session.Event) Message {
	if ev.Type == session.EventError {
		msg := Message{Type: TypeError}
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
		return msg
	}
	start, end, final := ev.Start, ev.End, ev.Final
	return Message{
		Type:    string(ev.Type),
		Start:   &start,
		End:     &end,
		Text:    ev.Text,
		RawText: ev.RawText,
		Final:   &final,
	}
}

// entryJSON is the wire form of a stored transcript entry.
type entryJSON struct {
	Seq       int64   `json:"seq"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	RawText   string  `json:"raw_text,omitempty"`
	Final     bool    `json:"final"`
	CreatedAt string  `json:"created_at"`
}
