// Package message defines the message model for the QA stream and the
// parsers that produce it.
//
// The upstream interleaves several payload shapes on one SSE stream: chunked
// answer text, knowledge-base retrieval status, and assorted envelopes.
// ParseLine classifies single stream lines; ParseEnvelope recovers messages
// from a complete response body when streaming yielded too little.
package message

// Type identifies the kind of message extracted from the stream.
type Type string

const (
	// TypeText carries a chunk of answer text.
	TypeText Type = "text"

	// TypeKnowledgeBase reports knowledge-base retrieval progress and the
	// sources the upstream consulted.
	TypeKnowledgeBase Type = "knowledgeBase"

	// TypeSystem wraps payloads that matched no known shape, and synthetic
	// notices produced when a stream or every retry came back empty.
	TypeSystem Type = "system"
)

// Message is a single unit extracted from the QA stream.
// Use a type switch to reach variant-specific fields.
type Message interface {
	MessageType() Type

	// ContentText returns the human-readable content used for answer
	// assembly, or "" when the message carries none.
	ContentText() string

	// RawPayload returns the payload as it arrived on the wire, or a short
	// note for synthetic messages.
	RawPayload() string
}

// Compile-time verification that all message types implement Message.
var (
	_ Message = (*TextMessage)(nil)
	_ Message = (*KnowledgeMessage)(nil)
	_ Message = (*SystemMessage)(nil)
)

// TextMessage carries answer text.
type TextMessage struct {
	Text string
	Raw  string
}

// MessageType implements the Message interface.
func (m *TextMessage) MessageType() Type { return TypeText }

// ContentText implements the Message interface.
func (m *TextMessage) ContentText() string { return m.Text }

// RawPayload implements the Message interface.
func (m *TextMessage) RawPayload() string { return m.Raw }

// KnowledgeMessage reports knowledge-base retrieval status. Content holds
// the stage caption shown to users; Medias lists the sources consulted.
//
//nolint:tagliatelle // upstream wire format
type KnowledgeMessage struct {
	Content    string      `json:"content"`
	Processing string      `json:"processing,omitempty"`
	Stage      int         `json:"stage,omitempty"`
	Medias     []MediaInfo `json:"medias,omitempty"`
	Raw        string      `json:"-"`
}

// MessageType implements the Message interface.
func (m *KnowledgeMessage) MessageType() Type { return TypeKnowledgeBase }

// ContentText implements the Message interface.
func (m *KnowledgeMessage) ContentText() string { return m.Content }

// RawPayload implements the Message interface.
func (m *KnowledgeMessage) RawPayload() string { return m.Raw }

// SystemMessage preserves a payload or records a synthetic notice.
type SystemMessage struct {
	Content string
	Raw     string
}

// MessageType implements the Message interface.
func (m *SystemMessage) MessageType() Type { return TypeSystem }

// ContentText implements the Message interface.
func (m *SystemMessage) ContentText() string { return m.Content }

// RawPayload implements the Message interface.
func (m *SystemMessage) RawPayload() string { return m.Raw }
