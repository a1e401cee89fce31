package imamcp

import (
	"github.com/imalabs/ima-mcp-go/internal/client"
	"github.com/imalabs/ima-mcp-go/internal/config"
	"github.com/imalabs/ima-mcp-go/internal/message"
)

// Re-export the message model from the internal package.

// Message is a single unit extracted from the QA stream.
// Use a type switch to reach variant-specific fields.
type Message = message.Message

// MessageType identifies the kind of message extracted from the stream.
type MessageType = message.Type

// Message type constants.
const (
	// MessageTypeText carries a chunk of answer text.
	MessageTypeText = message.TypeText

	// MessageTypeKnowledgeBase reports knowledge-base retrieval progress and
	// the sources the upstream consulted.
	MessageTypeKnowledgeBase = message.TypeKnowledgeBase

	// MessageTypeSystem wraps payloads that matched no known shape, and
	// synthetic notices produced when a stream or every retry came back
	// empty.
	MessageTypeSystem = message.TypeSystem
)

// TextMessage carries answer text.
type TextMessage = message.TextMessage

// KnowledgeMessage reports knowledge-base retrieval status and the sources
// consulted.
type KnowledgeMessage = message.KnowledgeMessage

// SystemMessage preserves a payload or records a synthetic notice.
type SystemMessage = message.SystemMessage

// MediaInfo describes one knowledge-base source consulted for an answer.
type MediaInfo = message.MediaInfo

// KnowledgeBaseInfo identifies the knowledge base a source belongs to.
type KnowledgeBaseInfo = message.KnowledgeBaseInfo

// KnowledgeSource is the flattened reference summary surfaced to callers.
type KnowledgeSource = message.KnowledgeSource

// ExtractText assembles the final answer from a message list: every
// message's content in arrival order, trimmed, with runs of blank lines
// collapsed to one.
func ExtractText(messages []Message) string {
	return message.ExtractText(messages)
}

// ExtractKnowledge flattens the sources consulted across all knowledge-base
// messages, in arrival order.
func ExtractKnowledge(messages []Message) []KnowledgeSource {
	return message.ExtractKnowledge(messages)
}

// Config holds the bridge configuration. Secrets are masked when a Config
// is logged or marshalled to JSON.
type Config = config.Config

// Configuration defaults applied by LoadConfig.
const (
	// DefaultBaseURL is the upstream service root.
	DefaultBaseURL = config.DefaultBaseURL

	// DefaultKnowledgeBaseID is the knowledge base queried when
	// IMA_KNOWLEDGE_BASE_ID is not set.
	DefaultKnowledgeBaseID = config.DefaultKnowledgeBaseID
)

// LoadConfig reads configuration from IMA_-prefixed environment variables
// and validates it.
func LoadConfig() (*Config, error) {
	return config.Load()
}

// Status reports configuration validity and the cached validation outcome.
type Status = client.Status
