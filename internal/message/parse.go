package message

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/imalabs/ima-mcp-go/internal/errors"
)

// defaultKnowledgeCaption is backfilled when a knowledgeBase payload carries
// neither content nor processing text. It matches the caption the upstream
// UI shows for that stage.
const defaultKnowledgeCaption = "知识库搜索中..."

// ParseLine converts one stream line into at most one Message.
//
// The logger is used for debug detail about classification, including
// payloads that matched no known shape.
//
// A (nil, nil) return means the line carried no payload: an event/id control
// line, a blank, or the [DONE] terminator. Payloads are classified against a
// fixed-priority shape set; anything unrecognized becomes a SystemMessage so
// no payload is silently dropped. Only malformed JSON returns an error.
func ParseLine(log *slog.Logger, line string) (Message, error) {
	log = log.With("component", "stream_parser")

	data := strings.TrimSpace(line)

	switch {
	case strings.HasPrefix(data, "data: "):
		data = strings.TrimSpace(data[len("data: "):])
	case strings.HasPrefix(data, "event: "), strings.HasPrefix(data, "id: "):
		return nil, nil
	}

	if data == "" || data == "[DONE]" {
		return nil, nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		log.Debug("Line is not valid JSON", "error", err)

		return nil, &errors.ParseError{Line: data, Err: err}
	}

	return classify(log, data, payload)
}

// classify walks the shape checks in priority order. The order matters:
// a msgs envelope consumes the payload even when none of its entries carry
// text.
func classify(log *slog.Logger, data string, payload map[string]any) (Message, error) {
	if rawMsgs, ok := payload["msgs"].([]any); ok {
		for _, raw := range rawMsgs {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}

			if content, _ := entry["content"].(string); content != "" {
				return &TextMessage{Text: content, Raw: data}, nil
			}
		}

		return nil, nil
	}

	if content, ok := payload["content"].(string); ok && content != "" {
		return &TextMessage{Text: content, Raw: data}, nil
	}

	// A Text field counts even when empty, the upstream sends keepalive
	// frames shaped this way.
	if text, ok := payload["Text"].(string); ok {
		return &TextMessage{Text: text, Raw: data}, nil
	}

	if payload["type"] == string(TypeKnowledgeBase) {
		return parseKnowledgeMessage(data)
	}

	if _, ok := payload["question"]; ok {
		if answer, _ := payload["answer"].(string); answer != "" {
			return &TextMessage{Text: answer, Raw: data}, nil
		}
	}

	log.Debug("Payload matched no known shape, keeping as system message")

	return &SystemMessage{Content: data, Raw: data}, nil
}

// parseKnowledgeMessage decodes a knowledgeBase status frame. A frame whose
// medias do not decode counts as a parse failure, matching how every other
// malformed payload is handled.
func parseKnowledgeMessage(data string) (Message, error) {
	var msg KnowledgeMessage
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, &errors.ParseError{Line: data, Err: fmt.Errorf("knowledgeBase frame: %w", err)}
	}

	msg.Raw = data

	if msg.Content == "" {
		if msg.Processing != "" {
			msg.Content = msg.Processing
		} else {
			msg.Content = defaultKnowledgeCaption
		}
	}

	return &msg, nil
}
