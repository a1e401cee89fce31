package message

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// answerEntryType marks the msgs envelope entry that carries the final
	// answer in a complete (non-streamed) response body.
	answerEntryType = 3

	// maxReferences bounds the reference list rendered from context_refs.
	maxReferences = 5

	// referencesHeader precedes the reference list extracted from
	// context_refs.
	referencesHeader = "\n\n📚 References:\n"

	// emptyResultText is returned when no messages arrived at all.
	emptyResultText = "no response received"
)

// ParseEnvelope recovers messages from a complete response body that the
// line parser got little or nothing out of. It reads the last msgs entry:
// the answer text (unwrapping a JSON-encoded {"Text": ...} layer when
// present) and the context_refs reference list.
func ParseEnvelope(log *slog.Logger, payload map[string]any) []Message {
	log = log.With("component", "stream_parser")

	rawMsgs, ok := payload["msgs"].([]any)
	if !ok || len(rawMsgs) == 0 {
		return nil
	}

	last, ok := rawMsgs[len(rawMsgs)-1].(map[string]any)
	if !ok {
		return nil
	}

	entryType, ok := last["type"].(float64)
	if !ok || int(entryType) != answerEntryType {
		return nil
	}

	content, ok := last["content"].(map[string]any)
	if !ok {
		return nil
	}

	raw := rawString(last)

	var messages []Message

	if answer, _ := content["answer"].(string); answer != "" {
		text := answer

		var parsed map[string]any
		if err := json.Unmarshal([]byte(answer), &parsed); err == nil {
			if inner, ok := parsed["Text"].(string); ok {
				text = inner
			}
		}

		messages = append(messages, &TextMessage{Text: text, Raw: raw})
	}

	if refs, _ := content["context_refs"].(string); refs != "" {
		if msg := parseContextRefs(refs, raw); msg != nil {
			messages = append(messages, msg)
		}
	}

	log.Info("Extracted messages from full response body", "count", len(messages))

	return messages
}

// parseContextRefs renders the context_refs payload (a JSON-encoded string)
// as one reference-list text message. References that do not decode still
// reach the caller verbatim; a decoded object without medias yields nothing.
func parseContextRefs(refs, raw string) Message {
	var parsed any
	if err := json.Unmarshal([]byte(refs), &parsed); err != nil {
		return &TextMessage{Text: referencesHeader + refs, Raw: raw}
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil
	}

	medias, _ := obj["medias"].([]any)
	if len(medias) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(referencesHeader)

	for i, rawMedia := range medias {
		if i == maxReferences {
			break
		}

		media, _ := rawMedia.(map[string]any)

		title, ok := media["title"].(string)
		if !ok {
			title = fmt.Sprintf("source %d", i+1)
		}

		if intro, _ := media["introduction"].(string); intro != "" {
			fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, title, Truncate(intro, 150))
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		}
	}

	return &TextMessage{Text: b.String(), Raw: raw}
}

// ExtractText assembles the final answer from a message list: every
// message's content in arrival order, trimmed, with runs of blank lines
// collapsed to one. Applying it to its own output changes nothing.
func ExtractText(messages []Message) string {
	if len(messages) == 0 {
		return emptyResultText
	}

	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(msg.ContentText())
	}

	return cleanContent(strings.TrimSpace(b.String()))
}

// cleanContent trims each line and collapses runs of blank lines to one.
func cleanContent(content string) string {
	if content == "" {
		return content
	}

	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	prevEmpty := false

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
			prevEmpty = false
		} else if !prevEmpty {
			cleaned = append(cleaned, "")
			prevEmpty = true
		}
	}

	return strings.Join(cleaned, "\n")
}

// ExtractKnowledge flattens the sources consulted across all knowledge-base
// messages, in arrival order.
func ExtractKnowledge(messages []Message) []KnowledgeSource {
	var sources []KnowledgeSource

	for _, msg := range messages {
		km, ok := msg.(*KnowledgeMessage)
		if !ok {
			continue
		}

		for _, media := range km.Medias {
			src := KnowledgeSource{
				ID:           media.ID,
				Title:        media.Title,
				Subtitle:     media.Subtitle,
				Introduction: media.Introduction,
				Timestamp:    media.Timestamp,
			}
			if media.KnowledgeBase != nil {
				src.KnowledgeBase = media.KnowledgeBase.Name
			}

			sources = append(sources, src)
		}
	}

	return sources
}

// Truncate shortens s to at most limit runes, appending an ellipsis marker
// when it cut anything.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit]) + "..."
}

// rawString renders a decoded payload fragment back to JSON for the Raw
// field of messages recovered from a full body.
func rawString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	return string(data)
}
