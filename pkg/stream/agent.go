package stream

import "time"

const (
	// FallbackSliceLen is the size of the synthetic deltas produced when an
	// agent stream finishes without having produced any incremental text.
	FallbackSliceLen = 10
	// FallbackDelay is the pause the emitter should insert between
	// synthetic deltas to keep the downstream experience incremental.
	FallbackDelay = 10 * time.Millisecond
)

// AgentNormalizer interprets Mastra-style agent stream events. Only
// incremental text production becomes a Text event; tool invocations, tool
// results, step boundaries and text-start markers are discarded. It keeps
// per-request state so the finish fallback fires only when the stream
// produced no deltas at all.
type AgentNormalizer struct {
	deltas int
}

// Normalize maps one agent event. fallback reports that the returned events
// are synthetic slices of the final text and should be paced by the caller.
func (n *AgentNormalizer) Normalize(payload map[string]any) (events []Event, fallback bool) {
	switch stringField(payload, "type") {
	case "text-delta":
		text := agentDeltaText(payload)
		if text == "" {
			return nil, false
		}
		n.deltas++
		return []Event{TextEvent(text)}, false
	case "finish":
		if n.deltas > 0 {
			return nil, false
		}
		final := agentFinalText(payload)
		if final == "" {
			return nil, false
		}
		var out []Event
		for _, slice := range SliceText(final, FallbackSliceLen) {
			out = append(out, TextEvent(slice))
		}
		return out, true
	default:
		// tool-call, tool-result, step-finish, text-start, ...
		return nil, false
	}
}

func agentDeltaText(payload map[string]any) string {
	if nested, ok := payload["payload"].(map[string]any); ok {
		if t := stringField(nested, "text"); t != "" {
			return t
		}
	}
	if t := stringField(payload, "textDelta"); t != "" {
		return t
	}
	return stringField(payload, "text")
}

func agentFinalText(payload map[string]any) string {
	if nested, ok := payload["payload"].(map[string]any); ok {
		if output, ok := nested["output"].(map[string]any); ok {
			if t := stringField(output, "text"); t != "" {
				return t
			}
		}
		if t := stringField(nested, "text"); t != "" {
			return t
		}
	}
	return stringField(payload, "text")
}

// SliceText splits text into fixed-size rune slices, the last one possibly
// shorter. Empty text yields nil.
func SliceText(text string, size int) []string {
	if text == "" || size <= 0 {
		return nil
	}
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
