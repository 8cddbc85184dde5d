package stream

// Upstream payload shapes differ per provider and are only loosely specified,
// so normalization probes a decoded map with an explicit, ordered rule list.
// A payload may match several rules; every match fires, in rule order.
// Payloads matching no rule yield no events.

// Normalize maps one decoded upstream payload to zero or more events.
// It is stateless: the same payload always yields the same events.
func Normalize(payload map[string]any) []Event {
	if len(payload) == 0 {
		return nil
	}
	var events []Event

	// Rule 1: top-level task identifier.
	if id := stringField(payload, "id"); id != "" {
		events = append(events, StatusEvent("", id))
	}

	// Rule 2: status string.
	if status := stringField(payload, "status"); status != "" {
		events = append(events, StatusEvent(status, ""))
	}

	// Rule 3: image URLs, single field, list, or flat result objects.
	if content, ok := payload["content"].(map[string]any); ok {
		if u := stringField(content, "image_url"); u != "" {
			events = append(events, ImageEvent(u))
		}
		if list, ok := content["image_urls"].([]any); ok {
			for _, item := range list {
				if u, ok := item.(string); ok && u != "" {
					events = append(events, ImageEvent(u))
				}
			}
		}
	}
	if list, ok := payload["data"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if u := stringField(m, "url"); u != "" {
				events = append(events, ImageEvent(u))
			}
		}
	}

	// Rule 4: error object. Code and message fall back to placeholders so the
	// caller never sees an empty error.
	if errObj, ok := payload["error"].(map[string]any); ok {
		code := stringField(errObj, "code")
		if code == "" {
			code = "unknown_error"
		}
		msg := stringField(errObj, "message")
		if msg == "" {
			msg = "unknown error"
		}
		events = append(events, ErrorEvent(code+": "+msg))
	}

	// Rule 5: incremental text, reasoning phase before content phase.
	if text := reasoningDelta(payload); text != "" {
		events = append(events, ReasoningEvent(text))
	}
	if text := contentDelta(payload); text != "" {
		events = append(events, TextEvent(text))
	}

	return events
}

func reasoningDelta(payload map[string]any) string {
	if delta := chatDelta(payload); delta != nil {
		if t := stringField(delta, "reasoning_content"); t != "" {
			return t
		}
	}
	return stringField(payload, "reasoning_content")
}

func contentDelta(payload map[string]any) string {
	if delta := chatDelta(payload); delta != nil {
		if t := stringField(delta, "content"); t != "" {
			return t
		}
	}
	if t := stringField(payload, "delta"); t != "" {
		return t
	}
	// "content" is also used as the result-object container for task
	// payloads; only a plain string counts as incremental text.
	if t := stringField(payload, "content"); t != "" {
		return t
	}
	return stringField(payload, "text")
}

func chatDelta(payload map[string]any) map[string]any {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return nil
	}
	delta, _ := first["delta"].(map[string]any)
	return delta
}

func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
