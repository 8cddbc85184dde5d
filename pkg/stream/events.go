// Package stream normalizes heterogeneous upstream payloads into
// provider-agnostic events the HTTP surface re-emits downstream.
package stream

// Kind tags one normalized event. Exactly one kind per event.
type Kind string

const (
	KindStatus    Kind = "status"
	KindImage     Kind = "image"
	KindText      Kind = "text"
	KindReasoning Kind = "reasoning"
	KindError     Kind = "error"
	KindDone      Kind = "done"
)

// Event is one normalized stream event. Image, Text and Reasoning events
// never carry empty payloads; the normalizer drops them instead.
type Event struct {
	Kind     Kind
	Status   string
	TaskID   string
	ImageURL string
	Text     string
	Message  string
}

func StatusEvent(status, taskID string) Event {
	return Event{Kind: KindStatus, Status: status, TaskID: taskID}
}

func ImageEvent(url string) Event {
	return Event{Kind: KindImage, ImageURL: url}
}

func TextEvent(text string) Event {
	return Event{Kind: KindText, Text: text}
}

func ReasoningEvent(text string) Event {
	return Event{Kind: KindReasoning, Text: text}
}

func ErrorEvent(message string) Event {
	return Event{Kind: KindError, Message: message}
}

func DoneEvent() Event {
	return Event{Kind: KindDone}
}
