// Package usage keeps an in-memory, capacity-bounded log of token usage
// per upstream call, with estimation for providers that report no counts.
package usage

import (
	"math"
	"sync"
	"time"
)

// maxHistory bounds the in-memory log; the oldest records are evicted first.
const maxHistory = 1000

// Record is one immutable usage entry. Timestamp is unix milliseconds.
type Record struct {
	Timestamp    int64  `json:"timestamp"`
	Service      string `json:"service"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	TotalTokens  int    `json:"totalTokens"`
}

// Sample is the raw material for one Record. An explicit token count wins;
// a nil count means the corresponding text is estimated instead. The two
// sides are independent: an upstream may report output tokens only.
type Sample struct {
	Service      string
	Model        string
	InputText    string
	OutputText   string
	InputTokens  *int
	OutputTokens *int
}

// Stats is the aggregate view served by /usage/stats.
type Stats struct {
	TotalTokens       int            `json:"totalTokens"`
	TotalInputTokens  int            `json:"totalInputTokens"`
	TotalOutputTokens int            `json:"totalOutputTokens"`
	ServiceBreakdown  map[string]int `json:"serviceBreakdown"`
	ModelBreakdown    map[string]int `json:"modelBreakdown"`
	RequestCount      int            `json:"requestCount"`
	UsageHistory      []Record       `json:"usageHistory"`
}

// Recorder holds the bounded usage history and fans new records out to
// subscribers. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	history []Record
	subs    map[chan Record]struct{}
	now     func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{
		subs: map[chan Record]struct{}{},
		now:  time.Now,
	}
}

// EstimateTokens approximates the token count of text: CJK ideographs run
// about 1.5 characters per token, everything else about 4. Counts runes,
// not bytes.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		} else {
			other++
		}
	}
	return int(math.Ceil(float64(cjk)/1.5 + float64(other)/4))
}

// Record appends one usage entry, trimming the history to its cap, and
// notifies subscribers. Append and trim happen under one lock so readers
// never observe a history above the cap.
func (r *Recorder) Record(s Sample) Record {
	in := EstimateTokens(s.InputText)
	if s.InputTokens != nil {
		in = *s.InputTokens
	}
	out := EstimateTokens(s.OutputText)
	if s.OutputTokens != nil {
		out = *s.OutputTokens
	}
	rec := Record{
		Timestamp:    r.timestamp(),
		Service:      s.Service,
		Model:        s.Model,
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
	}

	r.mu.Lock()
	r.history = append(r.history, rec)
	if len(r.history) > maxHistory {
		r.history = append(r.history[:0], r.history[len(r.history)-maxHistory:]...)
	}
	for ch := range r.subs {
		select {
		case ch <- rec:
		default: // slow subscriber, drop rather than block recording
		}
	}
	r.mu.Unlock()
	return rec
}

// Stats recomputes the aggregate view from the current history. The
// returned history is a copy, most recent first.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{
		ServiceBreakdown: map[string]int{},
		ModelBreakdown:   map[string]int{},
		RequestCount:     len(r.history),
		UsageHistory:     make([]Record, len(r.history)),
	}
	for i, rec := range r.history {
		st.TotalTokens += rec.TotalTokens
		st.TotalInputTokens += rec.InputTokens
		st.TotalOutputTokens += rec.OutputTokens
		st.ServiceBreakdown[rec.Service] += rec.TotalTokens
		if rec.Model != "" {
			st.ModelBreakdown[rec.Model] += rec.TotalTokens
		}
		st.UsageHistory[len(r.history)-1-i] = rec
	}
	return st
}

// Subscribe registers a live feed of appended records. The returned cancel
// func must be called when the listener goes away.
func (r *Recorder) Subscribe() (<-chan Record, func()) {
	ch := make(chan Record, 16)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch, func() {
		r.mu.Lock()
		delete(r.subs, ch)
		r.mu.Unlock()
	}
}

func (r *Recorder) timestamp() int64 {
	return r.now().UnixMilli()
}
