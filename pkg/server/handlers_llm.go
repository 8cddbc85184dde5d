package server

import (
	"encoding/json"
	"net/http"
	"strings"

	log "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/genrelay/genrelay/pkg/metrics"
	"github.com/genrelay/genrelay/pkg/provider"
	"github.com/genrelay/genrelay/pkg/sse"
	"github.com/genrelay/genrelay/pkg/usage"
)

type generateRequest struct {
	Contents string          `json:"contents"`
	Model    string          `json:"model,omitempty"`
	Thinking *thinkingOption `json:"thinking,omitempty"`
}

type thinkingOption struct {
	Type string `json:"type"`
}

func (r generateRequest) thinkingEnabled() bool {
	return r.Thinking != nil && strings.EqualFold(r.Thinking.Type, "enabled")
}

// chatFrame is one outward SSE event on the chat endpoints.
type chatFrame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Content   string `json:"content,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

type errorFrame struct {
	Error string `json:"error"`
}

func decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (generateRequest, bool) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	if strings.TrimSpace(req.Contents) == "" {
		writeError(w, http.StatusBadRequest, "contents is required")
		return req, false
	}
	return req, true
}

func (s *Server) handleGeminiGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	if s.gemini == nil {
		writeError(w, http.StatusBadGateway, "gemini is not configured")
		return
	}
	res, err := s.gemini.Generate(r.Context(), req.Contents, req.Model)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("gemini", "error").Inc()
		writeError(w, upstreamStatus(err), err.Error())
		return
	}
	metrics.UpstreamRequests.WithLabelValues("gemini", "ok").Inc()
	s.recordChatUsage("gemini", s.chatModel(req.Model, s.cfg.Gemini.Model), req.Contents, res)
	writeJSON(w, http.StatusOK, map[string]string{"text": res.Text})
}

func (s *Server) handleDeepSeekGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	res, err := s.deepseek.Generate(r.Context(), req.Contents, req.Model)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("deepseek", "error").Inc()
		writeError(w, upstreamStatus(err), err.Error())
		return
	}
	metrics.UpstreamRequests.WithLabelValues("deepseek", "ok").Inc()
	s.recordChatUsage("deepseek", s.chatModel(req.Model, s.cfg.DeepSeek.Model), req.Contents, res)
	writeJSON(w, http.StatusOK, map[string]string{"text": res.Text})
}

func (s *Server) handleGeminiStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	if s.gemini == nil {
		writeError(w, http.StatusBadGateway, "gemini is not configured")
		return
	}
	s.relayChatStream(w, r, "gemini", s.chatModel(req.Model, s.cfg.Gemini.Model), req.Contents,
		func(emit provider.DeltaFunc) (provider.GenerateResult, error) {
			return s.gemini.Stream(r.Context(), req.Contents, req.Model, req.thinkingEnabled(), emit)
		})
}

func (s *Server) handleDeepSeekStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}
	s.relayChatStream(w, r, "deepseek", s.chatModel(req.Model, s.cfg.DeepSeek.Model), req.Contents,
		func(emit provider.DeltaFunc) (provider.GenerateResult, error) {
			return s.deepseek.Stream(r.Context(), req.Contents, req.Model, emit)
		})
}

// relayChatStream re-frames upstream deltas into the outward chat SSE
// protocol and records usage once the stream ends.
func (s *Server) relayChatStream(w http.ResponseWriter, r *http.Request, service, model, contents string,
	run func(provider.DeltaFunc) (provider.GenerateResult, error)) {

	streamID := uuid.NewString()
	out := sse.NewWriter(w)
	log.Debug("chat stream started", "stream", streamID, "service", service, "model", model)

	res, err := run(func(reasoning bool, text string) error {
		frame := chatFrame{Type: "content", Text: text}
		if reasoning {
			frame.Type = "reasoning"
		}
		metrics.StreamEvents.WithLabelValues(service, frame.Type).Inc()
		return out.WriteEvent(frame)
	})
	if err != nil {
		if r.Context().Err() != nil {
			log.Debug("chat stream aborted by client", "stream", streamID)
			return
		}
		metrics.UpstreamRequests.WithLabelValues(service, "error").Inc()
		log.Error("chat stream failed", "stream", streamID, "service", service, "err", err)
		_ = out.WriteEvent(errorFrame{Error: err.Error()})
		return
	}
	metrics.UpstreamRequests.WithLabelValues(service, "ok").Inc()
	s.recordChatUsage(service, model, contents, res)
	_ = out.WriteEvent(chatFrame{Type: "done", Content: res.Text, Reasoning: res.Reasoning})
	metrics.StreamEvents.WithLabelValues(service, "done").Inc()
}

func (s *Server) chatModel(override, fallback string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return fallback
}

func (s *Server) recordChatUsage(service, model, input string, res provider.GenerateResult) {
	sample := usage.Sample{
		Service:    service,
		Model:      model,
		InputText:  input,
		OutputText: res.Reasoning + res.Text,
	}
	if res.HasUsage {
		in, out := res.InputTokens, res.OutputTokens
		sample.InputTokens, sample.OutputTokens = &in, &out
	}
	rec := s.usage.Record(sample)
	metrics.TokensRecorded.WithLabelValues(service).Add(float64(rec.TotalTokens))
}
