package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/genrelay/genrelay/pkg/metrics"
	"github.com/genrelay/genrelay/pkg/provider"
	"github.com/genrelay/genrelay/pkg/sse"
	"github.com/genrelay/genrelay/pkg/stream"
	"github.com/genrelay/genrelay/pkg/usage"
)

type agentChatRequest struct {
	Messages []provider.AgentMessage `json:"messages"`
}

type chunkFrame struct {
	Chunk string `json:"chunk"`
}

func (s *Server) handleMastraStream(w http.ResponseWriter, r *http.Request) {
	var req agentChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	streamID := uuid.NewString()
	body, err := s.mastra.Stream(r.Context(), req.Messages)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("mastra", "error").Inc()
		writeError(w, upstreamStatus(err), err.Error())
		return
	}
	defer body.Close()
	metrics.UpstreamRequests.WithLabelValues("mastra", "ok").Inc()

	out := sse.NewWriter(w)
	log.Debug("agent stream started", "stream", streamID)

	var output strings.Builder
	norm := &stream.AgentNormalizer{}
	scanner := sse.NewScanner(body)
	for {
		payload, ok := scanner.Next()
		if !ok {
			break
		}
		if r.Context().Err() != nil {
			log.Debug("agent stream aborted by client", "stream", streamID)
			return
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			log.Debug("skipping malformed agent payload", "stream", streamID, "err", err)
			continue
		}
		events, fallback := norm.Normalize(m)
		for i, ev := range events {
			if ev.Kind != stream.KindText {
				continue
			}
			// The fallback path fakes the streaming experience: pace the
			// synthetic slices instead of dumping them at once.
			if fallback && i > 0 {
				time.Sleep(stream.FallbackDelay)
			}
			output.WriteString(ev.Text)
			metrics.StreamEvents.WithLabelValues("mastra", "chunk").Inc()
			if err := out.WriteEvent(chunkFrame{Chunk: ev.Text}); err != nil {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil && r.Context().Err() == nil {
		metrics.StreamEvents.WithLabelValues("mastra", "error").Inc()
		_ = out.WriteEvent(errorFrame{Error: err.Error()})
		return
	}

	var input strings.Builder
	for _, m := range req.Messages {
		input.WriteString(m.Content)
	}
	rec := s.usage.Record(usage.Sample{
		Service:    "mastra",
		InputText:  input.String(),
		OutputText: output.String(),
	})
	metrics.TokensRecorded.WithLabelValues("mastra").Add(float64(rec.TotalTokens))

	_ = out.WriteDone()
	metrics.StreamEvents.WithLabelValues("mastra", "done").Inc()
}
