package server

import (
	"encoding/json"
	"net/http"
	"strings"

	log "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/genrelay/genrelay/pkg/metrics"
	"github.com/genrelay/genrelay/pkg/provider"
	"github.com/genrelay/genrelay/pkg/sse"
	"github.com/genrelay/genrelay/pkg/stream"
	"github.com/genrelay/genrelay/pkg/task"
)

// taskFrame is one outward SSE event on the image and video endpoints.
type taskFrame struct {
	Type     string `json:"type"`
	Status   string `json:"status,omitempty"`
	TaskID   string `json:"taskId,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

const timeoutMessage = "generation timed out, please check the task manually"

func (s *Server) handleImageCreate(w http.ResponseWriter, r *http.Request) {
	var req provider.ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Model) == "" || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "model and prompt are required")
		return
	}
	s.relayImageStream(w, r, req)
}

func (s *Server) handleImageToImageCreate(w http.ResponseWriter, r *http.Request) {
	var req provider.ImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Model) == "" || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "model and prompt are required")
		return
	}
	if len(req.ImageURLs) == 0 {
		writeError(w, http.StatusBadRequest, "image_urls is required")
		return
	}
	s.relayImageStream(w, r, req)
}

func (s *Server) relayImageStream(w http.ResponseWriter, r *http.Request, req provider.ImageRequest) {
	streamID := uuid.NewString()
	body, err := s.ark.CreateImageStream(r.Context(), req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("ark", "error").Inc()
		writeError(w, upstreamStatus(err), err.Error())
		return
	}
	defer body.Close()
	metrics.UpstreamRequests.WithLabelValues("ark", "ok").Inc()

	out := sse.NewWriter(w)
	log.Debug("image stream started", "stream", streamID, "model", req.Model)

	var taskID string
	var sawImage, sawError bool
	scanner := sse.NewScanner(body)
	for {
		payload, ok := scanner.Next()
		if !ok {
			break
		}
		if r.Context().Err() != nil {
			log.Debug("image stream aborted by client", "stream", streamID)
			return
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			log.Debug("skipping malformed stream payload", "stream", streamID, "err", err)
			continue
		}
		for _, ev := range stream.Normalize(m) {
			switch ev.Kind {
			case stream.KindStatus:
				if ev.TaskID != "" {
					taskID = ev.TaskID
				}
				s.emitTaskFrame(out, "image", taskFrame{Type: "status", Status: ev.Status, TaskID: ev.TaskID})
			case stream.KindImage:
				sawImage = true
				s.emitTaskFrame(out, "image", taskFrame{Type: "image", ImageURL: ev.ImageURL})
			case stream.KindError:
				sawError = true
				s.emitTaskFrame(out, "image", taskFrame{Type: "error", Error: ev.Message})
			}
		}
	}
	if err := scanner.Err(); err != nil && r.Context().Err() == nil {
		sawError = true
		s.emitTaskFrame(out, "image", taskFrame{Type: "error", Error: err.Error()})
	}

	// The stream handed us a task id but never a result: drive the poller
	// to terminal and surface what it found.
	if taskID != "" && !sawImage && !sawError && r.Context().Err() == nil {
		s.relayTaskOutcome(r, out, "image", taskID)
		return
	}
	s.emitTaskFrame(out, "image", taskFrame{Type: "done"})
}

func (s *Server) handleVideoCreate(w http.ResponseWriter, r *http.Request) {
	var req provider.VideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Model) == "" || len(req.Content) == 0 {
		writeError(w, http.StatusBadRequest, "model and content are required")
		return
	}
	id, err := s.ark.CreateTask(r.Context(), req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("ark", "error").Inc()
		writeError(w, upstreamStatus(err), err.Error())
		return
	}
	metrics.UpstreamRequests.WithLabelValues("ark", "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleTaskQuery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskId")
	snapshot, err := s.poller.Query(r.Context(), id)
	if err != nil {
		writeError(w, upstreamStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleVideoWatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskId")
	out := sse.NewWriter(w)
	s.relayTaskOutcome(r, out, "video", id)
}

// relayTaskOutcome drives the poller to a terminal state, relaying status
// snapshots as they arrive, then emits the result frames.
func (s *Server) relayTaskOutcome(r *http.Request, out *sse.Writer, endpoint, id string) {
	outcome, err := s.poller.Wait(r.Context(), id, func(snapshot provider.Task) {
		s.emitTaskFrame(out, endpoint, taskFrame{Type: "status", Status: snapshot.Status, TaskID: snapshot.ID})
	})
	if err != nil {
		// Context cancellation: the client went away, nothing to emit.
		log.Debug("task watch ended", "task", id, "err", err)
		return
	}
	metrics.PollAttempts.WithLabelValues(outcome.Kind.String()).Add(float64(outcome.Attempts))

	switch outcome.Kind {
	case task.OutcomeSucceeded:
		for _, u := range outcome.Task.ResultURLs() {
			if endpoint == "video" {
				s.emitTaskFrame(out, endpoint, taskFrame{Type: "video", VideoURL: u})
			} else {
				s.emitTaskFrame(out, endpoint, taskFrame{Type: "image", ImageURL: u})
			}
		}
	case task.OutcomeFailed:
		msg := "generation failed"
		if outcome.Task.Error != nil {
			msg = outcome.Task.Error.Code + ": " + outcome.Task.Error.Message
		}
		s.emitTaskFrame(out, endpoint, taskFrame{Type: "error", Error: msg})
	case task.OutcomeCancelled:
		s.emitTaskFrame(out, endpoint, taskFrame{Type: "status", Status: provider.StatusCancelled, TaskID: id})
	case task.OutcomeTimedOut:
		s.emitTaskFrame(out, endpoint, taskFrame{Type: "error", Error: timeoutMessage})
	case task.OutcomeUnknown:
		s.emitTaskFrame(out, endpoint, taskFrame{Type: "status", Status: outcome.Task.Status, TaskID: id})
	}
	s.emitTaskFrame(out, endpoint, taskFrame{Type: "done"})
}

func (s *Server) handleVideoCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskId")
	res, err := s.poller.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, upstreamStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": res.Status == task.CancelOK,
		"message": res.Message,
	})
}

func (s *Server) emitTaskFrame(out *sse.Writer, endpoint string, frame taskFrame) {
	metrics.StreamEvents.WithLabelValues(endpoint, frame.Type).Inc()
	if err := out.WriteEvent(frame); err != nil {
		log.Debug("event write failed", "endpoint", endpoint, "err", err)
	}
}
