package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// demoUser is the static demo CRUD payload.
type demoUser struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type demoUserBody struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []demoUser{
		{ID: 1, Name: "Alice", Email: "alice@example.com"},
		{ID: 2, Name: "Bob", Email: "bob@example.com"},
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	writeJSON(w, http.StatusOK, demoUser{
		ID:    id,
		Name:  "User " + strconv.FormatInt(id, 10),
		Email: "user" + strconv.FormatInt(id, 10) + "@example.com",
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeUserBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, demoUser{
		ID:    time.Now().UnixMilli(),
		Name:  body.Name,
		Email: body.Email,
	})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	body, ok := decodeUserBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, demoUser{ID: id, Name: body.Name, Email: body.Email})
}

func decodeUserBody(w http.ResponseWriter, r *http.Request) (demoUserBody, bool) {
	var body demoUserBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return body, false
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Email) == "" {
		writeError(w, http.StatusBadRequest, "name and email are required")
		return body, false
	}
	return body, true
}
