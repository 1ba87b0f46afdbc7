package server

import (
	"encoding/json"
	"net/http"

	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/session"
	"github.com/loupe-ai/loupe/pkg/types"
)

// ResearchResponse is the response body for synchronous research.
type ResearchResponse struct {
	Session *types.Session            `json:"session"`
	Answer  *event.ResearchAnswerData `json:"answer,omitempty"`
}

// startResearch handles POST /research.
//
// By default the research loop runs in the background and the pending
// session snapshot is returned immediately. With ?wait=true the request
// blocks until the loop settles and the final answer is included.
func (s *Server) startResearch(w http.ResponseWriter, r *http.Request) {
	var req session.StartResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "goal is required")
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		final, answer, err := s.service.ResearchSync(r.Context(), &req, nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ResearchResponse{Session: final, Answer: answer})
		return
	}

	created, err := s.service.StartResearch(&req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, created)
}
