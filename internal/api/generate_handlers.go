package api

import (
	"net/http"
	"strings"

	"github.com/reflekt-app/reflekt/internal/services"
)

// The /api/generate endpoints expose the generation collaborator
// directly: question sets, follow-ups and summaries on demand, rate
// limited per caller address upstream of these handlers.

func (rt *Router) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profile *services.RoleProfile `json:"profile"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Profile == nil {
		writeJSON(w, http.StatusOK, map[string]any{"questions": services.FallbackQuestions()})
		return
	}
	if err := req.Profile.Validate(); err != nil {
		writeError(w, err)
		return
	}
	questions, err := rt.gen.GenerateQuestions(r.Context(), req.Profile)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (rt *Router) handleGenerateFollowUps(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question services.Question     `json:"question"`
		Answer   string                `json:"answer"`
		Profile  *services.RoleProfile `json:"profile"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question.Text) == "" || strings.TrimSpace(req.Answer) == "" {
		writeError(w, services.NewInvalidError("question and answer required"))
		return
	}
	followUps, err := rt.gen.GenerateFollowUps(r.Context(), req.Question, req.Answer, req.Profile)
	if err != nil {
		writeError(w, err)
		return
	}
	if followUps == nil {
		followUps = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"follow_ups": followUps})
}

func (rt *Router) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	var req services.SummaryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Answers) == 0 {
		writeError(w, services.NewInvalidError("answers required"))
		return
	}
	summary, err := rt.gen.GenerateSummary(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}
