package api

import (
	"net/http"

	"github.com/reflekt-app/reflekt/internal/middleware"
	"github.com/reflekt-app/reflekt/internal/services"
)

func respondentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.IdentifierFromContext(r.Context(), services.RoleRespondent)
	if !ok {
		writeError(w, services.NewUnauthorizedError("unauthorized"))
	}
	return id, ok
}

func (rt *Router) handleSessionView(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	view, err := rt.sessions.View(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	view, err := rt.sessions.Start(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) handleSessionProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Profile *services.RoleProfile `json:"profile"`
		Confirm bool                  `json:"confirm"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := rt.sessions.SubmitProfile(r.Context(), id, req.Profile, req.Confirm)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) handleSessionAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	var req struct {
		QuestionID string `json:"question_id"`
		Text       string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := rt.sessions.SubmitAnswer(r.Context(), id, req.QuestionID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) handleSessionFollowUps(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	var req struct {
		QuestionID string   `json:"question_id"`
		Answers    []string `json:"answers"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := rt.sessions.SubmitFollowUpAnswers(r.Context(), id, req.QuestionID, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) handleSessionGoto(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	var req struct {
		Step int `json:"step"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := rt.sessions.Goto(r.Context(), id, req.Step)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	view, err := rt.sessions.GenerateSummary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleSaveSummary lets the client push its mirror copy explicitly. The
// record is bound to the authenticated identifier.
func (rt *Router) handleSaveSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := respondentID(w, r)
	if !ok {
		return
	}
	var rec services.SummaryRecord
	if !decodeBody(w, r, &rec) {
		return
	}
	rec.Identifier = id
	if err := rt.summaries.UpsertSummary(&rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
