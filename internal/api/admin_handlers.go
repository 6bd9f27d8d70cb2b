package api

import (
	"net/http"
	"strings"

	"github.com/reflekt-app/reflekt/internal/services"
)

func (rt *Router) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	views, err := rt.admin.ListAccounts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": views})
}

type upsertAccountRequest struct {
	Identifier  string `json:"identifier"`
	Secret      string `json:"secret"`
	DisplayName string `json:"display_name,omitempty"`
	Department  string `json:"department,omitempty"`
}

func upsertInto(store *services.CredentialService, w http.ResponseWriter, r *http.Request) {
	var req upsertAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := store.Upsert(req.Identifier, req.Secret, services.AccountMeta{
		DisplayName: req.DisplayName,
		Department:  req.Department,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	// Secrets and digests never leave the server.
	writeJSON(w, http.StatusOK, map[string]any{
		"identifier":   account.Identifier,
		"display_name": account.DisplayName,
		"department":   account.Department,
		"status":       account.Status,
	})
}

func removeFrom(store *services.CredentialService, w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimSpace(r.URL.Query().Get("identifier"))
	if identifier == "" {
		writeError(w, services.NewInvalidError("identifier required"))
		return
	}
	removed, err := store.Remove(identifier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (rt *Router) handleUpsertAccount(w http.ResponseWriter, r *http.Request) {
	upsertInto(rt.credentials, w, r)
}

func (rt *Router) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	removeFrom(rt.credentials, w, r)
}

func (rt *Router) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	accounts, err := rt.admins.List()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, map[string]any{
			"identifier":   a.Identifier,
			"display_name": a.DisplayName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": out})
}

func (rt *Router) handleUpsertAdmin(w http.ResponseWriter, r *http.Request) {
	upsertInto(rt.admins, w, r)
}

func (rt *Router) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	removeFrom(rt.admins, w, r)
}

func (rt *Router) handleBulkAccounts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count  int    `json:"count"`
		Prefix string `json:"prefix"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	generated, err := rt.admin.BulkGenerate(req.Count, req.Prefix)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": generated})
}

func (rt *Router) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Status     string `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := rt.admin.UpdateStatus(req.Identifier, services.AccountStatus(req.Status)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (rt *Router) handleGetSummaries(w http.ResponseWriter, r *http.Request) {
	if identifier := strings.TrimSpace(r.URL.Query().Get("identifier")); identifier != "" {
		rec, err := rt.summaries.GetSummary(identifier)
		if err != nil {
			writeError(w, err)
			return
		}
		if rec == nil {
			writeError(w, services.NewNotFoundError("summary not found"))
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	records, err := rt.summaries.ListSummaries()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": records})
}

func (rt *Router) handleExportSummaries(w http.ResponseWriter, r *http.Request) {
	data, err := rt.admin.ExportSummariesCSV()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=summaries.csv")
	_, _ = w.Write(data)
}
