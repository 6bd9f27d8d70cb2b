package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// AccountView is the redacted administrative listing entry. Status is
// derived from the summary record set, not the stored identity status.
type AccountView struct {
	Identifier  string        `json:"identifier"`
	DisplayName string        `json:"display_name,omitempty"`
	Department  string        `json:"department,omitempty"`
	Status      AccountStatus `json:"status"`
	AnswerCount int           `json:"answer_count"`
	HasSummary  bool          `json:"has_summary"`
}

// GeneratedAccount pairs a bulk-generated identifier with its one-time
// plaintext secret bundle for handout.
type GeneratedAccount struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// AdminService covers identity administration and summary visibility.
type AdminService struct {
	credentials *CredentialService
	summaries   SummaryStore
	secretGen   func() string
}

func NewAdminService(credentials *CredentialService, summaries SummaryStore) *AdminService {
	return &AdminService{
		credentials: credentials,
		summaries:   summaries,
		secretGen:   func() string { return shortID(10) },
	}
}

// ListAccounts merges identity records with the summary mirror. The
// derived status wins over the stored one: completed when a summary
// exists, in_progress when any answer exists, else pending.
func (s *AdminService) ListAccounts() ([]*AccountView, error) {
	accounts, err := s.credentials.List()
	if err != nil {
		return nil, err
	}
	records, err := s.summaries.ListSummaries()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*SummaryRecord, len(records))
	for _, r := range records {
		byID[r.Identifier] = r
	}
	out := make([]*AccountView, 0, len(accounts))
	for _, a := range accounts {
		view := &AccountView{
			Identifier:  a.Identifier,
			DisplayName: a.DisplayName,
			Department:  a.Department,
			Status:      a.Status,
		}
		if rec, ok := byID[a.Identifier]; ok {
			view.AnswerCount = len(rec.Answers)
			view.HasSummary = strings.TrimSpace(rec.Summary) != ""
			view.Status = deriveFromRecord(rec)
		} else {
			view.Status = StatusPending
		}
		out = append(out, view)
	}
	return out, nil
}

func deriveFromRecord(rec *SummaryRecord) AccountStatus {
	if strings.TrimSpace(rec.Summary) != "" {
		return StatusCompleted
	}
	if len(rec.Answers) > 0 {
		return StatusInProgress
	}
	return StatusPending
}

// UpdateStatus writes an explicit lifecycle status onto the identity
// record. Values outside the three statuses are rejected.
func (s *AdminService) UpdateStatus(identifier string, status AccountStatus) error {
	if strings.TrimSpace(identifier) == "" {
		return NewInvalidError("identifier required")
	}
	return s.credentials.SetStatus(identifier, status)
}

// BulkGenerate creates count fresh accounts with random secrets. The
// plaintext secrets are returned exactly once.
func (s *AdminService) BulkGenerate(count int, prefix string) ([]*GeneratedAccount, error) {
	if count < 1 || count > 500 {
		return nil, NewInvalidError("count must be between 1 and 500")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "emp"
	}
	existing, err := s.credentials.List()
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(existing))
	for _, a := range existing {
		taken[a.Identifier] = true
	}
	out := make([]*GeneratedAccount, 0, count)
	n := 1
	for len(out) < count {
		id := fmt.Sprintf("%s_%d", prefix, n)
		n++
		if taken[id] {
			continue
		}
		secret := s.secretGen()
		if _, err := s.credentials.Upsert(id, secret, AccountMeta{}); err != nil {
			return out, err
		}
		out = append(out, &GeneratedAccount{Identifier: id, Secret: secret})
	}
	return out, nil
}

// ExportSummariesCSV renders the summary record set for offline review.
func (s *AdminService) ExportSummariesCSV() ([]byte, error) {
	views, err := s.ListAccounts()
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"identifier", "display_name", "department", "status", "answer_count", "has_summary"})
	for _, v := range views {
		rec := []string{
			v.Identifier,
			v.DisplayName,
			v.Department,
			string(v.Status),
			strconv.Itoa(v.AnswerCount),
			strconv.FormatBool(v.HasSummary),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
