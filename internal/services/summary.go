package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reflekt-app/reflekt/internal/storage"
)

// FileSummaryStore keeps the remote summary record set in a single
// whole-file-overwrite backend. It is the default SummaryStore when no
// database is configured.
type FileSummaryStore struct {
	mu      sync.Mutex
	backend storage.Backend
	records map[string]*SummaryRecord
	loaded  bool
}

var _ SummaryStore = (*FileSummaryStore)(nil)

func NewFileSummaryStore(backend storage.Backend) *FileSummaryStore {
	return &FileSummaryStore{backend: backend, records: map[string]*SummaryRecord{}}
}

func (s *FileSummaryStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	var records []*SummaryRecord
	if err := s.backend.Load(&records); err != nil {
		return err
	}
	for _, r := range records {
		if r != nil && r.Identifier != "" {
			s.records[r.Identifier] = r
		}
	}
	s.loaded = true
	return nil
}

func (s *FileSummaryStore) UpsertSummary(rec *SummaryRecord) error {
	if rec == nil || strings.TrimSpace(rec.Identifier) == "" {
		return NewInvalidError("identifier required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	cp := *rec
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.records[cp.Identifier] = &cp
	records := make([]*SummaryRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Identifier < records[j].Identifier })
	return s.backend.Store(records)
}

func (s *FileSummaryStore) GetSummary(identifier string) (*SummaryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	r, ok := s.records[identifier]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *FileSummaryStore) ListSummaries() ([]*SummaryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]*SummaryRecord, 0, len(s.records))
	for _, r := range s.records {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}
