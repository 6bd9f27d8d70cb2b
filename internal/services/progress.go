package services

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reflekt-app/reflekt/internal/storage"
)

// ExperienceBands and ContactLevels are the accepted enum values on a
// role profile.
var (
	ExperienceBands = []string{"0-2", "3-5", "6-10", "10+"}
	ContactLevels   = []string{"none", "occasional", "frequent", "daily"}
)

const maxFieldLen = 500

// RoleProfile is the respondent's structured self-description used to
// personalize generated questions.
type RoleProfile struct {
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	WorkAreas       []string `json:"work_areas"`
	Function        string   `json:"function"`
	Experience      string   `json:"experience"`
	CustomerContact string   `json:"customer_contact"`
	DailyTasks      string   `json:"daily_tasks,omitempty"`
}

func (p *RoleProfile) Validate() error {
	if p == nil {
		return NewInvalidError("profile required")
	}
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return NewInvalidError("first_name/last_name required")
	}
	if len(p.WorkAreas) == 0 {
		return NewInvalidError("work_areas: at least one required")
	}
	if strings.TrimSpace(p.Function) == "" {
		return NewInvalidError("function required")
	}
	if !containsString(ExperienceBands, p.Experience) {
		return NewInvalidError("experience: unknown band")
	}
	if !containsString(ContactLevels, p.CustomerContact) {
		return NewInvalidError("customer_contact: unknown level")
	}
	for _, f := range []string{p.FirstName, p.LastName, p.Function, p.DailyTasks} {
		if len(f) > maxFieldLen {
			return NewInvalidError("field exceeds length limit")
		}
	}
	for _, a := range p.WorkAreas {
		if strings.TrimSpace(a) == "" || len(a) > maxFieldLen {
			return NewInvalidError("work_areas: invalid entry")
		}
	}
	return nil
}

// Fingerprint canonicalizes the profile content. Work areas compare
// order-independently; two profiles with the same fingerprint must not
// trigger a second question generation.
func (p *RoleProfile) Fingerprint() string {
	if p == nil {
		return ""
	}
	areas := make([]string, 0, len(p.WorkAreas))
	for _, a := range p.WorkAreas {
		areas = append(areas, strings.ToLower(strings.TrimSpace(a)))
	}
	sort.Strings(areas)
	parts := []string{
		strings.ToLower(strings.TrimSpace(p.FirstName)),
		strings.ToLower(strings.TrimSpace(p.LastName)),
		strings.Join(areas, ","),
		strings.ToLower(strings.TrimSpace(p.Function)),
		p.Experience,
		p.CustomerContact,
		strings.TrimSpace(p.DailyTasks),
	}
	return strings.Join(parts, "|")
}

// Question is one generated interview question. Order within a session is
// fixed once generated.
type Question struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Text     string `json:"text"`
}

// FollowUpKey names the answer-map entry for follow-up index idx of a
// question.
func FollowUpKey(questionID string, idx int) string {
	return fmt.Sprintf("%s_followup_%d", questionID, idx)
}

// Progress is one respondent's interview record. The local tier owns it;
// the remote mirror only ever receives copies.
type Progress struct {
	Identifier  string              `json:"identifier"`
	Step        int                 `json:"step"`
	Reached     int                 `json:"reached"`
	Answers     map[string]string   `json:"answers"`
	FollowUps   map[string][]string `json:"follow_ups"`
	Questions   []Question          `json:"questions,omitempty"`
	Profile     *RoleProfile        `json:"profile,omitempty"`
	Fingerprint string              `json:"fingerprint,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func NewProgress(identifier string) *Progress {
	return &Progress{
		Identifier: identifier,
		Answers:    map[string]string{},
		FollowUps:  map[string][]string{},
	}
}

func (p *Progress) clone() *Progress {
	cp := *p
	cp.Answers = make(map[string]string, len(p.Answers))
	for k, v := range p.Answers {
		cp.Answers[k] = v
	}
	cp.FollowUps = make(map[string][]string, len(p.FollowUps))
	for k, v := range p.FollowUps {
		cp.FollowUps[k] = append([]string(nil), v...)
	}
	cp.Questions = append([]Question(nil), p.Questions...)
	if p.Profile != nil {
		prof := *p.Profile
		prof.WorkAreas = append([]string(nil), p.Profile.WorkAreas...)
		cp.Profile = &prof
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// WithAnswer returns a copy with the answer recorded. Entries only ever
// grow; a full reset is the one way to drop them.
func (p *Progress) WithAnswer(key, text string) *Progress {
	cp := p.clone()
	cp.Answers[key] = text
	return cp
}

func (p *Progress) WithFollowUps(questionID string, followUps []string) *Progress {
	cp := p.clone()
	cp.FollowUps[questionID] = append([]string(nil), followUps...)
	return cp
}

func (p *Progress) WithProfile(profile *RoleProfile) *Progress {
	cp := p.clone()
	prof := *profile
	prof.WorkAreas = append([]string(nil), profile.WorkAreas...)
	cp.Profile = &prof
	return cp
}

func (p *Progress) WithQuestions(questions []Question, fingerprint string) *Progress {
	cp := p.clone()
	cp.Questions = append([]Question(nil), questions...)
	cp.Fingerprint = fingerprint
	cp.Step = 0
	cp.Reached = 0
	return cp
}

func (p *Progress) WithSummary(summary string) *Progress {
	cp := p.clone()
	cp.Summary = summary
	return cp
}

func (p *Progress) WithStep(step int) *Progress {
	cp := p.clone()
	cp.Step = step
	if step > cp.Reached {
		cp.Reached = step
	}
	return cp
}

func (p *Progress) WithCompletedAt(t time.Time) *Progress {
	cp := p.clone()
	cp.CompletedAt = &t
	return cp
}

// WithoutInterview drops questions, answers, follow-ups and summary while
// keeping the profile. This is the destructive profile-edit reset.
func (p *Progress) WithoutInterview() *Progress {
	cp := p.clone()
	cp.Answers = map[string]string{}
	cp.FollowUps = map[string][]string{}
	cp.Questions = nil
	cp.Fingerprint = ""
	cp.Summary = ""
	cp.CompletedAt = nil
	cp.Step = 0
	cp.Reached = 0
	return cp
}

// HasAnswer reports a non-empty primary answer for a question.
func (p *Progress) HasAnswer(questionID string) bool {
	return strings.TrimSpace(p.Answers[questionID]) != ""
}

// AllAnswered reports whether every question has a non-empty primary
// answer. Follow-up answers do not count toward completion.
func (p *Progress) AllAnswered() bool {
	if len(p.Questions) == 0 {
		return false
	}
	for _, q := range p.Questions {
		if !p.HasAnswer(q.ID) {
			return false
		}
	}
	return true
}

// DeriveStatus computes the status shown in administrative listings. It
// overrides whatever status the identity record carries: completed when a
// summary exists, in_progress when any answer exists, pending otherwise.
func DeriveStatus(p *Progress) AccountStatus {
	if p == nil {
		return StatusPending
	}
	if strings.TrimSpace(p.Summary) != "" {
		return StatusCompleted
	}
	if len(p.Answers) > 0 {
		return StatusInProgress
	}
	return StatusPending
}

// SummaryRecord is the write-mostly shadow copy kept for administrative
// visibility. It is never read back into the local record.
type SummaryRecord struct {
	Identifier string              `json:"identifier"`
	Summary    string              `json:"summary,omitempty"`
	Profile    *RoleProfile        `json:"profile,omitempty"`
	Answers    map[string]string   `json:"answers,omitempty"`
	FollowUps  map[string][]string `json:"follow_ups,omitempty"`
	Questions  []Question          `json:"questions,omitempty"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// SummaryStore is the remote record set behind the mirror and the
// administrative listing.
type SummaryStore interface {
	UpsertSummary(rec *SummaryRecord) error
	GetSummary(identifier string) (*SummaryRecord, error)
	ListSummaries() ([]*SummaryRecord, error)
}

// ProgressService owns the local (authoritative) tier and pushes copies
// to the remote mirror at checkpoints. Mirror failures are logged and
// never surface into the interactive flow.
type ProgressService struct {
	mu      sync.Mutex
	backend storage.Backend
	mirror  SummaryStore
	records map[string]*Progress
	loaded  bool
	now     func() time.Time

	// checkpoint ships a record copy to the mirror. The default is a
	// fire-and-forget goroutine; tests swap in a synchronous variant.
	checkpoint func(rec *SummaryRecord)
}

func NewProgressService(backend storage.Backend, mirror SummaryStore) *ProgressService {
	s := &ProgressService{
		backend: backend,
		mirror:  mirror,
		records: map[string]*Progress{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.checkpoint = func(rec *SummaryRecord) {
		go func() {
			if err := s.mirror.UpsertSummary(rec); err != nil {
				log.Printf("progress: mirror write for %s failed: %v", rec.Identifier, err)
			}
		}()
	}
	return s
}

func (s *ProgressService) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	var records []*Progress
	if err := s.backend.Load(&records); err != nil {
		return err
	}
	for _, p := range records {
		if p == nil || p.Identifier == "" {
			continue
		}
		if p.Answers == nil {
			p.Answers = map[string]string{}
		}
		if p.FollowUps == nil {
			p.FollowUps = map[string][]string{}
		}
		s.records[p.Identifier] = p
	}
	s.loaded = true
	return nil
}

func (s *ProgressService) flush() error {
	records := make([]*Progress, 0, len(s.records))
	for _, p := range s.records {
		records = append(records, p)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Identifier < records[j].Identifier })
	return s.backend.Store(records)
}

// Load returns the record for identifier, or an empty default.
func (s *ProgressService) Load(identifier string) (*Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	p, ok := s.records[identifier]
	if !ok {
		return NewProgress(identifier), nil
	}
	return p.clone(), nil
}

// Save stamps UpdatedAt and writes the full local record set.
func (s *ProgressService) Save(p *Progress) error {
	if p == nil || p.Identifier == "" {
		return NewInvalidError("progress record requires an identifier")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	cp := p.clone()
	cp.UpdatedAt = s.now()
	s.records[cp.Identifier] = cp
	return s.flush()
}

// Reset discards the record entirely.
func (s *ProgressService) Reset(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	delete(s.records, identifier)
	return s.flush()
}

// Checkpoint mirrors the record to the remote tier, best effort.
func (s *ProgressService) Checkpoint(p *Progress) {
	if s.mirror == nil || p == nil {
		return
	}
	cp := p.clone()
	s.checkpoint(&SummaryRecord{
		Identifier: cp.Identifier,
		Summary:    cp.Summary,
		Profile:    cp.Profile,
		Answers:    cp.Answers,
		FollowUps:  cp.FollowUps,
		Questions:  cp.Questions,
		UpdatedAt:  s.now(),
	})
}

// SetCheckpointFunc overrides mirror delivery, for tests.
func (s *ProgressService) SetCheckpointFunc(fn func(rec *SummaryRecord)) {
	s.checkpoint = fn
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
