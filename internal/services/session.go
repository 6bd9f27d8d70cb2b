package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

type SessionState string

const (
	StateAwaitingProfile  SessionState = "awaiting_profile"
	StateAnswering        SessionState = "answering"
	StateAwaitingFollowUp SessionState = "awaiting_followup"
	StateCompleted        SessionState = "completed"
)

const maxAnswerLen = 8000

// ConfirmRequiredError signals that a profile edit would destroy existing
// answers and needs an explicit confirmation flag. The count is surfaced
// so the respondent can be warned with it.
type ConfirmRequiredError struct {
	AnswerCount int
}

func (e *ConfirmRequiredError) Error() string {
	return fmt.Sprintf("editing the profile discards %d answers; confirmation required", e.AnswerCount)
}

// SessionView is the respondent-facing snapshot of one session.
type SessionView struct {
	State       SessionState        `json:"state"`
	Step        int                 `json:"step"`
	Reached     int                 `json:"reached"`
	Questions   []Question          `json:"questions,omitempty"`
	Answers     map[string]string   `json:"answers"`
	FollowUps   map[string][]string `json:"follow_ups"`
	Profile     *RoleProfile        `json:"profile,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`

	// GenerationError reports a follow-up or summary generation failure
	// that did not block the transition. Empty means none.
	GenerationError ErrorCode `json:"generation_error,omitempty"`
}

// SessionService sequences one respondent's interview: role-profile
// capture, question generation, the per-question answer/follow-up loop,
// completion and summary. All generation calls go through the guard.
type SessionService struct {
	progress    *ProgressService
	credentials *CredentialService
	gen         Generator
	retryDelay  time.Duration
	now         func() time.Time

	mu     sync.Mutex
	guards map[string]*GenerationGuard
}

func NewSessionService(progress *ProgressService, credentials *CredentialService, gen Generator, retryDelay time.Duration) *SessionService {
	return &SessionService{
		progress:    progress,
		credentials: credentials,
		gen:         gen,
		retryDelay:  retryDelay,
		now:         func() time.Time { return time.Now().UTC() },
		guards:      map[string]*GenerationGuard{},
	}
}

func (s *SessionService) guardFor(identifier string) *GenerationGuard {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guards[identifier]
	if !ok {
		g = NewGenerationGuard(s.gen, s.retryDelay)
		s.guards[identifier] = g
	}
	return g
}

// Begin is called after a successful login. A pending identity advances
// to in_progress; an existing role profile is preserved for continuity.
func (s *SessionService) Begin(identifier string) (*SessionView, error) {
	if err := s.credentials.MarkInProgress(identifier); err != nil {
		return nil, err
	}
	return s.View(identifier)
}

func (s *SessionService) View(identifier string) (*SessionView, error) {
	p, err := s.progress.Load(identifier)
	if err != nil {
		return nil, err
	}
	return s.view(p, ""), nil
}

func (s *SessionService) view(p *Progress, genErr ErrorCode) *SessionView {
	return &SessionView{
		State:           stateOf(p),
		Step:            p.Step,
		Reached:         p.Reached,
		Questions:       p.Questions,
		Answers:         p.Answers,
		FollowUps:       p.FollowUps,
		Profile:         p.Profile,
		Summary:         p.Summary,
		CompletedAt:     p.CompletedAt,
		GenerationError: genErr,
	}
}

func stateOf(p *Progress) SessionState {
	if p.CompletedAt != nil || strings.TrimSpace(p.Summary) != "" {
		return StateCompleted
	}
	if len(p.Questions) == 0 {
		return StateAwaitingProfile
	}
	if p.Step < len(p.Questions) {
		q := p.Questions[p.Step]
		if p.HasAnswer(q.ID) && len(p.FollowUps[q.ID]) > 0 {
			return StateAwaitingFollowUp
		}
	}
	return StateAnswering
}

// SubmitProfile captures or edits the role profile. An unchanged profile
// (work areas compared order-independently) never regenerates questions.
// Editing while answers exist is destructive and requires confirm.
func (s *SessionService) SubmitProfile(ctx context.Context, identifier string, profile *RoleProfile, confirm bool) (*SessionView, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	p, err := s.progress.Load(identifier)
	if err != nil {
		return nil, err
	}
	fp := profile.Fingerprint()

	if len(p.Questions) > 0 && p.Fingerprint == fp {
		// Same profile content: replay the held question set.
		p = p.WithProfile(profile)
		if err := s.progress.Save(p); err != nil {
			return nil, err
		}
		return s.view(p, ""), nil
	}

	if len(p.Answers) > 0 && !confirm {
		return nil, &ConfirmRequiredError{AnswerCount: len(p.Answers)}
	}
	if len(p.Questions) > 0 || len(p.Answers) > 0 {
		// Changed profile: the held set no longer matches, drop it so
		// the guard regenerates instead of replaying.
		p = p.WithoutInterview()
		s.guardFor(identifier).Reset()
	}

	p = p.WithProfile(profile)
	if err := s.progress.Save(p); err != nil {
		return nil, err
	}

	questions, err := s.guardFor(identifier).RequestQuestions(ctx, profile, nil)
	if err != nil {
		return nil, err
	}
	p = p.WithQuestions(questions, fp)
	if err := s.progress.Save(p); err != nil {
		return nil, err
	}
	return s.view(p, ""), nil
}

// Start opens the interview with the fixed fallback set when no profile
// exists at all. With a profile present it behaves like a view.
func (s *SessionService) Start(identifier string) (*SessionView, error) {
	p, err := s.progress.Load(identifier)
	if err != nil {
		return nil, err
	}
	if p.Profile == nil && len(p.Questions) == 0 {
		p = p.WithQuestions(FallbackQuestions(), "")
		if err := s.progress.Save(p); err != nil {
			return nil, err
		}
	}
	return s.view(p, ""), nil
}

func (s *SessionService) questionByID(p *Progress, questionID string) (Question, int, error) {
	for i, q := range p.Questions {
		if q.ID == questionID {
			return q, i, nil
		}
	}
	return Question{}, 0, NewNotFoundError("unknown question")
}

// SubmitAnswer records a primary answer, mirrors a checkpoint, and
// attempts follow-up generation on the first save for that question. A
// failed follow-up call never blocks the transition.
func (s *SessionService) SubmitAnswer(ctx context.Context, identifier, questionID, text string) (*SessionView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, NewInvalidError("answer required")
	}
	if len(text) > maxAnswerLen {
		return nil, NewInvalidError("answer exceeds length limit")
	}
	p, err := s.progress.Load(identifier)
	if err != nil {
		return nil, err
	}
	if len(p.Questions) == 0 {
		return nil, NewConflictError("no questions generated yet")
	}
	q, idx, err := s.questionByID(p, questionID)
	if err != nil {
		return nil, err
	}

	_, attempted := p.FollowUps[q.ID]
	p = p.WithAnswer(q.ID, text)
	if err := s.progress.Save(p); err != nil {
		return nil, err
	}
	s.progress.Checkpoint(p)

	var genErr ErrorCode
	if !attempted {
		followUps, fuErr := s.guardFor(identifier).RequestFollowUps(ctx, q, text, p.Profile)
		if fuErr != nil {
			if se, ok := AsServiceError(fuErr); ok {
				genErr = se.Code
			} else {
				genErr = ErrorBadGateway
			}
			log.Printf("session: follow-up generation for %s/%s failed: %v", identifier, q.ID, fuErr)
			// Record the spent attempt so revising the answer does not
			// trigger another call.
			p = p.WithFollowUps(q.ID, nil)
		} else {
			p = p.WithFollowUps(q.ID, followUps)
		}
		if err := s.progress.Save(p); err != nil {
			return nil, err
		}
	}

	// A follow-up sub-step only exists when at least one follow-up came
	// back for the current question.
	if idx == p.Step && len(p.FollowUps[q.ID]) > 0 {
		return s.view(p, genErr), nil
	}
	p, err = s.advance(ctx, p, idx)
	if err != nil {
		return nil, err
	}
	return s.view(p, genErr), nil
}

// SubmitFollowUpAnswers stores the non-empty follow-up answers for a
// question and advances. Unanswered follow-ups are simply not persisted.
func (s *SessionService) SubmitFollowUpAnswers(ctx context.Context, identifier, questionID string, answers []string) (*SessionView, error) {
	p, err := s.progress.Load(identifier)
	if err != nil {
		return nil, err
	}
	q, idx, err := s.questionByID(p, questionID)
	if err != nil {
		return nil, err
	}
	if !p.HasAnswer(q.ID) {
		return nil, NewConflictError("primary answer missing")
	}
	followUps := p.FollowUps[q.ID]
	changed := false
	for i, a := range answers {
		a = strings.TrimSpace(a)
		if a == "" || i >= len(followUps) {
			continue
		}
		if len(a) > maxAnswerLen {
			return nil, NewInvalidError("answer exceeds length limit")
		}
		p = p.WithAnswer(FollowUpKey(q.ID, i), a)
		changed = true
	}
	if changed {
		if err := s.progress.Save(p); err != nil {
			return nil, err
		}
	}
	p, err = s.advance(ctx, p, idx)
	if err != nil {
		return nil, err
	}
	return s.view(p, ""), nil
}

// advance moves past question index idx when it is the current step.
// Revisited earlier questions never move the step.
func (s *SessionService) advance(ctx context.Context, p *Progress, idx int) (*Progress, error) {
	if idx != p.Step {
		return p, nil
	}
	next := p.Step + 1
	if next >= len(p.Questions) {
		return s.complete(ctx, p)
	}
	p = p.WithStep(next)
	if err := s.progress.Save(p); err != nil {
		return nil, err
	}
	if next == len(p.Questions)-1 {
		// Reaching the final question is the second mirror checkpoint.
		s.progress.Checkpoint(p)
	}
	return p, nil
}

// Goto jumps to any previously reached question index without losing
// state or re-triggering generation. Jumping to the summary step (index
// == question count) completes the session, but only when every question
// has a non-empty primary answer.
func (s *SessionService) Goto(ctx context.Context, identifier string, step int) (*SessionView, error) {
	p, err := s.progress.Load(identifier)
	if err != nil {
		return nil, err
	}
	if len(p.Questions) == 0 {
		return nil, NewConflictError("no questions generated yet")
	}
	if step == len(p.Questions) {
		if !p.AllAnswered() {
			return nil, NewConflictError("all questions must be answered before the summary")
		}
		p, err = s.complete(ctx, p)
		if err != nil {
			return nil, err
		}
		return s.view(p, ""), nil
	}
	if step < 0 || step > p.Reached || step >= len(p.Questions) {
		return nil, NewInvalidError("step not reached yet")
	}
	cp := p.clone()
	cp.Step = step
	if err := s.progress.Save(cp); err != nil {
		return nil, err
	}
	return s.view(cp, ""), nil
}

// complete marks the session finished, advances the identity status and
// synthesizes the summary. A failed summary call leaves the session
// completed without one; GenerateSummary retries it.
func (s *SessionService) complete(ctx context.Context, p *Progress) (*Progress, error) {
	if p.CompletedAt == nil {
		p = p.WithCompletedAt(s.now())
	}
	p = p.WithStep(len(p.Questions))
	if err := s.progress.Save(p); err != nil {
		return nil, err
	}
	if err := s.credentials.SetStatus(p.Identifier, StatusCompleted); err != nil {
		log.Printf("session: completion status for %s failed: %v", p.Identifier, err)
	}
	if strings.TrimSpace(p.Summary) == "" {
		summary, err := s.gen.GenerateSummary(ctx, SummaryRequest{
			Profile:   p.Profile,
			Questions: p.Questions,
			Answers:   p.Answers,
			FollowUps: p.FollowUps,
		})
		if err != nil {
			log.Printf("session: summary generation for %s failed: %v", p.Identifier, err)
			s.progress.Checkpoint(p)
			return p, nil
		}
		p = p.WithSummary(summary)
		if err := s.progress.Save(p); err != nil {
			return nil, err
		}
	}
	s.progress.Checkpoint(p)
	return p, nil
}

// GenerateSummary retries summary synthesis for a completed session, or
// forces it once all questions are answered.
func (s *SessionService) GenerateSummary(ctx context.Context, identifier string) (*SessionView, error) {
	p, err := s.progress.Load(identifier)
	if err != nil {
		return nil, err
	}
	if !p.AllAnswered() {
		return nil, NewConflictError("all questions must be answered before the summary")
	}
	if strings.TrimSpace(p.Summary) != "" {
		return s.view(p, ""), nil
	}
	summary, err := s.gen.GenerateSummary(ctx, SummaryRequest{
		Profile:   p.Profile,
		Questions: p.Questions,
		Answers:   p.Answers,
		FollowUps: p.FollowUps,
	})
	if err != nil {
		return nil, err
	}
	p = p.WithSummary(summary)
	if p.CompletedAt == nil {
		p = p.WithCompletedAt(s.now())
	}
	if err := s.progress.Save(p); err != nil {
		return nil, err
	}
	if err := s.credentials.SetStatus(p.Identifier, StatusCompleted); err != nil {
		log.Printf("session: completion status for %s failed: %v", p.Identifier, err)
	}
	s.progress.Checkpoint(p)
	return s.view(p, ""), nil
}

// Reset discards the whole session record.
func (s *SessionService) Reset(identifier string) error {
	s.guardFor(identifier).Reset()
	return s.progress.Reset(identifier)
}
