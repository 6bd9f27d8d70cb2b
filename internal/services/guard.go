package services

import (
	"context"
	"sync"
	"time"
)

// DefaultRetryDelay is how long the guard waits before its single
// automatic retry after a rate-limited question generation.
const DefaultRetryDelay = 30 * time.Second

type questionsOutcome struct {
	questions []Question
	err       error
}

// GenerationGuard is the one authoritative gate in front of the
// generation service: at most one in-flight question generation, at most
// one in-flight follow-up generation per question, bounded retry on rate
// limiting. Concurrent callers never trigger duplicate calls; they
// observe the in-flight request's outcome.
type GenerationGuard struct {
	gen        Generator
	retryDelay time.Duration

	mu           sync.Mutex
	inFlight     bool
	waiters      []chan questionsOutcome
	held         []Question
	fingerprint  string
	followUpBusy map[string]bool
}

func NewGenerationGuard(gen Generator, retryDelay time.Duration) *GenerationGuard {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &GenerationGuard{
		gen:          gen,
		retryDelay:   retryDelay,
		followUpBusy: map[string]bool{},
	}
}

// RequestQuestions returns a question set for the profile. It is a no-op
// when the caller already holds a non-empty set (passed as existing) or
// when the guard holds a resolved set for the same profile fingerprint.
// On a rate-limit failure it schedules exactly one retry after the fixed
// delay; the wait is canceled by ctx.
func (g *GenerationGuard) RequestQuestions(ctx context.Context, profile *RoleProfile, existing []Question) ([]Question, error) {
	if len(existing) > 0 {
		return existing, nil
	}
	fp := profile.Fingerprint()

	g.mu.Lock()
	if len(g.held) > 0 && g.fingerprint == fp {
		held := append([]Question(nil), g.held...)
		g.mu.Unlock()
		return held, nil
	}
	if g.inFlight {
		ch := make(chan questionsOutcome, 1)
		g.waiters = append(g.waiters, ch)
		g.mu.Unlock()
		select {
		case out := <-ch:
			return out.questions, out.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.inFlight = true
	g.mu.Unlock()

	questions, err := g.generateWithRetry(ctx, profile)

	g.mu.Lock()
	g.inFlight = false
	if err == nil {
		g.held = append([]Question(nil), questions...)
		g.fingerprint = fp
	}
	waiters := g.waiters
	g.waiters = nil
	g.mu.Unlock()

	for _, ch := range waiters {
		ch <- questionsOutcome{questions: questions, err: err}
	}
	return questions, err
}

func (g *GenerationGuard) generateWithRetry(ctx context.Context, profile *RoleProfile) ([]Question, error) {
	questions, err := g.gen.GenerateQuestions(ctx, profile)
	if !IsCode(err, ErrorTooManyRequests) {
		return questions, err
	}
	timer := time.NewTimer(g.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return g.gen.GenerateQuestions(ctx, profile)
}

// RequestFollowUps is single-shot: no retry, and a failure simply yields
// an empty list so the interview proceeds without a follow-up sub-step.
// A concurrent call for the same question observes the in-flight state
// and backs off empty.
func (g *GenerationGuard) RequestFollowUps(ctx context.Context, question Question, answer string, profile *RoleProfile) ([]string, error) {
	g.mu.Lock()
	if g.followUpBusy[question.ID] {
		g.mu.Unlock()
		return nil, nil
	}
	g.followUpBusy[question.ID] = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.followUpBusy, question.ID)
		g.mu.Unlock()
	}()

	followUps, err := g.gen.GenerateFollowUps(ctx, question, answer, profile)
	if err != nil {
		return nil, err
	}
	if len(followUps) > maxFollowUps {
		followUps = followUps[:maxFollowUps]
	}
	return followUps, nil
}

// Reset drops the held question set. The next RequestQuestions call
// regenerates regardless of fingerprint.
func (g *GenerationGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = nil
	g.fingerprint = ""
}
