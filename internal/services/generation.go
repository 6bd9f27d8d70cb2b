package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Generator is the external text-generation collaborator. It may fail or
// throttle; callers decide how to recover.
type Generator interface {
	GenerateQuestions(ctx context.Context, profile *RoleProfile) ([]Question, error)
	GenerateFollowUps(ctx context.Context, question Question, answer string, profile *RoleProfile) ([]string, error)
	GenerateSummary(ctx context.Context, req SummaryRequest) (string, error)
}

// SummaryRequest carries everything the summary prompt needs.
type SummaryRequest struct {
	Profile   *RoleProfile        `json:"profile,omitempty"`
	Questions []Question          `json:"questions,omitempty"`
	Answers   map[string]string   `json:"answers"`
	FollowUps map[string][]string `json:"follow_ups,omitempty"`
}

// QuestionTarget is how many questions one interview asks for.
const QuestionTarget = 11

// minWellFormed is the floor below which a generated set is unusable.
const minWellFormed = 10

const maxFollowUps = 2

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ChatGenerator talks to an OpenAI-compatible chat-completions endpoint.
type ChatGenerator struct {
	client HTTPClient
	base   string
	key    string
	model  string
}

func NewChatGenerator(client HTTPClient, base, key, model string) *ChatGenerator {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &ChatGenerator{client: client, base: base, key: key, model: model}
}

func (g *ChatGenerator) chat(ctx context.Context, system, user string) (string, error) {
	payload := map[string]any{
		"model":       g.model,
		"temperature": 0.4,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]string{"type": "json_object"},
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, normalizeChatEndpoint(g.base), bytes.NewReader(pb))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.key != "" {
		req.Header.Set("Authorization", "Bearer "+g.key)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", NewUnavailableError(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", NewTooManyRequestsError("generation service is rate limited")
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", NewBadGatewayError(string(b))
	}
	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cc); err != nil {
		return "", NewBadGatewayError(err.Error())
	}
	if len(cc.Choices) == 0 {
		return "", NewBadGatewayError("no choices")
	}
	return cc.Choices[0].Message.Content, nil
}

func (g *ChatGenerator) GenerateQuestions(ctx context.Context, profile *RoleProfile) ([]Question, error) {
	src, err := json.Marshal(map[string]any{"profile": profile, "count": QuestionTarget})
	if err != nil {
		return nil, err
	}
	content, err := g.chat(ctx, questionsPrompt(), string(src))
	if err != nil {
		return nil, err
	}
	var out struct {
		Questions []Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, NewBadGatewayError("invalid JSON from model")
	}
	questions := make([]Question, 0, QuestionTarget)
	for _, q := range out.Questions {
		if strings.TrimSpace(q.Text) == "" {
			continue
		}
		if q.ID == "" {
			q.ID = shortID(8)
		}
		questions = append(questions, q)
		if len(questions) == QuestionTarget {
			break
		}
	}
	if len(questions) < minWellFormed {
		return nil, NewBadGatewayError("model returned too few usable questions")
	}
	return questions, nil
}

func (g *ChatGenerator) GenerateFollowUps(ctx context.Context, question Question, answer string, profile *RoleProfile) ([]string, error) {
	src, err := json.Marshal(map[string]any{
		"question": question.Text,
		"answer":   answer,
		"profile":  profile,
	})
	if err != nil {
		return nil, err
	}
	content, err := g.chat(ctx, followUpsPrompt(), string(src))
	if err != nil {
		return nil, err
	}
	var out struct {
		FollowUps []string `json:"follow_ups"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, NewBadGatewayError("invalid JSON from model")
	}
	followUps := make([]string, 0, maxFollowUps)
	for _, f := range out.FollowUps {
		if strings.TrimSpace(f) == "" {
			continue
		}
		followUps = append(followUps, f)
		if len(followUps) == maxFollowUps {
			break
		}
	}
	return followUps, nil
}

func (g *ChatGenerator) GenerateSummary(ctx context.Context, req SummaryRequest) (string, error) {
	src, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	content, err := g.chat(ctx, summaryPrompt(), string(src))
	if err != nil {
		return "", err
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return "", NewBadGatewayError("invalid JSON from model")
	}
	if strings.TrimSpace(out.Summary) == "" {
		return "", NewBadGatewayError("model returned an empty summary")
	}
	return out.Summary, nil
}

func questionsPrompt() string {
	return "You prepare a self-reflection interview for an employee. Given a role profile, return ONLY a JSON object {\"questions\":[{\"id\",\"category\",\"text\"}]} with exactly the requested count of open, personal reflection questions grouped into categories such as motivation, collaboration, growth and daily work. Questions must fit the profile's work areas and function."
}

func followUpsPrompt() string {
	return "You deepen one interview answer. Given a question, the answer and an optional role profile, return ONLY a JSON object {\"follow_ups\":[...]} with zero, one or two short follow-up questions. Return an empty list when the answer needs no deepening."
}

func summaryPrompt() string {
	return "You synthesize a self-reflection interview. Given profile, questions, answers and follow-up answers, return ONLY a JSON object {\"summary\":\"...\"} with a warm, structured prose summary of the respondent's reflections."
}

func normalizeChatEndpoint(base string) string {
	endpoint := strings.TrimRight(strings.TrimSpace(base), "/")
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}
	switch {
	case strings.HasSuffix(endpoint, "/chat/completions"):
		return endpoint
	case strings.HasSuffix(endpoint, "/v1"):
		return endpoint + "/chat/completions"
	default:
		return endpoint + "/v1/chat/completions"
	}
}

// FallbackQuestions is the fixed sequence used when no role profile
// exists at all.
func FallbackQuestions() []Question {
	return []Question{
		{ID: "q1", Category: "daily work", Text: "What does a typical working day look like for you?"},
		{ID: "q2", Category: "daily work", Text: "Which of your tasks do you find most meaningful, and why?"},
		{ID: "q3", Category: "motivation", Text: "What motivates you to get started in the morning?"},
		{ID: "q4", Category: "motivation", Text: "When did you last feel genuinely proud of something at work?"},
		{ID: "q5", Category: "collaboration", Text: "How would colleagues describe working with you?"},
		{ID: "q6", Category: "collaboration", Text: "What do you need from your team to do your best work?"},
		{ID: "q7", Category: "growth", Text: "Which skill would you most like to develop over the next year?"},
		{ID: "q8", Category: "growth", Text: "What feedback have you received recently that stuck with you?"},
		{ID: "q9", Category: "challenges", Text: "What currently drains your energy at work?"},
		{ID: "q10", Category: "challenges", Text: "Describe a recent situation you would handle differently today."},
		{ID: "q11", Category: "outlook", Text: "Where do you want your role to be in two years?"},
	}
}

func shortID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
