//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"testing"
	"time"
)

func baseURL() string {
	if v := os.Getenv("REFLEKT_TEST_BASE_URL"); strings.TrimSpace(v) != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://127.0.0.1:8080"
}

func adminSecret() string {
	if v := os.Getenv("REFLEKT_TEST_ADMIN_SECRET"); strings.TrimSpace(v) != "" {
		return v
	}
	return "admin"
}

// TestReflectionJourneyIntegration drives one respondent through the
// whole interview against a running server: the admin mints an account,
// the respondent logs in, submits a profile, answers every question and
// ends up in the administrative export.
func TestReflectionJourneyIntegration(t *testing.T) {
	base := baseURL()
	adminClient := newClient(t)
	respondentClient := newClient(t)

	doPost(t, adminClient, base+"/api/admin/login", map[string]string{
		"username": "admin",
		"secret":   adminSecret(),
	}, nil)

	prefix := fmt.Sprintf("it%d", time.Now().UnixNano()%1_000_000)
	var bulkResp struct {
		Accounts []struct {
			Identifier string `json:"identifier"`
			Secret     string `json:"secret"`
		} `json:"accounts"`
	}
	doPost(t, adminClient, base+"/api/admin/accounts/bulk", map[string]any{
		"count":  1,
		"prefix": prefix,
	}, &bulkResp)
	if len(bulkResp.Accounts) != 1 || bulkResp.Accounts[0].Secret == "" {
		t.Fatalf("unexpected bulk response: %+v", bulkResp)
	}
	account := bulkResp.Accounts[0]

	var loginResp struct {
		OK      bool `json:"ok"`
		Session struct {
			State string `json:"state"`
		} `json:"session"`
	}
	doPost(t, respondentClient, base+"/api/login", map[string]string{
		"identifier": account.Identifier,
		"secret":     account.Secret,
	}, &loginResp)
	if !loginResp.OK || loginResp.Session.State != "awaiting_profile" {
		t.Fatalf("unexpected login response: %+v", loginResp)
	}

	var session struct {
		State     string `json:"state"`
		Step      int    `json:"step"`
		Questions []struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"questions"`
		FollowUps map[string][]string `json:"follow_ups"`
		Summary   string              `json:"summary"`
	}
	doPost(t, respondentClient, base+"/api/session/profile", map[string]any{
		"profile": map[string]any{
			"first_name":       "Integration",
			"last_name":        "Probe",
			"work_areas":       []string{"support"},
			"function":         "agent",
			"experience":       "3-5",
			"customer_contact": "daily",
		},
	}, &session)
	if len(session.Questions) == 0 {
		t.Fatalf("profile submission yielded no questions: %+v", session)
	}

	for i, q := range session.Questions {
		doPost(t, respondentClient, base+"/api/session/answer", map[string]any{
			"question_id": q.ID,
			"text":        fmt.Sprintf("Integration answer %d with enough substance to pass.", i+1),
		}, &session)
		if session.State == "awaiting_followup" {
			answers := make([]string, len(session.FollowUps[q.ID]))
			for j := range answers {
				answers[j] = "Some follow-up detail."
			}
			doPost(t, respondentClient, base+"/api/session/followups", map[string]any{
				"question_id": q.ID,
				"answers":     answers,
			}, &session)
		}
	}
	if session.State != "completed" {
		t.Fatalf("interview did not complete: %+v", session)
	}

	req, err := http.NewRequest(http.MethodGet, base+"/api/admin/export", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := adminClient.Do(req)
	if err != nil {
		t.Fatalf("export request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("export status %d body %s", resp.StatusCode, string(body))
	}
	csvData, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read export data: %v", err)
	}
	if !strings.Contains(string(csvData), account.Identifier) {
		t.Fatalf("export csv did not contain %s; csv=%s", account.Identifier, string(csvData))
	}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Timeout: 30 * time.Second, Jar: jar}
}

func doPost(t *testing.T, client *http.Client, url string, body any, out any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("http post %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("unexpected status %d for %s: %s", resp.StatusCode, url, string(bodyBytes))
	}
	if out != nil {
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
}
