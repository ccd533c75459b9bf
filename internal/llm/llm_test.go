package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dshills/testgap/internal/entity"
	"github.com/dshills/testgap/internal/profile"
)

// mockProvider is a test double for Provider.
type mockProvider struct {
	responses []string // returned in order; last entry is repeated if list exhausted
	callCount int
	lastUser  string
	lastTemp  float64
}

func (m *mockProvider) Complete(_ context.Context, _, user string, _ int, temp float64) (string, error) {
	m.lastUser = user
	m.lastTemp = temp
	if len(m.responses) == 0 {
		m.callCount++
		return "", fmt.Errorf("mockProvider: no responses configured")
	}
	idx := m.callCount
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.callCount++
	return m.responses[idx], nil
}

// slowProvider blocks until its context is done.
type slowProvider struct{}

func (slowProvider) Complete(ctx context.Context, _, _ string, _ int, _ float64) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func loadGeneralProfile(t *testing.T) profile.Profile {
	t.Helper()
	prof, err := profile.Load("general")
	if err != nil {
		t.Fatalf("profile.Load(\"general\"): %v", err)
	}
	return prof
}

func functionRequest(t *testing.T) VariablesRequest {
	return VariablesRequest{
		Shape:     entity.KindFunction,
		Language:  "python",
		Framework: "pytest",
		Name:      "add",
		RawText:   "def add(a, b):\n    return a + b",
		Slots:     []string{"arrange_code", "function_call", "assert_code"},
		Profile:   loadGeneralProfile(t),
	}
}

func TestClient_Variables(t *testing.T) {
	mp := &mockProvider{responses: []string{"```json\n{\"arrange_code\": \"a, b = 1, 2\", \"function_call\": \"add(a, b)\", \"assert_code\": \"assert result == 3\"}\n```"}}
	c := &Client{Provider: mp}

	vars, err := c.Variables(context.Background(), functionRequest(t))
	if err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if vars["function_call"] != "add(a, b)" {
		t.Errorf("function_call = %q", vars["function_call"])
	}
	for _, want := range []string{"Target function: add", "```python\ndef add(a, b):", "  - assert_code: "} {
		if !strings.Contains(mp.lastUser, want) {
			t.Errorf("prompt missing %q:\n%s", want, mp.lastUser)
		}
	}
	if mp.lastTemp != DefaultTemperature {
		t.Errorf("temperature = %v, want default %v", mp.lastTemp, DefaultTemperature)
	}
}

func TestClient_ProfileTemperature(t *testing.T) {
	mp := &mockProvider{responses: []string{`{"a": "b"}`}}
	c := &Client{Provider: mp, Temperature: 0.3}
	req := functionRequest(t)
	req.Profile = profile.Profile{Temperature: 0.7}
	if _, err := c.Variables(context.Background(), req); err != nil {
		t.Fatalf("Variables: %v", err)
	}
	if mp.lastTemp != 0.7 {
		t.Errorf("temperature = %v, want 0.7", mp.lastTemp)
	}
	if c.Temperature != 0.3 {
		t.Errorf("WithTemperature mutated the client: %v", c.Temperature)
	}
}

func TestClient_VariablesMalformed(t *testing.T) {
	c := &Client{Provider: &mockProvider{responses: []string{"I cannot help with that."}}}
	_, err := c.Variables(context.Background(), functionRequest(t))
	if !errors.Is(err, ErrNoVariables) {
		t.Errorf("err = %v, want ErrNoVariables", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	c := &Client{Provider: slowProvider{}, Timeout: 20 * time.Millisecond}
	start := time.Now()
	_, err := c.Complete(context.Background(), "s", "u")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout not enforced: took %v", time.Since(start))
	}
}

func TestClient_NilProvider(t *testing.T) {
	var c *Client
	if _, err := c.Complete(context.Background(), "s", "u"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("nil client err = %v, want ErrUnavailable", err)
	}
}

func TestClient_Review(t *testing.T) {
	mp := &mockProvider{responses: []string{"```json\n{\"issues\": [\"no edge cases\"], \"suggestions\": [\"test b=0\"]}\n```"}}
	c := &Client{Provider: mp}
	crit, err := c.Review(context.Background(), "def test_add(): assert add(1, 2) == 3", "def add(a, b): return a + b", "python")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if len(crit.Issues) != 1 || len(crit.Suggestions) != 1 {
		t.Errorf("Review = %+v", crit)
	}
	if !strings.Contains(mp.lastUser, "Test code:\n```python\ndef test_add()") {
		t.Errorf("review prompt missing the test code:\n%s", mp.lastUser)
	}
}

func TestClient_FreeForm(t *testing.T) {
	mp := &mockProvider{responses: []string{"Sure.\n```go\npackage store\n\nfunc TestX(t *testing.T) {}\n```\n"}}
	c := &Client{Provider: mp}
	req := functionRequest(t)
	req.Language, req.Framework = "go", "gotest"
	code, err := c.FreeForm(context.Background(), req)
	if err != nil {
		t.Fatalf("FreeForm: %v", err)
	}
	if !strings.HasPrefix(code, "package store") {
		t.Errorf("FreeForm = %q", code)
	}
}

func TestNewProvider_Dispatch(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	for _, name := range []string{"offline", "none", "OFFLINE"} {
		p, err := NewProvider(name, "")
		if err != nil {
			t.Fatalf("NewProvider(%q): %v", name, err)
		}
		if _, err := p.Complete(context.Background(), "", "", 1, 0); !errors.Is(err, ErrUnavailable) {
			t.Errorf("offline Complete err = %v, want ErrUnavailable", err)
		}
	}
	for _, name := range []string{"anthropic", "claude", "openai", "google", "gemini"} {
		if _, err := NewProvider(name, ""); err == nil {
			t.Errorf("NewProvider(%q) without API key should fail", name)
		}
	}
	if _, err := NewProvider("bogus", ""); err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("NewProvider(bogus) err = %v", err)
	}
}

func TestNewProvider_WithKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GOOGLE_API_KEY", "")
	for _, name := range []string{"claude", "openai", "gemini"} {
		if _, err := NewProvider(name, ""); err != nil {
			t.Errorf("NewProvider(%q): %v", name, err)
		}
	}
}

func TestDefaultModel(t *testing.T) {
	for name, want := range map[string]string{
		"":        "claude-sonnet-4-5",
		"claude":  "claude-sonnet-4-5",
		"openai":  "gpt-4o",
		"gemini":  "gemini-1.5-pro",
		"offline": "",
	} {
		if got := DefaultModel(name); got != want {
			t.Errorf("DefaultModel(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSlotHint(t *testing.T) {
	if got := SlotHint("assert_code"); !strings.Contains(got, "assertion") {
		t.Errorf("SlotHint(assert_code) = %q", got)
	}
	if got := SlotHint("teardown_code"); got != "code for the teardown code" {
		t.Errorf("SlotHint(teardown_code) = %q", got)
	}
}
