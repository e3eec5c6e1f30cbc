package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "test_api_key", Model: "test_model", BaseURL: srv.URL + "/v1", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{Model: "test_model"})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	c, err := New(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Model() != DefaultModel {
		t.Errorf("model = %q, want %q", c.Model(), DefaultModel)
	}
	if c.url != DefaultBaseURL+"/chat/completions" {
		t.Errorf("url = %q", c.url)
	}
}

func TestBuildImageMessage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	msgs := BuildImageMessage("what is this?", png)
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content[0].Text != imageSystemPrompt {
		t.Errorf("unexpected system message %+v", msgs[0])
	}
	user := msgs[1]
	if user.Role != "user" || len(user.Content) != 2 {
		t.Fatalf("unexpected user message %+v", user)
	}
	if user.Content[0].Type != "text" || user.Content[0].Text != "what is this?" {
		t.Errorf("unexpected prompt part %+v", user.Content[0])
	}
	img := user.Content[1]
	if img.Type != "image_url" || img.ImageURL == nil {
		t.Fatalf("unexpected image part %+v", img)
	}
	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	if img.ImageURL.URL != want {
		t.Errorf("image url = %q, want %q", img.ImageURL.URL, want)
	}
}

func TestAskSendsWireFormat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test_api_key" {
			t.Errorf("Authorization = %q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["model"] != "test_model" || req["stream"] != false || req["temperature"] != Temperature {
			t.Errorf("unexpected request fields %v", req)
		}
		if _, ok := req["provider"]; ok {
			t.Errorf("provider preferences sent without providers")
		}
		if msgs, _ := req["messages"].([]any); len(msgs) != 2 {
			t.Errorf("messages = %v", req["messages"])
		}
		io.WriteString(w, `{"choices":[{"message":{"content":"a cat"}}]}`)
	})

	got, err := c.Ask(context.Background(), BuildImageMessage("what?", []byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "a cat" {
		t.Fatalf("Ask = %q", got)
	}
}

func TestAskAPIError(t *testing.T) {
	const body = `{"error":{"message":"boom"}}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, body)
	})

	_, err := c.Ask(context.Background(), BuildTextMessages("s", "u"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != 500 || apiErr.Body != body {
		t.Fatalf("APIError = %+v", apiErr)
	}
}

func TestAskNoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	})
	if _, err := c.Ask(context.Background(), BuildTextMessages("s", "u")); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestAskEmbeddedError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":{"message":"quota","type":"billing","code":402}}`)
	})
	_, err := c.Ask(context.Background(), BuildTextMessages("s", "u"))
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("expected embedded API error, got %v", err)
	}
}

func TestProvidersAreForwarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Provider == nil || len(req.Provider.Order) != 2 || *req.Provider.AllowFallbacks {
			t.Errorf("provider = %+v", req.Provider)
		}
		if r.Header.Get("X-Title") != "Screen Chat" {
			t.Errorf("X-Title = %q", r.Header.Get("X-Title"))
		}
		io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL, Providers: []string{"a", "b"}, Title: "Screen Chat", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestAPIErrorTruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", 299) + strings.Repeat("é", 10)
	msg := (&APIError{Status: 502, Body: body}).Error()
	if !utf8.ValidString(msg) {
		t.Fatalf("message is not valid UTF-8: %q", msg)
	}
	if !strings.HasSuffix(msg, strings.Repeat("a", 299)+"...") {
		t.Fatalf("message = %q", msg)
	}
}
