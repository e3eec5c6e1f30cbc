package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"screen-chat-llm/src/config"
	"screen-chat-llm/src/llm"
)

// fakeAPI serves both streamed and plain chat completions.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llm.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"A red \"}}]}\n\n")
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"square\"}}]}\n\n")
			io.WriteString(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"content":"A red square"}}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv(config.APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))
	t.Setenv(config.APIKeyEnvVar, "sk-test-abcdef")
	t.Setenv("API_BASE_URL", baseURL)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
}

func writePNG(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "square.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	err := runWithArgs(context.Background(), append([]string{"screen-chat"}, args...), stdin, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestStreamsAnswerToStdout(t *testing.T) {
	setupEnv(t, fakeAPI(t).URL)
	out, errOut, err := runCLI(t, nil, "--file", writePNG(t), "--prompt", "what is it?")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "A red square\n" {
		t.Fatalf("stdout = %q", out)
	}
	if errOut != "" {
		t.Fatalf("stderr must be empty without --verbose, got %q", errOut)
	}
}

func TestNoStreamAndJSON(t *testing.T) {
	setupEnv(t, fakeAPI(t).URL)
	file := writePNG(t)

	t.Run("NoStream", func(t *testing.T) {
		out, _, err := runCLI(t, nil, "--file", file, "--no-stream")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out != "A red square\n" {
			t.Fatalf("stdout = %q", out)
		}
	})

	t.Run("JSONOutput", func(t *testing.T) {
		out, _, err := runCLI(t, nil, "-file", file, "-json")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		var result Result
		if err := json.Unmarshal([]byte(out), &result); err != nil {
			t.Fatalf("Failed to parse JSON %q: %v", out, err)
		}
		if result.Answer != "A red square" || !result.Complete || result.Source != file {
			t.Fatalf("result = %+v", result)
		}
		if result.Prompt == "" || result.Model == "" {
			t.Fatalf("result missing prompt/model: %+v", result)
		}
	})

	t.Run("StdinInput", func(t *testing.T) {
		data, err := os.ReadFile(file)
		if err != nil {
			t.Fatal(err)
		}
		out, _, err := runCLI(t, bytes.NewReader(data), "--file", "-")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out != "A red square\n" {
			t.Fatalf("stdout = %q", out)
		}
	})
}

func TestStdoutStderrSeparation(t *testing.T) {
	setupEnv(t, fakeAPI(t).URL)
	file := writePNG(t)

	t.Run("VerboseToStderrOnly", func(t *testing.T) {
		out, errOut, err := runCLI(t, nil, "--file", file, "--verbose")
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out != "A red square\n" {
			t.Fatalf("stdout = %q", out)
		}
		if !strings.Contains(errOut, "[verbose]") {
			t.Fatalf("expected verbose output on stderr, got %q", errOut)
		}
		if strings.Contains(errOut, "sk-test-abcdef") {
			t.Fatal("API key leaked to stderr")
		}
	})

	t.Run("ErrorReturned", func(t *testing.T) {
		out, _, err := runCLI(t, nil, "--file", filepath.Join(t.TempDir(), "nope.png"))
		if err == nil {
			t.Fatal("expected error for a missing file")
		}
		if out != "" {
			t.Fatalf("stdout must stay empty on error, got %q", out)
		}
	})
}

func TestAPIErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	setupEnv(t, srv.URL)

	_, _, err := runCLI(t, nil, "--file", writePNG(t))
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want APIError 429", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	t.Setenv(config.APIKeyEnvVar, "")

	_, _, err := runCLI(t, nil, "--file", writePNG(t))
	var cfgErr *llm.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestRequiresFileOrRunOnce(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	if _, _, err := runCLI(t, nil); !errors.Is(err, errNeedsSource) {
		t.Fatalf("err = %v", err)
	}
	if _, _, err := runCLI(t, nil, "--file", "x.png", "--run-once"); err == nil {
		t.Fatal("--file and --run-once must be mutually exclusive")
	}
}

func TestRunOnceWithoutResident(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback unavailable: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	t.Setenv("SINGLEINSTANCE_PORT_START", strconv.Itoa(port))
	t.Setenv("SINGLEINSTANCE_PORT_END", strconv.Itoa(port))
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	if _, _, err := runCLI(t, nil, "--run-once", "--prompt", "hi"); !errors.Is(err, errNoResident) {
		t.Fatalf("err = %v, want errNoResident", err)
	}
}

func TestPNGValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"Valid PNG header", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0}, false},
		{"Empty", nil, true},
		{"JPEG header", []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0, 0, 0, 0}, true},
		{"Too short", []byte{0x89, 'P', 'N'}, true},
		{"Too large", append(append([]byte{}, pngMagic...), make([]byte, maxFileSize)...), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePNG(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validatePNG err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeLegacyArgs(t *testing.T) {
	got := normalizeLegacyArgs([]string{"screen-chat", "-file", "a.png", "-json=true", "--verbose", "-x"})
	want := []string{"screen-chat", "--file", "a.png", "--json=true", "--verbose", "-x"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("normalizeLegacyArgs = %q, want %q", got, want)
	}
}
