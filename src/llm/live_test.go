package llm

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"
	"time"
)

// Live tests call the configured endpoint and cost tokens.
func liveClient(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("SCREEN_CHAT_LIVE_TESTS") != "1" {
		t.Skip("set SCREEN_CHAT_LIVE_TESTS=1 to call the real API")
	}
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		t.Skip("OPENAI_API_KEY not set")
	}
	c, err := New(Config{APIKey: key, Model: os.Getenv("OPENAI_MODEL"), BaseURL: os.Getenv("API_BASE_URL"), MaxTokens: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestLivePing(t *testing.T) {
	c := liveClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestLiveStreamWithImage(t *testing.T) {
	c := liveClient(t)
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	var answer strings.Builder
	summary, err := c.AskStream(ctx, BuildImageMessage("What colour is this image? One word.", buf.Bytes()), DeltaFunc(func(s string) {
		answer.WriteString(s)
	}))
	if err != nil {
		t.Fatalf("AskStream: %v", err)
	}
	t.Logf("answer %q, summary %+v", answer.String(), summary)
	if summary.Deltas == 0 {
		t.Fatal("no deltas received")
	}
}
