package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"

	maxFrameBytes = 1 << 20
)

// DeltaSink receives stream fragments in arrival order, on the goroutine that
// called AskStream.
type DeltaSink interface {
	OnDelta(text string)
}

// DeltaFunc adapts a function to DeltaSink.
type DeltaFunc func(text string)

func (f DeltaFunc) OnDelta(text string) { f(text) }

// StreamSummary describes how a stream ended. Done is false when the body
// ended without the [DONE] sentinel, e.g. a dropped connection; AskStream
// still returns a nil error in that case.
type StreamSummary struct {
	Deltas  int
	Skipped int
	Done    bool
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content json.RawMessage `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// AskStream sends messages with stream enabled and feeds every content delta
// to sink. Only the initial response status can fail the call; once the body
// is streaming, read errors end the sequence early without an error.
func (c *Client) AskStream(ctx context.Context, messages []Message, sink DeltaSink) (StreamSummary, error) {
	req, err := c.newRequest(ctx, messages, true, c.cfg.MaxTokens)
	if err != nil {
		return StreamSummary{}, err
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return StreamSummary{}, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		body, _ := io.ReadAll(resp.Body)
		return StreamSummary{}, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	summary := readStream(resp.Body, sink)
	log.Printf("llm: stream finished in %s, deltas=%d skipped=%d done=%v",
		time.Since(start).Round(time.Millisecond), summary.Deltas, summary.Skipped, summary.Done)
	return summary, nil
}

// readStream parses a server-sent-event body line by line. A line longer
// than maxFrameBytes is discarded and counted as skipped.
func readStream(r io.Reader, sink DeltaSink) StreamSummary {
	var summary StreamSummary
	reader := bufio.NewReaderSize(r, 64*1024)

	for {
		raw, oversized, err := readLine(reader)
		if oversized {
			log.Printf("llm: skipped frame over %d bytes", maxFrameBytes)
			summary.Skipped++
		} else if len(raw) > 0 {
			if handleLine(raw, sink, &summary) {
				return summary
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("llm: stream ended early: %v", err)
			}
			return summary
		}
	}
}

// readLine returns the next line without its terminator. Bytes past
// maxFrameBytes are drained and oversized is set.
func readLine(r *bufio.Reader) (line []byte, oversized bool, err error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > maxFrameBytes {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return buf, oversized, err
	}
}

// handleLine processes one SSE line and reports whether [DONE] was seen.
func handleLine(raw []byte, sink DeltaSink, summary *StreamSummary) bool {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 || !bytes.HasPrefix(line, []byte(dataPrefix)) {
		// blank separators, ":" comments, event:/id:/retry: fields
		return false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == doneSentinel {
		summary.Done = true
		return true
	}

	text, ok := decodeDelta(payload)
	if !ok {
		summary.Skipped++
		return false
	}
	if text == "" {
		return false
	}
	summary.Deltas++
	sink.OnDelta(text)
	return false
}

// decodeDelta extracts choices[0].delta.content. ok is false only for frames
// that are not valid JSON; frames without textual content yield "".
func decodeDelta(payload []byte) (string, bool) {
	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", true
	}
	raw := chunk.Choices[0].Delta.Content
	if len(raw) == 0 || raw[0] != '"' {
		return "", true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", false
	}
	return text, true
}
