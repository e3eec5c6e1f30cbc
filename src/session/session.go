package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"

	"screen-chat-llm/src/geometry"
	"screen-chat-llm/src/llm"
	"screen-chat-llm/src/overlay"
	"screen-chat-llm/src/screenshot"
)

var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrBusy               = errors.New("another request is still running")
	// ErrOffScreen means the selection did not overlap the captured bitmap.
	ErrOffScreen = errors.New("selection is outside the captured screen")
)

// DefaultPrompt is used when a request arrives without a prompt (run-once ASK
// with no argument, CLI without --prompt).
const DefaultPrompt = "Describe what is shown in this screenshot."

type SnapshotFunc func(dprOverride float64) (*screenshot.Snapshot, error)

// Streamer is the part of the chat client the session needs.
type Streamer interface {
	AskStream(ctx context.Context, messages []llm.Message, sink llm.DeltaSink) (llm.StreamSummary, error)
}

// ResultTarget receives one answer. OnDelta calls arrive in network order,
// followed by exactly one OnSuccess or OnFailure.
type ResultTarget interface {
	llm.DeltaSink
	OnSuccess(summary llm.StreamSummary) error
	OnFailure(err error) error
}

type CaptureOptions struct {
	// Selector drives the overlay. Nil captures the whole virtual screen.
	Selector         overlay.Selector
	Snapshot         SnapshotFunc
	DevicePixelRatio float64
}

// Capture is a cropped, encoded region ready to be sent.
type Capture struct {
	Image   *image.RGBA
	PNG     []byte
	Logical geometry.Rect
	Pixel   geometry.PixelRect
}

// CaptureRegion freezes the screen, lets the user pick a region over the frozen
// image, then crops and encodes it. It blocks until the overlay closes.
func CaptureRegion(ctx context.Context, opts CaptureOptions) (Capture, error) {
	snap := opts.Snapshot
	if snap == nil {
		snap = screenshot.Take
	}
	shot, err := snap(opts.DevicePixelRatio)
	if err != nil {
		return Capture{}, fmt.Errorf("capture failed: %w", err)
	}

	var sel overlay.SelectionResult
	if opts.Selector == nil {
		sel = overlay.SelectionResult{
			Logical: shot.Virtual,
			Pixel:   geometry.LogicalToPixel(shot.Virtual, shot.Virtual, shot.DPR),
		}
	} else {
		scene := overlay.Scene{Virtual: shot.Virtual, DPR: shot.DPR, Background: shot.Image}
		var cancelled bool
		sel, cancelled, err = opts.Selector.Select(ctx, scene)
		if err != nil {
			return Capture{}, err
		}
		if cancelled {
			return Capture{}, ErrSelectionCancelled
		}
	}

	pixel, ok := sel.Pixel.Clamp(shot.Image.Bounds())
	if !ok {
		return Capture{}, fmt.Errorf("%w: %v", ErrOffScreen, sel.Pixel)
	}
	if pixel != sel.Pixel {
		log.Printf("session: clamped selection %v to %v", sel.Pixel, pixel)
	}

	cropped, err := screenshot.Crop(shot.Image, pixel)
	if err != nil {
		return Capture{}, err
	}
	data, err := screenshot.EncodePNG(cropped)
	if err != nil {
		return Capture{}, fmt.Errorf("failed to encode capture: %w", err)
	}
	log.Printf("session: captured %v (%d bytes png)", pixel, len(data))
	return Capture{Image: cropped, PNG: data, Logical: sel.Logical, Pixel: pixel}, nil
}

// Ask streams an answer about png into target. Errors are reported to the
// target and returned.
func Ask(ctx context.Context, client Streamer, png []byte, prompt string, target ResultTarget) (llm.StreamSummary, error) {
	if client == nil {
		return llm.StreamSummary{}, errors.New("client is required")
	}
	if target == nil {
		return llm.StreamSummary{}, errors.New("target is required")
	}
	if len(png) == 0 {
		err := errors.New("no image captured")
		_ = target.OnFailure(err)
		return llm.StreamSummary{}, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	summary, err := client.AskStream(ctx, llm.BuildImageMessage(prompt, png), target)
	if err != nil {
		_ = target.OnFailure(err)
		return summary, err
	}
	if !summary.Done {
		log.Printf("session: stream ended without [DONE] after %d deltas", summary.Deltas)
	}
	if err := target.OnSuccess(summary); err != nil {
		_ = target.OnFailure(err)
		return summary, err
	}
	return summary, nil
}

type Options struct {
	Capture CaptureOptions
	Client  Streamer
	Prompt  string
	Target  ResultTarget
}

// Execute runs one whole cycle on the calling goroutine: capture, select,
// crop, encode, stream.
func Execute(ctx context.Context, opts Options) (llm.StreamSummary, error) {
	if opts.Target == nil {
		return llm.StreamSummary{}, errors.New("Target is required")
	}
	capture, err := CaptureRegion(ctx, opts.Capture)
	if err != nil {
		_ = opts.Target.OnFailure(err)
		return llm.StreamSummary{}, err
	}
	return Ask(ctx, opts.Client, capture.PNG, opts.Prompt, opts.Target)
}
