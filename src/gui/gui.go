// Package gui provides the platform overlay surface behind the region selector.
package gui

import (
	"log"

	"screen-chat-llm/src/overlay"
)

// NewSelector returns a modal selector backed by this platform's overlay
// window. On Windows it must be used from one OS-locked goroutine.
func NewSelector() overlay.Selector {
	log.Printf("OVERLAY: using platform surface")
	return overlay.NewSelector(newPlatformSurface)
}
