//go:build !windows

package main

import (
	"log"

	"screen-chat-llm/src/screenshot"
)

func enableDPIAwareness() {}

func logMonitorConfiguration() {
	vg, err := screenshot.VirtualGeometry()
	if err != nil {
		log.Printf("Display query failed: %v", err)
		return
	}
	log.Printf("Virtual screen: %v", vg)
}
