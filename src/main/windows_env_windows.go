//go:build windows

package main

import (
	"log"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"

	"screen-chat-llm/src/screenshot"
)

const processPerMonitorDPIAware = 2

var procSetProcessDpiAwareness = windows.NewLazySystemDLL("shcore.dll").NewProc("SetProcessDpiAwareness")

// enableDPIAwareness makes GetSystemMetrics and the capture report device
// pixels, so overlay coordinates and the captured bitmap agree.
func enableDPIAwareness() {
	if err := procSetProcessDpiAwareness.Find(); err == nil {
		hr, _, _ := procSetProcessDpiAwareness.Call(processPerMonitorDPIAware)
		if hr == 0 {
			log.Printf("DPI: per-monitor awareness enabled")
			return
		}
		log.Printf("DPI: SetProcessDpiAwareness failed, hresult 0x%x", hr)
	}
	if win.SetProcessDPIAware() {
		log.Printf("DPI: system awareness enabled (fallback)")
	} else {
		log.Printf("DPI: no DPI awareness set")
	}
}

func logMonitorConfiguration() {
	log.Printf("MONITOR: %d monitors, primary %dx%d",
		win.GetSystemMetrics(win.SM_CMONITORS),
		win.GetSystemMetrics(win.SM_CXSCREEN),
		win.GetSystemMetrics(win.SM_CYSCREEN))
	vg, err := screenshot.VirtualGeometry()
	if err != nil {
		log.Printf("MONITOR: display query failed: %v", err)
		return
	}
	log.Printf("MONITOR: virtual screen %v", vg)
}
