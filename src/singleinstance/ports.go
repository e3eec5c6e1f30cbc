package singleinstance

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	PortStartEnvVar = "SINGLEINSTANCE_PORT_START"
	PortEndEnvVar   = "SINGLEINSTANCE_PORT_END"

	defaultPortStart = 49500
	defaultPortEnd   = 49550

	minPort = 1024
	maxPort = 65535
)

// PortRange is the inclusive loopback range a resident may own. The resident
// binds Start; clients scan the whole range.
type PortRange struct {
	Start int
	End   int
}

// Ports reads the range from SINGLEINSTANCE_PORT_START/END, keeping the
// defaults for unset or unparsable values. The result is clamped to
// [1024, 65535] and ordered.
func Ports() PortRange {
	r := PortRange{
		Start: envPort(PortStartEnvVar, defaultPortStart),
		End:   envPort(PortEndEnvVar, defaultPortEnd),
	}
	r.Start = min(max(r.Start, minPort), maxPort)
	r.End = min(max(r.End, minPort), maxPort)
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}
	return r
}

func envPort(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Contains reports whether port lies in the range.
func (r PortRange) Contains(port int) bool { return port >= r.Start && port <= r.End }

func (r PortRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}
