package singleinstance

import "strings"

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG\n"

	askVerb        = "ASK"
	streamResponse = "STREAM\n"
	errorResponse  = "ERROR\n"
)

func formatAsk(prompt string) string {
	// the request is a single line
	prompt = strings.Join(strings.Fields(prompt), " ")
	if prompt == "" {
		return askVerb + "\n"
	}
	return askVerb + " " + prompt + "\n"
}

// parseAsk returns the prompt of an ASK line. ok is false for anything else.
func parseAsk(line string) (prompt string, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == askVerb {
		return "", true
	}
	rest, found := strings.CutPrefix(line, askVerb+" ")
	if !found {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
