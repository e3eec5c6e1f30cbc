package llm

import (
	"fmt"
	"unicode/utf8"
)

// ConfigError reports a client configuration that cannot work. It is fatal:
// nothing retries it.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("llm config: %s %s", e.Field, e.Reason)
}

// APIError is a non-2xx answer to the initial request. Body is the raw
// response body, unmodified.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	const maxBody = 300
	body := e.Body
	if len(body) > maxBody {
		cut := maxBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	return fmt.Sprintf("API returned status %d: %s", e.Status, body)
}
