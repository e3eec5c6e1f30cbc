package runtimeinit

import (
	"errors"
	"path/filepath"
	"testing"

	"screen-chat-llm/src/config"
	"screen-chat-llm/src/llm"
)

func TestBootstrapMissingKey(t *testing.T) {
	t.Setenv(config.APIKeyEnvVar, "")
	t.Setenv(config.APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))

	_, err := Bootstrap(Options{})
	var cfgErr *llm.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *llm.ConfigError", err)
	}
}

func TestBootstrapBuildsClient(t *testing.T) {
	t.Setenv(config.APIKeyEnvVar, "sk-test-123456")
	t.Setenv(config.APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))

	var logging *bool
	rt, err := Bootstrap(Options{
		LoadOptions:  config.LoadOptions{ModelOverride: "gpt-4o-mini"},
		SetupLogging: func(enabled bool) { logging = &enabled },
	})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if logging == nil {
		t.Fatal("SetupLogging was not called")
	}
	if rt.Client.Model() != "gpt-4o-mini" || rt.Config.APIKey != "sk-test-123456" {
		t.Fatalf("runtime = %+v model=%q", rt.Config, rt.Client.Model())
	}
}
