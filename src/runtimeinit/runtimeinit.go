package runtimeinit

import (
	"context"
	"fmt"
	"log"
	"time"

	"screen-chat-llm/src/config"
	"screen-chat-llm/src/llm"
	"screen-chat-llm/src/logutil"
	"screen-chat-llm/src/notification"
)

const (
	appTitle    = "screen-chat-llm"
	pingTimeout = 20 * time.Second
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(bool)
	// Ping checks the endpoint before returning.
	Ping bool
	// ShowBlockingErrors reports startup failures in a modal dialog.
	ShowBlockingErrors bool
}

type Runtime struct {
	Config *config.Config
	Client *llm.Client
}

// Bootstrap loads configuration, sets up logging and builds the chat client.
func Bootstrap(opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	client, err := llm.New(llm.Config{
		APIKey:                cfg.APIKey,
		Model:                 cfg.Model,
		BaseURL:               cfg.BaseURL,
		Providers:             cfg.Providers,
		MaxTokens:             cfg.MaxTokens,
		ConnectTimeout:        cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		Title:                 appTitle,
	})
	if err != nil {
		if opts.ShowBlockingErrors {
			notification.ShowBlockingError("Configuration error", fmt.Sprintf("%v\n\nChecked key file %s and %s.", err, cfg.APIKeyPath, config.APIKeyEnvVar))
		}
		return nil, fmt.Errorf("%w (checked key file %s and %s env var)", err, cfg.APIKeyPath, config.APIKeyEnvVar)
	}
	log.Printf("Using model %s at %s (key %s)", cfg.Model, cfg.BaseURL, logutil.RedactKey(cfg.APIKey))

	if opts.Ping {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			if opts.ShowBlockingErrors {
				notification.ShowBlockingError("LLM unavailable", fmt.Sprintf("Startup check failed: %v\n\nPlease verify your API key and network connectivity.", err))
			}
			return nil, fmt.Errorf("startup check failed: %w", err)
		}
		log.Printf("LLM ping succeeded")
	}

	return &Runtime{Config: cfg, Client: client}, nil
}
