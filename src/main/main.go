package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"screen-chat-llm/src/clipboard"
	"screen-chat-llm/src/config"
	"screen-chat-llm/src/eventloop"
	"screen-chat-llm/src/gui"
	"screen-chat-llm/src/hotkey"
	"screen-chat-llm/src/logutil"
	"screen-chat-llm/src/notification"
	"screen-chat-llm/src/popup"
	"screen-chat-llm/src/quickedit"
	"screen-chat-llm/src/runtimeinit"
	"screen-chat-llm/src/session"
	"screen-chat-llm/src/singleinstance"
	"screen-chat-llm/src/tray"
	"screen-chat-llm/src/worker"
)

const (
	appID          = "io.github.screen-chat-llm"
	delegationWait = 10 * time.Minute
)

type mainOptions struct {
	runOnce    bool
	prompt     string
	apiKeyPath string
	model      string
}

func main() {
	// Ensure DPI awareness before creating any windows or querying metrics
	enableDPIAwareness()

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(normalizeLegacyArgs(os.Args)[1:])
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-chat-llm",
		Short:         "Select a screen region and chat with a vision model about it",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.runOnce {
				return runOnce(*opts)
			}
			return runResident(*opts)
		},
	}
	cmd.Flags().BoolVar(&opts.runOnce, "run-once", false, "Capture one region, stream the answer to stdout and exit")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Question to ask about the capture (run-once)")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (overrides OPENAI_MODEL)")
	return cmd
}

// normalizeLegacyArgs maps Go-style single-dash long flags to cobra's --flag.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return []string{"screen-chat-llm"}
	}
	normalized := make([]string, len(args))
	copy(normalized, args)
	for i := 1; i < len(normalized); i++ {
		for _, name := range []string{"run-once", "prompt", "api-key-path", "model"} {
			arg := normalized[i]
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}
	return normalized
}

func loadOptions(opts mainOptions) config.LoadOptions {
	return config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath, ModelOverride: opts.model}
}

func runOnce(opts mainOptions) error {
	// Load .env early so SINGLEINSTANCE_PORT_* are applied before the delegation scan
	_, _ = config.LoadWithOptions(loadOptions(opts))
	return handleRunOnceWithDelegation(opts.prompt, singleinstance.NewClient(), os.Stdout, func() error {
		return runStandalone(opts)
	})
}

// handleRunOnceWithDelegation asks a resident first and falls back to a
// standalone capture when there is none or it fails before answering.
func handleRunOnceWithDelegation(prompt string, client singleinstance.Client, out io.Writer, fallback func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), delegationWait)
	defer cancel()
	delegated, err := client.TryRunOnce(ctx, prompt, out)
	switch {
	case err != nil && delegated:
		return err
	case err != nil:
		log.Printf("Delegation error: %v; falling back to standalone", err)
		return fallback()
	case delegated:
		log.Printf("Delegated to resident")
		return nil
	}
	log.Printf("No resident detected (not delegated), running standalone")
	return fallback()
}

// runStandalone runs one capture with its own fyne app, which the overlay
// needs on platforms without a native surface.
func runStandalone(opts mainOptions) error {
	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:  loadOptions(opts),
		SetupLogging: logutil.Setup,
	})
	if err != nil {
		return err
	}

	a := app.NewWithID(appID)
	errCh := make(chan error, 1)
	go func() {
		if runtime.GOOS == "windows" {
			runtime.LockOSThread()
		}
		_, err := session.Execute(context.Background(), session.Options{
			Capture: session.CaptureOptions{
				Selector:         gui.NewSelector(),
				DevicePixelRatio: rt.Config.DevicePixelRatio,
			},
			Client: rt.Client,
			Prompt: opts.prompt,
			Target: session.StdoutTarget{Trailer: "\n"},
		})
		errCh <- err
		fyne.Do(a.Quit)
	}()
	a.Run()
	return <-errCh
}

// preflight fails when a resident already answers PING or the first port of
// the range is taken by something else.
func preflight(ctx context.Context, ports singleinstance.PortRange) error {
	probeCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if port, found := singleinstance.DetectResidentPort(probeCtx); found {
		log.Printf("Pre-flight: resident answered PING on port %d", port)
		return fmt.Errorf("already running on port %d", port)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", ports.Start))
	if err != nil {
		log.Printf("Pre-flight: port %d busy: %v", ports.Start, err)
		return fmt.Errorf("port %d is in use (resident range %s)", ports.Start, ports)
	}
	// release it so the event loop can re-bind
	return listener.Close()
}

func runResident(opts mainOptions) error {
	// Load .env early so SINGLEINSTANCE_PORT_* are available for pre-flight
	_, _ = config.LoadWithOptions(loadOptions(opts))
	if err := preflight(context.Background(), singleinstance.Ports()); err != nil {
		return err
	}

	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:        loadOptions(opts),
		SetupLogging:       logutil.Setup,
		Ping:               true,
		ShowBlockingErrors: true,
	})
	if err != nil {
		return err
	}
	cfg := rt.Config
	logMonitorConfiguration()

	if err := clipboard.Init(); err != nil {
		notification.ShowBlockingError("Clipboard unavailable", err.Error())
		return fmt.Errorf("failed to initialize clipboard: %w", err)
	}

	a := app.NewWithID(appID)
	a.SetIcon(tray.Icon)

	var loop *eventloop.Loop
	chat := popup.NewChatWindow(a,
		func(prompt string) { loop.Send(prompt) },
		func() { loop.CaptureRegion() },
	)
	quick := popup.NewQuickEditWindow(a, quickedit.NewEditor(rt.Client, clipboard.System{}), func(name string, fn worker.Job) bool {
		return loop.Go(name, fn)
	})
	srv := singleinstance.NewServer()
	loop = eventloop.New(eventloop.Options{
		Client:           rt.Client,
		Selector:         gui.NewSelector(),
		DevicePixelRatio: cfg.DevicePixelRatio,
		Server:           srv,
		Chat:             chat,
		OpenQuickEdit:    quick.Open,
		Notify:           notification.Notify,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	quit := func() {
		cancel()
		fyne.Do(a.Quit)
	}

	tray.Install(a, tray.Actions{
		CaptureRegion:     loop.CaptureRegion,
		CaptureFullScreen: loop.CaptureFullScreen,
		QuickEdit:         loop.QuickEdit,
		ShowChat:          loop.ShowChat,
		About: func() {
			notification.Notify("Screen Chat", tray.AboutText(cfg.CaptureHotkey, cfg.EditHotkey, srv.Port()))
		},
		Quit: quit,
	})

	hk := hotkey.NewManager()
	if err := hk.Register(cfg.CaptureHotkey, loop.CaptureRegion); err != nil {
		log.Printf("Capture hotkey %q not registered: %v", cfg.CaptureHotkey, err)
	}
	if err := hk.Register(cfg.EditHotkey, loop.QuickEdit); err != nil {
		log.Printf("Quick edit hotkey %q not registered: %v", cfg.EditHotkey, err)
	}
	defer hk.Unregister()

	// Handle SIGINT/SIGTERM
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			quit()
		case <-ctx.Done():
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		// the Win32 overlay pumps messages for windows owned by this thread
		if runtime.GOOS == "windows" {
			runtime.LockOSThread()
		}
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("event loop stopped: %v", err)
			notification.ShowBlockingError("Screen Chat stopped", err.Error())
			fyne.Do(a.Quit)
		}
	}()

	log.Printf("Screen Chat LLM ready: capture %s, quick edit %s", cfg.CaptureHotkey, cfg.EditHotkey)
	a.Run()
	cancel()
	<-loopDone
	return nil
}
