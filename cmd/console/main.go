// Package main is the terminal client for the GiziAI digital human.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/giziai/digital-human/adapters/capture"
	"github.com/giziai/digital-human/internal/app"
	"github.com/giziai/digital-human/internal/chat"
	"github.com/giziai/digital-human/internal/config"
	"github.com/giziai/digital-human/internal/console"
	"github.com/giziai/digital-human/internal/logging"
	"github.com/giziai/digital-human/usecase"
)

const defaultLogFile = "gizi-console.log"

// options are the command line overrides of the environment config
type options struct {
	backendURL    string
	recordCommand string
	mock          bool
	logFile       string
	noMic         bool
}

func (o options) apply(cfg *config.Config) {
	if o.backendURL != "" {
		cfg.BackendURL = o.backendURL
	}
	if o.recordCommand != "" {
		cfg.RecordCommand = o.recordCommand
	}
	if o.mock {
		cfg.BackendMode = config.BackendModeMock
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "gizi-console",
		Short: "Chat with the GiziAI digital human from the terminal",
		Long: `gizi-console talks to the digital-human chat backend and shows the
avatar's replies as a typed speech bubble with a lip-synced mouth.
Press enter to send, ctrl+r to record from the microphone and esc to quit.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.backendURL, "backend-url", "", "Chat backend base URL (overrides BACKEND_URL)")
	flags.StringVar(&opts.recordCommand, "record-command", "", "Program that writes microphone audio to stdout (overrides RECORD_COMMAND)")
	flags.BoolVar(&opts.mock, "mock", false, "Answer with the built-in mock backend")
	flags.StringVar(&opts.logFile, "log-file", defaultLogFile, "Write logs to this file")
	flags.BoolVar(&opts.noMic, "no-mic", false, "Disable microphone recording")

	return cmd
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewFile(cfg.Env, cfg.LogLevel, opts.logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logger.Sync()

	chatBackend, err := app.NewChatBackend(cfg, logger)
	if err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, 15*time.Second)
	transcripts, closeTranscripts, err := app.NewTranscripts(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := closeTranscripts(closeCtx); err != nil {
			logger.Error("Failed to close transcript store", zap.Error(err))
		}
	}()

	conv := usecase.NewConversation(chatBackend, nil, transcripts, usecase.ConversationConfig{
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	var rec *usecase.Recorder
	if !opts.noMic {
		mic := capture.NewCommandCapture(cfg.RecordCommand, logger)
		rec = usecase.NewRecorder(mic, conv.SendAudio, chat.BusyGate(conv), logger)
	}

	surface := chat.NewSurface(conv, rec, chat.Config{
		BubbleInterval: cfg.BubbleInterval,
		BubbleDwell:    cfg.BubbleDwell,
	}, logger)

	return console.New(surface, console.Config{}, logger).Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
