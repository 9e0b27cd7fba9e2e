// Package main is a command line probe for a running gizi-companion server.
// It authenticates, opens the surface websocket and plays one exchange.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/giziai/digital-human/internal/config"
	"github.com/giziai/digital-human/internal/logging"
)

type options struct {
	server    string
	clientID  string
	clientKey string
	text      string
	audioFile string
	outDir    string
	chunkSize int
	timeout   time.Duration
	logLevel  string
}

// withDefaults fills unset connection options from the server config
func (o *options) withDefaults(cfg config.Config) {
	if o.server == "" {
		o.server = "http://localhost:" + cfg.Port
	}
	if o.clientID == "" {
		o.clientID = cfg.ClientID
	}
	if o.clientKey == "" {
		o.clientKey = cfg.ClientKey
	}
}

func newRootCommand() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "gizi-wsclient",
		Short: "Send one message to a running gizi-companion server",
		Long: `gizi-wsclient requests a surface token, connects to /ws and sends
either a text message or an audio file streamed as a browser recording.
Every reply is printed and acknowledged as played.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.text == "" && opts.audioFile == "" {
				return errors.New("one of --text or --audio-file is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.withDefaults(cfg)

			logger, err := logging.New("development", opts.logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return NewProbe(opts, cmd.OutOrStdout(), logger).Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", "", "Server base URL (default http://localhost:$PORT)")
	flags.StringVar(&opts.clientID, "client-id", "", "Surface client id (overrides CLIENT_ID)")
	flags.StringVar(&opts.clientKey, "client-key", "", "Surface client key (overrides CLIENT_KEY)")
	flags.StringVar(&opts.text, "text", "", "Text message to send")
	flags.StringVar(&opts.audioFile, "audio-file", "", "Audio file to stream as a recording")
	flags.StringVar(&opts.outDir, "out-dir", "", "Directory to save reply audio into")
	flags.IntVar(&opts.chunkSize, "chunk-size", defaultChunkSize, "Bytes per binary audio frame")
	flags.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Give up after this long")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level")
	cmd.MarkFlagsMutuallyExclusive("text", "audio-file")

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
