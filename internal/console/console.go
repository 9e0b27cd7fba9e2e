package console

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/giziai/digital-human/internal/chat"
)

// Console is the terminal surface for one chat surface
type Console struct {
	surface *chat.Surface
	config  Config
	logger  *zap.Logger
}

// New creates a console for surface
func New(surface *chat.Surface, config Config, logger *zap.Logger) *Console {
	return &Console{
		surface: surface,
		config:  config,
		logger:  logger,
	}
}

// Run starts the surface and blocks until the user quits or ctx ends.
// The surface is closed on return.
func (c *Console) Run(ctx context.Context) error {
	c.surface.Start(ctx)
	defer c.surface.Close()

	views, cancelViews := c.surface.Subscribe()
	defer cancelViews()

	model := NewModel(c.surface, views, c.surface.View(), c.config)
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen())

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			program.Quit()
		case <-done:
		}
	}()

	c.logger.Info("Console started")
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	c.logger.Info("Console stopped")
	return nil
}
