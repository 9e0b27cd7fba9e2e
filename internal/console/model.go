package console

import (
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/giziai/digital-human/internal/chat"
	"github.com/giziai/digital-human/internal/playback"
)

const (
	defaultWidth   = 80
	maxBubbleWidth = 64
	inputCharLimit = 4000
)

// Presenter is the part of chat.Surface the console drives
type Presenter interface {
	SendMessage(text string) bool
	ToggleRecording() bool
	MessagePlayed(seq uint64) bool
}

var _ Presenter = (*chat.Surface)(nil)

// Config holds the optional console settings
type Config struct {
	Clock         clock.Clock
	FrameInterval time.Duration
}

// KeyMap defines the console key bindings
type KeyMap struct {
	Send   key.Binding
	Record key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns enter to send, ctrl+r to record and esc or ctrl+c to quit
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "kirim")),
		Record: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "rekam")),
		Quit:   key.NewBinding(key.WithKeys("esc", "ctrl+c"), key.WithHelp("esc", "keluar")),
	}
}

type viewMsg chat.View

type frameMsg playback.Frame

type surfaceClosedMsg struct{}

// Model is the bubbletea model of the console surface
type Model struct {
	presenter Presenter
	views     <-chan chat.View
	player    *playback.Player
	frames    <-chan playback.Frame
	stopPose  func()

	view    chat.View
	pose    playback.Frame
	playing uint64

	textarea textarea.Model
	keys     KeyMap
	width    int
}

// NewModel creates the console model. The player reports finished messages
// back to presenter.
func NewModel(presenter Presenter, views <-chan chat.View, initial chat.View, config Config) Model {
	ta := textarea.New()
	ta.Placeholder = chat.InputPlaceholder
	ta.Focus()
	ta.Prompt = "> "
	ta.CharLimit = inputCharLimit
	ta.SetWidth(defaultWidth - 4)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline.SetEnabled(false)

	player := playback.NewPlayer(playback.Config{
		Clock:         config.Clock,
		FrameInterval: config.FrameInterval,
		OnPlayed: func(seq uint64) {
			presenter.MessagePlayed(seq)
		},
	})
	frames, stopPose := player.Subscribe()

	m := Model{
		presenter: presenter,
		views:     views,
		player:    player,
		frames:    frames,
		stopPose:  stopPose,
		pose:      player.Frame(),
		textarea:  ta,
		keys:      DefaultKeyMap(),
		width:     defaultWidth,
	}
	m = m.applyView(initial)
	return m
}

// Close stops playback
func (m Model) Close() {
	m.stopPose()
	m.player.Close()
}

func waitView(views <-chan chat.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-views
		if !ok {
			return surfaceClosedMsg{}
		}
		return viewMsg(v)
	}
}

func waitFrame(frames <-chan playback.Frame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-frames
		if !ok {
			return nil
		}
		return frameMsg(f)
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		waitView(m.views),
		waitFrame(m.frames),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.textarea.SetWidth(max(msg.Width-4, 10))
		return m, nil

	case viewMsg:
		m = m.applyView(chat.View(msg))
		return m, waitView(m.views)

	case frameMsg:
		m.pose = playback.Frame(msg)
		return m, waitFrame(m.frames)

	case surfaceClosedMsg:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		text := m.textarea.Value()
		if m.view.CanSend(text) && m.presenter.SendMessage(text) {
			m.textarea.Reset()
		}
		return m, nil

	case key.Matches(msg, m.keys.Record):
		m.presenter.ToggleRecording()
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// applyView stores v and starts playback when a new message reaches the head
func (m Model) applyView(v chat.View) Model {
	m.view = v

	if v.Message != nil && v.Message.Seq != m.playing {
		m.playing = v.Message.Seq
		m.player.Play(v.Message)
	}

	if v.InputEnabled {
		m.textarea.Focus()
	} else {
		m.textarea.Blur()
	}
	return m
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.view.Title))
	b.WriteString("  ")
	b.WriteString(sessionStyle.Render(m.view.SessionLabel))
	b.WriteString("\n")

	if m.view.Recording {
		b.WriteString(recordingStyle.Render(m.view.Status))
	} else {
		b.WriteString(statusStyle.Render(m.view.Status))
	}
	b.WriteString("\n")
	if m.view.Badge != "" {
		b.WriteString(badgeStyle.Render(m.view.Badge))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.view.Bubble.Visible {
		text := m.view.Bubble.Text
		if m.view.Bubble.Typing {
			text += "▌"
		}
		width := min(max(m.width-4, 10), maxBubbleWidth)
		b.WriteString(bubbleStyle.Width(width).Render(text))
		b.WriteString("\n")
	}

	b.WriteString(m.renderAvatar())
	b.WriteString("\n\n")

	if m.view.InputEnabled {
		b.WriteString(inputStyle.Render(m.textarea.View()))
	} else {
		b.WriteString(disabledInputStyle.Render(m.textarea.View()))
	}
	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

func (m Model) renderAvatar() string {
	face := avatarStyle.Render("[o o]\n " + mouth(m.pose.Viseme))
	if !m.pose.Speaking {
		return face
	}
	detail := helpStyle.Render(m.pose.Expression + " · " + m.pose.Animation)
	return lipgloss.JoinHorizontal(lipgloss.Center, face, "  ", detail)
}

func (m Model) renderHelp() string {
	bindings := []key.Binding{m.keys.Send, m.keys.Record, m.keys.Quit}
	if !m.view.RecordEnabled && !m.view.Recording {
		bindings = []key.Binding{m.keys.Send, m.keys.Quit}
	}
	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		h := kb.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return helpStyle.Render(strings.Join(parts, " • ") + " • " + m.view.Recorder)
}
