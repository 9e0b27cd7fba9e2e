package console

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giziai/digital-human/domain/entities"
	"github.com/giziai/digital-human/internal/bubble"
	"github.com/giziai/digital-human/internal/chat"
)

type fakePresenter struct {
	mu      sync.Mutex
	sent    []string
	toggles int
	played  []uint64
	accept  bool
}

func (f *fakePresenter) SendMessage(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.accept
}

func (f *fakePresenter) ToggleRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return true
}

func (f *fakePresenter) MessagePlayed(seq uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, seq)
	return true
}

func (f *fakePresenter) Played() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.played...)
}

func idleView() chat.View {
	return chat.View{
		Title:         chat.Title,
		Status:        chat.StatusIdle,
		SessionLabel:  "Sesi: ...",
		Recorder:      "idle",
		InputEnabled:  true,
		RecordEnabled: true,
	}
}

func newTestModel(t *testing.T, p *fakePresenter) (Model, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	m := NewModel(p, make(chan chat.View), idleView(), Config{Clock: mock, FrameInterval: 10 * time.Millisecond})
	t.Cleanup(m.Close)
	return m, mock
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestModel_EnterSendsAndClearsInput(t *testing.T) {
	p := &fakePresenter{accept: true}
	m, _ := newTestModel(t, p)

	m.textarea.SetValue("Berapa protein telur?")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"Berapa protein telur?"}, p.sent)
	assert.Empty(t, m.textarea.Value())
}

func TestModel_EnterIgnoredWhileBusyOrEmpty(t *testing.T) {
	p := &fakePresenter{accept: true}
	m, _ := newTestModel(t, p)

	m.textarea.SetValue("   ")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, p.sent)

	busy := idleView()
	busy.Loading = true
	busy.InputEnabled = false
	m, _ = update(t, m, viewMsg(busy))

	m.textarea.SetValue("halo")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, p.sent)
	assert.Equal(t, "halo", m.textarea.Value(), "input is kept when nothing was sent")
}

func TestModel_RejectedSendKeepsInput(t *testing.T) {
	p := &fakePresenter{accept: false}
	m, _ := newTestModel(t, p)

	m.textarea.SetValue("halo")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Len(t, p.sent, 1)
	assert.Equal(t, "halo", m.textarea.Value())
}

func TestModel_RecordAndQuitKeys(t *testing.T) {
	p := &fakePresenter{}
	m, _ := newTestModel(t, p)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Equal(t, 1, p.toggles)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_PlaysNewMessagesAndReportsPlayed(t *testing.T) {
	p := &fakePresenter{}
	m, mock := newTestModel(t, p)

	speaking := idleView()
	speaking.Speaking = true
	speaking.InputEnabled = false
	speaking.Badge = chat.BadgeSpeaking
	speaking.Message = &entities.ReplyMessage{
		Seq:              3,
		Text:             "Halo",
		FacialExpression: "smile",
		Animation:        "Talking_1",
		Lipsync:          entities.FallbackLipsync(),
	}

	m, _ = update(t, m, viewMsg(speaking))
	assert.Equal(t, uint64(3), m.player.Frame().Seq)
	assert.True(t, m.player.Frame().Speaking)

	// The same head does not restart playback
	m, _ = update(t, m, viewMsg(speaking))
	assert.Equal(t, uint64(3), m.playing)

	assert.Eventually(t, func() bool {
		mock.Add(100 * time.Millisecond)
		return len(p.Played()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{3}, p.Played())
	assert.False(t, m.player.Frame().Speaking)
}

func TestModel_View(t *testing.T) {
	p := &fakePresenter{}
	m, _ := newTestModel(t, p)

	v := idleView()
	v.Bubble = bubble.Frame{Text: "Makan sayur", Typing: true, Visible: true}
	m, _ = update(t, m, viewMsg(v))
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	out := m.View()
	assert.Contains(t, out, chat.Title)
	assert.Contains(t, out, chat.StatusIdle)
	assert.Contains(t, out, "Makan sayur▌")
	assert.Contains(t, out, "ctrl+r rekam")

	recording := idleView()
	recording.Recording = true
	recording.Status = chat.StatusRecording
	m, _ = update(t, m, viewMsg(recording))
	assert.Contains(t, m.View(), chat.StatusRecording)
	assert.NotContains(t, m.View(), "Makan sayur")
}

func TestModel_QuitsWhenSurfaceCloses(t *testing.T) {
	p := &fakePresenter{}
	m, _ := newTestModel(t, p)

	_, cmd := update(t, m, surfaceClosedMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
