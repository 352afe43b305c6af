package transferprogress

import (
	"fmt"
	"math"
	"time"

	"github.com/SpatiumPortae/logportal/cmd/logportal/tui"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

type Option func(*Model)

// WithClock replaces time.Now, used for the speed estimates.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

type Model struct {
	LogSize                    int64
	progress                   float64
	TransferStartTime          *time.Time
	TransferSpeedEstimateBps   int64
	EstimatedRemainingDuration time.Duration

	Width       int
	progressBar progress.Model
	now         func() time.Time
}

func New(opts ...Option) Model {
	m := Model{
		progressBar: tui.NewProgressBar(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m *Model) StartTransfer() {
	now := m.now()
	m.TransferStartTime = &now
}

func (m Model) Progress() float64 {
	return m.progress
}

func (Model) Init() tea.Cmd {
	return nil
}

func (m Model) View() string {
	bar := m.progressBar.ViewAs(m.progress)
	if m.TransferSpeedEstimateBps <= 0 || m.progress >= 1 {
		return bar
	}
	return bar + "\n\n" + tui.PadText + tui.HelpStyle(fmt.Sprintf("%s/s, about %s remaining",
		tui.ByteCountSI(m.TransferSpeedEstimateBps), m.EstimatedRemainingDuration.Round(time.Second)))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.Width = msg.Width - 2*tui.MARGIN - 4
		if m.Width > tui.MAX_WIDTH {
			m.Width = tui.MAX_WIDTH
		}
		m.progressBar.Width = m.Width
		return m, nil

	case tui.ProgressMsg:
		// Negative progress is reported once the transfer is detached.
		if msg < 0 {
			return m, nil
		}
		if m.TransferStartTime == nil {
			m.StartTransfer()
		}
		m.progress = math.Min(1.0, float64(msg))

		secondsSpent := m.now().Sub(*m.TransferStartTime).Seconds()
		if secondsSpent <= 0 || m.progress == 0 {
			return m, nil
		}
		bytesTransferred := m.progress * float64(m.LogSize)
		m.TransferSpeedEstimateBps = int64(bytesTransferred / secondsSpent)
		remainingSeconds := (1 - m.progress) * secondsSpent / m.progress
		m.EstimatedRemainingDuration = time.Duration(remainingSeconds * float64(time.Second))
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progressBar.Update(msg)
		m.progressBar = progressModel.(progress.Model)
		return m, cmd

	default:
		return m, nil
	}
}
