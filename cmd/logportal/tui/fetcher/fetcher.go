package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SpatiumPortae/logportal/cmd/logportal/tui"
	"github.com/SpatiumPortae/logportal/cmd/logportal/tui/transferprogress"
	"github.com/SpatiumPortae/logportal/internal/logfetch"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ------------------------------------------------------ tui State -----------------------------------------------------
type tuiState int

// Flows from the top down.
const (
	showRequesting tuiState = iota
	showReceiving
	showSaving
	showAborting
	showFinished
)

// ------------------------------------------------------ Messages -----------------------------------------------------

type fetchDoneMsg struct {
	result logfetch.Result
	err    error
}

// ------------------------------------------------------- Sink --------------------------------------------------------

// Sink forwards session notifications to the program.
type Sink struct {
	msgs chan interface{}
	quit chan struct{}
	once sync.Once
}

func NewSink() *Sink {
	return &Sink{
		msgs: make(chan interface{}, 10),
		quit: make(chan struct{}),
	}
}

// Progress never blocks the session, updates are dropped while the program is behind.
func (s *Sink) Progress(p float64) {
	select {
	case s.msgs <- tui.ProgressMsg(p):
	default:
	}
}

func (s *Sink) Status(msg string) {
	select {
	case s.msgs <- tui.StatusMsg(msg):
	case <-s.quit:
	}
}

// Done is a no-op, the program receives the result from Fetch.
func (s *Sink) Done(logfetch.Result) {}

// Close releases notifications blocked on a program that has exited.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.quit) })
}

// ------------------------------------------------------- Model -------------------------------------------------------

// Fetcher is the session driven by the program.
type Fetcher interface {
	Fetch(ctx context.Context) (logfetch.Result, error)
	Snapshot() logfetch.Snapshot
}

type Option func(m *model)

// WithLinkAddress shows the link the vehicle is reached through.
func WithLinkAddress(addr string) Option {
	return func(m *model) {
		m.linkAddr = addr
	}
}

type model struct {
	state    tuiState
	linkAddr string

	ctx     context.Context
	cancel  context.CancelFunc
	fetcher Fetcher
	msgs    chan interface{}

	logID   uint16
	logSize uint32
	result  logfetch.Result
	err     error
	copied  bool

	width            int
	spinner          spinner.Model
	transferProgress transferprogress.Model
	help             help.Model
	keys             tui.KeyMap
}

// New creates a new fetch program. Notifications of the session must be delivered to
// sink.
func New(ctx context.Context, f Fetcher, sink *Sink, opts ...Option) *tea.Program {
	return tea.NewProgram(newModel(ctx, f, sink, opts...))
}

func newModel(ctx context.Context, f Fetcher, sink *Sink, opts ...Option) model {
	ctx, cancel := context.WithCancel(ctx)
	m := model{
		ctx:              ctx,
		cancel:           cancel,
		fetcher:          f,
		msgs:             sink.msgs,
		transferProgress: transferprogress.New(),
		help:             help.New(),
		keys:             tui.Keys,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.resetSpinner()
	return m
}

func (m model) Init() tea.Cmd {
	var linkCmd tea.Cmd
	if m.linkAddr != "" {
		linkCmd = tea.Println(tui.PadText + "• " + fmt.Sprintf("Using link %s", m.linkAddr))
	}
	return tea.Sequence(linkCmd, tea.Batch(m.spinner.Tick, listenCmd(m.msgs), fetchCmd(m.ctx, m.fetcher)))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tui.StatusMsg:
		cmds := []tea.Cmd{listenCmd(m.msgs)}
		if m.syncEntry() {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tui.TaskCmd(string(msg), tea.Batch(cmds...))

	case tui.ProgressMsg:
		cmds := []tea.Cmd{listenCmd(m.msgs)}
		if m.syncEntry() {
			cmds = append(cmds, m.spinner.Tick)
		}
		if m.state == showReceiving && msg >= 1 {
			m.state = showSaving
			m.resetSpinner()
			cmds = append(cmds, m.spinner.Tick)
		}
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		cmds = append(cmds, transferProgressCmd)
		return m, tea.Batch(cmds...)

	case fetchDoneMsg:
		m.state = showFinished
		m.result = msg.result
		m.err = msg.err
		if msg.result.Outcome == logfetch.Completed {
			transferProgressModel, _ := m.transferProgress.Update(tui.ProgressMsg(1))
			m.transferProgress = transferProgressModel.(transferprogress.Model)
			m.keys.CopyPath.SetEnabled(true)
			m.keys.Quit.SetHelp("(q)", "quit")
			return m, nil
		}
		if msg.err != nil && !errors.Is(msg.err, logfetch.ErrAborted) {
			return m, tui.ErrorCmd(msg.err)
		}
		return m, tui.QuitCmd()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.state == showFinished {
				return m, tea.Quit
			}
			// The running fetch returns once the abort went through.
			m.state = showAborting
			m.resetSpinner()
			m.cancel()
			return m, m.spinner.Tick
		case key.Matches(msg, m.keys.CopyPath):
			if err := clipboard.WriteAll(m.result.Path); err == nil {
				m.copied = true
			}
			return m, nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		return m, transferProgressCmd

	default:
		var spinnerCmd tea.Cmd
		m.spinner, spinnerCmd = m.spinner.Update(msg)
		transferProgressModel, transferProgressCmd := m.transferProgress.Update(msg)
		m.transferProgress = transferProgressModel.(transferprogress.Model)
		return m, tea.Batch(spinnerCmd, transferProgressCmd)
	}
}

func (m model) View() string {

	switch m.state {

	case showRequesting:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(fmt.Sprintf("%s Waiting for the vehicle to report its latest log", m.spinner.View())) + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showReceiving:
		logSize := tui.BoldText(tui.ByteCountSI(int64(m.logSize)))
		receivingText := fmt.Sprintf("%s Receiving log %d (%s)", m.spinner.View(), m.logID, logSize)
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(receivingText) + "\n\n" +
			tui.PadText + m.transferProgress.View() + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"

	case showSaving:
		savingText := fmt.Sprintf("%s Decoding and saving log %d", m.spinner.View(), m.logID)
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.InfoStyle(savingText) + "\n\n" +
			tui.PadText + m.transferProgress.View() + "\n\n"

	case showAborting:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.WarningText(fmt.Sprintf("%s Aborting transfer", m.spinner.View())) + "\n\n"

	case showFinished:
		return m.finishedView()

	default:
		return ""
	}
}

func (m model) finishedView() string {
	switch m.result.Outcome {
	case logfetch.Completed:
		pathWidth := m.width - 2*tui.MARGIN
		if pathWidth > tui.MAX_WIDTH || pathWidth <= 0 {
			pathWidth = tui.MAX_WIDTH
		}
		finishedText := fmt.Sprintf("Fetched log %d (%s) in %s at %.1f kB/s",
			m.result.Entry.ID, tui.ByteCountSI(int64(m.result.Entry.Size)), m.result.Duration.Round(time.Millisecond), m.result.Throughput)
		copyText := "(press 'c' to copy the path to your clipboard)"
		if m.copied {
			copyText = "(path copied to clipboard)"
		}
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.SuccessText(finishedText) + "\n\n" +
			tui.PadText + m.transferProgress.View() + "\n\n" +
			tui.PadText + tui.BoldText(tui.TruncatePath(m.result.Path, pathWidth)) + "\n" +
			tui.PadText + tui.HelpStyle(copyText) + "\n\n" +
			tui.PadText + m.help.View(m.keys) + "\n\n"
	case logfetch.Empty:
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.WarningText("The vehicle has no log to offer") + "\n\n"
	default:
		text := "Transfer aborted"
		if m.err != nil {
			text = fmt.Sprintf("%s: %s", text, m.err)
		}
		return tui.PadText + tui.LogSeparator(m.width) +
			tui.PadText + tui.WarningText(text) + "\n\n"
	}
}

// syncEntry moves to the receiving state once the session knows the log it loads.
func (m *model) syncEntry() bool {
	if m.state != showRequesting {
		return false
	}
	snap := m.fetcher.Snapshot()
	if snap.State != logfetch.AwaitingData.Name() {
		return false
	}
	m.logID = snap.LogID
	m.logSize = snap.Size
	m.state = showReceiving
	m.transferProgress.LogSize = int64(snap.Size)
	m.transferProgress.StartTransfer()
	m.resetSpinner()
	return true
}

func (m *model) resetSpinner() {
	m.spinner = spinner.New()
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(tui.ELEMENT_COLOR))
	switch m.state {
	case showRequesting, showAborting:
		m.spinner.Spinner = tui.WaitingSpinner
	case showReceiving:
		m.spinner.Spinner = tui.ReceivingSpinner
	case showSaving:
		m.spinner.Spinner = tui.DecodingSpinner
	}
}

// ------------------------------------------------------ Commands -----------------------------------------------------

func fetchCmd(ctx context.Context, f Fetcher) tea.Cmd {
	return func() tea.Msg {
		res, err := f.Fetch(ctx)
		return fetchDoneMsg{result: res, err: err}
	}
}

func listenCmd(msgs chan interface{}) tea.Cmd {
	return func() tea.Msg {
		return <-msgs
	}
}

// Result returns the outcome of the fetch from the final model of a program.
func Result(m tea.Model) (logfetch.Result, error) {
	fm, ok := m.(model)
	if !ok {
		return logfetch.Result{}, fmt.Errorf("unexpected model %T", m)
	}
	return fm.result, fm.err
}
