// Package tui は分析ワークフローを対話的に操作する端末UIを提供する。
package tui

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jinford/stock-analysis/internal/core/analysis"
	"github.com/jinford/stock-analysis/internal/interface/view"
)

// Analyzer はUIから利用する分析サービスの操作
type Analyzer interface {
	StartAnalysis(ctx context.Context, identifier string) (*analysis.PollHandle, error)
	FetchResult(ctx context.Context, identifier string) (string, error)
	Cancel(identifier string) bool
	AddListener(listener analysis.Listener)
}

const eventBuffer = 64

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	analyzingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	completeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	resultStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("10")).
			Padding(0, 1)
)

type eventMsg analysis.Event

type errMsg struct{ err error }

// Model は bubbletea のモデル
type Model struct {
	ctx      context.Context
	analyzer Analyzer
	events   chan analysis.Event

	input textinput.Model
	state view.State
	err   error
}

// NewModel は分析サービスのイベントを購読するモデルを作成する。
// ctx が終了するとイベントの転送も止まる。
func NewModel(ctx context.Context, analyzer Analyzer) Model {
	input := textinput.New()
	input.Placeholder = "Company name"
	input.CharLimit = 128
	input.Width = 40
	input.Focus()

	events := make(chan analysis.Event, eventBuffer)
	analyzer.AddListener(func(e analysis.Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})

	return Model{
		ctx:      ctx,
		analyzer: analyzer,
		events:   events,
		input:    input,
	}
}

// State は現在の画面状態を返す
func (m Model) State() view.State {
	return m.state
}

func waitForEvent(events <-chan analysis.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-events)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.input.Focused() {
			return m.updateForm(msg)
		}
		return m.updateStatus(msg)

	case eventMsg:
		m.state = view.Reduce(m.state, analysis.Event(msg))
		return m, waitForEvent(m.events)

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// updateForm は会社名入力中のキー操作を処理する
func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		identifier := strings.TrimSpace(m.input.Value())
		if identifier == "" {
			m.err = analysis.ErrEmptyIdentifier
			return m, nil
		}
		m.err = nil
		m.input.Blur()
		return m, m.start(identifier)
	case tea.KeyEsc:
		if m.state.StatusVisible {
			m.input.Blur()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// updateStatus は分析状況表示中のキー操作を処理する
func (m Model) updateStatus(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "r":
		if !m.state.ResultEnabled {
			return m, nil
		}
		return m, m.fetch(m.state.Identifier)
	case "c":
		if m.state.Tone == view.ToneAnalyzing {
			m.analyzer.Cancel(m.state.Identifier)
		}
		return m, nil
	case "n":
		m.err = nil
		m.input.Reset()
		return m, m.input.Focus()
	}
	return m, nil
}

func (m Model) start(identifier string) tea.Cmd {
	return func() tea.Msg {
		// 開始失敗はイベントとして届く
		if _, err := m.analyzer.StartAnalysis(m.ctx, identifier); err != nil && !isPublished(err) {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m Model) fetch(identifier string) tea.Cmd {
	return func() tea.Msg {
		// 結果と取得失敗はどちらもイベントとして届く
		_, _ = m.analyzer.FetchResult(m.ctx, identifier)
		return nil
	}
}

// isPublished はイベントとして通知済みのエラーかどうかを返す。
// 入力エラーと重複開始の拒否は開始前に返るためイベントにならない。
func isPublished(err error) bool {
	return !errors.Is(err, analysis.ErrEmptyIdentifier) && !errors.Is(err, analysis.ErrAnalysisAlreadyRunning)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Stock Analysis"))
	b.WriteString("\n\n")

	if m.input.Focused() {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if status := m.renderStatus(); status != "" {
		b.WriteString("\n")
		b.WriteString(status)
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(failedStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.help()))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderStatus() string {
	s := m.state
	if !s.StatusVisible {
		return ""
	}

	var b strings.Builder
	line := s.Identifier + ": " + s.StatusText
	switch s.Tone {
	case view.ToneAnalyzing:
		b.WriteString(analyzingStyle.Render(line))
	case view.ToneComplete:
		b.WriteString(completeStyle.Render(line))
	case view.ToneFailed:
		b.WriteString(failedStyle.Render(line))
	default:
		b.WriteString(line)
	}
	if s.Attempts > 0 && s.Tone == view.ToneAnalyzing {
		b.WriteString(dimStyle.Render(" · checks " + strconv.Itoa(s.Attempts)))
	}
	if s.LastError != "" && s.Tone != view.ToneComplete {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(s.LastError))
	}
	if s.Notice.Kind != view.NoticeNone {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(s.Notice.Text))
	}
	if result, ok := s.Result.Get(); ok {
		b.WriteString("\n")
		b.WriteString(resultStyle.Render(result))
	}
	return b.String()
}

func (m Model) help() string {
	if m.input.Focused() {
		return "enter: analyze • ctrl+c: quit"
	}
	keys := []string{"n: new analysis"}
	if m.state.ResultEnabled {
		keys = append(keys, "r: show result")
	}
	if m.state.Tone == view.ToneAnalyzing {
		keys = append(keys, "c: cancel")
	}
	keys = append(keys, "q: quit")
	return strings.Join(keys, " • ")
}
