// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui is the terminal chat client: a bubbletea program, and a plain
// line mode for terminals that cannot host it.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ayseljafar/Longevity-check/internal/knowledge"
	"github.com/ayseljafar/Longevity-check/internal/model"
	"github.com/ayseljafar/Longevity-check/internal/relay"
	"github.com/ayseljafar/Longevity-check/internal/util"
)

// Options configures the chat view.
type Options struct {
	// Timeout bounds one relay round trip.
	Timeout time.Duration

	// NoColor renders Markdown without ANSI styling.
	NoColor bool

	// RelayURL is shown in the status line.
	RelayURL string
}

// Model is the bubbletea model for the chat view.
type Model struct {
	client Client
	opts   Options
	theme  Theme

	conv    model.Conversation
	recs    *relay.Recommendations
	pending string
	banner  string
	waiting bool

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer

	width  int
	height int
	ready  bool
}

// NewModel creates the chat view.
func NewModel(client Client, opts Options) Model {
	if opts.Timeout <= 0 {
		opts.Timeout = relay.DefaultTimeout
	}

	ti := textinput.New()
	ti.Placeholder = "Ask about sleep, energy, longevity..."
	ti.Prompt = "> "
	ti.CharLimit = model.MaxContentLength
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	theme := NewTheme()
	sp.Style = theme.Spinner

	return Model{
		client:  client,
		opts:    opts,
		theme:   theme,
		input:   ti,
		spinner: sp,
	}
}

// Conversation returns the current history.
func (m Model) Conversation() model.Conversation { return m.conv }

// Banner returns the inline error, if any.
func (m Model) Banner() string { return m.banner }

// Draft returns the input box contents.
func (m Model) Draft() string { return m.input.Value() }

// Waiting reports whether a turn is in flight.
func (m Model) Waiting() bool { return m.waiting }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlL:
			if !m.waiting {
				m.conv = nil
				m.recs = nil
				m.banner = ""
				m.refresh()
			}
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case replyMsg:
		m.waiting = false
		m.pending = ""
		m.banner = ""
		m.conv = msg.conv
		m.recs = msg.recs
		m.refresh()
		return m, nil

	case failedMsg:
		m.waiting = false
		m.pending = ""
		m.banner = relay.Banner(msg.err)
		if m.input.Value() == "" {
			m.input.SetValue(msg.draft)
			m.input.CursorEnd()
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	if !m.waiting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// submit validates the draft and starts a relay round trip.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.waiting {
		return m, nil
	}

	draft := m.input.Value()
	msg := model.NewUserMessage(model.NormalizeContent(draft))
	if err := msg.Validate(); err != nil {
		m.banner = relay.Banner(&model.ValidationError{Index: len(m.conv), Err: err})
		m.refresh()
		return m, nil
	}

	sent := m.conv.Append(msg)
	if len(sent) > model.MaxMessages {
		sent = sent[len(sent)-model.MaxMessages:]
	}

	m.waiting = true
	m.pending = msg.Content
	m.banner = ""
	m.input.SetValue("")
	m.refresh()

	return m, tea.Batch(m.spinner.Tick, sendCmd(m.client, sent, draft, m.opts.Timeout))
}

// =============================================================================
// LAYOUT
// =============================================================================

const (
	headerHeight = 2
	footerHeight = 5
)

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height

	vh := height - headerHeight - footerHeight
	if vh < 3 {
		vh = 3
	}
	if !m.ready {
		m.viewport = viewport.New(width, vh)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vh
	}
	m.input.Width = width - 6

	style := "dark"
	if m.opts.NoColor {
		style = "notty"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err == nil {
		m.markdown = r
	}
	m.refresh()
}

// refresh rebuilds the viewport content and scrolls to the end.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderHistory() string {
	var b strings.Builder

	b.WriteString(m.theme.AssistantLabel.Render("Agent"))
	b.WriteString("\n")
	b.WriteString(m.renderMarkdown(welcomeText))

	for _, msg := range m.conv {
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(m.theme.UserLabel.Render("You"))
			b.WriteString("\n")
			b.WriteString(m.theme.UserText.Width(max(m.width-2, 10)).Render(msg.Content))
			b.WriteString("\n\n")
		case model.RoleAssistant:
			b.WriteString(m.theme.AssistantLabel.Render("Agent"))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(msg.Content))
		}
	}

	if m.recs != nil && len(m.recs.Supplements) > 0 && !m.waiting {
		b.WriteString(m.theme.AssistantLabel.Render("Recommended Supplements:"))
		b.WriteString("\n")
		for _, s := range m.recs.Supplements {
			line := fmt.Sprintf("- %s: %s", s.Name, s.Dosage)
			if s.ReferralLink != "" {
				line += " (" + s.ReferralLink + ")"
			}
			b.WriteString(m.theme.Recommendation.Render(util.TruncateWidth(line, max(m.width-4, 20))))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if m.waiting {
		b.WriteString(m.theme.UserLabel.Render("You"))
		b.WriteString("\n")
		b.WriteString(m.theme.Pending.Render(m.pending))
		b.WriteString("\n\n")
		b.WriteString(m.spinner.View() + " Thinking...")
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMarkdown(src string) string {
	if m.markdown == nil {
		return src + "\n\n"
	}
	out, err := m.markdown.Render(src)
	if err != nil {
		return src + "\n\n"
	}
	return out
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Header.Render("Longevity Health Agent"),
		m.theme.Disclaimer.Render(util.TruncateWidth(knowledge.DisclaimerGeneral, max(m.width-2, 20))),
	)

	banner := ""
	if m.banner != "" {
		banner = m.theme.Banner.Render(util.TruncateWidth(m.banner, max(m.width-4, 20)))
	}

	status := fmt.Sprintf("%d messages | enter send | ctrl+l new conversation | esc quit", len(m.conv))
	if m.opts.RelayURL != "" {
		status = m.opts.RelayURL + " | " + status
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		banner,
		m.theme.Input.Render(m.input.View()),
		m.theme.Status.Render(util.TruncateWidth(status, max(m.width-2, 20))),
	)
}

const welcomeText = "Hello! I'm your Longevity Health Agent. Tell me about your health goals " +
	"and I'll suggest evidence-based supplements, lifestyle changes and habits that support them."

// Run starts the full-screen program and blocks until the user quits.
func Run(client Client, opts Options, programOpts ...tea.ProgramOption) error {
	programOpts = append([]tea.ProgramOption{tea.WithAltScreen()}, programOpts...)
	p := tea.NewProgram(NewModel(client, opts), programOpts...)
	_, err := p.Run()
	return err
}
