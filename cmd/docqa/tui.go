// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sigil-dev/docqa/internal/rag"
	"github.com/sigil-dev/docqa/internal/server"
)

// --- lipgloss styles ---

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	answerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

type turn struct {
	question string
	answer   string
	sources  int
	failed   bool
}

// --- bubbletea messages ---

type (
	streamEventMsg struct {
		ev rag.Event
		ch <-chan tea.Msg
	}
	streamEndMsg struct{ err error }
)

// chatModel is the bubbletea model for the interactive chat.
type chatModel struct {
	ctx          context.Context
	client       *gatewayClient
	input        textinput.Model
	spinner      spinner.Model
	turns        []turn
	current      *turn
	sessionID    string
	documentHash string
	status       string
	width        int
}

func newChatModel(ctx context.Context, client *gatewayClient, sessionID, documentHash string) chatModel {
	in := textinput.New()
	in.Placeholder = "ask a question about your document"
	in.Prompt = promptStyle.Render("> ")
	in.CharLimit = 2000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return chatModel{
		ctx:          ctx,
		client:       client,
		input:        in,
		spinner:      sp,
		sessionID:    sessionID,
		documentHash: documentHash,
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if m.current == nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case streamEventMsg:
		m.applyEvent(msg.ev)
		return m, waitForStream(msg.ch)

	case streamEndMsg:
		if m.current != nil {
			if msg.err != nil {
				m.current.failed = true
				m.current.answer = msg.err.Error()
			}
			m.turns = append(m.turns, *m.current)
			m.current = nil
		}
		m.input.Focus()
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m chatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		if m.current != nil {
			return m, nil
		}
		q := strings.TrimSpace(m.input.Value())
		if q == "" {
			return m, nil
		}
		if q == "/quit" || q == "/exit" {
			return m, tea.Quit
		}
		m.input.SetValue("")
		m.input.Blur()
		m.current = &turn{question: q}
		req := server.ChatStreamRequest{Content: q, SessionID: m.sessionID, DocumentHash: m.documentHash}
		return m, tea.Batch(m.spinner.Tick, startStream(m.ctx, m.client, req))
	}
	if m.current != nil {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) applyEvent(ev rag.Event) {
	if m.current == nil {
		return
	}
	switch ev.Type {
	case rag.EventSources:
		m.current.sources = len(ev.Sources)
	case rag.EventTextDelta:
		m.current.answer += ev.Text
	case rag.EventError:
		m.current.answer += ev.Text
		m.current.failed = true
	case rag.EventDone:
		if ev.Provider != "" {
			m.status = "answered by " + ev.Provider
		}
	}
}

func (m chatModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("docqa chat"))
	b.WriteString("\n")
	if m.documentHash != "" {
		b.WriteString(dimStyle.Render("document " + m.documentHash))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, t := range m.turns {
		writeTurn(&b, t, m.width)
	}
	if m.current != nil {
		writeTurn(&b, *m.current, m.width)
		if m.current.answer == "" {
			b.WriteString(m.spinner.View() + " thinking...\n\n")
		}
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	footer := "enter to send, esc to quit"
	if m.status != "" {
		footer = m.status + " | " + footer
	}
	b.WriteString(dimStyle.Render(footer))
	b.WriteString("\n")
	return b.String()
}

func writeTurn(b *strings.Builder, t turn, width int) {
	b.WriteString(promptStyle.Render("you: "))
	b.WriteString(t.question)
	b.WriteString("\n")
	if t.answer == "" {
		return
	}
	style := answerStyle
	if t.failed {
		style = errorStyle
	}
	if width > 0 {
		style = style.Width(width)
	}
	b.WriteString(style.Render(t.answer))
	b.WriteString("\n")
	if t.sources > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("(%d sources)", t.sources)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// --- tea.Cmd factories ---

// startStream returns a command that runs the request in the background and
// yields its first message. Each streamEventMsg carries the channel so the
// model can ask for the next one.
func startStream(ctx context.Context, client *gatewayClient, req server.ChatStreamRequest) tea.Cmd {
	return func() tea.Msg {
		ch := make(chan tea.Msg, 16)
		go func() {
			defer close(ch)
			err := client.streamChat(ctx, req, func(ev rag.Event) error {
				select {
				case ch <- streamEventMsg{ev: ev, ch: ch}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			select {
			case ch <- streamEndMsg{err: err}:
			case <-ctx.Done():
			}
		}()
		return waitForStream(ch)()
	}
}

func waitForStream(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return streamEndMsg{}
		}
		return msg
	}
}
