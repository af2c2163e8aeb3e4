// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/voicedesk/services/desk/agent"
	"github.com/AleutianAI/voicedesk/services/desk/config"
	"github.com/AleutianAI/voicedesk/services/desk/dispatch"
	"github.com/AleutianAI/voicedesk/services/desk/secrets"
)

var (
	consoleOffline  bool
	consoleIdentity string
	consoleLogFile  string
)

var (
	callerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	deskStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	sentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).PaddingLeft(2)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Rehearse a call in the terminal",
		Long: `Rehearse a call: type what the caller says, or invoke a tool with

  /send_car_image car_name=camry
  /create_client {"first_name":"Sara","last_name":"Ali","email":"s@example.com","address":"Salmiya"}

With --offline the CRM and WhatsApp are simulated in memory and the caller
is registered as a known client with one vehicle.`,
		Args: cobra.NoArgs,
		RunE: runConsole,
	}
	cmd.Flags().BoolVar(&consoleOffline, "offline", false, "Simulate the CRM and WhatsApp in memory")
	cmd.Flags().StringVar(&consoleIdentity, "identity", "", "Caller identity (prompted if empty)")
	cmd.Flags().StringVar(&consoleLogFile, "log-file", "", "Write logs here instead of discarding them")
	return cmd
}

func runConsole(cmd *cobra.Command, _ []string) error {
	secrets.CatchInterrupt()

	identity := consoleIdentity
	if identity == "" {
		err := huh.NewInput().
			Title("Caller identity").
			Description("Phone number or SIP identity of the simulated caller").
			Placeholder("+96566756452").
			Value(&identity).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("identity is required")
				}
				return nil
			}).
			Run()
		if err != nil {
			return err
		}
	}

	var logOut io.Writer = io.Discard
	if consoleLogFile != "" {
		f, err := os.OpenFile(consoleLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}

	var (
		cfg    *config.Config
		collab collaborators
		out    *outbox
	)
	if consoleOffline {
		cfg = loadLocalConfig()
		cfg.JournalInMemory = true
		cfg.InfluxURL = ""
		memCRM := newMemoryCRM()
		memCRM.seed(identity)
		out = &outbox{}
		collab = collaborators{crm: memCRM, messenger: out}
	} else {
		var err error
		if cfg, err = config.Load(envFiles...); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cfg, logOut, collab)
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	m := newConsoleModel(ctx, rt.coord, identity, out)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		return err
	}
	rt.coord.Shutdown(context.WithoutCancel(ctx))
	return nil
}

// turnMsg carries the outcome of one console turn.
type turnMsg struct {
	turn agent.Turn
	err  error
	sent []string
}

type consoleModel struct {
	ctx       context.Context
	coord     *agent.Coordinator
	out       *outbox
	sessionID string

	input   textinput.Model
	spinner spinner.Model
	lines   []string
	busy    bool
	width   int
}

func newConsoleModel(ctx context.Context, coord *agent.Coordinator, identity string, out *outbox) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "Say something, or /tool key=value. /quit to hang up."
	ti.Prompt = "caller> "
	ti.CharLimit = 500
	ti.Focus()

	m := consoleModel{
		ctx:     ctx,
		coord:   coord,
		out:     out,
		input:   ti,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	start := coord.StartCall(ctx, identity)
	m.sessionID = start.SessionID
	m.lines = append(m.lines, helpStyle.Render("session "+start.SessionID))
	m.appendTurn(start)
	return m
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			switch line {
			case "/quit":
				return m, tea.Quit
			case "/tools":
				m.lines = append(m.lines, helpStyle.Render("tools: "+strings.Join(toolNames(), ", ")))
				return m, nil
			}
			m.lines = append(m.lines, callerStyle.Render("caller: ")+line)
			m.busy = true
			return m, m.runLine(line)
		}

	case turnMsg:
		m.busy = false
		if msg.err != nil {
			m.lines = append(m.lines, errStyle.Render("error: "+msg.err.Error()))
		} else {
			m.appendTurn(msg.turn)
		}
		for _, s := range msg.sent {
			m.lines = append(m.lines, sentStyle.Render(s))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m consoleModel) View() string {
	var b strings.Builder
	for _, l := range m.lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if m.busy {
		b.WriteString(m.spinner.View() + " working...\n")
	}
	b.WriteString(m.input.View())
	b.WriteByte('\n')
	return b.String()
}

func (m *consoleModel) appendTurn(t agent.Turn) {
	if t.Result != nil {
		r := t.Result
		status := string(r.Status)
		if r.Reason != dispatch.ReasonNone {
			status += " (" + string(r.Reason) + ")"
		}
		m.lines = append(m.lines, toolStyle.Render(fmt.Sprintf("  %s: %s in %s", r.Tool, status, r.Duration.Round(time.Millisecond))))
	}
	if t.Reply != nil {
		m.lines = append(m.lines, deskStyle.Render("desk ["+string(t.Reply.Language)+"]: ")+t.Reply.Text)
	}
}

func (m consoleModel) runLine(line string) tea.Cmd {
	return func() tea.Msg {
		var (
			turn agent.Turn
			err  error
		)
		if strings.HasPrefix(line, "/") {
			var (
				tool string
				args map[string]any
			)
			tool, args, err = parseToolLine(line)
			if err == nil {
				turn, err = m.coord.InvokeTool(m.ctx, m.sessionID, tool, args)
			}
		} else {
			turn, err = m.coord.HandleUtterance(m.ctx, m.sessionID, line)
		}
		msg := turnMsg{turn: turn, err: err}
		if m.out != nil {
			msg.sent = m.out.drain()
		}
		return msg
	}
}

// parseToolLine parses "/tool {json}" or "/tool key=value key=\"two words\"".
// "true" and "false" become booleans.
func parseToolLine(line string) (string, map[string]any, error) {
	line = strings.TrimSpace(strings.TrimPrefix(line, "/"))
	tool, rest, _ := strings.Cut(line, " ")
	if tool == "" {
		return "", nil, errors.New("missing tool name")
	}
	rest = strings.TrimSpace(rest)
	args := map[string]any{}
	if rest == "" {
		return tool, args, nil
	}
	if strings.HasPrefix(rest, "{") {
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return "", nil, fmt.Errorf("arguments: %w", err)
		}
		return tool, args, nil
	}

	fields, err := splitQuoted(rest)
	if err != nil {
		return "", nil, err
	}
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return "", nil, fmt.Errorf("argument %q is not key=value", f)
		}
		switch value {
		case "true", "false":
			args[key] = value == "true"
		default:
			args[key] = value
		}
	}
	return tool, args, nil
}

// splitQuoted splits on spaces outside double quotes and drops the quotes.
func splitQuoted(s string) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case r == ' ' && !quoted:
			if pending {
				out = append(out, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote")
	}
	if pending {
		out = append(out, cur.String())
	}
	return out, nil
}

// toolNames lists tool names, sorted.
func toolNames() []string {
	var names []string
	for _, t := range dispatch.Tools() {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}
