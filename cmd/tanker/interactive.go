package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/tanker-go"
	"github.com/wippyai/tanker-go/config"
	"github.com/wippyai/tanker-go/native"
	"github.com/wippyai/tanker-go/resource"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// action is one entry of the menu. Actions with an empty prompt run
// without input.
type action struct {
	name   string
	prompt string
	run    func(ctx context.Context, core *tanker.Core, arg string) (string, error)
}

var actions = []action{
	{
		name:   "encrypt",
		prompt: "clear text",
		run: func(ctx context.Context, core *tanker.Core, arg string) (string, error) {
			out, err := core.Encrypt(ctx, []byte(arg), nil)
			return base64.StdEncoding.EncodeToString(out), err
		},
	},
	{
		name:   "decrypt",
		prompt: "base64 ciphertext",
		run: func(ctx context.Context, core *tanker.Core, arg string) (string, error) {
			data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(arg))
			if err != nil {
				return "", fmt.Errorf("decode base64: %w", err)
			}
			out, err := core.Decrypt(ctx, data)
			return string(out), err
		},
	},
	{
		name:   "resource id",
		prompt: "base64 ciphertext",
		run: func(ctx context.Context, core *tanker.Core, arg string) (string, error) {
			data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(arg))
			if err != nil {
				return "", fmt.Errorf("decode base64: %w", err)
			}
			return core.GetResourceID(ctx, data)
		},
	},
	{
		name:   "create group",
		prompt: "public identities (comma-separated)",
		run: func(ctx context.Context, core *tanker.Core, arg string) (string, error) {
			return core.CreateGroup(ctx, splitList(arg))
		},
	},
	{
		name:   "generate verification key",
		prompt: "",
		run: func(ctx context.Context, core *tanker.Core, _ string) (string, error) {
			return core.GenerateVerificationKey(ctx)
		},
	},
	{
		name:   "status",
		prompt: "",
		run: func(_ context.Context, core *tanker.Core, _ string) (string, error) {
			return core.Status().String(), nil
		},
	},
}

type modelState int

const (
	stateSelectAction modelState = iota
	stateInput
	stateShowResult
)

type interactiveModel struct {
	ctx      context.Context
	err      error
	core     *tanker.Core
	reg      *resource.Registry
	identity string
	result   string
	input    textinput.Model
	selected int
	state    modelState
}

type resultMsg struct {
	err    error
	result string
}

func newInteractiveModel(ctx context.Context, core *tanker.Core, reg *resource.Registry, identity string) *interactiveModel {
	return &interactiveModel{
		ctx:      ctx,
		core:     core,
		reg:      reg,
		identity: identity,
		state:    stateSelectAction,
	}
}

func (m *interactiveModel) Init() tea.Cmd { return nil }

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInput {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectAction && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectAction && m.selected < len(actions)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectAction:
				if actions[m.selected].prompt == "" {
					return m, m.runAction("")
				}
				m.prepareInput()
				m.state = stateInput
				return m, textinput.Blink

			case stateInput:
				return m, m.runAction(m.input.Value())

			case stateShowResult:
				m.reset()
			}
			return m, nil

		case "esc":
			if m.state != stateSelectAction {
				m.reset()
			}
			return m, nil
		}

	case resultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectAction
	m.result = ""
	m.err = nil
}

func (m *interactiveModel) prepareInput() {
	ti := textinput.New()
	ti.Placeholder = actions[m.selected].prompt
	ti.Prompt = actions[m.selected].name + ": "
	ti.Width = 60
	ti.Focus()
	m.input = ti
}

func (m *interactiveModel) runAction(arg string) tea.Cmd {
	a := actions[m.selected]
	return func() tea.Msg {
		result, err := a.run(m.ctx, m.core, arg)
		return resultMsg{result: result, err: err}
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Tanker"))
	b.WriteString(" ")
	b.WriteString(m.identity)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectAction:
		b.WriteString("Select an operation:\n\n")
		for i, a := range actions {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + a.name))
			} else {
				b.WriteString("  " + actionStyle.Render(a.name))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter run • q quit"))

	case stateInput:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter run • esc back"))

	case stateShowResult:
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", actionStyle.Render(actions[m.selected].name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	b.WriteString("\n\n")
	b.WriteString(m.handles())
	return b.String()
}

// handles renders the live native handles per kind.
func (m *interactiveModel) handles() string {
	var parts []string
	for _, k := range resource.Kinds() {
		parts = append(parts, fmt.Sprintf("%s %s", k, countStyle.Render(fmt.Sprint(m.reg.OutstandingByKind(k)))))
	}
	return helpStyle.Render("handles: ") + strings.Join(parts, "  ")
}

func runInteractive(ctx context.Context, f *flags, cfg *config.Config, lib native.Library) error {
	reg := resource.NewRegistry()
	core, err := openSession(ctx, f, cfg, lib, tanker.WithRegistry(reg))
	if err != nil {
		return err
	}
	defer func() { _ = core.Close(context.WithoutCancel(ctx)) }()

	p := tea.NewProgram(newInteractiveModel(ctx, core, reg, f.identity), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
