package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rivekit/rive-runtime-go/engine"
	rerrors "github.com/rivekit/rive-runtime-go/errors"
	"github.com/rivekit/rive-runtime-go/loader"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
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

type interactiveModel struct {
	loader   *loader.Loader
	future   *loader.InstanceFuture
	failures chan *rerrors.TerminalError
	rt       *engine.Runtime
	sigs     []engine.ExportSignature
	spin     spinner.Model
	urlInput textinput.Model
	inputs   []textinput.Model
	result   string
	err      error
	selected int
	focusIdx int
	state    modelState
}

type modelState int

const (
	stateLoading modelState = iota
	stateLoadFailed
	stateSelectFunc
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(l *loader.Loader) *interactiveModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = typeStyle

	m := &interactiveModel{
		loader:   l,
		failures: make(chan *rerrors.TerminalError, 1),
		spin:     sp,
		state:    stateLoading,
	}
	l.OnLoadFailure(func(terr *rerrors.TerminalError) {
		select {
		case m.failures <- terr:
		default:
		}
	})
	return m
}

type loadedMsg struct {
	rt *engine.Runtime
}

type loadFailedMsg struct {
	err *rerrors.TerminalError
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.awaitLoad())
}

// awaitLoad watches the shared future and the failure channel. The future
// survives failed rounds, so a retry reuses it and it settles with the
// first successful load.
func (m *interactiveModel) awaitLoad() tea.Cmd {
	if m.future == nil {
		m.future = m.loader.AwaitInstance()
	}
	return func() tea.Msg {
		select {
		case <-m.future.Done():
			rt, _ := m.future.TryGet()
			return loadedMsg{rt: rt}
		case terr := <-m.failures:
			return loadFailedMsg{err: terr}
		}
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.closeRuntime()
			return m, tea.Quit
		}

		switch m.state {
		case stateLoading:
			if msg.String() == "q" {
				m.closeRuntime()
				return m, tea.Quit
			}

		case stateLoadFailed:
			switch msg.String() {
			case "enter":
				if url := strings.TrimSpace(m.urlInput.Value()); url != "" {
					m.loader.SetWasmURL(url)
					m.loader.LoadRuntime()
					m.state = stateLoading
					m.err = nil
					return m, tea.Batch(m.spin.Tick, m.awaitLoad())
				}
			case "esc":
				m.closeRuntime()
				return m, tea.Quit
			}

		case stateSelectFunc:
			switch msg.String() {
			case "q":
				m.closeRuntime()
				return m, tea.Quit
			case "up", "k":
				if m.selected > 0 {
					m.selected--
				}
			case "down", "j":
				if m.selected < len(m.sigs)-1 {
					m.selected++
				}
			case "enter":
				if len(m.sigs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs
			}

		case stateInputArgs:
			switch msg.String() {
			case "enter":
				return m, m.callFunction
			case "tab":
				if len(m.inputs) > 1 {
					m.inputs[m.focusIdx].Blur()
					m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
					m.inputs[m.focusIdx].Focus()
				}
			case "esc":
				m.state = stateSelectFunc
				m.inputs = nil
			}

		case stateShowResult:
			switch msg.String() {
			case "q":
				m.closeRuntime()
				return m, tea.Quit
			case "enter", "esc":
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		m.rt = msg.rt
		m.sigs = m.rt.ExportSignatures()
		m.state = stateSelectFunc

	case loadFailedMsg:
		m.err = msg.err
		m.state = stateLoadFailed
		ti := textinput.New()
		ti.Placeholder = "https://host/path/rive.wasm"
		ti.Prompt = "new url: "
		ti.Width = 60
		ti.Focus()
		m.urlInput = ti

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult

	case spinner.TickMsg:
		if m.state == stateLoading {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch m.state {
	case stateLoadFailed:
		var cmd tea.Cmd
		m.urlInput, cmd = m.urlInput.Update(msg)
		return m, cmd

	case stateInputArgs:
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	sig := m.sigs[m.selected]
	m.inputs = make([]textinput.Model, len(sig.Params))
	for i, typ := range sig.Params {
		ti := textinput.New()
		ti.Placeholder = typ
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 24
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	sig := m.sigs[m.selected]
	args := make([]uint64, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = convertArg(input.Value(), sig.Params[i])
	}

	results, err := m.rt.Call(context.Background(), sig.Name, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatResults(results, sig.Results)}
}

func (m *interactiveModel) closeRuntime() {
	if m.rt != nil {
		m.rt.Close(context.Background())
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Rive Runtime"))
	b.WriteString(" ")
	b.WriteString(m.loader.WasmURL())
	b.WriteString("\n\n")

	switch m.state {
	case stateLoading:
		b.WriteString(m.spin.View())
		b.WriteString(" Fetching runtime artifact...\n\n")
		b.WriteString(helpStyle.Render("q quit"))

	case stateLoadFailed:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Load failed: %v", m.err)))
		b.WriteString("\n\n")
		var terr *rerrors.TerminalError
		if errors.As(m.err, &terr) {
			for _, url := range terr.Attempted {
				b.WriteString("  tried " + url + "\n")
			}
			b.WriteString("\n")
		}
		b.WriteString("Point the loader at a reachable copy to retry:\n\n")
		b.WriteString(m.urlInput.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter retry • esc quit"))

	case stateSelectFunc:
		if len(m.sigs) == 0 {
			b.WriteString("The artifact exports no functions.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, sig := range m.sigs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + m.formatFunc(sig)))
			} else {
				b.WriteString(cursor + m.formatFunc(sig))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		sig := m.sigs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(sig.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(sig.Params[i]))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		sig := m.sigs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(sig.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(sig engine.ExportSignature) string {
	var params []string
	for i, typ := range sig.Params {
		params = append(params, fmt.Sprintf("arg%d: %s", i, typeStyle.Render(typ)))
	}
	result := ""
	if len(sig.Results) > 0 {
		result = " -> " + typeStyle.Render(strings.Join(sig.Results, ", "))
	}
	return funcStyle.Render(sig.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(l *loader.Loader) error {
	p := tea.NewProgram(newInteractiveModel(l), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
