package viz

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned by RunPicker when the user leaves without
// choosing.
var ErrCancelled = errors.New("viz: selection cancelled")

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

type PickerItem struct {
	Name   string
	Detail string
}

// Picker is a one-screen menu for choosing what to simulate.
type Picker struct {
	title  string
	items  []PickerItem
	cursor int
	chosen string
	done   bool
}

func NewPicker(title string, items []PickerItem) Picker {
	return Picker{title: title, items: items}
}

func (p Picker) Init() tea.Cmd { return nil }

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		p.done = true
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.items)-1 {
			p.cursor++
		}
	case "enter", " ":
		if len(p.items) > 0 {
			p.chosen = p.items[p.cursor].Name
		}
		p.done = true
		return p, tea.Quit
	}
	return p, nil
}

func (p Picker) View() string {
	var b strings.Builder
	b.WriteString("\n  " + cyan.Bold(true).Render(p.title) + "\n\n")
	for i, item := range p.items {
		cursor, name := "  ", dim.Render(item.Name)
		if i == p.cursor {
			cursor, name = cyan.Render("▸ "), white.Bold(true).Render(item.Name)
		}
		b.WriteString(fmt.Sprintf("  %s%-20s %s\n", cursor, name, dimmer.Render(item.Detail)))
	}
	b.WriteString("\n  " + dimmer.Render("↑↓ select · enter run · q quit") + "\n")
	return b.String()
}

// Chosen is the selected item name, empty until one is picked.
func (p Picker) Chosen() string { return p.chosen }

// RunPicker shows the menu and returns the chosen name.
func RunPicker(title string, items []PickerItem) (string, error) {
	final, err := tea.NewProgram(NewPicker(title, items)).Run()
	if err != nil {
		return "", err
	}
	if name := final.(Picker).Chosen(); name != "" {
		return name, nil
	}
	return "", ErrCancelled
}

// RunLive runs the live view until the user quits.
func RunLive(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
