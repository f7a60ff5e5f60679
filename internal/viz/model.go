package viz

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/orbitsim/internal/dynamo"
	"github.com/san-kum/orbitsim/internal/sim"
)

const (
	defaultWidth    = 100
	defaultHeight   = 32
	statsWidth      = 44
	graphHeight     = 6
	historyCapacity = 600
	rateCapacity    = 60
	rotateStep      = math.Pi / 24
)

var (
	canvasStyle = lipgloss.NewStyle().Padding(0, 1)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(0, 2).Width(statsWidth)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 1, 0)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

// Model is the live terminal view. It owns no simulation state: everything
// it draws comes from the render requests delivered by a Feed.
type Model struct {
	title  string
	feed   *Feed
	runner *sim.Runner

	width, height int
	canvas        *Canvas
	camera        *Camera
	theme         int

	paused   bool
	autoFit  bool
	showHelp bool
	halted   bool
	err      error

	last     sim.RenderRequest
	received uint64
	energy   []float64
	lastKin  uint64
	seen     bool
	rates    []float64
}

// NewModel builds a view fed by feed. runner may be nil, in which case the
// view never learns that the simulation halted.
func NewModel(title string, feed *Feed, runner *sim.Runner, theme string) Model {
	m := Model{
		title:   title,
		feed:    feed,
		runner:  runner,
		camera:  NewCamera(),
		theme:   themeIndex(theme),
		autoFit: true,
	}
	m.resize(defaultWidth, defaultHeight)
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.feed.Next()}
	if m.runner != nil {
		cmds = append(cmds, WaitDone(m.runner))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "t":
			m.theme = (m.theme + 1) % len(Themes)
		case "left", "h":
			m.camera.Rotate(-rotateStep, 0)
		case "right", "l":
			m.camera.Rotate(rotateStep, 0)
		case "up", "k":
			m.camera.Rotate(0, -rotateStep)
		case "down", "j":
			m.camera.Rotate(0, rotateStep)
		case "+", "=":
			m.camera.ZoomIn()
		case "-", "_":
			m.camera.ZoomOut()
		case "f":
			m.autoFit = !m.autoFit
		case "r":
			m.camera.Reset()
			m.autoFit = true
		case "?":
			m.showHelp = !m.showHelp
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case FrameMsg:
		m.received++
		if !m.paused {
			m.observe(sim.RenderRequest(msg))
		}
		return m, m.feed.Next()
	case DoneMsg:
		m.halted = true
		m.err = msg.Err
		return m, nil
	}
	return m, nil
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	cw := max(w-statsWidth-4, 10)
	ch := max(h-graphHeight-6, 5)
	m.canvas = NewCanvas(cw, ch)
}

// observe keeps the request and extends the energy history with every frame
// newer than the last one seen. A newest frame older than that means the
// engine was restarted, so the history starts over.
func (m *Model) observe(req sim.RenderRequest) {
	m.last = req
	m.rates = appendCapped(m.rates, req.Status.KinematicsHz, rateCapacity)
	if req.Snapshot == nil || req.Snapshot.Len() == 0 {
		return
	}
	if m.seen && req.Snapshot.Newest().KinematicsID() < m.lastKin {
		m.energy = m.energy[:0]
		m.seen = false
	}
	for _, f := range req.Snapshot.Frames() {
		id := f.KinematicsID()
		if m.seen && id <= m.lastKin {
			continue
		}
		m.energy = appendCapped(m.energy, f.Energy(), historyCapacity)
		m.lastKin = id
		m.seen = true
	}
}

func appendCapped(s []float64, v float64, limit int) []float64 {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

// draw renders the snapshot onto the canvas: one trail per body through
// every frame, and a disc at the newest position.
func (m *Model) draw() {
	m.canvas.Clear()
	snap := m.last.Snapshot
	if snap == nil || snap.Len() == 0 {
		return
	}
	newest := snap.Newest()
	if m.autoFit {
		m.camera.Fit(newest)
	}
	pw, ph := m.canvas.Pixels()
	for i := 0; i < newest.Len(); i++ {
		m.canvas.SetPen(i)
		px, py, pok := 0, 0, false
		for j := 0; j < snap.Len(); j++ {
			x, y, _, ok := m.camera.Project(snap.At(j).Position(i), pw, ph)
			switch {
			case ok && pok:
				m.canvas.DrawLine(px, py, x, y)
			case ok:
				m.canvas.Set(x, y)
			}
			px, py, pok = x, y, ok
		}
	}
	for i := 0; i < newest.Len(); i++ {
		if x, y, _, ok := m.camera.Project(newest.Position(i), pw, ph); ok {
			m.canvas.SetPen(i)
			m.canvas.Disc(x, y, 1)
		}
	}
}

func (m Model) palette(theme Theme) []lipgloss.Style {
	snap := m.last.Snapshot
	if snap == nil || snap.Len() == 0 {
		return nil
	}
	newest := snap.Newest()
	styles := make([]lipgloss.Style, newest.Len())
	for i := range styles {
		b, _ := newest.Body(i)
		styles[i] = lipgloss.NewStyle().Foreground(theme.BodyColor(i, b.Appearance.Color))
	}
	return styles
}

func (m Model) View() string {
	theme := Themes[m.theme]
	m.draw()

	header := lipgloss.NewStyle().Foreground(theme.Primary).Bold(true).Render("orbitsim · " + m.title)
	header += "  " + m.stateBadge(theme)

	canvasView := canvasStyle.Render(m.canvas.Render(m.palette(theme)))
	body := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(m.statsView(theme)))

	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(body + "\n")
	b.WriteString(m.graphView())
	if m.showHelp {
		b.WriteString(helpStyle.Render("space pause · ←→↑↓ rotate · +/- zoom · f fit · r reset view · t theme · q quit"))
	} else {
		b.WriteString(helpStyle.Render("? help · q quit"))
	}
	return b.String()
}

func (m Model) stateBadge(theme Theme) string {
	switch {
	case m.err != nil:
		return lipgloss.NewStyle().Foreground(theme.Error).Bold(true).Render("HALTED: " + m.err.Error())
	case m.halted:
		return lipgloss.NewStyle().Foreground(theme.Muted).Render("STOPPED")
	case m.paused:
		return lipgloss.NewStyle().Foreground(theme.Warning).Bold(true).Render("PAUSED")
	default:
		return lipgloss.NewStyle().Foreground(theme.Success).Bold(true).Render("RUNNING")
	}
}

func (m Model) statsView(theme Theme) string {
	st := m.last.Status
	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
	}

	var b strings.Builder
	b.WriteString(row("playback", FormatSeconds(m.last.Playback)))
	if snap := m.last.Snapshot; snap != nil && snap.Len() > 0 {
		b.WriteString(row("track", fmt.Sprintf("%s … %s", FormatSeconds(snap.StartTime()), FormatSeconds(snap.EndTime()))))
		b.WriteString(row("shown", fmt.Sprintf("%d frames", snap.Len())))
	}
	b.WriteString(row("latest", FormatSeconds(st.LatestTime)))
	fill := 0.0
	if st.Capacity > 0 {
		fill = float64(st.Frames) / float64(st.Capacity)
	}
	b.WriteString(row("cache", fmt.Sprintf("%d/%d", st.Frames, st.Capacity)))
	b.WriteString(labelStyle.Render("") + ProgressBar(fill, statsWidth-18) + "\n")
	b.WriteString(row("evicted", fmt.Sprintf("%d", st.Evicted)))
	b.WriteString(Separator(statsWidth-6, theme.Muted) + "\n")
	b.WriteString(row("dynamics", fmt.Sprintf("%.1f Hz (dt %gs)", st.DynamicsHz, st.DynamicsResolution)))
	b.WriteString(row("kinematics", fmt.Sprintf("%.1f Hz (dt %gs)", st.KinematicsHz, st.KinematicsResolution)))
	b.WriteString(labelStyle.Render("") + lipgloss.NewStyle().Foreground(theme.Primary).Render(Sparkline(m.rates, statsWidth-18)) + "\n")
	b.WriteString(row("plan", fmt.Sprintf("%d steps, sleep %s", st.Plan.StepsPerWake, st.Plan.Sleep)))
	b.WriteString(row("speed", fmt.Sprintf("×%g", st.Settings.TimeMagnification)))
	b.WriteString(Separator(statsWidth-6, theme.Muted) + "\n")

	if snap := m.last.Snapshot; snap != nil && snap.Len() > 0 {
		newest := snap.Newest()
		for i := 0; i < newest.Len(); i++ {
			body, _ := newest.Body(i)
			name := body.Appearance.Name
			if name == "" {
				name = fmt.Sprintf("body %d", i)
			}
			swatch := lipgloss.NewStyle().Foreground(theme.BodyColor(i, body.Appearance.Color)).Render("●")
			b.WriteString(fmt.Sprintf("%s %-10s %s\n", swatch, name, valueStyle.Render(fmt.Sprintf("%.3g m/s", body.Velocity.Len()))))
		}
	}
	if len(m.energy) > 0 {
		b.WriteString(row("energy", fmt.Sprintf("%.4g J", m.energy[len(m.energy)-1])))
		b.WriteString(row("drift", fmt.Sprintf("%.2e", m.Drift())))
	}
	return b.String()
}

func (m Model) graphView() string {
	if len(m.energy) < 2 {
		return ""
	}
	data := m.energy
	w := max(m.width-16, 10)
	if len(data) > w {
		data = data[len(data)-w:]
	}
	plot := asciigraph.Plot(data,
		asciigraph.Height(graphHeight),
		asciigraph.Width(w),
		asciigraph.Caption("total energy (J)"))
	return graphStyle.Render(plot) + "\n"
}

// Drift is the relative change in total energy across the recorded history.
func (m Model) Drift() float64 {
	if len(m.energy) == 0 {
		return 0
	}
	e0 := m.energy[0]
	if e0 == 0 {
		return 0
	}
	return (m.energy[len(m.energy)-1] - e0) / math.Abs(e0)
}

func (m Model) Paused() bool             { return m.paused }
func (m Model) Theme() Theme             { return Themes[m.theme] }
func (m Model) Camera() *Camera          { return m.camera }
func (m Model) Last() sim.RenderRequest  { return m.last }
func (m Model) Received() uint64         { return m.received }
func (m Model) EnergyHistory() []float64 { return append([]float64(nil), m.energy...) }
func (m Model) Halted() (bool, error)    { return m.halted, m.err }
func (m Model) Newest() *dynamo.Frame {
	if m.last.Snapshot == nil || m.last.Snapshot.Len() == 0 {
		return nil
	}
	return m.last.Snapshot.Newest()
}

// FormatSeconds renders a simulated duration in the largest unit that keeps
// the value above one.
func FormatSeconds(s float64) string {
	abs := math.Abs(s)
	switch {
	case abs >= 86400*365.25:
		return fmt.Sprintf("%.2f yr", s/(86400*365.25))
	case abs >= 86400:
		return fmt.Sprintf("%.2f d", s/86400)
	case abs >= 3600:
		return fmt.Sprintf("%.2f h", s/3600)
	case abs >= 60:
		return fmt.Sprintf("%.2f min", s/60)
	default:
		return fmt.Sprintf("%.1f s", s)
	}
}
