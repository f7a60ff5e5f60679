package viz

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/orbitsim/internal/sim"
)

// FrameMsg carries one render request into the Bubble Tea loop.
type FrameMsg sim.RenderRequest

// DoneMsg reports that the runner has halted. Err is nil after a clean stop.
type DoneMsg struct{ Err error }

// Feed is a sim.Sink that hands render requests to a Bubble Tea program. It
// never blocks the runner: when the view falls behind, the oldest pending
// request is dropped in favour of the new one.
type Feed struct {
	ch chan sim.RenderRequest
}

func NewFeed(buffer int) *Feed {
	if buffer < 1 {
		buffer = 1
	}
	return &Feed{ch: make(chan sim.RenderRequest, buffer)}
}

// Render is called only from the runner's consumer goroutine.
func (f *Feed) Render(req sim.RenderRequest) error {
	for {
		select {
		case f.ch <- req:
			return nil
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// Next waits for the next request.
func (f *Feed) Next() tea.Cmd {
	return func() tea.Msg {
		return FrameMsg(<-f.ch)
	}
}

// WaitDone reports when the runner halts.
func WaitDone(r *sim.Runner) tea.Cmd {
	return func() tea.Msg {
		<-r.Done()
		return DoneMsg{Err: r.Err()}
	}
}
