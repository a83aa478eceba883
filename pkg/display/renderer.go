package display

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kylerisse/comitup-watch/pkg/engine"
)

// Sender accepts messages for a running program; *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// Renderer hands tables from the engine to the UI. Render never blocks:
// only the latest table is kept and older unsent ones are dropped.
type Renderer struct {
	mu     sync.Mutex
	latest []engine.Row
	ready  chan struct{}
}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{ready: make(chan struct{}, 1)}
}

// Render implements engine.Renderer.
func (r *Renderer) Render(rows []engine.Row) {
	r.mu.Lock()
	r.latest = rows
	r.mu.Unlock()

	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// Latest returns the most recent table.
func (r *Renderer) Latest() []engine.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Forward sends each new table to s until ctx is cancelled.
func (r *Renderer) Forward(ctx context.Context, s Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ready:
			s.Send(RowsMsg{Rows: r.Latest()})
		}
	}
}
