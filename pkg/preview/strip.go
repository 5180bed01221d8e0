// Package preview renders one entry per registered image and routes the
// select and remove controls of each entry.
package preview

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/menta2k/image-cropper/pkg/registry"
)

// Entry is one rendered item of the strip.
type Entry struct {
	Index     int
	Name      string
	Active    bool
	Processed bool
	Thumbnail image.Image
}

// Source is the registry view the strip renders from.
type Source interface {
	Sources() []*registry.SourceImage
	Result(i int) (*registry.ProcessedResult, bool)
}

// ThumbnailFunc produces the preview image of a registered image.
type ThumbnailFunc func(src *registry.SourceImage) image.Image

// Strip holds the rendered entries.
type Strip struct {
	thumbnail ThumbnailFunc

	mu      sync.Mutex
	entries []Entry
}

// New creates an empty strip. thumbnail may be nil to skip previews.
func New(thumbnail ThumbnailFunc) *Strip {
	return &Strip{thumbnail: thumbnail}
}

// Render rebuilds every entry from src, marking the entry at current active.
func (s *Strip) Render(src Source, current int) []Entry {
	sources := src.Sources()
	entries := make([]Entry, 0, len(sources))
	for i, img := range sources {
		_, processed := src.Result(i)
		e := Entry{
			Index:     i,
			Name:      img.Name,
			Active:    i == current,
			Processed: processed,
		}
		if s.thumbnail != nil {
			e.Thumbnail = s.thumbnail(img)
		}
		entries = append(entries, e)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return s.Entries()
}

// SetActive moves the active marker without rebuilding entries.
func (s *Strip) SetActive(current int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		s.entries[i].Active = s.entries[i].Index == current
	}
}

// Entries returns a copy of the rendered entries.
func (s *Strip) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// Len returns the number of rendered entries.
func (s *Strip) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Action is a control on a strip entry.
type Action int

const (
	ActionSelect Action = iota
	ActionRemove
)

// Event is a click on one of an entry's controls.
type Event struct {
	Action Action
	Index  int
}

// Handler receives routed strip events.
type Handler interface {
	Select(i int)
	Remove(i int)
}

// Dispatch routes ev to h. A removal is handled on its own and never also
// reaches the selection handler.
func Dispatch(h Handler, ev Event) {
	switch ev.Action {
	case ActionRemove:
		h.Remove(ev.Index)
	case ActionSelect:
		h.Select(ev.Index)
	}
}

var (
	itemStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
	activeStyle = itemStyle.
			BorderForeground(lipgloss.Color("205")).
			Bold(true)
	doneStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// View renders the strip as text, wrapping to width columns.
func (s *Strip) View(width int) string {
	entries := s.Entries()
	if len(entries) == 0 {
		return "no images loaded"
	}

	var rows []string
	var row []string
	used := 0
	for _, e := range entries {
		label := fmt.Sprintf("%d %s", e.Index+1, truncate(e.Name, 18))
		if e.Processed {
			label += " " + doneStyle.Render("✓")
		}
		label += " ×"

		style := itemStyle
		if e.Active {
			style = activeStyle
		}
		cell := style.Render(label)
		w := lipgloss.Width(cell)
		if width > 0 && used > 0 && used+w > width {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row, used = nil, 0
		}
		row = append(row, cell)
		used += w
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	return strings.Join(rows, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
