package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	imagecropper "github.com/menta2k/image-cropper"
	"github.com/menta2k/image-cropper/internal/utils"
	"github.com/menta2k/image-cropper/pkg/cropper"
	"github.com/menta2k/image-cropper/pkg/export"
	"github.com/menta2k/image-cropper/pkg/preview"
)

const (
	qualityStep = 0.05
	nudgeStep   = 10.0
	awaitLimit  = 10 * time.Second
)

type keyMap struct {
	Prev        key.Binding
	Next        key.Binding
	Remove      key.Binding
	Ratio       key.Binding
	QualityUp   key.Binding
	QualityDown key.Binding
	MoveLeft    key.Binding
	MoveRight   key.Binding
	MoveUp      key.Binding
	MoveDown    key.Binding
	Narrower    key.Binding
	Wider       key.Binding
	Shorter     key.Binding
	Taller      key.Binding
	Reset       key.Binding
	Crop        key.Binding
	ExportAll   key.Binding
	Quit        key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Prev:        key.NewBinding(key.WithKeys("[", "shift+tab"), key.WithHelp("[", "prev image")),
		Next:        key.NewBinding(key.WithKeys("]", "tab"), key.WithHelp("]", "next image")),
		Remove:      key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "remove")),
		Ratio:       key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "aspect ratio")),
		QualityUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "quality")),
		QualityDown: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "quality")),
		MoveLeft:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "move")),
		MoveRight:   key.NewBinding(key.WithKeys("right", "l")),
		MoveUp:      key.NewBinding(key.WithKeys("up", "k")),
		MoveDown:    key.NewBinding(key.WithKeys("down", "j")),
		Narrower:    key.NewBinding(key.WithKeys("H"), key.WithHelp("HJKL", "resize")),
		Wider:       key.NewBinding(key.WithKeys("L")),
		Shorter:     key.NewBinding(key.WithKeys("K")),
		Taller:      key.NewBinding(key.WithKeys("J")),
		Reset:       key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
		Crop:        key.NewBinding(key.WithKeys("c", "enter"), key.WithHelp("c", "crop")),
		ExportAll:   key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "export all")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) help() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Remove, k.Ratio, k.QualityUp, k.MoveLeft, k.Narrower, k.Reset, k.Crop, k.ExportAll, k.Quit}
}

// Editor is the interactive crop editor.
type Editor struct {
	ctx    context.Context
	ws     *imagecropper.Workspace
	outDir string
	keys   keyMap
	width  int
	busy   bool
	ready  bool
	status string
}

type readyMsg struct {
	index int
	err   error
}

type statusMsg string

type errMsg struct{ error }

type exportDoneMsg struct {
	path   string
	report *export.Report
}

// New creates an editor over ws. Single crops and archives are written to outDir.
func New(ctx context.Context, ws *imagecropper.Workspace, outDir string) *Editor {
	return &Editor{
		ctx:    ctx,
		ws:     ws,
		outDir: outDir,
		keys:   defaultKeys(),
		width:  80,
	}
}

func (e *Editor) Init() tea.Cmd {
	return e.awaitCmd()
}

func (e *Editor) awaitCmd() tea.Cmd {
	e.ready = false
	i := e.ws.CurrentIndex()
	if i < 0 {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(e.ctx, awaitLimit)
		defer cancel()
		return readyMsg{index: i, err: e.ws.Await(ctx, i)}
	}
}

func (e *Editor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		e.width = m.Width
	case tea.KeyMsg:
		return e.handleKey(m)
	case readyMsg:
		if m.index == e.ws.CurrentIndex() {
			e.ready = m.err == nil
			if m.err != nil {
				e.status = "error: " + m.err.Error()
			}
		}
	case statusMsg:
		e.status = string(m)
	case errMsg:
		e.busy = false
		e.status = "error: " + m.Error()
	case exportDoneMsg:
		e.busy = false
		e.status = fmt.Sprintf("exported %d images to %s (%s)",
			len(m.report.Entries), m.path, utils.FormatFileSize(m.report.Bytes))
		if len(m.report.Skipped) > 0 {
			e.status += fmt.Sprintf(", %d skipped", len(m.report.Skipped))
		}
		return e, e.awaitCmd()
	}
	return e, nil
}

func (e *Editor) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(m, e.keys.Quit) {
		return e, tea.Quit
	}
	if e.busy {
		return e, nil
	}

	switch {
	case key.Matches(m, e.keys.Prev):
		return e, e.selectCmd(e.ws.CurrentIndex() - 1)
	case key.Matches(m, e.keys.Next):
		return e, e.selectCmd(e.ws.CurrentIndex() + 1)
	case key.Matches(m, e.keys.Remove):
		before := e.ws.CurrentIndex()
		e.ws.Dispatch(preview.Event{Action: preview.ActionRemove, Index: before})
		if e.ws.Len() == 0 {
			e.ready = false
			return e, nil
		}
		return e, e.awaitCmd()
	case key.Matches(m, e.keys.Ratio):
		e.ws.SetAspectRatio(nextRatio(e.ws.AspectRatio()))
	case key.Matches(m, e.keys.QualityUp):
		e.ws.SetQuality(e.ws.Quality() + qualityStep)
	case key.Matches(m, e.keys.QualityDown):
		e.ws.SetQuality(e.ws.Quality() - qualityStep)
	case key.Matches(m, e.keys.MoveLeft):
		e.nudge(e.ws.Move(-nudgeStep, 0))
	case key.Matches(m, e.keys.MoveRight):
		e.nudge(e.ws.Move(nudgeStep, 0))
	case key.Matches(m, e.keys.MoveUp):
		e.nudge(e.ws.Move(0, -nudgeStep))
	case key.Matches(m, e.keys.MoveDown):
		e.nudge(e.ws.Move(0, nudgeStep))
	case key.Matches(m, e.keys.Narrower):
		e.nudge(e.ws.Resize(-nudgeStep, 0))
	case key.Matches(m, e.keys.Wider):
		e.nudge(e.ws.Resize(nudgeStep, 0))
	case key.Matches(m, e.keys.Shorter):
		e.nudge(e.ws.Resize(0, -nudgeStep))
	case key.Matches(m, e.keys.Taller):
		e.nudge(e.ws.Resize(0, nudgeStep))
	case key.Matches(m, e.keys.Reset):
		e.ws.Reset()
	case key.Matches(m, e.keys.Crop):
		return e, e.cropCmd()
	case key.Matches(m, e.keys.ExportAll):
		e.busy = true
		e.status = "exporting..."
		return e, e.exportAllCmd()
	}
	return e, nil
}

func (e *Editor) selectCmd(i int) tea.Cmd {
	if i < 0 || i >= e.ws.Len() {
		return nil
	}
	e.ws.Dispatch(preview.Event{Action: preview.ActionSelect, Index: i})
	return e.awaitCmd()
}

func (e *Editor) nudge(err error) {
	if err != nil {
		e.status = err.Error()
	}
}

// cropCmd commits the selected image and writes its JPEG next to the archive.
func (e *Editor) cropCmd() tea.Cmd {
	res, ok := e.ws.Crop()
	if !ok {
		return nil
	}
	dir := e.outDir
	return func() tea.Msg {
		if err := utils.EnsureDir(dir); err != nil {
			return errMsg{err}
		}
		path := filepath.Join(dir, res.Filename)
		if err := os.WriteFile(path, res.Data, 0o644); err != nil {
			return errMsg{fmt.Errorf("failed to save %s: %w", path, err)}
		}
		return statusMsg(fmt.Sprintf("saved %s (%dx%d, %s)",
			path, res.Width, res.Height, utils.FormatFileSize(int64(len(res.Data)))))
	}
}

func (e *Editor) exportAllCmd() tea.Cmd {
	dir := e.outDir
	return func() tea.Msg {
		if e.ws.Len() == 0 {
			return errMsg{export.ErrNoImages}
		}
		if err := utils.EnsureDir(dir); err != nil {
			return errMsg{err}
		}
		path := filepath.Join(dir, e.ws.ArchiveName())
		f, err := os.Create(path)
		if err != nil {
			return errMsg{fmt.Errorf("failed to create %s: %w", path, err)}
		}
		report, err := e.ws.ExportAll(e.ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			return errMsg{err}
		}
		return exportDoneMsg{path: path, report: report}
	}
}

func nextRatio(current cropper.AspectRatio) cropper.AspectRatio {
	ratios := cropper.CommonAspectRatios()
	for i, r := range ratios {
		if r.Name == current.Name {
			return ratios[(i+1)%len(ratios)]
		}
	}
	return ratios[0]
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func (e *Editor) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Image Cropper"))
	b.WriteString("\n")
	b.WriteString(e.ws.StripView(e.width))
	b.WriteString("\n")

	if srcs, i := e.ws.Sources(), e.ws.CurrentIndex(); i >= 0 && i < len(srcs) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("image:"), srcs[i].Name)
		if r, ok := e.ws.Rect(); ok && e.ready {
			fmt.Fprintf(&b, "%s x=%.0f y=%.0f %.0fx%.0f\n", labelStyle.Render("crop:"), r.X, r.Y, r.Width, r.Height)
		} else {
			fmt.Fprintf(&b, "%s loading...\n", labelStyle.Render("crop:"))
		}
	}
	fmt.Fprintf(&b, "%s %s  %s %d%%\n",
		labelStyle.Render("ratio:"), e.ws.AspectRatio().Name,
		labelStyle.Render("quality:"), e.ws.QualityPercent())

	if res := e.ws.Displayed(); res != nil {
		fmt.Fprintf(&b, "%s %s %dx%d %s\n", labelStyle.Render("result:"),
			res.Filename, res.Width, res.Height, utils.FormatFileSize(int64(len(res.Data))))
	}

	parts := make([]string, 0, len(e.keys.help()))
	for _, k := range e.keys.help() {
		h := k.Help()
		parts = append(parts, keyStyle.Render(h.Key)+" "+h.Desc)
	}
	b.WriteString(strings.Join(parts, "  "))
	if e.status != "" {
		b.WriteString("\n" + statusStyle.Render(e.status))
	}
	return b.String()
}
