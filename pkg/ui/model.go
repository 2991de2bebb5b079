// Package ui implements the interactive explorer: a collapsible sidebar of
// the reconstructed forest next to the generated diagram text.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kraitsura/flowtree/pkg/diagram"
	"github.com/kraitsura/flowtree/pkg/expansion"
	"github.com/kraitsura/flowtree/pkg/explorer"
	"github.com/kraitsura/flowtree/pkg/forest"
	"github.com/kraitsura/flowtree/pkg/model"
	"github.com/kraitsura/flowtree/pkg/store"
)

// storeTimeout bounds every store call made from the UI.
const storeTimeout = 10 * time.Second

type focus int

const (
	focusSidebar focus = iota
	focusDiagram
)

// RefreshMsg asks the model to reload the snapshot. File watchers and
// remote subscriptions send it through tea.Program.Send.
type RefreshMsg struct{}

type snapshotMsg struct {
	nodes []model.Node
	err   error
}

type mutationMsg struct {
	op   string
	node model.Node
	err  error
}

type renderMsg struct {
	res diagram.Result
}

type clipboardMsg struct {
	err error
}

// Options configures a Model.
type Options struct {
	Store     store.Store
	Tracker   *expansion.Tracker // nil keeps expansion in memory only
	Scheduler *diagram.Scheduler // optional external diagram renderer
	Direction diagram.Direction  // defaults to TD
	Theme     *Theme             // defaults to DefaultTheme(nil)
	ASCII     bool               // ASCII tree guides
	HelpStyle string             // glamour style for the help overlay
	Title     string             // shown in the header, usually the workspace
	Logger    *slog.Logger
	Clipboard func(string) error // defaults to the system clipboard
}

// Model is the explorer session.
type Model struct {
	store      store.Store
	tracker    *expansion.Tracker
	scheduler  *diagram.Scheduler
	direction  diagram.Direction
	theme      Theme
	connectors explorer.Connectors
	title      string
	logger     *slog.Logger
	copy       func(string) error

	// Data
	snapshot []model.Node
	forest   *forest.Forest
	rows     []*explorer.Row
	lines    []explorer.Line
	loaded   bool
	code     string

	// UI state
	cursor    int
	offset    int
	width     int
	height    int
	focus     focus
	diagramVP viewport.Model
	help      HelpOverlayModel
	form      *NodeForm

	searching    bool
	search       textinput.Model
	matches      []int
	searchOrigin int

	status    string
	statusErr bool
	renderID  string
	quitting  bool
}

// New creates the explorer model.
func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	theme := DefaultTheme(nil)
	if opts.Theme != nil {
		theme = *opts.Theme
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = expansion.NewTracker(nil, expansion.VisibleDepth, logger)
	}
	connectors := explorer.UnicodeConnectors
	if opts.ASCII {
		connectors = explorer.ASCIIConnectors
	}
	direction := opts.Direction
	if direction == "" {
		direction = diagram.TopDown
	}
	copyFn := opts.Clipboard
	if copyFn == nil {
		copyFn = clipboard.WriteAll
	}

	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "jump to node"
	ti.CharLimit = 64

	return Model{
		store:      opts.Store,
		tracker:    tracker,
		scheduler:  opts.Scheduler,
		direction:  direction,
		theme:      theme,
		connectors: connectors,
		title:      opts.Title,
		logger:     logger,
		copy:       copyFn,
		forest:     forest.Build(nil),
		diagramVP:  viewport.New(0, 0),
		help:       NewHelpOverlayModel(theme, opts.HelpStyle),
		search:     ti,
		code:       diagram.EmptyDiagram,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return m.loadCmd()
}

func (m Model) loadCmd() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		nodes, err := s.List(ctx)
		return snapshotMsg{nodes: nodes, err: err}
	}
}

func (m Model) mutate(op string, fn func(ctx context.Context) (model.Node, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		n, err := fn(ctx)
		return mutationMsg{op: op, node: n, err: err}
	}
}

func (m Model) renderCmd(code string) tea.Cmd {
	if m.scheduler == nil {
		return nil
	}
	s := m.scheduler
	return func() tea.Msg {
		return renderMsg{res: s.Render(context.Background(), code)}
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case RefreshMsg:
		return m, m.loadCmd()

	case snapshotMsg:
		if msg.err != nil {
			m.logger.Warn("snapshot load failed", "error", msg.err)
			m.setError("load failed: %v", msg.err)
			return m, nil
		}
		m.loaded = true
		return m, m.applySnapshot(msg.nodes)

	case mutationMsg:
		if msg.err != nil {
			m.logger.Warn("node write rejected", "op", msg.op, "error", msg.err)
			m.setError("%s failed: %s", msg.op, describeError(msg.err))
			return m, nil
		}
		m.setStatus("%s #%d", msg.op, msg.node.ID)
		return m, m.loadCmd()

	case renderMsg:
		if msg.res.Stale {
			return m, nil
		}
		if msg.res.Err != nil {
			m.setError("render %s failed: %v", msg.res.RenderID, msg.res.Err)
			return m, nil
		}
		m.renderID = msg.res.RenderID
		return m, nil

	case clipboardMsg:
		if msg.err != nil {
			m.setError("copy failed: %v", msg.err)
		} else {
			m.setStatus("diagram copied to clipboard")
		}
		return m, nil
	}

	if m.form != nil {
		return m.updateForm(msg)
	}

	if m.help.IsVisible() {
		var cmd tea.Cmd
		m.help, cmd = m.help.Update(msg)
		return m, cmd
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.searching {
		return m.updateSearch(key)
	}
	if m.focus == focusDiagram {
		return m.updateDiagram(key)
	}
	return m.updateSidebar(key)
}

func (m Model) updateSidebar(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.scheduler != nil {
			m.scheduler.Cancel()
		}
		return m, tea.Quit
	case "j", "down":
		m.moveCursor(1)
	case "k", "up":
		m.moveCursor(-1)
	case "g", "home":
		m.cursor = 0
	case "G", "end":
		m.cursor = max(len(m.lines)-1, 0)
	case "enter", " ":
		m.toggleSelected()
	case "tab":
		m.focus = focusDiagram
	case "?":
		m.help.Toggle()
	case "r":
		m.setStatus("reloading")
		return m, m.loadCmd()
	case "R":
		m.tracker.Reset(m.forest)
		m.rebuild(m.selectedID())
		m.setStatus("expansion reset")
	case "/":
		m.searching = true
		m.searchOrigin = m.cursor
		m.search.SetValue("")
		m.matches = nil
		return m, m.search.Focus()
	case "y":
		code, copyFn := m.code, m.copy
		return m, func() tea.Msg { return clipboardMsg{err: copyFn(code)} }
	case "a":
		return m, m.openForm(m.newAddForm())
	case "e":
		if n := m.selectedNode(); n != nil {
			return m, m.openForm(NewEditForm(m.snapshot, *n, m.theme))
		}
	case "d":
		if n := m.selectedNode(); n != nil {
			return m, m.openForm(NewDeleteForm(*n, m.theme))
		}
	}
	m.clampOffset()
	return m, nil
}

func (m Model) updateDiagram(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "tab", "esc":
		m.focus = focusSidebar
		return m, nil
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "y":
		code, copyFn := m.code, m.copy
		return m, func() tea.Msg { return clipboardMsg{err: copyFn(code)} }
	case "?":
		m.help.Toggle()
		return m, nil
	}
	var cmd tea.Cmd
	m.diagramVP, cmd = m.diagramVP.Update(key)
	return m, cmd
}

func (m Model) updateSearch(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		m.searching = false
		m.search.Blur()
		m.cursor = m.searchOrigin
		m.matches = nil
		return m, nil
	case "enter":
		m.searching = false
		m.search.Blur()
		if len(m.matches) == 0 {
			m.setError("no match for %q", m.search.Value())
			m.cursor = m.searchOrigin
		}
		return m, nil
	case "ctrl+n", "down":
		m.cycleMatch(1)
		return m, nil
	case "ctrl+p", "up":
		m.cycleMatch(-1)
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(key)
	m.matches = matchLines(m.lines, m.search.Value())
	if len(m.matches) > 0 {
		m.cursor = m.matches[0]
	}
	m.clampOffset()
	return m, cmd
}

func (m *Model) cycleMatch(step int) {
	if len(m.matches) == 0 {
		return
	}
	pos := 0
	for i, idx := range m.matches {
		if idx == m.cursor {
			pos = i
			break
		}
	}
	pos = (pos + step + len(m.matches)) % len(m.matches)
	m.cursor = m.matches[pos]
	m.clampOffset()
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "ctrl+c" {
		m.form = nil
		return m, nil
	}
	cmd := m.form.Update(msg)
	if !m.form.Done() {
		return m, cmd
	}
	f := m.form
	m.form = nil
	if !f.Submitted() {
		m.setStatus("cancelled")
		return m, nil
	}
	return m, m.submitForm(f)
}

func (m *Model) openForm(f *NodeForm) tea.Cmd {
	if m.store == nil {
		m.setError("no store configured")
		return nil
	}
	f.SetWidth(m.width)
	m.form = f
	return f.Init()
}

func (m Model) newAddForm() *NodeForm {
	if len(m.lines) == 0 {
		return NewAddForm(m.snapshot, nil, nil, m.theme)
	}
	l := m.lines[m.cursor]
	if owner, side, ok := slotOwner(l); ok {
		return NewAddForm(m.snapshot, model.Ref(owner), &slotTarget{owner: owner, side: side}, m.theme)
	}
	return NewAddForm(m.snapshot, model.Ref(l.Row.ID()), nil, m.theme)
}

func (m Model) submitForm(f *NodeForm) tea.Cmd {
	s := m.store
	switch f.kind {
	case formDelete:
		if !f.confirm {
			return nil
		}
		id := f.nodeID
		return m.mutate("deleted", func(ctx context.Context) (model.Node, error) {
			return model.Node{ID: id}, s.Delete(ctx, id)
		})
	}

	fields, err := f.Fields()
	if err != nil {
		return func() tea.Msg { return mutationMsg{op: "save", err: err} }
	}
	if f.kind == formEdit {
		id := f.nodeID
		return m.mutate("updated", func(ctx context.Context) (model.Node, error) {
			return s.Update(ctx, id, fields)
		})
	}
	slot := f.slot
	return m.mutate("created", func(ctx context.Context) (model.Node, error) {
		n, err := s.Create(ctx, fields)
		if err != nil || slot == nil {
			return n, err
		}
		var patch model.NodeFields
		if slot.side == forest.SideLeft {
			patch.LeftChildID = model.SetRef(n.ID)
		} else {
			patch.RightChildID = model.SetRef(n.ID)
		}
		if _, err := s.Update(ctx, slot.owner, patch); err != nil {
			return n, fmt.Errorf("created #%d but could not place it: %w", n.ID, err)
		}
		return n, nil
	})
}

// applySnapshot swaps in a new snapshot, establishes the expansion set on
// first data, and regenerates the diagram.
func (m *Model) applySnapshot(nodes []model.Node) tea.Cmd {
	selected := m.selectedID()
	m.snapshot = nodes
	m.forest = forest.Build(nodes)
	m.tracker.Init(m.forest)
	m.rebuild(selected)

	code := diagram.GenerateWith(nodes, diagram.Options{Direction: m.direction})
	if code == m.code && m.renderID != "" {
		return nil
	}
	m.code = code
	m.diagramVP.SetContent(code)
	return m.renderCmd(code)
}

// rebuild re-renders rows from the current forest and keeps the cursor on
// the previously selected node when it is still visible.
func (m *Model) rebuild(selected int64) {
	m.rows = explorer.Render(m.forest, m.tracker.Expanded())
	m.lines = explorer.Flatten(m.rows)
	if selected != 0 {
		if i := lineIndex(m.lines, selected); i >= 0 {
			m.cursor = i
		}
	}
	if m.cursor >= len(m.lines) {
		m.cursor = max(len(m.lines)-1, 0)
	}
	m.clampOffset()
}

// listHeight is the number of row lines that fit in the sidebar.
func (m Model) listHeight() int {
	return max(m.height-4-2, 1)
}

func (m *Model) clampOffset() {
	m.offset, _ = visibleWindow(len(m.lines), m.cursor, m.offset, m.listHeight())
}

func (m *Model) toggleSelected() {
	if len(m.lines) == 0 {
		return
	}
	r := m.lines[m.cursor].Row
	if r.Kind != explorer.RowNode || !r.HasChildren {
		return
	}
	m.tracker.Toggle(r.ID())
	m.rebuild(r.ID())
}

func (m *Model) moveCursor(delta int) {
	if len(m.lines) == 0 {
		return
	}
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.lines) {
		m.cursor = len(m.lines) - 1
	}
}

func (m Model) selectedID() int64 {
	if m.cursor < 0 || m.cursor >= len(m.lines) {
		return 0
	}
	return m.lines[m.cursor].Row.ID()
}

func (m Model) selectedNode() *model.Node {
	if m.cursor < 0 || m.cursor >= len(m.lines) {
		return nil
	}
	return m.lines[m.cursor].Row.Node
}

func (m *Model) setSize(width, height int) {
	m.width, m.height = width, height
	sw := m.sidebarWidth()
	m.diagramVP.Width = max(width-sw-4, 0)
	m.diagramVP.Height = max(height-4, 0)
	m.help.SetSize(width, height)
	if m.form != nil {
		m.form.SetWidth(width)
	}
}

func (m Model) sidebarWidth() int {
	w := m.width * 2 / 5
	if w < 32 {
		w = min(32, m.width)
	}
	return w
}

func (m *Model) setStatus(format string, args ...any) {
	m.status = fmt.Sprintf(format, args...)
	m.statusErr = false
}

func (m *Model) setError(format string, args ...any) {
	m.status = fmt.Sprintf(format, args...)
	m.statusErr = true
}

// describeError trims store errors to the message a user can act on.
func describeError(err error) string {
	var apiErr *store.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Detail
	case errors.Is(err, store.ErrNotFound):
		return "node not found"
	}
	return err.Error()
}

// View implements tea.Model
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "loading..."
	}
	if m.form != nil {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.form.View())
	}
	if m.help.IsVisible() {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.help.View())
	}

	bodyHeight := max(m.height-4, 1)
	sw := m.sidebarWidth()
	sidebar := m.theme.panel(m.focus == focusSidebar).
		Width(max(sw-2, 1)).
		Height(bodyHeight).
		Render(m.sidebarView(max(sw-2, 1), bodyHeight))

	right := ""
	if m.width-sw > 4 {
		right = m.theme.panel(m.focus == focusDiagram).
			Width(max(m.width-sw-2, 1)).
			Height(bodyHeight).
			Render(m.diagramVP.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, sidebar, right),
		m.footerView(),
	)
}

func (m Model) headerView(width int) string {
	title := "Flow Tree"
	if m.title != "" {
		title += " · " + m.title
	}
	count := fmt.Sprintf("%d nodes", len(m.snapshot))
	if len(m.snapshot) == 1 {
		count = "1 node"
	}
	titleStyle := m.theme.Renderer.NewStyle().Bold(true).Foreground(m.theme.Primary)
	countStyle := m.theme.Renderer.NewStyle().Foreground(m.theme.Subtext)
	return titleStyle.Render(title) + "  " + countStyle.Render(count) + "\n" + RenderDivider(m.theme, width)
}

func (m Model) sidebarView(width, height int) string {
	var b strings.Builder
	b.WriteString(m.headerView(width))
	b.WriteByte('\n')
	height -= 2

	if !m.loaded {
		b.WriteString(m.theme.Renderer.NewStyle().Faint(true).Render("loading..."))
		return b.String()
	}
	if len(m.lines) == 0 {
		b.WriteString(m.theme.Renderer.NewStyle().Foreground(m.theme.Subtext).Italic(true).Render(EmptyMessage))
		return b.String()
	}

	start, end := visibleWindow(len(m.lines), m.cursor, m.offset, min(height, m.listHeight()))
	selectedStyle := m.theme.Renderer.NewStyle().Background(m.theme.Highlight)
	for i := start; i < end; i++ {
		line := renderLine(m.theme, m.lines[i], m.connectors, width, i == m.cursor)
		if i == m.cursor && m.focus == focusSidebar {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		if i < end-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (m Model) footerView() string {
	if m.searching {
		return m.search.View()
	}
	if m.status != "" {
		style := m.theme.Renderer.NewStyle().Foreground(m.theme.Open)
		if m.statusErr {
			style = style.Foreground(m.theme.Blocked)
		}
		return style.Render(m.status)
	}
	hint := "j/k move · enter toggle · a add · e edit · d delete · y copy · / jump · ? help · q quit"
	if m.renderID != "" {
		hint += " · " + m.renderID
	}
	return m.theme.Renderer.NewStyle().Faint(true).Render(hint)
}

// Lines returns the visible sidebar lines.
func (m Model) Lines() []explorer.Line { return m.lines }

// DiagramText returns the current diagram text.
func (m Model) DiagramText() string { return m.code }

// Status returns the status line and whether it reports an error.
func (m Model) Status() (string, bool) { return m.status, m.statusErr }
