package ui

import (
	"fmt"

	"github.com/charmbracelet/huh"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kraitsura/flowtree/pkg/forest"
	"github.com/kraitsura/flowtree/pkg/model"
)

type formKind int

const (
	formAdd formKind = iota
	formEdit
	formDelete
)

// noneID stands for "no node" in relationship pickers. Stored ids start at 1.
const noneID int64 = 0

// slotTarget is an empty slot the new node should fill once created.
type slotTarget struct {
	owner int64
	side  forest.Side
}

// NodeForm is the modal used to add, edit, or delete a node.
type NodeForm struct {
	kind   formKind
	nodeID int64
	slot   *slotTarget
	form   *huh.Form
	theme  Theme
	width  int

	value   string
	name    string
	typ     model.NodeType
	parent  int64
	left    int64
	right   int64
	confirm bool
}

func typeOptions() []huh.Option[model.NodeType] {
	opts := []huh.Option[model.NodeType]{huh.NewOption("(none)", model.TypeNone)}
	for _, t := range model.NodeTypes() {
		opts = append(opts, huh.NewOption(string(t), t))
	}
	return opts
}

func nodeOptions(nodes []model.Node) []huh.Option[int64] {
	opts := []huh.Option[int64]{huh.NewOption("(none)", noneID)}
	for _, n := range nodes {
		opts = append(opts, huh.NewOption(n.Label(), n.ID))
	}
	return opts
}

func validateValue(s string) error {
	_, err := model.ParseValue(s)
	return err
}

func validateName(s string) error {
	if len(s) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	return nil
}

// NewAddForm builds the create form. parent preselects the parent picker.
// When slot is set the created node is also placed into that empty slot.
func NewAddForm(nodes []model.Node, parent *int64, slot *slotTarget, theme Theme) *NodeForm {
	f := &NodeForm{kind: formAdd, slot: slot, theme: theme}
	if parent != nil {
		f.parent = *parent
	}
	f.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Value").Placeholder("integer").Value(&f.value).Validate(validateValue),
			huh.NewInput().Title("Name").Placeholder("optional").CharLimit(255).Value(&f.name).Validate(validateName),
			huh.NewSelect[model.NodeType]().Title("Type").Options(typeOptions()...).Value(&f.typ),
			huh.NewSelect[int64]().Title("Parent").Options(nodeOptions(nodes)...).Value(&f.parent),
		),
	).WithTheme(huh.ThemeDracula()).WithShowHelp(true)
	return f
}

// NewEditForm builds the edit form for n. Slot pickers only offer nodes that
// are free to become a child of n.
func NewEditForm(nodes []model.Node, n model.Node, theme Theme) *NodeForm {
	f := &NodeForm{
		kind:   formEdit,
		nodeID: n.ID,
		theme:  theme,
		value:  fmt.Sprintf("%d", n.Value),
		name:   n.Name,
		typ:    n.Type,
	}
	if n.ParentID != nil {
		f.parent = *n.ParentID
	}
	if n.LeftChildID != nil {
		f.left = *n.LeftChildID
	}
	if n.RightChildID != nil {
		f.right = *n.RightChildID
	}

	var others []model.Node
	for _, o := range nodes {
		if o.ID != n.ID {
			others = append(others, o)
		}
	}
	leftChoices := withCurrent(forest.AvailableAsChild(nodes, n.ID, n.RightChildID), nodes, n.LeftChildID)
	rightChoices := withCurrent(forest.AvailableAsChild(nodes, n.ID, n.LeftChildID), nodes, n.RightChildID)

	f.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Value").Value(&f.value).Validate(validateValue),
			huh.NewInput().Title("Name").CharLimit(255).Value(&f.name).Validate(validateName),
			huh.NewSelect[model.NodeType]().Title("Type").Options(typeOptions()...).Value(&f.typ),
		),
		huh.NewGroup(
			huh.NewSelect[int64]().Title("Parent").Options(nodeOptions(others)...).Value(&f.parent),
			huh.NewSelect[int64]().Title("Left child").Options(nodeOptions(leftChoices)...).Value(&f.left),
			huh.NewSelect[int64]().Title("Right child").Options(nodeOptions(rightChoices)...).Value(&f.right),
		),
	).WithTheme(huh.ThemeDracula()).WithShowHelp(true)
	return f
}

// withCurrent keeps the slot's present occupant selectable even when another
// node also claims it.
func withCurrent(choices, all []model.Node, current *int64) []model.Node {
	if current == nil {
		return choices
	}
	for _, c := range choices {
		if c.ID == *current {
			return choices
		}
	}
	for _, n := range all {
		if n.ID == *current {
			return append([]model.Node{n}, choices...)
		}
	}
	return choices
}

// NewDeleteForm asks for confirmation before deleting n.
func NewDeleteForm(n model.Node, theme Theme) *NodeForm {
	f := &NodeForm{kind: formDelete, nodeID: n.ID, theme: theme}
	f.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %s?", n.Label())).
				Description("References to it from other nodes are cleared.").
				Affirmative("Delete").
				Negative("Cancel").
				Value(&f.confirm),
		),
	).WithTheme(huh.ThemeDracula())
	return f
}

// Init implements tea.Model
func (f *NodeForm) Init() tea.Cmd {
	return f.form.Init()
}

// Update forwards msg to the embedded form.
func (f *NodeForm) Update(msg tea.Msg) tea.Cmd {
	m, cmd := f.form.Update(msg)
	if hf, ok := m.(*huh.Form); ok {
		f.form = hf
	}
	return cmd
}

// Done reports whether the form was submitted or aborted.
func (f *NodeForm) Done() bool {
	return f.form.State != huh.StateNormal
}

// Submitted reports whether the user completed the form.
func (f *NodeForm) Submitted() bool {
	return f.form.State == huh.StateCompleted
}

// Fields converts the form state into a write request. Edits send every
// field so cleared names, types, and references are applied.
func (f *NodeForm) Fields() (model.NodeFields, error) {
	v, err := model.ParseValue(f.value)
	if err != nil {
		return model.NodeFields{}, err
	}
	name := f.name
	typ := f.typ
	fields := model.NodeFields{Value: &v}

	switch f.kind {
	case formAdd:
		if name != "" {
			fields.Name = &name
		}
		if typ != model.TypeNone {
			fields.Type = &typ
		}
		if f.parent != noneID {
			fields.ParentID = model.SetRef(f.parent)
		}
	case formEdit:
		fields.Name = &name
		fields.Type = &typ
		fields.ParentID = refField(f.parent)
		fields.LeftChildID = refField(f.left)
		fields.RightChildID = refField(f.right)
	}
	return fields, nil
}

func refField(id int64) model.OptionalRef {
	if id == noneID {
		return model.ClearRef()
	}
	return model.SetRef(id)
}

// SetWidth sets the modal width.
func (f *NodeForm) SetWidth(width int) {
	f.width = width
	w := width - 10
	if w > 70 {
		w = 70
	}
	if w < 30 {
		w = 30
	}
	f.form = f.form.WithWidth(w)
}

// View renders the modal.
func (f *NodeForm) View() string {
	title := "Add node"
	switch f.kind {
	case formEdit:
		title = fmt.Sprintf("Edit node #%d", f.nodeID)
	case formDelete:
		title = "Delete node"
	}
	if f.slot != nil {
		title = fmt.Sprintf("Add node into [%s] of #%d", f.slot.side, f.slot.owner)
	}
	titleStyle := f.theme.Renderer.NewStyle().Bold(true).Foreground(f.theme.Primary)
	box := f.theme.Renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(f.theme.Border).
		Padding(1, 2)
	return box.Render(titleStyle.Render(title) + "\n\n" + f.form.View())
}
