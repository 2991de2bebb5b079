package model

import (
	"fmt"
	"strings"
	"time"
)

// Node is a single labeled record in a flow tree. The three relationship
// pointers are authored independently and are never reconciled: ParentID is
// the undirected parent scheme, LeftChildID/RightChildID are the slot scheme.
type Node struct {
	ID           int64     `json:"id"`
	Value        int64     `json:"value"`
	Name         string    `json:"name,omitempty"`
	Type         NodeType  `json:"type,omitempty"`
	ParentID     *int64    `json:"parent_id"`
	LeftChildID  *int64    `json:"left_child_id"`
	RightChildID *int64    `json:"right_child_id"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}

// Clone creates a deep copy of the node
func (n Node) Clone() Node {
	clone := n
	clone.ParentID = cloneRef(n.ParentID)
	clone.LeftChildID = cloneRef(n.LeftChildID)
	clone.RightChildID = cloneRef(n.RightChildID)
	return clone
}

func cloneRef(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// HasSlots reports whether either the left or right slot is assigned.
func (n Node) HasSlots() bool {
	return n.LeftChildID != nil || n.RightChildID != nil
}

// DisplayName returns the name, or "node <id>" when the node is unnamed.
func (n Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("node %d", n.ID)
}

// Label is the one-line description used in pickers: "#3: alpha (42)".
func (n Node) Label() string {
	return fmt.Sprintf("#%d: %s (%d)", n.ID, n.DisplayName(), n.Value)
}

// FilterValue returns the text used for fuzzy matching.
func (n Node) FilterValue() string {
	return strings.TrimSpace(fmt.Sprintf("%d %s %d %s", n.ID, n.Name, n.Value, n.Type))
}

// NodeType categorizes a node. The zero value means "no type".
type NodeType string

const (
	TypeNone    NodeType = ""
	TypeInput   NodeType = "input"
	TypeProcess NodeType = "process"
	TypeOutput  NodeType = "output"
)

// NodeTypes lists the recognized types in display order.
func NodeTypes() []NodeType {
	return []NodeType{TypeInput, TypeProcess, TypeOutput}
}

// IsValid returns true if the type is a recognized value
func (t NodeType) IsValid() bool {
	switch t {
	case TypeInput, TypeProcess, TypeOutput:
		return true
	}
	return false
}

// Ref returns a pointer to id, for building optional relationship fields.
func Ref(id int64) *int64 {
	return &id
}

// RefEqual compares two optional ids.
func RefEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
