package model

import (
	"github.com/google/uuid"
)

// NodeID uniquely identifies a group or entry.
type NodeID = uuid.UUID

// AttachmentID is a handle into a database's binary table. It is positional
// in the source format and carries no meaning outside its database.
type AttachmentID int

// AttachmentRef is a named reference from an entry to a stored binary.
type AttachmentRef struct {
	Filename string       `json:"filename"`
	ID       AttachmentID `json:"id"`
}

// Node is an element of the database tree: a group or an entry.
//
// Groups usually own Children and entries usually own Attachments, but
// nothing in the model enforces that split; traversal reads whatever a node
// carries.
type Node struct {
	ID      NodeID
	Title   string
	IsGroup bool

	// BuiltInIcon indexes the application's stock icon set and is unrelated
	// to CustomIcon.
	BuiltInIcon int

	// CustomIcon names a user-supplied icon in the database icon table.
	CustomIcon *uuid.UUID

	Attachments []AttachmentRef

	// History holds previous versions of an entry, oldest first.
	History []*Node

	Children []*Node
}

// NewGroup creates a group node with a fresh identifier.
func NewGroup(title string) *Node {
	return &Node{
		ID:      uuid.New(),
		Title:   title,
		IsGroup: true,
	}
}

// NewEntry creates an entry node with a fresh identifier.
func NewEntry(title string) *Node {
	return &Node{
		ID:    uuid.New(),
		Title: title,
	}
}

// AddChild appends child to the node's children and returns the child.
func (n *Node) AddChild(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// AddAttachment appends a reference to the binary stored under id.
func (n *Node) AddAttachment(filename string, id AttachmentID) {
	n.Attachments = append(n.Attachments, AttachmentRef{Filename: filename, ID: id})
}

// SetCustomIcon points the node at a custom icon. uuid.Nil clears it.
func (n *Node) SetCustomIcon(id uuid.UUID) {
	if id == uuid.Nil {
		n.CustomIcon = nil
		return
	}
	n.CustomIcon = &id
}

// AddHistory records a previous version of the entry.
func (n *Node) AddHistory(version *Node) {
	n.History = append(n.History, version)
}

// clone copies the node and everything below it. Byte content is not
// reachable from a node, so nothing here aliases blob data.
func (n *Node) clone() *Node {
	if n == nil {
		return nil
	}

	c := &Node{
		ID:          n.ID,
		Title:       n.Title,
		IsGroup:     n.IsGroup,
		BuiltInIcon: n.BuiltInIcon,
	}
	if n.CustomIcon != nil {
		icon := *n.CustomIcon
		c.CustomIcon = &icon
	}
	if len(n.Attachments) > 0 {
		c.Attachments = make([]AttachmentRef, len(n.Attachments))
		copy(c.Attachments, n.Attachments)
	}
	for _, h := range n.History {
		c.History = append(c.History, h.clone())
	}
	for _, child := range n.Children {
		c.Children = append(c.Children, child.clone())
	}
	return c
}
