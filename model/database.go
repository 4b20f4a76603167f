package model

import (
	"github.com/google/uuid"
)

// Database is an in-memory password database: the node tree plus the
// tables that node references resolve against.
//
// A Database is not safe for concurrent mutation. Callers that compute pools
// or serialize while the tree is being edited should work on a Clone.
type Database struct {
	Root        *Node
	Attachments []*DatabaseAttachment
	CustomIcons map[uuid.UUID]*Icon
}

// NewDatabase creates a database with an empty root group.
func NewDatabase(rootTitle string) *Database {
	return &Database{
		Root:        NewGroup(rootTitle),
		CustomIcons: make(map[uuid.UUID]*Icon),
	}
}

// AddAttachment stores data in the binary table and returns its handle.
func (db *Database) AddAttachment(data []byte, protectedInMemory bool) AttachmentID {
	db.Attachments = append(db.Attachments, NewDatabaseAttachment(data, protectedInMemory))
	return AttachmentID(len(db.Attachments) - 1)
}

// AddIcon stores a custom icon under a fresh identifier.
func (db *Database) AddIcon(data []byte) uuid.UUID {
	id := uuid.New()
	db.PutIcon(&Icon{ID: id, Data: data})
	return id
}

// PutIcon stores icon under its own identifier, replacing any previous one.
func (db *Database) PutIcon(icon *Icon) {
	if db.CustomIcons == nil {
		db.CustomIcons = make(map[uuid.UUID]*Icon)
	}
	db.CustomIcons[icon.ID] = icon
}

// ResolveAttachment looks up a binary by handle.
func (db *Database) ResolveAttachment(id AttachmentID) (*DatabaseAttachment, bool) {
	if id < 0 || int(id) >= len(db.Attachments) {
		return nil, false
	}
	att := db.Attachments[id]
	return att, att != nil
}

// ResolveIcon looks up a custom icon by identifier.
func (db *Database) ResolveIcon(id uuid.UUID) (*Icon, bool) {
	icon, ok := db.CustomIcons[id]
	return icon, ok && icon != nil
}

// Clone returns a snapshot whose tree can be traversed while the original is
// edited. Table slices and maps are copied; blob bytes are shared.
func (db *Database) Clone() *Database {
	c := &Database{
		Root:        db.Root.clone(),
		CustomIcons: make(map[uuid.UUID]*Icon, len(db.CustomIcons)),
	}
	if len(db.Attachments) > 0 {
		c.Attachments = make([]*DatabaseAttachment, len(db.Attachments))
		copy(c.Attachments, db.Attachments)
	}
	for id, icon := range db.CustomIcons {
		c.CustomIcons[id] = icon
	}
	return c
}
