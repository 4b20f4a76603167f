// Package pool computes the minimal sets of binaries and custom icons that a
// database tree actually needs persisted.
//
// Both builders are pure functions of the tree they are handed. They take no
// locks and never fail: references that do not resolve are skipped. Callers
// must not mutate the tree while a builder runs; use model.Database.Clone to
// obtain a stable snapshot.
package pool

import (
	"bytes"
	"slices"

	"github.com/google/uuid"
	"github.com/ruteri/safesync/model"
)

// AttachmentResolver resolves attachment handles to stored binaries.
type AttachmentResolver interface {
	ResolveAttachment(id model.AttachmentID) (*model.DatabaseAttachment, bool)
}

// IconResolver resolves custom icon identifiers to stored icons.
type IconResolver interface {
	ResolveIcon(id uuid.UUID) (*model.Icon, bool)
}

// AttachmentPool is the deduplicated, ordered set of binaries reachable from
// a root, together with the mapping from source handles to pool slots.
type AttachmentPool struct {
	attachments   []*model.DatabaseAttachment
	byFingerprint map[model.Fingerprint]int
	slots         map[model.AttachmentID]int
}

// BuildAttachmentPool walks the tree below root and collects every
// attachment it references. A binary enters the pool the first time its
// content is seen; later references to equal content, under any handle, map
// to that same slot. Pool order is first-discovery order of the walk.
func BuildAttachmentPool(root *model.Node, resolver AttachmentResolver) *AttachmentPool {
	p := &AttachmentPool{
		attachments:   []*model.DatabaseAttachment{},
		byFingerprint: make(map[model.Fingerprint]int),
		slots:         make(map[model.AttachmentID]int),
	}
	if root == nil || resolver == nil {
		return p
	}

	model.Walk(root, func(n *model.Node) bool {
		for _, ref := range n.Attachments {
			if _, linked := p.slots[ref.ID]; linked {
				continue
			}

			att, ok := resolver.ResolveAttachment(ref.ID)
			if !ok {
				continue
			}

			fp := att.Fingerprint()
			slot, seen := p.byFingerprint[fp]
			if !seen {
				slot = len(p.attachments)
				p.attachments = append(p.attachments, att)
				p.byFingerprint[fp] = slot
			}
			p.slots[ref.ID] = slot
		}
		return true
	})

	return p
}

// MinimalAttachmentPool returns the deduplicated binaries reachable from
// root in first-discovery order. The returned slice is freshly allocated.
func MinimalAttachmentPool(root *model.Node, resolver AttachmentResolver) []*model.DatabaseAttachment {
	return BuildAttachmentPool(root, resolver).Attachments()
}

// Attachments returns a copy of the pooled binaries in slot order.
func (p *AttachmentPool) Attachments() []*model.DatabaseAttachment {
	return slices.Clone(p.attachments)
}

// Len returns the number of pool slots.
func (p *AttachmentPool) Len() int {
	return len(p.attachments)
}

// Slot returns the pool slot a source handle was linked to. Handles that were
// never reached, or did not resolve, report false.
func (p *AttachmentPool) Slot(id model.AttachmentID) (int, bool) {
	slot, ok := p.slots[id]
	return slot, ok
}

// SlotForFingerprint returns the slot holding content with the given digest.
func (p *AttachmentPool) SlotForFingerprint(fp model.Fingerprint) (int, bool) {
	slot, ok := p.byFingerprint[fp]
	return slot, ok
}

// MinimalIconPool returns the custom icons referenced by root or any node
// below it, keyed by icon identifier. Icons are deduplicated by identifier
// only. Icons present in the database but not referenced are left out.
func MinimalIconPool(root *model.Node, resolver IconResolver) map[uuid.UUID][]byte {
	icons := make(map[uuid.UUID][]byte)
	if root == nil || resolver == nil {
		return icons
	}

	model.Walk(root, func(n *model.Node) bool {
		if n.CustomIcon == nil {
			return true
		}

		id := *n.CustomIcon
		if _, done := icons[id]; done {
			return true
		}

		if icon, ok := resolver.ResolveIcon(id); ok {
			icons[id] = icon.Data
		}
		return true
	})

	return icons
}

// SortedIcons flattens an icon pool into a slice ordered by identifier, for
// consumers that need a stable encoding.
func SortedIcons(icons map[uuid.UUID][]byte) []model.Pair[uuid.UUID, []byte] {
	out := make([]model.Pair[uuid.UUID, []byte], 0, len(icons))
	for id, data := range icons {
		out = append(out, model.NewPair(id, data))
	}
	slices.SortFunc(out, func(a, b model.Pair[uuid.UUID, []byte]) int {
		return bytes.Compare(a.First[:], b.First[:])
	})
	return out
}
