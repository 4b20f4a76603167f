// Package dbfile serializes a model.Database into the document that storage
// providers persist.
//
// Only the minimal pools are written: binaries and custom icons that no
// reachable node references are dropped, binaries with equal content are
// stored once, and entry references are rewritten to point at pool slots.
// Encoding an unchanged database always yields the same bytes.
package dbfile

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/ruteri/safesync/model"
	"github.com/ruteri/safesync/pool"
)

const (
	// Format identifies safesync database documents.
	Format = "safesync-db"

	// Version is the current document version.
	Version = 1

	// MaxBinarySize bounds a single decompressed binary (256MB).
	MaxBinarySize = 256 << 20

	// minCompressSize is the smallest binary worth trying to gzip.
	minCompressSize = 64
)

type document struct {
	Format      string      `json:"format"`
	Version     int         `json:"version"`
	Root        *nodeDoc    `json:"root"`
	Binaries    []binaryDoc `json:"binaries"`
	CustomIcons []iconDoc   `json:"custom_icons"`
}

type nodeDoc struct {
	ID          uuid.UUID             `json:"id"`
	Title       string                `json:"title"`
	Group       bool                  `json:"group,omitempty"`
	Icon        int                   `json:"icon,omitempty"`
	CustomIcon  *uuid.UUID            `json:"custom_icon,omitempty"`
	Attachments []model.AttachmentRef `json:"attachments,omitempty"`
	History     []*nodeDoc            `json:"history,omitempty"`
	Children    []*nodeDoc            `json:"children,omitempty"`
}

type binaryDoc struct {
	Data       []byte `json:"data"`
	Compressed bool   `json:"compressed,omitempty"`
	Protected  bool   `json:"protected,omitempty"`
}

type iconDoc struct {
	ID   uuid.UUID `json:"id"`
	Data []byte    `json:"data"`
}

// PoolStats describes what compaction kept and dropped.
type PoolStats struct {
	Attachments        int `json:"attachments"`
	AttachmentBytes    int `json:"attachment_bytes"`
	Icons              int `json:"icons"`
	IconBytes          int `json:"icon_bytes"`
	DroppedAttachments int `json:"dropped_attachments"`
	DroppedIcons       int `json:"dropped_icons"`
}

// Stats computes the pool summary for db without encoding it.
func Stats(db *model.Database) PoolStats {
	if db == nil {
		return PoolStats{}
	}
	atts := pool.BuildAttachmentPool(db.Root, db)
	icons := pool.MinimalIconPool(db.Root, db)
	return Summarize(db, atts, icons)
}

// Summarize reports pool statistics for pools already built from db.
func Summarize(db *model.Database, atts *pool.AttachmentPool, icons map[uuid.UUID][]byte) PoolStats {
	stats := PoolStats{
		Attachments: atts.Len(),
		Icons:       len(icons),
	}
	for _, a := range atts.Attachments() {
		stats.AttachmentBytes += a.Len()
	}
	for _, data := range icons {
		stats.IconBytes += len(data)
	}

	stored := 0
	for _, a := range db.Attachments {
		if a != nil {
			stored++
		}
	}
	stats.DroppedAttachments = stored - stats.Attachments

	storedIcons := 0
	for _, icon := range db.CustomIcons {
		if icon != nil {
			storedIcons++
		}
	}
	stats.DroppedIcons = storedIcons - stats.Icons
	return stats
}

// Encode serializes db with its minimal pools.
func Encode(db *model.Database) ([]byte, error) {
	data, _, err := EncodeWithStats(db)
	return data, err
}

// EncodeWithStats serializes db and reports the pool summary.
func EncodeWithStats(db *model.Database) ([]byte, PoolStats, error) {
	if db == nil {
		return nil, PoolStats{}, ErrNilDatabase
	}

	atts := pool.BuildAttachmentPool(db.Root, db)
	icons := pool.MinimalIconPool(db.Root, db)

	doc := document{
		Format:      Format,
		Version:     Version,
		Root:        encodeNode(db.Root, atts, icons),
		Binaries:    make([]binaryDoc, 0, atts.Len()),
		CustomIcons: make([]iconDoc, 0, len(icons)),
	}

	for _, a := range atts.Attachments() {
		bin, err := encodeBinary(a)
		if err != nil {
			return nil, PoolStats{}, err
		}
		doc.Binaries = append(doc.Binaries, bin)
	}
	for _, icon := range pool.SortedIcons(icons) {
		doc.CustomIcons = append(doc.CustomIcons, iconDoc{ID: icon.First, Data: icon.Second})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, PoolStats{}, fmt.Errorf("dbfile: marshal document: %w", err)
	}
	return data, Summarize(db, atts, icons), nil
}

func encodeNode(n *model.Node, atts *pool.AttachmentPool, icons map[uuid.UUID][]byte) *nodeDoc {
	if n == nil {
		return nil
	}

	d := &nodeDoc{
		ID:    n.ID,
		Title: n.Title,
		Group: n.IsGroup,
		Icon:  n.BuiltInIcon,
	}
	if n.CustomIcon != nil {
		if _, ok := icons[*n.CustomIcon]; ok {
			id := *n.CustomIcon
			d.CustomIcon = &id
		}
	}
	for _, ref := range n.Attachments {
		slot, ok := atts.Slot(ref.ID)
		if !ok {
			continue
		}
		d.Attachments = append(d.Attachments, model.AttachmentRef{
			Filename: ref.Filename,
			ID:       model.AttachmentID(slot),
		})
	}
	for _, h := range n.History {
		if h != nil {
			d.History = append(d.History, encodeNode(h, atts, icons))
		}
	}
	for _, c := range n.Children {
		if c != nil {
			d.Children = append(d.Children, encodeNode(c, atts, icons))
		}
	}
	return d
}

func encodeBinary(a *model.DatabaseAttachment) (binaryDoc, error) {
	bin := binaryDoc{Data: a.Data, Protected: a.ProtectedInMemory}
	if len(a.Data) < minCompressSize {
		return bin, nil
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return binaryDoc{}, fmt.Errorf("dbfile: gzip writer: %w", err)
	}
	if _, err := w.Write(a.Data); err != nil {
		return binaryDoc{}, fmt.Errorf("dbfile: compress binary: %w", err)
	}
	if err := w.Close(); err != nil {
		return binaryDoc{}, fmt.Errorf("dbfile: compress binary: %w", err)
	}

	if buf.Len() < len(a.Data) {
		bin.Data = buf.Bytes()
		bin.Compressed = true
	}
	return bin, nil
}

// Decode parses a document produced by Encode.
func Decode(data []byte) (*model.Database, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	if doc.Format != Format || doc.Version != Version {
		return nil, fmt.Errorf("%w: %q version %d", ErrUnsupportedFormat, doc.Format, doc.Version)
	}

	db := &model.Database{
		CustomIcons: make(map[uuid.UUID]*model.Icon, len(doc.CustomIcons)),
	}

	for i, bin := range doc.Binaries {
		content := bin.Data
		if bin.Compressed {
			var err error
			content, err = decompress(bin.Data)
			if err != nil {
				return nil, fmt.Errorf("binary %d: %w", i, err)
			}
		}
		db.Attachments = append(db.Attachments, model.NewDatabaseAttachment(content, bin.Protected))
	}

	for _, icon := range doc.CustomIcons {
		if _, dup := db.CustomIcons[icon.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate custom icon %s", ErrMalformedDocument, icon.ID)
		}
		db.CustomIcons[icon.ID] = &model.Icon{ID: icon.ID, Data: icon.Data}
	}

	db.Root = decodeNode(doc.Root)
	return db, nil
}

func decodeNode(d *nodeDoc) *model.Node {
	if d == nil {
		return nil
	}

	n := &model.Node{
		ID:          d.ID,
		Title:       d.Title,
		IsGroup:     d.Group,
		BuiltInIcon: d.Icon,
		Attachments: d.Attachments,
	}
	if d.CustomIcon != nil {
		n.SetCustomIcon(*d.CustomIcon)
	}
	for _, h := range d.History {
		if h != nil {
			n.History = append(n.History, decodeNode(h))
		}
	}
	for _, c := range d.Children {
		if c != nil {
			n.Children = append(n.Children, decodeNode(c))
		}
	}
	return n
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, MaxBinarySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}
	if len(out) > MaxBinarySize {
		return nil, ErrDecompressedTooLarge
	}
	return out, nil
}
