package pool

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ruteri/safesync/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioDB builds the three-entry tree used throughout these tests:
//
//	E1: attachments {A: "x"}, icon I1
//	E2: attachments {B: "x", C: "y"}, icon I1
//	E3: no attachments, icon I2
//
// plus an orphan binary and an orphan icon nobody references.
func scenarioDB(t *testing.T) (*model.Database, map[string]model.AttachmentID, map[string]uuid.UUID) {
	t.Helper()

	db := model.NewDatabase("root")
	atts := map[string]model.AttachmentID{
		"A":      db.AddAttachment([]byte("x"), false),
		"B":      db.AddAttachment([]byte("x"), false),
		"C":      db.AddAttachment([]byte("y"), false),
		"orphan": db.AddAttachment([]byte("never referenced"), false),
	}
	icons := map[string]uuid.UUID{
		"I1":     db.AddIcon([]byte("bytes1")),
		"I2":     db.AddIcon([]byte("bytes2")),
		"orphan": db.AddIcon([]byte("stale")),
	}

	e1 := db.Root.AddChild(model.NewEntry("E1"))
	e1.AddAttachment("a.txt", atts["A"])
	e1.SetCustomIcon(icons["I1"])

	e2 := db.Root.AddChild(model.NewEntry("E2"))
	e2.AddAttachment("b.txt", atts["B"])
	e2.AddAttachment("c.txt", atts["C"])
	e2.SetCustomIcon(icons["I1"])

	e3 := db.Root.AddChild(model.NewEntry("E3"))
	e3.SetCustomIcon(icons["I2"])

	return db, atts, icons
}

func contents(atts []*model.DatabaseAttachment) []string {
	out := make([]string, 0, len(atts))
	for _, a := range atts {
		out = append(out, string(a.Data))
	}
	return out
}

func TestMinimalAttachmentPool_Scenario(t *testing.T) {
	db, atts, _ := scenarioDB(t)

	result := MinimalAttachmentPool(db.Root, db)

	require.Len(t, result, 2)
	assert.Equal(t, []string{"x", "y"}, contents(result))
	// "x" is represented by A, the first one discovered.
	assert.Same(t, db.Attachments[atts["A"]], result[0])
	assert.Same(t, db.Attachments[atts["C"]], result[1])
}

func TestMinimalIconPool_Scenario(t *testing.T) {
	db, _, icons := scenarioDB(t)

	result := MinimalIconPool(db.Root, db)

	assert.Equal(t, map[uuid.UUID][]byte{
		icons["I1"]: []byte("bytes1"),
		icons["I2"]: []byte("bytes2"),
	}, result)
	assert.NotContains(t, result, icons["orphan"])
}

func TestBuildAttachmentPool_Slots(t *testing.T) {
	db, atts, _ := scenarioDB(t)

	p := BuildAttachmentPool(db.Root, db)
	assert.Equal(t, 2, p.Len())

	tests := []struct {
		name     string
		id       model.AttachmentID
		wantSlot int
		wantOK   bool
	}{
		{"first x", atts["A"], 0, true},
		{"duplicate x under other handle", atts["B"], 0, true},
		{"y", atts["C"], 1, true},
		{"unreferenced", atts["orphan"], 0, false},
		{"dangling", 99, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, ok := p.Slot(tt.id)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantSlot, slot)
			}
		})
	}

	slot, ok := p.SlotForFingerprint(model.ComputeFingerprint([]byte("y")))
	require.True(t, ok)
	assert.Equal(t, 1, slot)
}

func TestAttachments_ReturnsCopy(t *testing.T) {
	db, _, _ := scenarioDB(t)
	p := BuildAttachmentPool(db.Root, db)

	first := p.Attachments()
	first[0] = nil

	assert.NotNil(t, p.Attachments()[0])
}

func TestPools_EmptyTree(t *testing.T) {
	db := model.NewDatabase("root")
	db.AddAttachment([]byte("unused"), false)
	db.AddIcon([]byte("unused"))

	atts := MinimalAttachmentPool(db.Root, db)
	icons := MinimalIconPool(db.Root, db)

	assert.NotNil(t, atts)
	assert.Empty(t, atts)
	assert.NotNil(t, icons)
	assert.Empty(t, icons)
}

func TestPools_NilRoot(t *testing.T) {
	db, _, _ := scenarioDB(t)

	assert.Empty(t, MinimalAttachmentPool(nil, db))
	assert.Empty(t, MinimalIconPool(nil, db))
	assert.Equal(t, 0, BuildAttachmentPool(nil, db).Len())
}

func TestPools_NilResolver(t *testing.T) {
	db, _, _ := scenarioDB(t)

	assert.Empty(t, MinimalAttachmentPool(db.Root, nil))
	assert.Empty(t, MinimalIconPool(db.Root, nil))
}

func TestPools_DanglingReferences(t *testing.T) {
	db := model.NewDatabase("root")
	good := db.AddAttachment([]byte("good"), false)
	iconID := db.AddIcon([]byte("icon"))

	e := db.Root.AddChild(model.NewEntry("e"))
	e.AddAttachment("missing.bin", 42)
	e.AddAttachment("negative.bin", -3)
	e.AddAttachment("good.bin", good)
	e.SetCustomIcon(uuid.New())

	other := db.Root.AddChild(model.NewEntry("other"))
	other.SetCustomIcon(iconID)

	var atts []*model.DatabaseAttachment
	var icons map[uuid.UUID][]byte
	require.NotPanics(t, func() {
		atts = MinimalAttachmentPool(db.Root, db)
		icons = MinimalIconPool(db.Root, db)
	})

	assert.Equal(t, []string{"good"}, contents(atts))
	assert.Equal(t, map[uuid.UUID][]byte{iconID: []byte("icon")}, icons)
}

func TestPools_RootCarriesReferences(t *testing.T) {
	db := model.NewDatabase("root")
	id := db.AddAttachment([]byte("on root"), false)
	iconID := db.AddIcon([]byte("root icon"))
	db.Root.AddAttachment("root.bin", id)
	db.Root.SetCustomIcon(iconID)

	assert.Equal(t, []string{"on root"}, contents(MinimalAttachmentPool(db.Root, db)))
	assert.Contains(t, MinimalIconPool(db.Root, db), iconID)
}

func TestPools_HistoryIsReachable(t *testing.T) {
	db := model.NewDatabase("root")
	current := db.AddAttachment([]byte("current"), false)
	old := db.AddAttachment([]byte("old"), false)
	oldIcon := db.AddIcon([]byte("old icon"))

	e := db.Root.AddChild(model.NewEntry("e"))
	e.AddAttachment("now.txt", current)

	prev := model.NewEntry("e")
	prev.AddAttachment("then.txt", old)
	prev.SetCustomIcon(oldIcon)
	e.AddHistory(prev)

	assert.Equal(t, []string{"current", "old"}, contents(MinimalAttachmentPool(db.Root, db)))
	assert.Contains(t, MinimalIconPool(db.Root, db), oldIcon)
}

func TestPools_SubtreeRoot(t *testing.T) {
	db := model.NewDatabase("root")
	inside := db.AddAttachment([]byte("inside"), false)
	outside := db.AddAttachment([]byte("outside"), false)
	insideIcon := db.AddIcon([]byte("in"))
	outsideIcon := db.AddIcon([]byte("out"))

	sub := db.Root.AddChild(model.NewGroup("sub"))
	e := sub.AddChild(model.NewEntry("in"))
	e.AddAttachment("in.bin", inside)
	e.SetCustomIcon(insideIcon)

	o := db.Root.AddChild(model.NewEntry("out"))
	o.AddAttachment("out.bin", outside)
	o.SetCustomIcon(outsideIcon)

	assert.Equal(t, []string{"inside"}, contents(MinimalAttachmentPool(sub, db)))
	assert.Equal(t, map[uuid.UUID][]byte{insideIcon: []byte("in")}, MinimalIconPool(sub, db))
}

func TestMinimalIconPool_KeyedByIdentifierNotContent(t *testing.T) {
	db := model.NewDatabase("root")
	a := db.AddIcon([]byte("same"))
	b := db.AddIcon([]byte("same"))

	db.Root.AddChild(model.NewEntry("a")).SetCustomIcon(a)
	db.Root.AddChild(model.NewEntry("b")).SetCustomIcon(b)

	assert.Len(t, MinimalIconPool(db.Root, db), 2)
}

func TestMinimalAttachmentPool_Order(t *testing.T) {
	db := model.NewDatabase("root")
	ids := make([]model.AttachmentID, 5)
	for i := range ids {
		ids[i] = db.AddAttachment([]byte(fmt.Sprintf("blob-%d", i)), false)
	}

	// Reference in reverse table order: the pool follows traversal order,
	// not table order.
	g := db.Root.AddChild(model.NewGroup("g"))
	for i := len(ids) - 1; i >= 0; i-- {
		g.AddChild(model.NewEntry(fmt.Sprint(i))).AddAttachment("f", ids[i])
	}

	assert.Equal(t,
		[]string{"blob-4", "blob-3", "blob-2", "blob-1", "blob-0"},
		contents(MinimalAttachmentPool(db.Root, db)))
}

func TestPools_Deterministic(t *testing.T) {
	db, _, _ := scenarioDB(t)

	first := MinimalAttachmentPool(db.Root, db)
	firstIcons := SortedIcons(MinimalIconPool(db.Root, db))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, MinimalAttachmentPool(db.Root, db))
		assert.Equal(t, firstIcons, SortedIcons(MinimalIconPool(db.Root, db)))
	}
}

func TestPools_ConcurrentReaders(t *testing.T) {
	db, _, _ := scenarioDB(t)
	want := contents(MinimalAttachmentPool(db.Root, db))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, contents(MinimalAttachmentPool(db.Root, db)))
			assert.Len(t, MinimalIconPool(db.Root, db), 2)
		}()
	}
	wg.Wait()
}

func TestSortedIcons(t *testing.T) {
	icons := map[uuid.UUID][]byte{
		uuid.MustParse("ffffffff-0000-0000-0000-000000000000"): []byte("c"),
		uuid.MustParse("00000000-0000-0000-0000-000000000001"): []byte("a"),
		uuid.MustParse("7fffffff-0000-0000-0000-000000000000"): []byte("b"),
	}

	sorted := SortedIcons(icons)
	require.Len(t, sorted, 3)
	assert.Equal(t, []byte("a"), sorted[0].Second)
	assert.Equal(t, []byte("b"), sorted[1].Second)
	assert.Equal(t, []byte("c"), sorted[2].Second)
	assert.Empty(t, SortedIcons(nil))
}

// randomDB builds a random tree over a small alphabet of contents so that
// duplicates are frequent. Some references dangle.
func randomDB(r *rand.Rand) *model.Database {
	db := model.NewDatabase("root")
	for i := 0; i < 20; i++ {
		db.AddAttachment([]byte(fmt.Sprintf("c%d", r.Intn(6))), false)
	}
	var iconIDs []uuid.UUID
	for i := 0; i < 6; i++ {
		iconIDs = append(iconIDs, db.AddIcon([]byte{byte(r.Intn(3))}))
	}

	groups := []*model.Node{db.Root}
	for i := 0; i < 40; i++ {
		parent := groups[r.Intn(len(groups))]
		if r.Intn(4) == 0 {
			groups = append(groups, parent.AddChild(model.NewGroup(fmt.Sprint("g", i))))
			continue
		}
		e := parent.AddChild(model.NewEntry(fmt.Sprint("e", i)))
		for j := r.Intn(4); j > 0; j-- {
			e.AddAttachment("f", model.AttachmentID(r.Intn(24)))
		}
		switch r.Intn(3) {
		case 0:
			e.SetCustomIcon(iconIDs[r.Intn(len(iconIDs))])
		case 1:
			e.SetCustomIcon(uuid.New())
		}
	}
	return db
}

func TestPools_Properties(t *testing.T) {
	for seed := uint64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprint("seed-", seed), func(t *testing.T) {
			db := randomDB(rand.New(rand.NewSource(int64(seed))))
			atts := MinimalAttachmentPool(db.Root, db)
			icons := MinimalIconPool(db.Root, db)

			wantContent := map[string]bool{}
			wantIcons := map[uuid.UUID]bool{}
			for _, n := range model.AllNodes(db.Root) {
				for _, ref := range n.Attachments {
					if a, ok := db.ResolveAttachment(ref.ID); ok {
						wantContent[string(a.Data)] = true
					}
				}
				if n.CustomIcon != nil {
					if _, ok := db.ResolveIcon(*n.CustomIcon); ok {
						wantIcons[*n.CustomIcon] = true
					}
				}
			}

			// No loss and minimality: exactly one entry per distinct content.
			gotContent := map[string]int{}
			for _, a := range atts {
				gotContent[string(a.Data)]++
			}
			assert.Len(t, gotContent, len(wantContent))
			for c := range wantContent {
				assert.Equal(t, 1, gotContent[c], "content %q", c)
			}

			// Icon keying: key set equals referenced, resolvable identifiers.
			assert.Len(t, icons, len(wantIcons))
			for id := range wantIcons {
				icon, _ := db.ResolveIcon(id)
				assert.True(t, bytes.Equal(icon.Data, icons[id]))
			}
		})
	}
}
