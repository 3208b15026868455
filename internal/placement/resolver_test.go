package placement

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/pkg/db/models"
	"github.com/angelmondragon/bv-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
)

type fakeDirectory struct {
	members  map[uuid.UUID]models.Member
	lookups  int
	children func(ids []uuid.UUID) ([]models.Member, error)
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{members: map[uuid.UUID]models.Member{}}
}

func (f *fakeDirectory) add(parent *uuid.UUID, pos enums.Position) uuid.UUID {
	m := models.Member{ID: uuid.New()}
	if parent != nil {
		p := *parent
		position := pos
		m.ParentID = &p
		m.Position = &position
	}
	f.members[m.ID] = m
	return m.ID
}

func (f *fakeDirectory) FindByID(_ context.Context, id uuid.UUID) (*models.Member, error) {
	m, ok := f.members[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

func (f *fakeDirectory) ChildrenOf(_ context.Context, ids []uuid.UUID) ([]models.Member, error) {
	f.lookups++
	if f.children != nil {
		return f.children(ids)
	}
	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []models.Member
	for _, m := range f.members {
		if m.ParentID == nil {
			continue
		}
		if _, ok := wanted[*m.ParentID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestPlace_EmptySponsorTakesLeft(t *testing.T) {
	dir := newFakeDirectory()
	root := dir.add(nil, "")

	resolver, err := NewResolver(dir, Options{})
	require.NoError(t, err)

	slot, err := resolver.Place(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, Slot{ParentID: root, Position: enums.PositionLeft}, slot)
}

func TestPlace_RightBeforeDescending(t *testing.T) {
	dir := newFakeDirectory()
	root := dir.add(nil, "")
	dir.add(&root, enums.PositionLeft)

	resolver, err := NewResolver(dir, Options{})
	require.NoError(t, err)

	slot, err := resolver.Place(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, Slot{ParentID: root, Position: enums.PositionRight}, slot)
}

func TestPlace_ShallowestLeftMostSlot(t *testing.T) {
	dir := newFakeDirectory()
	root := dir.add(nil, "")
	a := dir.add(&root, enums.PositionLeft)
	b := dir.add(&root, enums.PositionRight)
	dir.add(&a, enums.PositionLeft)
	dir.add(&a, enums.PositionRight)
	// b.left is open even though a's children are full.
	dir.add(&b, enums.PositionRight)

	resolver, err := NewResolver(dir, Options{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		slot, err := resolver.Place(context.Background(), root)
		require.NoError(t, err)
		require.Equal(t, Slot{ParentID: b, Position: enums.PositionLeft}, slot)
	}
}

func TestPlace_SponsorBelowRootSearchesOwnSubtree(t *testing.T) {
	dir := newFakeDirectory()
	root := dir.add(nil, "")
	a := dir.add(&root, enums.PositionLeft)
	dir.add(&a, enums.PositionLeft)

	resolver, err := NewResolver(dir, Options{})
	require.NoError(t, err)

	slot, err := resolver.Place(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, Slot{ParentID: a, Position: enums.PositionRight}, slot)
}

func TestPlace_UnknownSponsor(t *testing.T) {
	resolver, err := NewResolver(newFakeDirectory(), Options{})
	require.NoError(t, err)

	_, err = resolver.Place(context.Background(), uuid.New())
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPlace_DepthBoundExhausts(t *testing.T) {
	dir := newFakeDirectory()
	root := dir.add(nil, "")
	l := dir.add(&root, enums.PositionLeft)
	r := dir.add(&root, enums.PositionRight)
	for _, parent := range []uuid.UUID{l, r} {
		p := parent
		dir.add(&p, enums.PositionLeft)
		dir.add(&p, enums.PositionRight)
	}

	resolver, err := NewResolver(dir, Options{MaxDepth: 2})
	require.NoError(t, err)

	_, err = resolver.Place(context.Background(), root)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSearchExhausted))

	resolver, err = NewResolver(dir, Options{MaxDepth: 3})
	require.NoError(t, err)
	slot, err := resolver.Place(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, enums.PositionLeft, slot.Position)
}

func TestPlace_VisitBoundExhausts(t *testing.T) {
	dir := newFakeDirectory()
	root := dir.add(nil, "")
	dir.add(&root, enums.PositionLeft)
	dir.add(&root, enums.PositionRight)

	resolver, err := NewResolver(dir, Options{MaxVisited: 1})
	require.NoError(t, err)

	_, err = resolver.Place(context.Background(), root)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSearchExhausted))
}

func TestPlace_LoadsOneLevelPerQuery(t *testing.T) {
	dir := newFakeDirectory()
	root := dir.add(nil, "")
	a := dir.add(&root, enums.PositionLeft)
	b := dir.add(&root, enums.PositionRight)
	dir.add(&a, enums.PositionLeft)
	dir.add(&a, enums.PositionRight)
	dir.add(&b, enums.PositionLeft)

	resolver, err := NewResolver(dir, Options{})
	require.NoError(t, err)

	slot, err := resolver.Place(context.Background(), root)
	require.NoError(t, err)
	require.Equal(t, Slot{ParentID: b, Position: enums.PositionRight}, slot)
	require.Equal(t, 2, dir.lookups)
}

func TestNewResolverRequiresDirectory(t *testing.T) {
	_, err := NewResolver(nil, Options{})
	require.Error(t, err)
}
