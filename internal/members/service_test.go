package members

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bv-engine/internal/placement"
	"github.com/angelmondragon/bv-engine/pkg/db/dbtest"
	"github.com/angelmondragon/bv-engine/pkg/db/models"
	"github.com/angelmondragon/bv-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
)

func newTestService(t *testing.T, maxAttempts int) (Service, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.New(t).DB())
	resolver, err := placement.NewResolver(repo, placement.Options{})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:        repo,
		Placer:      resolver,
		MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return svc, repo
}

func TestService_RegisterScenario(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	root, err := svc.Register(ctx, RegisterInput{DisplayName: "R"})
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.Nil(t, root.Position)
	assert.Len(t, root.ReferralCode, 8)

	a, err := svc.Register(ctx, RegisterInput{DisplayName: "A", SponsorReferralCode: root.ReferralCode})
	require.NoError(t, err)
	assertSlot(t, a, root.ID, enums.PositionLeft)

	b, err := svc.Register(ctx, RegisterInput{DisplayName: "B", SponsorReferralCode: root.ReferralCode})
	require.NoError(t, err)
	assertSlot(t, b, root.ID, enums.PositionRight)

	c, err := svc.Register(ctx, RegisterInput{DisplayName: "C", SponsorReferralCode: root.ReferralCode})
	require.NoError(t, err)
	assertSlot(t, c, a.ID, enums.PositionLeft)
	require.NotNil(t, c.SponsorID)
	assert.Equal(t, root.ID, *c.SponsorID)
}

func TestService_ResolvePlacement(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()

	root, err := svc.CreateRoot(ctx, "R")
	require.NoError(t, err)

	slot, err := svc.ResolvePlacement(ctx, " "+root.ReferralCode+" ")
	require.NoError(t, err)
	assert.Equal(t, placement.Slot{ParentID: root.ID, Position: enums.PositionLeft}, slot)

	_, err = svc.ResolvePlacement(ctx, "NOPE0000")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestService_RegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, 0)

	_, err := svc.Register(context.Background(), RegisterInput{DisplayName: "  "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Register(context.Background(), RegisterInput{DisplayName: "X", SponsorReferralCode: "UNKNOWN1"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestService_RegisterUnderContention(t *testing.T) {
	const workers = 8
	svc, repo := newTestService(t, workers)
	ctx := context.Background()

	root, err := svc.CreateRoot(ctx, "R")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Register(ctx, RegisterInput{
				DisplayName:         fmt.Sprintf("member-%d", i),
				SponsorReferralCode: root.ReferralCode,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(workers+1), count)

	assertBinaryInvariant(t, repo, root.ID)
}

func TestService_RetriesOnSlotConflict(t *testing.T) {
	repo := NewRepository(dbtest.New(t).DB())
	ctx := context.Background()
	root := insertMember(t, repo, "ROOT0001", nil, "")
	insertMember(t, repo, "LEFT0001", root, enums.PositionLeft)

	// The placer keeps returning a slot that is already taken.
	stale := placerFunc(func(context.Context, uuid.UUID) (placement.Slot, error) {
		return placement.Slot{ParentID: root.ID, Position: enums.PositionLeft}, nil
	})
	svc, err := NewService(ServiceParams{Repo: repo, Placer: stale, MaxAttempts: 3})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{DisplayName: "late", SponsorReferralCode: "ROOT0001"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSlotConflict))
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeSlotConflict).Retryable)
}

func TestService_RetriesOnReferralCodeCollision(t *testing.T) {
	repo := NewRepository(dbtest.New(t).DB())
	ctx := context.Background()
	insertMember(t, repo, "TAKEN001", nil, "")

	codes := []string{"TAKEN001", "FRESH001"}
	resolver, err := placement.NewResolver(repo, placement.Options{})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Placer: resolver,
		Codes: func() (string, error) {
			code := codes[0]
			codes = codes[1:]
			return code, nil
		},
	})
	require.NoError(t, err)

	member, err := svc.Register(ctx, RegisterInput{DisplayName: "new", SponsorReferralCode: "taken001"})
	require.NoError(t, err)
	assert.Equal(t, "FRESH001", member.ReferralCode)
}

func TestService_ReferralCodeExhaustionIsNotSlotConflict(t *testing.T) {
	repo := NewRepository(dbtest.New(t).DB())
	ctx := context.Background()
	insertMember(t, repo, "TAKEN001", nil, "")

	resolver, err := placement.NewResolver(repo, placement.Options{})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:        repo,
		Placer:      resolver,
		MaxAttempts: 3,
		Codes:       func() (string, error) { return "TAKEN001", nil },
	})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{DisplayName: "new", SponsorReferralCode: "TAKEN001"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.False(t, pkgerrors.IsCode(err, pkgerrors.CodeSlotConflict))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestService_Get(t *testing.T) {
	svc, _ := newTestService(t, 0)
	ctx := context.Background()
	root, err := svc.CreateRoot(ctx, "R")
	require.NoError(t, err)

	got, err := svc.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ReferralCode, got.ReferralCode)

	_, err = svc.Get(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRandomReferralCode(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		code, err := RandomReferralCode()
		require.NoError(t, err)
		require.Regexp(t, `^[A-Z0-9]{8}$`, code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 45)
	assert.Equal(t, "AB12CD34", NormalizeReferralCode(" ab12cd34 "))
}

type placerFunc func(ctx context.Context, sponsorID uuid.UUID) (placement.Slot, error)

func (f placerFunc) Place(ctx context.Context, sponsorID uuid.UUID) (placement.Slot, error) {
	return f(ctx, sponsorID)
}

func assertSlot(t *testing.T, m *models.Member, parentID uuid.UUID, pos enums.Position) {
	t.Helper()
	require.NotNil(t, m.ParentID)
	require.NotNil(t, m.Position)
	assert.Equal(t, parentID, *m.ParentID)
	assert.Equal(t, pos, *m.Position)
}

func assertBinaryInvariant(t *testing.T, repo Repository, rootID uuid.UUID) {
	t.Helper()
	level := []uuid.UUID{rootID}
	for len(level) > 0 {
		children, err := repo.ChildrenOf(context.Background(), level)
		require.NoError(t, err)
		slots := map[string]struct{}{}
		next := make([]uuid.UUID, 0, len(children))
		for _, child := range children {
			key := child.ParentID.String() + "/" + child.Position.String()
			_, dup := slots[key]
			require.False(t, dup, "slot %s assigned twice", key)
			slots[key] = struct{}{}
			next = append(next, child.ID)
		}
		level = next
	}
}
