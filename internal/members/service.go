package members

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/internal/placement"
	"github.com/angelmondragon/bv-engine/pkg/db"
	"github.com/angelmondragon/bv-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
	"github.com/angelmondragon/bv-engine/pkg/logger"
	"github.com/angelmondragon/bv-engine/pkg/metrics"
)

const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 15 * time.Millisecond
)

// Placer computes the slot for a new member below a sponsor.
type Placer interface {
	Place(ctx context.Context, sponsorID uuid.UUID) (placement.Slot, error)
}

// Service owns member registration and lookups.
type Service interface {
	ResolvePlacement(ctx context.Context, sponsorReferralCode string) (placement.Slot, error)
	Register(ctx context.Context, input RegisterInput) (*models.Member, error)
	CreateRoot(ctx context.Context, displayName string) (*models.Member, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Member, error)
}

// ServiceParams packages the dependencies for the registration flow.
type ServiceParams struct {
	Repo        Repository
	Placer      Placer
	Logger      *logger.Logger
	Metrics     *metrics.EngineMetrics
	MaxAttempts int
	Backoff     time.Duration
	Codes       CodeGenerator
}

type service struct {
	repo        Repository
	placer      Placer
	logg        *logger.Logger
	metrics     *metrics.EngineMetrics
	maxAttempts int
	backoff     time.Duration
	codes       CodeGenerator
}

// NewService builds the member service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "member repository required")
	}
	if params.Placer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "placement resolver required")
	}
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = DefaultMaxAttempts
	}
	if params.Backoff < 0 {
		params.Backoff = DefaultBackoff
	}
	if params.Codes == nil {
		params.Codes = RandomReferralCode
	}
	if params.Logger == nil {
		params.Logger = logger.Discard()
	}
	return &service{
		repo:        params.Repo,
		placer:      params.Placer,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxAttempts: params.MaxAttempts,
		backoff:     params.Backoff,
		codes:       params.Codes,
	}, nil
}

func (s *service) ResolvePlacement(ctx context.Context, sponsorReferralCode string) (placement.Slot, error) {
	sponsor, err := s.sponsorByCode(ctx, sponsorReferralCode)
	if err != nil {
		return placement.Slot{}, err
	}
	return s.placer.Place(ctx, sponsor.ID)
}

// Register places the new member under the sponsor named by its referral code.
// A lost slot race re-runs the search and insert, up to maxAttempts times.
func (s *service) Register(ctx context.Context, input RegisterInput) (*models.Member, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display_name is required")
	}
	if strings.TrimSpace(input.SponsorReferralCode) == "" {
		return s.CreateRoot(ctx, name)
	}

	started := time.Now()
	defer func() { s.metrics.ObservePlacement(time.Since(started)) }()

	sponsor, err := s.sponsorByCode(ctx, input.SponsorReferralCode)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithField(ctx, "sponsor_id", sponsor.ID.String())

	slotConflicts := 0
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		slot, err := s.placer.Place(ctx, sponsor.ID)
		if err != nil {
			s.metrics.IncPlacementAttempt(metrics.OutcomeFailure)
			return nil, err
		}

		code, err := s.codes()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate referral code")
		}
		parentID := slot.ParentID
		position := slot.Position
		sponsorID := sponsor.ID
		member := &models.Member{
			ReferralCode: code,
			DisplayName:  name,
			ParentID:     &parentID,
			Position:     &position,
			SponsorID:    &sponsorID,
		}

		err = s.repo.Create(ctx, member)
		switch {
		case err == nil:
			s.metrics.IncPlacementAttempt(metrics.OutcomeSuccess)
			s.logg.Info(s.logg.WithMemberID(ctx, member.ID.String()), "member placed")
			return member, nil
		case db.IsUniqueViolation(err, db.ConstraintMemberSlot):
			slotConflicts++
			s.metrics.IncPlacementAttempt(metrics.OutcomeConflict)
			s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "placement slot taken, retrying")
		case db.IsUniqueViolation(err, db.ConstraintMemberReferralCode):
			s.logg.Warn(ctx, "referral code collision, retrying")
		default:
			s.metrics.IncPlacementAttempt(metrics.OutcomeFailure)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create member")
		}

		if attempt < s.maxAttempts {
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
		}
	}

	if slotConflicts == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique referral code")
	}
	return nil, pkgerrors.New(pkgerrors.CodeSlotConflict, "placement retries exhausted").
		WithDetails(map[string]int{"attempts": s.maxAttempts, "slot_conflicts": slotConflicts})
}

// CreateRoot inserts a member with no parent, position or sponsor.
func (s *service) CreateRoot(ctx context.Context, displayName string) (*models.Member, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display_name is required")
	}
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.codes()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate referral code")
		}
		member := &models.Member{ReferralCode: code, DisplayName: name}
		err = s.repo.Create(ctx, member)
		if err == nil {
			s.logg.Info(s.logg.WithMemberID(ctx, member.ID.String()), "root member created")
			return member, nil
		}
		if !db.IsUniqueViolation(err, db.ConstraintMemberReferralCode) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create root member")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique referral code")
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	member, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load member")
	}
	return member, nil
}

func (s *service) sponsorByCode(ctx context.Context, code string) (*models.Member, error) {
	normalized := NormalizeReferralCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referral code is required")
	}
	sponsor, err := s.repo.FindByReferralCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sponsor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sponsor")
	}
	return sponsor, nil
}

func (s *service) wait(ctx context.Context) error {
	if s.backoff <= 0 {
		return ctx.Err()
	}
	delay := s.backoff/2 + time.Duration(rand.Int63n(int64(s.backoff)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
