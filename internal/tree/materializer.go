package tree

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/pkg/db/models"
	"github.com/angelmondragon/bv-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
	"github.com/angelmondragon/bv-engine/pkg/logger"
	"github.com/angelmondragon/bv-engine/pkg/metrics"
)

// Depth bounds for a tree view. Depth 1 is the root alone.
const (
	MinDepth = 1
	MaxDepth = 10
)

// Directory is the read surface of the member store.
type Directory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	ChildrenOf(ctx context.Context, parentIDs []uuid.UUID) ([]models.Member, error)
}

// Cache stores rendered views; the redis client satisfies it.
type Cache interface {
	TreeKey(rootID string, depth int) string
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Node is one member in a rendered view. Children are ordered left then right
// and empty slots are omitted.
type Node struct {
	ID           uuid.UUID       `json:"id"`
	ReferralCode string          `json:"referral_code"`
	DisplayName  string          `json:"display_name"`
	Position     *enums.Position `json:"position,omitempty"`
	Children     []*Node         `json:"children"`
}

// Options configures the materializer.
type Options struct {
	Cache    Cache
	CacheTTL time.Duration
	Logger   *logger.Logger
	Metrics  *metrics.EngineMetrics
}

// Materializer renders bounded, read-only views of the binary tree.
type Materializer struct {
	dir     Directory
	cache   Cache
	ttl     time.Duration
	logg    *logger.Logger
	metrics *metrics.EngineMetrics
}

// NewMaterializer builds a materializer. Caching is off unless both a cache
// and a positive TTL are supplied.
func NewMaterializer(dir Directory, opts Options) (*Materializer, error) {
	if dir == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "member directory required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	m := &Materializer{dir: dir, ttl: opts.CacheTTL, logg: opts.Logger, metrics: opts.Metrics}
	if opts.Cache != nil && opts.CacheTTL > 0 {
		m.cache = opts.Cache
	}
	return m, nil
}

// ClampDepth forces a requested depth into [MinDepth, MaxDepth].
func ClampDepth(depth int) int {
	if depth < MinDepth {
		return MinDepth
	}
	if depth > MaxDepth {
		return MaxDepth
	}
	return depth
}

// GetReferralTree renders the subtree under rootID, clamping the depth.
func (m *Materializer) GetReferralTree(ctx context.Context, rootID uuid.UUID, requestedDepth int) (*Node, error) {
	return m.Build(ctx, rootID, requestedDepth)
}

// Build loads the view one level per query. The result is a snapshot; it may
// miss members inserted while it runs.
func (m *Materializer) Build(ctx context.Context, rootID uuid.UUID, depth int) (*Node, error) {
	depth = ClampDepth(depth)
	started := time.Now()

	if cached, ok := m.fromCache(ctx, rootID, depth); ok {
		m.metrics.ObserveTreeBuild("cache", time.Since(started))
		return cached, nil
	}

	root, err := m.dir.FindByID(ctx, rootID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tree root")
	}

	top := newNode(root)
	level := []*Node{top}
	for d := 1; d < depth && len(level) > 0; d++ {
		ids := make([]uuid.UUID, 0, len(level))
		byID := make(map[uuid.UUID]*Node, len(level))
		for _, node := range level {
			ids = append(ids, node.ID)
			byID[node.ID] = node
		}

		children, err := m.dir.ChildrenOf(ctx, ids)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load tree level")
		}
		slots := make(map[uuid.UUID]map[enums.Position]*models.Member, len(level))
		for i := range children {
			child := &children[i]
			if child.ParentID == nil || child.Position == nil {
				continue
			}
			if slots[*child.ParentID] == nil {
				slots[*child.ParentID] = make(map[enums.Position]*models.Member, 2)
			}
			slots[*child.ParentID][*child.Position] = child
		}

		next := make([]*Node, 0, len(children))
		for _, parent := range level {
			for _, pos := range enums.Positions() {
				child, ok := slots[parent.ID][pos]
				if !ok {
					continue
				}
				node := newNode(child)
				parent.Children = append(parent.Children, node)
				next = append(next, node)
			}
		}
		level = next
	}

	m.toCache(ctx, top, depth)
	m.metrics.ObserveTreeBuild("db", time.Since(started))
	return top, nil
}

func (m *Materializer) fromCache(ctx context.Context, rootID uuid.UUID, depth int) (*Node, bool) {
	if m.cache == nil {
		return nil, false
	}
	var node Node
	hit, err := m.cache.GetJSON(ctx, m.cache.TreeKey(rootID.String(), depth), &node)
	if err != nil {
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "tree cache read failed")
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &node, true
}

func (m *Materializer) toCache(ctx context.Context, node *Node, depth int) {
	if m.cache == nil {
		return
	}
	if err := m.cache.SetJSON(ctx, m.cache.TreeKey(node.ID.String(), depth), node, m.ttl); err != nil {
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "tree cache write failed")
	}
}

func newNode(m *models.Member) *Node {
	return &Node{
		ID:           m.ID,
		ReferralCode: m.ReferralCode,
		DisplayName:  m.DisplayName,
		Position:     m.Position,
		Children:     []*Node{},
	}
}
