package placement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bv-engine/pkg/db/models"
	"github.com/angelmondragon/bv-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/bv-engine/pkg/errors"
)

const (
	DefaultMaxDepth   = 64
	DefaultMaxVisited = 100000
)

// Directory is the read surface of the member store the resolver needs.
type Directory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	ChildrenOf(ctx context.Context, parentIDs []uuid.UUID) ([]models.Member, error)
}

// Slot is the (parent, position) pair a new member must be written with.
type Slot struct {
	ParentID uuid.UUID      `json:"parent_id"`
	Position enums.Position `json:"position"`
}

// Options bounds the breadth-first search.
type Options struct {
	MaxDepth   int
	MaxVisited int
}

// Resolver finds the shallowest, left-most open slot below a sponsor.
type Resolver struct {
	dir        Directory
	maxDepth   int
	maxVisited int
}

// NewResolver builds a resolver; non-positive bounds fall back to the defaults.
func NewResolver(dir Directory, opts Options) (*Resolver, error) {
	if dir == nil {
		return nil, fmt.Errorf("member directory required")
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxVisited <= 0 {
		opts.MaxVisited = DefaultMaxVisited
	}
	return &Resolver{dir: dir, maxDepth: opts.MaxDepth, maxVisited: opts.MaxVisited}, nil
}

// Place runs the search from sponsorID. Nodes are examined in BFS order and
// each node's left slot is checked before its right slot. Children are loaded
// one level at a time, which yields the same order as a node-by-node queue.
func (r *Resolver) Place(ctx context.Context, sponsorID uuid.UUID) (Slot, error) {
	if _, err := r.dir.FindByID(ctx, sponsorID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Slot{}, pkgerrors.New(pkgerrors.CodeNotFound, "sponsor not found")
		}
		return Slot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sponsor")
	}

	level := []uuid.UUID{sponsorID}
	visited := 0
	for depth := 0; len(level) > 0; depth++ {
		if depth >= r.maxDepth {
			return Slot{}, exhausted(depth, visited)
		}
		if err := ctx.Err(); err != nil {
			return Slot{}, err
		}

		children, err := r.dir.ChildrenOf(ctx, level)
		if err != nil {
			return Slot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load children")
		}
		slots := indexSlots(children)

		next := make([]uuid.UUID, 0, len(level)*2)
		for _, nodeID := range level {
			visited++
			if visited > r.maxVisited {
				return Slot{}, exhausted(depth, visited)
			}
			occupied := slots[nodeID]
			for _, pos := range enums.Positions() {
				child, taken := occupied[pos]
				if !taken {
					return Slot{ParentID: nodeID, Position: pos}, nil
				}
				next = append(next, child)
			}
		}
		level = next
	}

	// A finite tree always has a leaf with two open slots.
	return Slot{}, exhausted(-1, visited)
}

func indexSlots(children []models.Member) map[uuid.UUID]map[enums.Position]uuid.UUID {
	out := make(map[uuid.UUID]map[enums.Position]uuid.UUID, len(children))
	for _, child := range children {
		if child.ParentID == nil || child.Position == nil {
			continue
		}
		bucket, ok := out[*child.ParentID]
		if !ok {
			bucket = make(map[enums.Position]uuid.UUID, 2)
			out[*child.ParentID] = bucket
		}
		bucket[*child.Position] = child.ID
	}
	return out
}

func exhausted(depth, visited int) error {
	return pkgerrors.New(pkgerrors.CodeSearchExhausted, "no open slot within search bounds").
		WithDetails(map[string]int{"depth": depth, "visited": visited})
}
