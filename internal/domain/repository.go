package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CandidateFilter bounds a loose catalog search.
// A record qualifies when any term occurs in its name, categories or
// representative name, or when its category matches CategoryHint.
type CandidateFilter struct {
	CategoryHint string
	Terms        []string
	Limit        int
}

// CatalogStore is the read-only view of the curated catalog
type CatalogStore interface {
	// SearchByName returns records whose normalized display or representative name equals name
	SearchByName(ctx context.Context, name string) ([]FoodRecord, error)
	SearchCandidates(ctx context.Context, filter CandidateFilter) ([]FoodRecord, error)
	GetByID(ctx context.Context, foodID string) (*FoodRecord, error)
}

// ContributedStore persists user-submitted foods.
// Name arguments are normalized; records match when their normalized name contains it.
type ContributedStore interface {
	SearchByOwner(ctx context.Context, ownerUserID int64, name string) ([]ContributedFood, error)
	// SearchPopular returns other users' records with at least minUsage uses
	SearchPopular(ctx context.Context, name string, minUsage int, excludeOwner int64) ([]ContributedFood, error)
	// IncrementUsage adds one use atomically and returns the updated record
	IncrementUsage(ctx context.Context, foodID string) (*ContributedFood, error)
	// Create inserts a record, returning ErrStorageConflict when the owner already has one with the same name
	Create(ctx context.Context, food *ContributedFood) error
}

// SimilarityCandidate is the compact form of a catalog record offered to a SimilarityResolver
type SimilarityCandidate struct {
	FoodID   string `json:"foodId"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// SimilarityResolver picks the candidate most similar to a query.
// It returns an empty id when no candidate fits.
type SimilarityResolver interface {
	ChooseBest(ctx context.Context, queryName string, ingredients []string, candidates []SimilarityCandidate) (string, error)
}
