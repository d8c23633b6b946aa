package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/foodlens/backend/internal/domain"
	"github.com/foodlens/backend/internal/foodname"
)

const contributedColumns = `food_id, owner_user_id, display_name, category1, category2,
	representative_name, ingredients_json, nutrients_json, usage_count, is_approved,
	approved_at, created_at, updated_at`

// maxContributedMatches caps the rows a single name search returns
const maxContributedMatches = 20

// ContributedStore persists user-contributed foods
type ContributedStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewContributedStore creates a contributed store over an opened database
func NewContributedStore(db *sql.DB) *ContributedStore {
	return &ContributedStore{db: db, now: time.Now}
}

// SearchByOwner returns the owner's records whose name contains name
func (s *ContributedStore) SearchByOwner(ctx context.Context, ownerUserID int64, name string) ([]domain.ContributedFood, error) {
	norm := foodname.StripWhitespace(name)
	if norm == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+contributedColumns+` FROM contributed_foods
		WHERE owner_user_id = ? AND instr(name_norm, ?) > 0
		ORDER BY usage_count DESC, length(name_norm), food_id
		LIMIT ?`, ownerUserID, norm, maxContributedMatches)
	if err != nil {
		return nil, fmt.Errorf("contributed search by owner: %w", err)
	}
	return scanContributedRows(rows)
}

// SearchPopular returns other users' records whose name contains name and
// whose usage count reached minUsage
func (s *ContributedStore) SearchPopular(ctx context.Context, name string, minUsage int, excludeOwner int64) ([]domain.ContributedFood, error) {
	norm := foodname.StripWhitespace(name)
	if norm == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+contributedColumns+` FROM contributed_foods
		WHERE owner_user_id <> ? AND usage_count >= ? AND instr(name_norm, ?) > 0
		ORDER BY usage_count DESC, length(name_norm), food_id
		LIMIT ?`, excludeOwner, minUsage, norm, maxContributedMatches)
	if err != nil {
		return nil, fmt.Errorf("contributed popular search: %w", err)
	}
	return scanContributedRows(rows)
}

// IncrementUsage adds one use in a single UPDATE and returns the updated record
func (s *ContributedStore) IncrementUsage(ctx context.Context, foodID string) (*domain.ContributedFood, error) {
	row := s.db.QueryRowContext(ctx, `UPDATE contributed_foods
		SET usage_count = usage_count + 1, updated_at = ?
		WHERE food_id = ?
		RETURNING `+contributedColumns, s.now().UnixMilli(), foodID)

	food, err := scanContributed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment usage %s: %w", foodID, err)
	}
	return food, nil
}

// Create inserts a new record. A second record with the same owner and normalized
// name, or a reused food_id, yields domain.ErrStorageConflict.
func (s *ContributedStore) Create(ctx context.Context, food *domain.ContributedFood) error {
	if food.UsageCount < 1 {
		food.UsageCount = 1
	}
	now := s.now()
	if food.CreatedAt.IsZero() {
		food.CreatedAt = now
	}
	food.UpdatedAt = food.CreatedAt

	ingredients, err := json.Marshal(nonNil(food.Ingredients))
	if err != nil {
		return fmt.Errorf("encode ingredients: %w", err)
	}
	nutrients, err := json.Marshal(food.Nutrients)
	if err != nil {
		return fmt.Errorf("encode nutrients: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO contributed_foods (
			food_id, owner_user_id, display_name, name_norm, category1, category2,
			representative_name, ingredients_json, nutrients_json, usage_count,
			is_approved, approved_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		food.FoodID, food.OwnerUserID, food.DisplayName, foodname.StripWhitespace(food.DisplayName),
		food.Category1, food.Category2, food.RepresentativeName,
		string(ingredients), string(nutrients), food.UsageCount,
		food.IsApproved, food.CreatedAt.UnixMilli(), food.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrStorageConflict
		}
		return fmt.Errorf("create contributed food: %w", err)
	}
	return nil
}

// GetByID returns one contributed record or domain.ErrNotFound
func (s *ContributedStore) GetByID(ctx context.Context, foodID string) (*domain.ContributedFood, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contributedColumns+` FROM contributed_foods WHERE food_id = ?`, foodID)

	food, err := scanContributed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("contributed get %s: %w", foodID, err)
	}
	return food, nil
}

// ListPromotionCandidates returns unapproved records with at least minUsage uses,
// most used first. Curation reviews these for promotion into the catalog.
func (s *ContributedStore) ListPromotionCandidates(ctx context.Context, minUsage, limit int) ([]domain.ContributedFood, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+contributedColumns+` FROM contributed_foods
		WHERE is_approved = 0 AND usage_count >= ?
		ORDER BY usage_count DESC, created_at, food_id
		LIMIT ?`, minUsage, limit)
	if err != nil {
		return nil, fmt.Errorf("list promotion candidates: %w", err)
	}
	return scanContributedRows(rows)
}

// Approve marks a record approved. Approving twice keeps the first approval time.
func (s *ContributedStore) Approve(ctx context.Context, foodID string) (*domain.ContributedFood, error) {
	now := s.now().UnixMilli()
	row := s.db.QueryRowContext(ctx, `UPDATE contributed_foods
		SET is_approved = 1, approved_at = COALESCE(approved_at, ?), updated_at = ?
		WHERE food_id = ?
		RETURNING `+contributedColumns, now, now, foodID)

	food, err := scanContributed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("approve %s: %w", foodID, err)
	}
	return food, nil
}

func scanContributed(row rowScanner) (*domain.ContributedFood, error) {
	var (
		f           domain.ContributedFood
		ingredients string
		nutrients   string
		approvedAt  sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(&f.FoodID, &f.OwnerUserID, &f.DisplayName, &f.Category1, &f.Category2,
		&f.RepresentativeName, &ingredients, &nutrients, &f.UsageCount, &f.IsApproved,
		&approvedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(ingredients), &f.Ingredients); err != nil {
		return nil, fmt.Errorf("decode ingredients for %s: %w", f.FoodID, err)
	}
	if err := json.Unmarshal([]byte(nutrients), &f.Nutrients); err != nil {
		return nil, fmt.Errorf("decode nutrients for %s: %w", f.FoodID, err)
	}
	if approvedAt.Valid {
		t := time.UnixMilli(approvedAt.Int64)
		f.ApprovedAt = &t
	}
	f.CreatedAt = time.UnixMilli(createdAt)
	f.UpdatedAt = time.UnixMilli(updatedAt)
	return &f, nil
}

func scanContributedRows(rows *sql.Rows) ([]domain.ContributedFood, error) {
	defer rows.Close()

	var foods []domain.ContributedFood
	for rows.Next() {
		f, err := scanContributed(rows)
		if err != nil {
			return nil, err
		}
		foods = append(foods, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return foods, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
