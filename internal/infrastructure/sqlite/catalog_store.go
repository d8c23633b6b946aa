package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foodlens/backend/internal/domain"
	"github.com/foodlens/backend/internal/foodname"
)

const catalogColumns = `food_id, display_name, category1, category2, representative_name, nutrients_json`

// CatalogStore reads the curated food catalog. Writes happen only through Upsert,
// which the import tooling uses.
type CatalogStore struct {
	db         *sql.DB
	normalizer *foodname.Normalizer
}

// NewCatalogStore creates a catalog store over an opened database
func NewCatalogStore(db *sql.DB, normalizer *foodname.Normalizer) *CatalogStore {
	if normalizer == nil {
		normalizer = foodname.NewNormalizer("", "")
	}
	return &CatalogStore{db: db, normalizer: normalizer}
}

// SearchByName returns records whose display or representative name equals name
// once whitespace is removed.
func (s *CatalogStore) SearchByName(ctx context.Context, name string) ([]domain.FoodRecord, error) {
	norm := foodname.StripWhitespace(name)
	if norm == "" {
		return nil, nil
	}

	query := `SELECT ` + catalogColumns + ` FROM catalog_foods
		WHERE name_norm = ? OR (rep_norm <> '' AND rep_norm = ?)
		ORDER BY length(name_norm), food_id`

	rows, err := s.db.QueryContext(ctx, query, norm, norm)
	if err != nil {
		return nil, fmt.Errorf("catalog search by name: %w", err)
	}
	return scanCatalogRows(rows)
}

// SearchCandidates returns at most filter.Limit records loosely related to the filter.
// A record qualifies when its category equals the hint or when any term occurs in
// its name, category1, category2 or representative name. category1 is compared
// without the category suffix on either side.
func (s *CatalogStore) SearchCandidates(ctx context.Context, filter domain.CandidateFilter) ([]domain.FoodRecord, error) {
	var (
		conds []string
		args  []any
	)

	if hint := foodname.StripWhitespace(filter.CategoryHint); hint != "" {
		conds = append(conds, "category1_norm = ?", "category2_norm = ?")
		args = append(args, s.normalizer.StripCategory(hint), hint)
	}

	for _, term := range filter.Terms {
		term = foodname.StripWhitespace(term)
		if term == "" {
			continue
		}
		catTerm := s.normalizer.StripCategory(term)
		if catTerm == "" {
			catTerm = term
		}
		conds = append(conds,
			"instr(name_norm, ?) > 0",
			"(category1_norm <> '' AND instr(category1_norm, ?) > 0)",
			"instr(category2_norm, ?) > 0",
			"(rep_norm <> '' AND instr(rep_norm, ?) > 0)",
		)
		args = append(args, term, catTerm, term, term)
	}

	if len(conds) == 0 {
		return nil, nil
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := `SELECT ` + catalogColumns + ` FROM catalog_foods
		WHERE ` + strings.Join(conds, " OR ") + `
		ORDER BY length(name_norm), food_id
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog candidate search: %w", err)
	}
	return scanCatalogRows(rows)
}

// GetByID returns one catalog record or domain.ErrNotFound
func (s *CatalogStore) GetByID(ctx context.Context, foodID string) (*domain.FoodRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_foods WHERE food_id = ?`, foodID)

	food, err := scanCatalog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog get %s: %w", foodID, err)
	}
	return food, nil
}

// Upsert inserts or replaces catalog records in one transaction and returns the count written
func (s *CatalogStore) Upsert(ctx context.Context, foods []domain.FoodRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin catalog upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_foods (
			food_id, display_name, name_norm, category1, category1_norm,
			category2, category2_norm, representative_name, rep_norm,
			nutrients_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(food_id) DO UPDATE SET
			display_name = excluded.display_name,
			name_norm = excluded.name_norm,
			category1 = excluded.category1,
			category1_norm = excluded.category1_norm,
			category2 = excluded.category2,
			category2_norm = excluded.category2_norm,
			representative_name = excluded.representative_name,
			rep_norm = excluded.rep_norm,
			nutrients_json = excluded.nutrients_json,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare catalog upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for i, f := range foods {
		if strings.TrimSpace(f.FoodID) == "" || strings.TrimSpace(f.DisplayName) == "" {
			return 0, fmt.Errorf("%w: row %d needs food_id and display_name", domain.ErrInvalidInput, i+1)
		}
		nutrients, err := json.Marshal(f.Nutrients)
		if err != nil {
			return 0, fmt.Errorf("encode nutrients for %s: %w", f.FoodID, err)
		}
		_, err = stmt.ExecContext(ctx,
			f.FoodID, f.DisplayName, foodname.StripWhitespace(f.DisplayName),
			f.Category1, s.normalizer.StripCategory(f.Category1),
			f.Category2, foodname.StripWhitespace(f.Category2),
			f.RepresentativeName, foodname.StripWhitespace(f.RepresentativeName),
			string(nutrients), now,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert %s: %w", f.FoodID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit catalog upsert: %w", err)
	}
	return len(foods), nil
}

// Count returns the number of catalog records
func (s *CatalogStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_foods`).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog count: %w", err)
	}
	return n, nil
}

func scanCatalog(row rowScanner) (*domain.FoodRecord, error) {
	var (
		f         domain.FoodRecord
		nutrients string
	)
	if err := row.Scan(&f.FoodID, &f.DisplayName, &f.Category1, &f.Category2,
		&f.RepresentativeName, &nutrients); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(nutrients), &f.Nutrients); err != nil {
		return nil, fmt.Errorf("decode nutrients for %s: %w", f.FoodID, err)
	}
	return &f, nil
}

func scanCatalogRows(rows *sql.Rows) ([]domain.FoodRecord, error) {
	defer rows.Close()

	var foods []domain.FoodRecord
	for rows.Next() {
		f, err := scanCatalog(rows)
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
