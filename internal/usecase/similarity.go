package usecase

import (
	"cmp"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/foodlens/backend/internal/domain"
	"github.com/foodlens/backend/internal/foodname"
)

// compactCandidates orders catalog records by edit distance to the query name and
// keeps the closest limit of them in the compact form sent to a SimilarityResolver.
func compactCandidates(q PreparedQuery, foods []domain.FoodRecord, limit int) []domain.SimilarityCandidate {
	type ranked struct {
		food domain.FoodRecord
		dist int
	}

	list := make([]ranked, 0, len(foods))
	for _, f := range foods {
		list = append(list, ranked{food: f, dist: nameDistance(q.Name.Full, f)})
	}
	slices.SortStableFunc(list, func(a, b ranked) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return strings.Compare(a.food.FoodID, b.food.FoodID)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	out := make([]domain.SimilarityCandidate, 0, len(list))
	for _, r := range list {
		out = append(out, domain.SimilarityCandidate{
			FoodID:   r.food.FoodID,
			Name:     r.food.DisplayName,
			Category: joinNonEmpty("/", r.food.Category1, r.food.Category2),
		})
	}
	return out
}

// nameDistance is the smaller edit distance to the display or representative name
func nameDistance(query string, f domain.FoodRecord) int {
	d := levenshtein.ComputeDistance(query, foodname.StripWhitespace(f.DisplayName))
	if rep := foodname.StripWhitespace(f.RepresentativeName); rep != "" {
		d = min(d, levenshtein.ComputeDistance(query, rep))
	}
	return d
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
