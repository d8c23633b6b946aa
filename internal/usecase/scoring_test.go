package usecase

import (
	"testing"

	"github.com/foodlens/backend/internal/domain"
	"github.com/foodlens/backend/internal/foodname"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScorer(placeholders ...string) *Scorer {
	cfg := ScorerConfig{}
	if len(placeholders) > 0 {
		cfg.GenericPlaceholders = append(append([]string{}, DefaultGenericPlaceholders...), placeholders...)
	}
	return NewScorer(foodname.NewNormalizer("", ""), cfg, nil)
}

func TestScorer_IndividualRules(t *testing.T) {
	s := newTestScorer("donut")

	tests := []struct {
		name      string
		query     domain.MatchQuery
		food      domain.FoodRecord
		wantScore int
		wantRules []string
	}{
		{
			name:      "exact display name",
			query:     domain.MatchQuery{FoodName: "김치찌개"},
			food:      domain.FoodRecord{FoodID: "D1", DisplayName: "김치 찌개"},
			wantScore: 100,
			wantRules: []string{RuleExactName},
		},
		{
			name:      "compound head",
			query:     domain.MatchQuery{FoodName: "soup"},
			food:      domain.FoodRecord{FoodID: "D101", DisplayName: "soup_beansprout", Category1: "soupcategory", Category2: "beansprout"},
			wantScore: 80,
			wantRules: []string{RuleCompoundHead},
		},
		{
			name:      "compound tail",
			query:     domain.MatchQuery{FoodName: "beansprout"},
			food:      domain.FoodRecord{FoodID: "D101", DisplayName: "soup_beansprout"},
			wantScore: 70,
			wantRules: []string{RuleCompoundTail},
		},
		{
			name:      "representative name",
			query:     domain.MatchQuery{FoodName: "된장국"},
			food:      domain.FoodRecord{FoodID: "D2", DisplayName: "국_된장", RepresentativeName: "된장 국"},
			wantScore: 90,
			wantRules: []string{RuleRepresentativeName},
		},
		{
			name:      "category1 with suffix stripped on both sides",
			query:     domain.MatchQuery{FoodName: "xyz", CategoryHint: "국류"},
			food:      domain.FoodRecord{FoodID: "D3", DisplayName: "국_콩나물", Category1: "국류"},
			wantScore: 60,
			wantRules: []string{RuleCategory1},
		},
		{
			name:      "category1 with suffix stripped on candidate only",
			query:     domain.MatchQuery{FoodName: "xyz", CategoryHint: "국"},
			food:      domain.FoodRecord{FoodID: "D3", DisplayName: "국_콩나물", Category1: "국류"},
			wantScore: 60,
			wantRules: []string{RuleCategory1},
		},
		{
			name:      "category2 exact",
			query:     domain.MatchQuery{FoodName: "xyz", CategoryHint: "콩나물"},
			food:      domain.FoodRecord{FoodID: "D4", DisplayName: "국_콩나물", Category2: "콩나물"},
			wantScore: 50,
			wantRules: []string{RuleCategory2},
		},
		{
			name:      "category2 generic placeholder never matches hint",
			query:     domain.MatchQuery{FoodName: "xyz", CategoryHint: "기타"},
			food:      domain.FoodRecord{FoodID: "D5", DisplayName: "빵_고구마", Category2: "기타"},
			wantScore: 0,
			wantRules: nil,
		},
		{
			name:      "generic tail bypass adds to partial name",
			query:     domain.MatchQuery{FoodName: "sweetpotato"},
			food:      domain.FoodRecord{FoodID: "B1", DisplayName: "bread_sweetpotato-mix", Category2: "donut"},
			wantScore: 70,
			wantRules: []string{RuleGenericTailBypass, RulePartialName},
		},
		{
			name:      "partial name",
			query:     domain.MatchQuery{FoodName: "김치"},
			food:      domain.FoodRecord{FoodID: "D6", DisplayName: "김치볶음밥"},
			wantScore: 30,
			wantRules: []string{RulePartialName},
		},
		{
			name:      "partial name suppressed by head match",
			query:     domain.MatchQuery{FoodName: "국"},
			food:      domain.FoodRecord{FoodID: "D7", DisplayName: "국_미역"},
			wantScore: 80,
			wantRules: []string{RuleCompoundHead},
		},
		{
			name:      "no signal",
			query:     domain.MatchQuery{FoodName: "pizza"},
			food:      domain.FoodRecord{FoodID: "D8", DisplayName: "soup_beansprout", Category2: "beansprout"},
			wantScore: 0,
			wantRules: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.query, tt.food)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantRules, got.MatchedRules)
		})
	}
}

func TestScorer_IngredientRules(t *testing.T) {
	s := newTestScorer()

	t.Run("ingredient in non-generic category2", func(t *testing.T) {
		got := s.Score(
			domain.MatchQuery{FoodName: "zzz", Ingredients: []string{"돼지고기"}},
			domain.FoodRecord{FoodID: "A", DisplayName: "찌개_김치", Category2: "돼지고기"},
		)
		assert.Equal(t, 15, got.Score)
		assert.Equal(t, []string{RuleIngredientCategory2}, got.MatchedRules)
	})

	t.Run("ingredient in tail when category2 generic", func(t *testing.T) {
		got := s.Score(
			domain.MatchQuery{FoodName: "zzz", Ingredients: []string{"고구마"}},
			domain.FoodRecord{FoodID: "A", DisplayName: "빵_고구마", Category2: "도넛"},
		)
		assert.Equal(t, 18, got.Score)
		assert.Equal(t, []string{RuleIngredientTail}, got.MatchedRules)
	})

	t.Run("ingredient in display name", func(t *testing.T) {
		got := s.Score(
			domain.MatchQuery{FoodName: "zzz", Ingredients: []string{"김치"}},
			domain.FoodRecord{FoodID: "A", DisplayName: "찌개_김치", Category2: "배추"},
		)
		assert.Equal(t, 12, got.Score)
		assert.Equal(t, []string{RuleIngredientName}, got.MatchedRules)
	})

	t.Run("ingredient in representative name", func(t *testing.T) {
		got := s.Score(
			domain.MatchQuery{FoodName: "zzz", Ingredients: []string{"두부"}},
			domain.FoodRecord{FoodID: "A", DisplayName: "찌개_된장", RepresentativeName: "두부된장찌개"},
		)
		assert.Equal(t, 10, got.Score)
		assert.Equal(t, []string{RuleIngredientRepresentative}, got.MatchedRules)
	})

	t.Run("each ingredient counted once and summed", func(t *testing.T) {
		got := s.Score(
			domain.MatchQuery{FoodName: "zzz", Ingredients: []string{"김치", "돼지고기", "김치", "없는재료"}},
			domain.FoodRecord{FoodID: "A", DisplayName: "찌개_김치", Category2: "돼지고기"},
		)
		// 돼지고기 -> category2 (+15), 김치 -> display name (+12), duplicate ignored
		assert.Equal(t, 27, got.Score)
		assert.ElementsMatch(t, []string{RuleIngredientCategory2, RuleIngredientName}, got.MatchedRules)
	})
}

func TestScorer_RulesAreAdditive(t *testing.T) {
	s := newTestScorer()

	got := s.Score(
		domain.MatchQuery{FoodName: "찌개_김치", Ingredients: []string{"김치"}, CategoryHint: "찌개"},
		domain.FoodRecord{FoodID: "A", DisplayName: "찌개_김치", Category1: "찌개류", Category2: "김치", RepresentativeName: "찌개_김치"},
	)
	// exact 100 + representative 90 + category1 60 + ingredient in category2 15
	assert.Equal(t, 265, got.Score)
	assert.Equal(t, []string{RuleExactName, RuleRepresentativeName, RuleCategory1, RuleIngredientCategory2}, got.MatchedRules)
}

func TestScorer_ContributedFoodIsMatchable(t *testing.T) {
	s := newTestScorer()

	got := s.Score(
		domain.MatchQuery{FoodName: "엄마표 김치찌개"},
		domain.ContributedFood{FoodID: "USER_1_1", DisplayName: "엄마표김치찌개", UsageCount: 1},
	)
	assert.Equal(t, 100, got.Score)
}

func TestScorer_CustomWeights(t *testing.T) {
	weights := DefaultRuleWeights()
	weights.PartialName = 19
	s := NewScorer(nil, ScorerConfig{Weights: weights}, nil)

	got := s.Score(domain.MatchQuery{FoodName: "김치"}, domain.FoodRecord{FoodID: "A", DisplayName: "김치볶음밥"})
	assert.Equal(t, 19, got.Score)
}

func TestScorer_IsGeneric(t *testing.T) {
	s := newTestScorer()

	assert.True(t, s.IsGeneric("도넛"))
	assert.True(t, s.IsGeneric(" 해당 없음 "))
	assert.False(t, s.IsGeneric("도넛류"))
	assert.False(t, s.IsGeneric(""))

	custom := NewScorer(nil, ScorerConfig{GenericPlaceholders: []string{"misc"}}, nil)
	assert.True(t, custom.IsGeneric("misc"))
	assert.False(t, custom.IsGeneric("도넛"))
}

func TestScoreAll_TieBreak(t *testing.T) {
	s := newTestScorer()
	q := s.Prepare(domain.MatchQuery{FoodName: "국"})

	foods := []domain.FoodRecord{
		{FoodID: "D300", DisplayName: "국_콩나물"},
		{FoodID: "D200", DisplayName: "국_미역"},
		{FoodID: "D100", DisplayName: "국_김치"},
		{FoodID: "D050", DisplayName: "국_콩나물국"},
		{FoodID: "D999", DisplayName: "국"},
	}

	ranked := scoreAll(s, q, foods)
	require.Len(t, ranked, 5)

	// exact match wins outright; then equal head scores ordered by name length, then id
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.food.FoodID
	}
	assert.Equal(t, []string{"D999", "D100", "D200", "D300", "D050"}, ids)
	assert.Equal(t, 100, ranked[0].result.Score)
	assert.Equal(t, 80, ranked[1].result.Score)
}
