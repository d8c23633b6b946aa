package usecase

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/foodlens/backend/internal/domain"
	"github.com/foodlens/backend/internal/foodname"
	"go.uber.org/zap"
)

// Rule names, reported in ScoreResult.MatchedRules
const (
	RuleExactName                = "exact_name"
	RuleCompoundHead             = "compound_head"
	RuleCompoundTail             = "compound_tail"
	RuleRepresentativeName       = "representative_name"
	RuleCategory1                = "category1"
	RuleCategory2                = "category2"
	RuleGenericTailBypass        = "generic_tail_bypass"
	RulePartialName              = "partial_name"
	RuleIngredientCategory2      = "ingredient_category2"
	RuleIngredientTail           = "ingredient_tail"
	RuleIngredientName           = "ingredient_name"
	RuleIngredientRepresentative = "ingredient_representative"
)

// DefaultGenericPlaceholders are category2 values that appear across unrelated catalog records
var DefaultGenericPlaceholders = []string{"도넛", "해당없음", "기타", "일반", "없음"}

// RuleWeights holds the points awarded by each scoring rule
type RuleWeights struct {
	ExactName                int `mapstructure:"exact_name"`
	CompoundHead             int `mapstructure:"compound_head"`
	CompoundTail             int `mapstructure:"compound_tail"`
	RepresentativeName       int `mapstructure:"representative_name"`
	Category1                int `mapstructure:"category1"`
	Category2                int `mapstructure:"category2"`
	GenericTailBypass        int `mapstructure:"generic_tail_bypass"`
	PartialName              int `mapstructure:"partial_name"`
	IngredientCategory2      int `mapstructure:"ingredient_category2"`
	IngredientTail           int `mapstructure:"ingredient_tail"`
	IngredientName           int `mapstructure:"ingredient_name"`
	IngredientRepresentative int `mapstructure:"ingredient_representative"`
}

// DefaultRuleWeights returns the standard rule table weights
func DefaultRuleWeights() RuleWeights {
	return RuleWeights{
		ExactName:                100,
		CompoundHead:             80,
		CompoundTail:             70,
		RepresentativeName:       90,
		Category1:                60,
		Category2:                50,
		GenericTailBypass:        40,
		PartialName:              30,
		IngredientCategory2:      15,
		IngredientTail:           18,
		IngredientName:           12,
		IngredientRepresentative: 10,
	}
}

// Rule is one row of the scoring table.
// Hits returns how many times the rule fires for a candidate; zero means it does not apply.
type Rule struct {
	Name   string
	Points int
	Hits   func(m *matchInput) int
}

// ScorerConfig holds configuration for the scoring engine
type ScorerConfig struct {
	Weights             RuleWeights
	GenericPlaceholders []string
	EnableDebugLogging  bool
}

// Scorer evaluates every rule of its table against a candidate and sums the points
type Scorer struct {
	normalizer         *foodname.Normalizer
	rules              []Rule
	generic            map[string]bool
	enableDebugLogging bool
	logger             *zap.Logger
}

// NewScorer builds a scorer over the standard rule table
func NewScorer(normalizer *foodname.Normalizer, config ScorerConfig, logger *zap.Logger) *Scorer {
	weights := config.Weights
	if weights == (RuleWeights{}) {
		weights = DefaultRuleWeights()
	}
	return NewScorerWithRules(normalizer, standardRules(weights), config, logger)
}

// NewScorerWithRules builds a scorer over a caller-supplied rule table
func NewScorerWithRules(normalizer *foodname.Normalizer, rules []Rule, config ScorerConfig, logger *zap.Logger) *Scorer {
	if normalizer == nil {
		normalizer = foodname.NewNormalizer("", "")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	placeholders := config.GenericPlaceholders
	if placeholders == nil {
		placeholders = DefaultGenericPlaceholders
	}
	generic := make(map[string]bool, len(placeholders))
	for _, p := range placeholders {
		if p = foodname.StripWhitespace(p); p != "" {
			generic[p] = true
		}
	}

	return &Scorer{
		normalizer:         normalizer,
		rules:              rules,
		generic:            generic,
		enableDebugLogging: config.EnableDebugLogging,
		logger:             logger,
	}
}

// Rules returns the scorer's rule table
func (s *Scorer) Rules() []Rule {
	return s.rules
}

// IsGeneric reports whether a category2 value is a configured generic placeholder
func (s *Scorer) IsGeneric(category string) bool {
	return s.generic[foodname.StripWhitespace(category)]
}

// PreparedQuery is a MatchQuery normalized once for scoring many candidates
type PreparedQuery struct {
	Name         foodname.NormalizedName
	Ingredients  []string
	Hint         string
	HintStripped string
}

// Prepare normalizes a query
func (s *Scorer) Prepare(q domain.MatchQuery) PreparedQuery {
	return PreparedQuery{
		Name:         s.normalizer.Normalize(q.FoodName),
		Ingredients:  s.normalizer.Terms(q.Ingredients),
		Hint:         foodname.StripWhitespace(q.CategoryHint),
		HintStripped: s.normalizer.StripCategory(q.CategoryHint),
	}
}

// Score computes the additive match score of a query against one candidate
func (s *Scorer) Score(q domain.MatchQuery, candidate domain.Matchable) domain.ScoreResult {
	return s.ScorePrepared(s.Prepare(q), candidate)
}

// ScorePrepared scores a candidate against an already prepared query
func (s *Scorer) ScorePrepared(q PreparedQuery, candidate domain.Matchable) domain.ScoreResult {
	m := s.newMatchInput(q, candidate.MatchFields())

	var result domain.ScoreResult
	for _, rule := range s.rules {
		hits := rule.Hits(m)
		if hits <= 0 {
			continue
		}
		result.Score += rule.Points * hits
		result.MatchedRules = append(result.MatchedRules, rule.Name)
	}
	if result.Score < 0 {
		result.Score = 0
	}

	if s.enableDebugLogging {
		s.logger.Debug("candidate scored",
			zap.String("query", q.Name.Full),
			zap.String("food_id", m.foodID),
			zap.String("display_name", m.name.Full),
			zap.Int("score", result.Score),
			zap.Strings("rules", result.MatchedRules),
		)
	}

	return result
}

// matchInput is one candidate and the query, normalized for rule evaluation
type matchInput struct {
	query        foodname.NormalizedName
	hint         string
	hintStripped string
	ingredients  []string

	foodID         string
	name           foodname.NormalizedName
	representative string
	category1      string // suffix stripped
	category2      string
	genericCat2    bool

	// claims holds, per query ingredient, the name of the rule that scored it
	claims []string
}

func (s *Scorer) newMatchInput(q PreparedQuery, f domain.MatchFields) *matchInput {
	m := &matchInput{
		query:          q.Name,
		hint:           q.Hint,
		hintStripped:   q.HintStripped,
		ingredients:    q.Ingredients,
		foodID:         f.FoodID,
		name:           s.normalizer.Normalize(f.DisplayName),
		representative: foodname.StripWhitespace(f.RepresentativeName),
		category1:      s.normalizer.StripCategory(f.Category1),
		category2:      foodname.StripWhitespace(f.Category2),
	}
	m.genericCat2 = s.generic[m.category2]
	m.claims = claimIngredients(m)
	return m
}

// claimIngredients assigns each ingredient to the most specific field containing it.
// An ingredient scores at most once.
func claimIngredients(m *matchInput) []string {
	claims := make([]string, len(m.ingredients))
	for i, ing := range m.ingredients {
		switch {
		case !m.genericCat2 && m.category2 != "" && strings.Contains(m.category2, ing):
			claims[i] = RuleIngredientCategory2
		case m.genericCat2 && m.name.Compound && strings.Contains(m.name.Tail, ing):
			claims[i] = RuleIngredientTail
		case strings.Contains(m.name.Full, ing):
			claims[i] = RuleIngredientName
		case m.representative != "" && strings.Contains(m.representative, ing):
			claims[i] = RuleIngredientRepresentative
		}
	}
	return claims
}

func (m *matchInput) exactName() bool {
	return m.query.Full != "" && m.query.Full == m.name.Full
}

func (m *matchInput) compoundHead() bool {
	return m.query.Full != "" && m.name.Compound && m.name.Head == m.query.Full
}

func (m *matchInput) compoundTail() bool {
	return m.query.Full != "" && m.name.Compound && m.name.Tail == m.query.Full
}

func (m *matchInput) countClaims(rule string) int {
	n := 0
	for _, c := range m.claims {
		if c == rule {
			n++
		}
	}
	return n
}

func hit(ok bool) int {
	if ok {
		return 1
	}
	return 0
}

// standardRules is the rule table in evaluation order
func standardRules(w RuleWeights) []Rule {
	return []Rule{
		{Name: RuleExactName, Points: w.ExactName, Hits: func(m *matchInput) int {
			return hit(m.exactName())
		}},
		{Name: RuleCompoundHead, Points: w.CompoundHead, Hits: func(m *matchInput) int {
			return hit(m.compoundHead())
		}},
		{Name: RuleCompoundTail, Points: w.CompoundTail, Hits: func(m *matchInput) int {
			return hit(m.compoundTail())
		}},
		{Name: RuleRepresentativeName, Points: w.RepresentativeName, Hits: func(m *matchInput) int {
			return hit(m.query.Full != "" && m.representative == m.query.Full)
		}},
		{Name: RuleCategory1, Points: w.Category1, Hits: func(m *matchInput) int {
			return hit(m.hintStripped != "" && m.category1 == m.hintStripped)
		}},
		{Name: RuleCategory2, Points: w.Category2, Hits: func(m *matchInput) int {
			return hit(m.hint != "" && !m.genericCat2 && m.category2 == m.hint)
		}},
		{Name: RuleGenericTailBypass, Points: w.GenericTailBypass, Hits: func(m *matchInput) int {
			return hit(m.query.Full != "" && m.genericCat2 && m.name.Compound &&
				strings.Contains(m.name.Tail, m.query.Full))
		}},
		{Name: RulePartialName, Points: w.PartialName, Hits: func(m *matchInput) int {
			if m.exactName() || m.compoundHead() || m.compoundTail() {
				return 0
			}
			return hit(m.query.Full != "" && strings.Contains(m.name.Full, m.query.Full))
		}},
		{Name: RuleIngredientCategory2, Points: w.IngredientCategory2, Hits: func(m *matchInput) int {
			return m.countClaims(RuleIngredientCategory2)
		}},
		{Name: RuleIngredientTail, Points: w.IngredientTail, Hits: func(m *matchInput) int {
			return m.countClaims(RuleIngredientTail)
		}},
		{Name: RuleIngredientName, Points: w.IngredientName, Hits: func(m *matchInput) int {
			return m.countClaims(RuleIngredientName)
		}},
		{Name: RuleIngredientRepresentative, Points: w.IngredientRepresentative, Hits: func(m *matchInput) int {
			return m.countClaims(RuleIngredientRepresentative)
		}},
	}
}

// scored pairs a candidate with its score
type scored[T domain.Matchable] struct {
	food    T
	result  domain.ScoreResult
	nameLen int
	id      string
}

// scoreAll scores every candidate and orders them best first
func scoreAll[T domain.Matchable](s *Scorer, q PreparedQuery, foods []T) []scored[T] {
	out := make([]scored[T], 0, len(foods))
	for _, f := range foods {
		fields := f.MatchFields()
		out = append(out, scored[T]{
			food:    f,
			result:  s.ScorePrepared(q, f),
			nameLen: utf8.RuneCountInString(foodname.StripWhitespace(fields.DisplayName)),
			id:      fields.FoodID,
		})
	}
	slices.SortStableFunc(out, compareScored[T])
	return out
}

// compareScored orders by score descending, then shorter display name, then lower food id
func compareScored[T domain.Matchable](a, b scored[T]) int {
	if c := cmp.Compare(b.result.Score, a.result.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.nameLen, b.nameLen); c != 0 {
		return c
	}
	return strings.Compare(a.id, b.id)
}
