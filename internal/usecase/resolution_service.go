package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/foodlens/backend/internal/domain"
	"go.uber.org/zap"
)

// Stage names, reported in Resolution.Stage
const (
	StageExactCatalog    = "exact_catalog"
	StageContributed     = "contributed"
	StageCatalogFallback = "catalog_fallback"
	StageSimilarity      = "similarity"
	StageCreate          = "create"
)

// ResolutionConfig holds configuration for the resolution service
type ResolutionConfig struct {
	FallbackMinScore   int
	PopularityMinUsage int
	MaxCandidates      int
	ResolverCandidates int
	ResolverTimeout    time.Duration
}

// ResolutionService resolves a free-form food name to one catalog or contributed
// food, creating a contributed record when nothing matches.
//
// Stages run in order and the first that produces a food wins:
//  1. exact catalog name
//  2. contributed foods (the owner's, then other users' popular ones)
//  3. scored catalog candidates filtered by name, ingredients and category hint
//  4. similarity resolver over a compact candidate list
//  5. create a new contributed record
type ResolutionService struct {
	catalog     domain.CatalogStore
	contributed domain.ContributedStore
	resolver    domain.SimilarityResolver
	scorer      *Scorer
	ids         *IDGenerator
	config      ResolutionConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewResolutionService creates a resolution service with dependencies.
// resolver may be nil, which disables stage 4.
func NewResolutionService(
	catalog domain.CatalogStore,
	contributed domain.ContributedStore,
	resolver domain.SimilarityResolver,
	scorer *Scorer,
	config ResolutionConfig,
	logger *zap.Logger,
) *ResolutionService {
	if config.FallbackMinScore <= 0 {
		config.FallbackMinScore = 20
	}
	if config.PopularityMinUsage <= 0 {
		config.PopularityMinUsage = 3
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = 50
	}
	if config.ResolverCandidates <= 0 {
		config.ResolverCandidates = 20
	}
	if config.ResolverTimeout <= 0 {
		config.ResolverTimeout = 5 * time.Second
	}
	if scorer == nil {
		scorer = NewScorer(nil, ScorerConfig{}, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResolutionService{
		catalog:     catalog,
		contributed: contributed,
		resolver:    resolver,
		scorer:      scorer,
		ids:         NewIDGenerator(),
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// Resolve maps a request to a single food. The only errors returned are
// domain.ErrInvalidInput, domain.ErrStorageConflict (retryable), store read
// failures and cancellation of ctx before a new record is written.
func (s *ResolutionService) Resolve(ctx context.Context, req domain.ResolveRequest) (*domain.Resolution, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	q := s.scorer.Prepare(req.Query())
	log := s.logger.With(
		zap.String("food_name", q.Name.Full),
		zap.Int64("user_id", req.OwnerUserID),
	)

	res, err := s.matchExactCatalog(ctx, q)
	if err != nil || res != nil {
		return s.done(log, res, err)
	}

	res, err = s.matchContributed(ctx, q, req.OwnerUserID)
	if err != nil || res != nil {
		return s.done(log, res, err)
	}

	res, candidates, err := s.matchCatalogFallback(ctx, q)
	if err != nil || res != nil {
		return s.done(log, res, err)
	}

	res, err = s.matchSimilar(ctx, log, q, candidates)
	if err != nil || res != nil {
		return s.done(log, res, err)
	}

	res, err = s.create(ctx, log, q, req)
	return s.done(log, res, err)
}

func (s *ResolutionService) done(log *zap.Logger, res *domain.Resolution, err error) (*domain.Resolution, error) {
	if err != nil {
		log.Warn("resolution failed", zap.Error(err))
		return nil, err
	}
	log.Info("food resolved",
		zap.String("stage", res.Stage),
		zap.String("source", string(res.Source)),
		zap.String("food_id", res.FoodID),
		zap.Int("score", res.Score),
	)
	return res, nil
}

// matchExactCatalog is stage 1
func (s *ResolutionService) matchExactCatalog(ctx context.Context, q PreparedQuery) (*domain.Resolution, error) {
	foods, err := s.catalog.SearchByName(ctx, q.Name.Full)
	if err != nil {
		return nil, fmt.Errorf("exact catalog search: %w", err)
	}
	if len(foods) == 0 {
		return nil, nil
	}

	best := scoreAll(s.scorer, q, foods)[0]
	return catalogResolution(best.food, best.result, StageExactCatalog), nil
}

// matchContributed is stage 2. The owner's records are searched first, then other
// users' records that reached the popularity threshold.
func (s *ResolutionService) matchContributed(ctx context.Context, q PreparedQuery, ownerUserID int64) (*domain.Resolution, error) {
	res, err := s.matchOwnContributed(ctx, q, ownerUserID)
	if err != nil || res != nil {
		return res, err
	}

	popular, err := s.contributed.SearchPopular(ctx, q.Name.Full, s.config.PopularityMinUsage, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("popular contributed search: %w", err)
	}
	return s.useContributed(ctx, q, popular)
}

func (s *ResolutionService) matchOwnContributed(ctx context.Context, q PreparedQuery, ownerUserID int64) (*domain.Resolution, error) {
	own, err := s.contributed.SearchByOwner(ctx, ownerUserID, q.Name.Full)
	if err != nil {
		return nil, fmt.Errorf("owner contributed search: %w", err)
	}
	return s.useContributed(ctx, q, own)
}

// useContributed picks the most used record and records one more use of it
func (s *ResolutionService) useContributed(ctx context.Context, q PreparedQuery, foods []domain.ContributedFood) (*domain.Resolution, error) {
	if len(foods) == 0 {
		return nil, nil
	}

	ranked := scoreAll(s.scorer, q, foods)
	slices.SortStableFunc(ranked, func(a, b scored[domain.ContributedFood]) int {
		if c := cmp.Compare(b.food.UsageCount, a.food.UsageCount); c != 0 {
			return c
		}
		return compareScored(a, b)
	})
	best := ranked[0]

	updated, err := s.contributed.IncrementUsage(ctx, best.food.FoodID)
	if errors.Is(err, domain.ErrNotFound) {
		// removed by an admin between search and update
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("increment usage: %w", err)
	}

	return contributedResolution(updated, best.result, domain.SourceContributed, StageContributed), nil
}

// matchCatalogFallback is stage 3. It also returns the candidates it scored so
// stage 4 can offer them to the similarity resolver.
func (s *ResolutionService) matchCatalogFallback(ctx context.Context, q PreparedQuery) (*domain.Resolution, []domain.FoodRecord, error) {
	candidates, err := s.catalog.SearchCandidates(ctx, domain.CandidateFilter{
		CategoryHint: q.Hint,
		Terms:        candidateTerms(q),
		Limit:        s.config.MaxCandidates,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("catalog candidate search: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}
	if len(candidates) > s.config.MaxCandidates {
		candidates = candidates[:s.config.MaxCandidates]
	}

	best := scoreAll(s.scorer, q, candidates)[0]
	if best.result.Score < s.config.FallbackMinScore {
		s.logger.Debug("best fallback candidate below threshold",
			zap.String("food_id", best.id),
			zap.Int("score", best.result.Score),
			zap.Int("threshold", s.config.FallbackMinScore),
		)
		return nil, candidates, nil
	}
	return catalogResolution(best.food, best.result, StageCatalogFallback), candidates, nil
}

// matchSimilar is stage 4. Stage 3 candidates are widened with a search on the
// query's main ingredient before being offered to the resolver. Resolver failures
// fall through to stage 5; catalog read errors are returned.
// The resolver call is detached from ctx cancellation so an in-flight call is
// allowed to finish, but its answer is dropped when ctx is already done.
func (s *ResolutionService) matchSimilar(ctx context.Context, log *zap.Logger, q PreparedQuery, candidates []domain.FoodRecord) (*domain.Resolution, error) {
	if s.resolver == nil {
		return nil, nil
	}

	wider, err := s.catalog.SearchCandidates(ctx, domain.CandidateFilter{
		Terms: similarityTerms(q),
		Limit: s.config.MaxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("similarity candidate search: %w", err)
	}
	candidates = mergeCandidates(candidates, wider)
	if len(candidates) == 0 {
		return nil, nil
	}

	offered := compactCandidates(q, candidates, s.config.ResolverCandidates)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ResolverTimeout)
	defer cancel()

	foodID, err := s.resolver.ChooseBest(callCtx, q.Name.Full, q.Ingredients, offered)
	if ctx.Err() != nil {
		log.Info("request cancelled during similarity lookup; answer discarded")
		return nil, nil
	}
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", domain.ErrResolverTimeout, err)
		}
		log.Warn("similarity resolver failed", zap.Error(err))
		return nil, nil
	}
	foodID = strings.TrimSpace(foodID)
	if foodID == "" {
		return nil, nil
	}

	offeredIDs := make(map[string]bool, len(offered))
	for _, c := range offered {
		offeredIDs[c.FoodID] = true
	}
	if !offeredIDs[foodID] {
		log.Warn("similarity resolver chose an id that was not offered", zap.String("food_id", foodID))
		return nil, nil
	}

	for _, f := range candidates {
		if f.FoodID == foodID {
			return catalogResolution(f, s.scorer.ScorePrepared(q, f), StageSimilarity), nil
		}
	}
	return nil, nil
}

// create is stage 5. A uniqueness conflict means a concurrent request created the
// same record first; the owner's records are searched again to reuse it.
func (s *ResolutionService) create(ctx context.Context, log *zap.Logger, q PreparedQuery, req domain.ResolveRequest) (*domain.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve cancelled before create: %w", err)
	}

	now := s.now()
	food := &domain.ContributedFood{
		FoodID:      s.ids.New(req.OwnerUserID, now),
		OwnerUserID: req.OwnerUserID,
		DisplayName: strings.TrimSpace(req.FoodName),
		Category1:   strings.TrimSpace(req.CategoryHint),
		Ingredients: trimAll(req.Ingredients),
		UsageCount:  1,
		CreatedAt:   now,
	}
	if req.Nutrients != nil {
		food.Nutrients = *req.Nutrients
	}

	err := s.contributed.Create(ctx, food)
	if errors.Is(err, domain.ErrStorageConflict) {
		log.Info("contributed food created concurrently; re-matching")
		res, rerr := s.matchOwnContributed(ctx, q, req.OwnerUserID)
		if rerr != nil {
			return nil, rerr
		}
		if res == nil {
			return nil, domain.ErrStorageConflict
		}
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create contributed food: %w", err)
	}

	return contributedResolution(food, s.scorer.ScorePrepared(q, food), domain.SourceNew, StageCreate), nil
}

// candidateTerms are the strings a stage 3 candidate must share with the query
func candidateTerms(q PreparedQuery) []string {
	terms := []string{q.Name.Full}
	if q.Name.Compound {
		terms = append(terms, q.Name.Head, q.Name.Tail)
	}
	terms = append(terms, q.Ingredients...)

	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// similarityTerms are the full query name and its main ingredient: the first
// ingredient, or the first two characters of the name when none are given.
func similarityTerms(q PreparedQuery) []string {
	main := ""
	if len(q.Ingredients) > 0 {
		main = q.Ingredients[0]
	} else if r := []rune(q.Name.Full); len(r) > 2 {
		main = string(r[:2])
	}
	if main == "" || main == q.Name.Full {
		return []string{q.Name.Full}
	}
	return []string{q.Name.Full, main}
}

// mergeCandidates appends records of extra not already in base, keeping order
func mergeCandidates(base, extra []domain.FoodRecord) []domain.FoodRecord {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]domain.FoodRecord, 0, len(base)+len(extra))
	for _, list := range [][]domain.FoodRecord{base, extra} {
		for _, f := range list {
			if seen[f.FoodID] {
				continue
			}
			seen[f.FoodID] = true
			out = append(out, f)
		}
	}
	return out
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func catalogResolution(f domain.FoodRecord, r domain.ScoreResult, stage string) *domain.Resolution {
	return &domain.Resolution{
		FoodID:       f.FoodID,
		DisplayName:  f.DisplayName,
		Source:       domain.SourceCatalog,
		Score:        r.Score,
		MatchedRules: r.MatchedRules,
		Stage:        stage,
		Nutrients:    f.Nutrients,
	}
}

func contributedResolution(f *domain.ContributedFood, r domain.ScoreResult, source domain.Source, stage string) *domain.Resolution {
	return &domain.Resolution{
		FoodID:       f.FoodID,
		DisplayName:  f.DisplayName,
		Source:       source,
		Score:        r.Score,
		MatchedRules: r.MatchedRules,
		Stage:        stage,
		Nutrients:    f.Nutrients,
		Contributed:  f,
	}
}
