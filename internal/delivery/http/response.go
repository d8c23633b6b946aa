package http

import "github.com/foodlens/backend/internal/domain"

// ResolveResponse is the JSON body of a successful resolve call
type ResolveResponse struct {
	FoodID       string           `json:"foodId"`
	DisplayName  string           `json:"displayName"`
	Source       domain.Source    `json:"source"`
	Created      bool             `json:"created"`
	Stage        string           `json:"stage"`
	Score        int              `json:"score"`
	MatchedRules []string         `json:"matchedRules"`
	UsageCount   int              `json:"usageCount,omitempty"`
	Nutrients    domain.Nutrients `json:"nutrients"`
}

// ErrorResponse is the JSON body of a failed call
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"requestId,omitempty"`
}

// NewResolveResponse maps a resolution to its wire form
func NewResolveResponse(res *domain.Resolution) ResolveResponse {
	out := ResolveResponse{
		FoodID:       res.FoodID,
		DisplayName:  res.DisplayName,
		Source:       res.Source,
		Created:      res.Created(),
		Stage:        res.Stage,
		Score:        res.Score,
		MatchedRules: res.MatchedRules,
		Nutrients:    res.Nutrients,
	}
	if out.MatchedRules == nil {
		out.MatchedRules = []string{}
	}
	if res.Contributed != nil {
		out.UsageCount = res.Contributed.UsageCount
	}
	return out
}
