package domain

import (
	"strings"
	"time"
)

// Source identifies which store a resolution came from
type Source string

const (
	SourceCatalog     Source = "catalog"
	SourceContributed Source = "contributed"
	SourceNew         Source = "new"
)

// Nutrients is the nutrient payload carried by catalog and contributed foods.
// The matching engine never reads it; values are passed through unchanged.
type Nutrients struct {
	Unit           string  `json:"unit,omitempty"`
	ReferenceValue float64 `json:"referenceValue,omitempty"` // grams
	Kcal           float64 `json:"kcal"`
	Protein        float64 `json:"protein"` // grams
	Carb           float64 `json:"carb"`    // grams
	Fat            float64 `json:"fat"`     // grams
	Fiber          float64 `json:"fiber,omitempty"`
	VitaminA       float64 `json:"vitaminA,omitempty"` // μg
	VitaminC       float64 `json:"vitaminC,omitempty"` // mg
	Calcium        float64 `json:"calcium,omitempty"`
	Iron           float64 `json:"iron,omitempty"`
	Potassium      float64 `json:"potassium,omitempty"`
	Magnesium      float64 `json:"magnesium,omitempty"`
	SaturatedFat   float64 `json:"saturatedFat,omitempty"`
	AddedSugar     float64 `json:"addedSugar,omitempty"`
	Sodium         float64 `json:"sodium,omitempty"` // mg
	Cholesterol    float64 `json:"cholesterol,omitempty"`
	TransFat       float64 `json:"transFat,omitempty"`
}

// MatchFields is the read-only view the scoring engine needs from a food
type MatchFields struct {
	FoodID             string
	DisplayName        string
	RepresentativeName string
	Category1          string
	Category2          string
}

// Matchable is implemented by every food shape the scoring engine can rank
type Matchable interface {
	MatchFields() MatchFields
}

// FoodRecord is an entry of the externally curated catalog
type FoodRecord struct {
	FoodID             string    `json:"foodId"`
	DisplayName        string    `json:"displayName"`
	Category1          string    `json:"category1,omitempty"`
	Category2          string    `json:"category2,omitempty"`
	RepresentativeName string    `json:"representativeName,omitempty"`
	Nutrients          Nutrients `json:"nutrients"`
}

// MatchFields implements Matchable
func (f FoodRecord) MatchFields() MatchFields {
	return MatchFields{
		FoodID:             f.FoodID,
		DisplayName:        f.DisplayName,
		RepresentativeName: f.RepresentativeName,
		Category1:          f.Category1,
		Category2:          f.Category2,
	}
}

// ContributedFood is a user-submitted food tracked with a usage counter
type ContributedFood struct {
	FoodID             string     `json:"foodId"`
	OwnerUserID        int64      `json:"ownerUserId"`
	DisplayName        string     `json:"displayName"`
	Category1          string     `json:"category1,omitempty"`
	Category2          string     `json:"category2,omitempty"`
	RepresentativeName string     `json:"representativeName,omitempty"`
	Ingredients        []string   `json:"ingredients,omitempty"`
	Nutrients          Nutrients  `json:"nutrients"`
	UsageCount         int        `json:"usageCount"`
	IsApproved         bool       `json:"isApproved"`
	ApprovedAt         *time.Time `json:"approvedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// MatchFields implements Matchable
func (f ContributedFood) MatchFields() MatchFields {
	return MatchFields{
		FoodID:             f.FoodID,
		DisplayName:        f.DisplayName,
		RepresentativeName: f.RepresentativeName,
		Category1:          f.Category1,
		Category2:          f.Category2,
	}
}

// MatchQuery is what a caller knows about the food it wants resolved
type MatchQuery struct {
	FoodName     string   `json:"foodName"`
	Ingredients  []string `json:"ingredients,omitempty"`
	CategoryHint string   `json:"categoryHint,omitempty"`
}

// ResolveRequest is the input of a single resolution
type ResolveRequest struct {
	FoodName     string     `json:"foodName" binding:"required"`
	Ingredients  []string   `json:"ingredients,omitempty"`
	CategoryHint string     `json:"categoryHint,omitempty"`
	OwnerUserID  int64      `json:"-"`
	Nutrients    *Nutrients `json:"nutrients,omitempty"` // estimate used only when a new record is created
}

// Query returns the matching-relevant part of the request
func (r ResolveRequest) Query() MatchQuery {
	return MatchQuery{
		FoodName:     r.FoodName,
		Ingredients:  r.Ingredients,
		CategoryHint: r.CategoryHint,
	}
}

// Validate rejects requests whose food name is blank
func (r ResolveRequest) Validate() error {
	if strings.Join(strings.Fields(r.FoodName), "") == "" {
		return ErrInvalidInput
	}
	return nil
}

// ScoreResult is the outcome of scoring one candidate
type ScoreResult struct {
	Score        int      `json:"score"`
	MatchedRules []string `json:"matchedRules,omitempty"`
}

// Resolution is the single food reference a resolve call produces
type Resolution struct {
	FoodID       string           `json:"foodId"`
	DisplayName  string           `json:"displayName"`
	Source       Source           `json:"source"`
	Score        int              `json:"score"`
	MatchedRules []string         `json:"matchedRules,omitempty"`
	Stage        string           `json:"stage"`
	Nutrients    Nutrients        `json:"nutrients"`
	Contributed  *ContributedFood `json:"contributed,omitempty"`
}

// Created reports whether the resolution produced a new contributed record
func (r *Resolution) Created() bool {
	return r.Source == SourceNew
}
