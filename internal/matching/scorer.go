// Package matching ranks campaigns for a creator through a pluggable Scorer.
// The bundled WeightedScorer is deterministic: equal inputs always produce
// equal scores and rankings.
package matching

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type Campaign struct {
	CampaignID           string
	BudgetMin            decimal.Decimal
	BudgetMax            decimal.Decimal
	MinFollowers         int64
	MaxFollowers         int64
	TargetEngagementRate float64
	ContentTypes         []string
	Platforms            []string
	Locations            []string
	Tags                 []string
}

type CreatorProfile struct {
	CreatorID      string
	Followers      int64
	EngagementRate float64
	Rate           decimal.Decimal
	ContentTypes   []string
	Platforms      []string
	Location       string
	Tags           []string
}

// Score holds sub-scores in [0, 100].
type Score struct {
	CampaignID string
	Overall    float64
	Audience   float64
	Content    float64
	Budget     float64
	Engagement float64
	Location   float64
}

type Scorer interface {
	Score(campaign Campaign, profile CreatorProfile) Score
}

type Weights struct {
	Audience   float64
	Content    float64
	Budget     float64
	Engagement float64
	Location   float64
}

func DefaultWeights() Weights {
	return Weights{Audience: 0.25, Content: 0.25, Budget: 0.2, Engagement: 0.2, Location: 0.1}
}

type WeightedScorer struct {
	weights Weights
}

func NewWeightedScorer(weights Weights) *WeightedScorer {
	if weights.Audience+weights.Content+weights.Budget+weights.Engagement+weights.Location <= 0 {
		weights = DefaultWeights()
	}
	return &WeightedScorer{weights: weights}
}

func (s *WeightedScorer) Score(c Campaign, p CreatorProfile) Score {
	out := Score{
		CampaignID: c.CampaignID,
		Audience:   audienceScore(c, p),
		Content:    contentScore(c, p),
		Budget:     budgetScore(c, p),
		Engagement: engagementScore(c, p),
		Location:   locationScore(c, p),
	}
	w := s.weights
	total := w.Audience + w.Content + w.Budget + w.Engagement + w.Location
	weighted := out.Audience*w.Audience + out.Content*w.Content + out.Budget*w.Budget +
		out.Engagement*w.Engagement + out.Location*w.Location
	out.Overall = round1(weighted / total)
	return out
}

// Rank scores every campaign and orders them best first. Ties are broken by
// campaign id. A non-positive limit returns all scores.
func Rank(scorer Scorer, campaigns []Campaign, profile CreatorProfile, limit int) []Score {
	scores := make([]Score, 0, len(campaigns))
	for _, c := range campaigns {
		scores = append(scores, scorer.Score(c, profile))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Overall != scores[j].Overall {
			return scores[i].Overall > scores[j].Overall
		}
		return scores[i].CampaignID < scores[j].CampaignID
	})
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}

func audienceScore(c Campaign, p CreatorProfile) float64 {
	switch {
	case c.MinFollowers > 0 && p.Followers < c.MinFollowers:
		return round1(100 * float64(p.Followers) / float64(c.MinFollowers))
	case c.MaxFollowers > 0 && p.Followers > c.MaxFollowers:
		return round1(100 * float64(c.MaxFollowers) / float64(p.Followers))
	default:
		return 100
	}
}

func contentScore(c Campaign, p CreatorProfile) float64 {
	wanted := toSet(c.ContentTypes, c.Platforms, c.Tags)
	if len(wanted) == 0 {
		return 100
	}
	offered := toSet(p.ContentTypes, p.Platforms, p.Tags)
	hits := 0
	for k := range wanted {
		if _, ok := offered[k]; ok {
			hits++
		}
	}
	return round1(100 * float64(hits) / float64(len(wanted)))
}

func budgetScore(c Campaign, p CreatorProfile) float64 {
	if !c.BudgetMax.IsPositive() || !p.Rate.IsPositive() || p.Rate.LessThanOrEqual(c.BudgetMax) {
		return 100
	}
	ratio, _ := c.BudgetMax.Div(p.Rate).Float64()
	return round1(100 * ratio)
}

func engagementScore(c Campaign, p CreatorProfile) float64 {
	if c.TargetEngagementRate <= 0 {
		return 100
	}
	return round1(100 * math.Min(1, math.Max(0, p.EngagementRate)/c.TargetEngagementRate))
}

func locationScore(c Campaign, p CreatorProfile) float64 {
	if len(c.Locations) == 0 {
		return 100
	}
	loc := strings.ToLower(strings.TrimSpace(p.Location))
	for _, l := range c.Locations {
		if strings.ToLower(strings.TrimSpace(l)) == loc && loc != "" {
			return 100
		}
	}
	return 0
}

func toSet(groups ...[]string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, g := range groups {
		for _, v := range g {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				out[v] = struct{}{}
			}
		}
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
