package application_test

import (
	"github.com/shopspring/decimal"
	"github.com/viralforge/escrow-milestone-ledger/internal/matching"
)

func matchingProfile() matching.CreatorProfile {
	return matching.CreatorProfile{
		CreatorID:      "creator_1",
		Followers:      20000,
		EngagementRate: 0.05,
		Rate:           decimal.NewFromInt(500),
		Platforms:      []string{"tiktok"},
		ContentTypes:   []string{"video"},
		Location:       "US",
	}
}

func matchingCampaigns() []matching.Campaign {
	return []matching.Campaign{
		{CampaignID: "cmp_photo", ContentTypes: []string{"photo"}, Locations: []string{"UK"}},
		{CampaignID: "cmp_video", ContentTypes: []string{"video"}, Locations: []string{"US"}, BudgetMax: decimal.NewFromInt(600)},
	}
}
