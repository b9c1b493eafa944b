package application

import (
	"context"
	"strings"

	"github.com/viralforge/escrow-milestone-ledger/internal/domain"
	"github.com/viralforge/escrow-milestone-ledger/internal/matching"
)

func (s *Service) RankCampaigns(_ context.Context, actor Actor, profile matching.CreatorProfile, campaigns []matching.Campaign, limit int) ([]matching.Score, error) {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return nil, domain.ErrUnauthorized
	}
	if len(campaigns) == 0 {
		return nil, domain.ErrInvalidInput
	}
	for _, c := range campaigns {
		if strings.TrimSpace(c.CampaignID) == "" {
			return nil, domain.ErrInvalidInput
		}
	}
	return matching.Rank(s.scorer, campaigns, profile, limit), nil
}
