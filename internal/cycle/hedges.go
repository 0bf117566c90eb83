package cycle

import (
	"context"
	"time"

	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LinkHedges pairs opposing positions within the same wallet and asset
// under a shared hedge id. Groups already linked are left untouched, so
// repeated runs are idempotent.
func LinkHedges(ctx context.Context, db *database.DB) (int, error) {
	positions, err := db.GetActivePositions(ctx)
	if err != nil {
		return 0, err
	}

	type groupKey struct {
		wallet string
		asset  models.AssetType
	}
	groups := make(map[groupKey][]*models.Position)
	for _, p := range positions {
		k := groupKey{wallet: p.WalletName, asset: p.AssetType}
		groups[k] = append(groups[k], p)
	}

	linked := 0
	for k, group := range groups {
		var hasLong, hasShort bool
		existing := ""
		allLinked := true
		for _, p := range group {
			switch p.PositionType {
			case models.PositionLong:
				hasLong = true
			case models.PositionShort:
				hasShort = true
			}
			if p.HedgeBuddyID == nil {
				allLinked = false
			} else if existing == "" {
				existing = *p.HedgeBuddyID
			}
		}
		if !hasLong || !hasShort || allLinked {
			continue
		}

		hedgeID := existing
		if hedgeID == "" {
			hedgeID = uuid.New().String()
		}
		for _, p := range group {
			if p.HedgeBuddyID != nil && *p.HedgeBuddyID == hedgeID {
				continue
			}
			if err := db.SetHedgeBuddy(ctx, p.ID, &hedgeID); err != nil {
				continue
			}
			linked++
		}
		logger.Log.Info("Linked hedge group",
			zap.String("wallet", k.wallet),
			zap.String("asset", string(k.asset)),
			zap.String("hedge_id", hedgeID),
		)
	}
	return linked, nil
}

// BuildHedges aggregates linked positions into hedge summaries: total
// long/short size and the heat split per side.
func BuildHedges(ctx context.Context, db *database.DB) ([]*models.Hedge, error) {
	positions, err := db.GetActivePositions(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Hedge)
	var order []string
	now := time.Now().UTC()

	for _, p := range positions {
		if p.HedgeBuddyID == nil {
			continue
		}
		id := *p.HedgeBuddyID
		h, ok := byID[id]
		if !ok {
			h = &models.Hedge{ID: id, CreatedAt: now, UpdatedAt: now}
			byID[id] = h
			order = append(order, id)
		}

		h.PositionIDs = append(h.PositionIDs, p.ID)
		switch p.PositionType {
		case models.PositionLong:
			h.TotalLongSize += p.Size
			h.LongHeatIndex += p.HeatIndex
		case models.PositionShort:
			h.TotalShortSize += p.Size
			h.ShortHeatIndex += p.HeatIndex
		}
		h.TotalHeatIndex = h.LongHeatIndex + h.ShortHeatIndex
	}

	hedges := make([]*models.Hedge, 0, len(order))
	for _, id := range order {
		hedges = append(hedges, byID[id])
	}
	return hedges, nil
}
