package cycle

import (
	"context"

	"perpmonitor/internal/calc"
	"perpmonitor/internal/database"
	"perpmonitor/internal/logger"
	"perpmonitor/internal/models"

	"go.uber.org/zap"
)

// EvaluatePortfolio feeds computed totals into the portfolio alerts'
// evaluated values. The generic enrichment pipeline leaves portfolio
// alerts at 0; this is the path that supplies their real values.
func EvaluatePortfolio(ctx context.Context, db *database.DB, totals models.Totals) error {
	all, err := db.GetActiveAlerts(ctx)
	if err != nil {
		return err
	}

	for _, a := range all {
		if a.AlertClass != models.ClassPortfolio {
			continue
		}

		var v float64
		switch a.AlertType {
		case models.AlertTypeTotalValue:
			v = totals.TotalValue
		case models.AlertTypeTotalSize:
			v = totals.TotalSize
		case models.AlertTypeAvgLeverage:
			v = totals.AvgLeverage
		case models.AlertTypeAvgTravelPercent:
			v = totals.AvgTravelPercent
		case models.AlertTypeValueToCollateralRatio:
			v = calc.ValueToCollateralRatio(totals)
		case models.AlertTypeTotalHeat:
			v = totals.AvgHeatIndex
		default:
			logger.Log.Warn("Portfolio alert with unmapped type",
				zap.String("alert_id", a.ID),
				zap.String("alert_type", string(a.AlertType)),
			)
			continue
		}

		if err := db.UpdateAlertEvaluatedValue(ctx, a.ID, &v); err != nil {
			logger.Log.Warn("Failed to persist portfolio evaluated value",
				zap.String("alert_id", a.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}
