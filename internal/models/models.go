package models

import (
	"time"
)

// AssetType identifies the underlying asset of a position or price row.
type AssetType string

const (
	AssetBTC   AssetType = "BTC"
	AssetETH   AssetType = "ETH"
	AssetSOL   AssetType = "SOL"
	AssetOther AssetType = "OTHER"
)

// PositionType is the direction of a perpetual position.
type PositionType string

const (
	PositionLong    PositionType = "LONG"
	PositionShort   PositionType = "SHORT"
	PositionUnknown PositionType = "UNKNOWN"
)

// PositionStatus tracks whether a position is still observed on the venue.
type PositionStatus string

const (
	PositionActive PositionStatus = "ACTIVE"
	PositionClosed PositionStatus = "CLOSED"
)

// AlertType enumerates the evaluated metrics. String values are lowercase
// and compared case-insensitively (see fuzzy matching in the alerts package).
type AlertType string

const (
	AlertTypePriceThreshold         AlertType = "pricethreshold"
	AlertTypeProfit                 AlertType = "profit"
	AlertTypeTravelPercentLiquid    AlertType = "travelpercentliquid"
	AlertTypeHeatIndex              AlertType = "heatindex"
	AlertTypeDeathNail              AlertType = "deathnail"
	AlertTypeTotalValue             AlertType = "totalvalue"
	AlertTypeTotalSize              AlertType = "totalsize"
	AlertTypeAvgLeverage            AlertType = "avgleverage"
	AlertTypeAvgTravelPercent       AlertType = "avgtravelpercent"
	AlertTypeValueToCollateralRatio AlertType = "valuetocollateralratio"
	AlertTypeTotalHeat              AlertType = "totalheat"
)

// AllAlertTypes lists every known alert type, used by fuzzy normalization.
var AllAlertTypes = []AlertType{
	AlertTypePriceThreshold,
	AlertTypeProfit,
	AlertTypeTravelPercentLiquid,
	AlertTypeHeatIndex,
	AlertTypeDeathNail,
	AlertTypeTotalValue,
	AlertTypeTotalSize,
	AlertTypeAvgLeverage,
	AlertTypeAvgTravelPercent,
	AlertTypeValueToCollateralRatio,
	AlertTypeTotalHeat,
}

// AlertClass groups alerts by their subject.
type AlertClass string

const (
	ClassPosition  AlertClass = "Position"
	ClassPortfolio AlertClass = "Portfolio"
	ClassMarket    AlertClass = "Market"
	ClassSystem    AlertClass = "System"
)

// Condition is the comparison direction for threshold evaluation.
type Condition string

const (
	ConditionAbove Condition = "ABOVE"
	ConditionBelow Condition = "BELOW"
)

// AlertLevel is the evaluated severity of an alert.
type AlertLevel string

const (
	LevelNormal AlertLevel = "Normal"
	LevelLow    AlertLevel = "Low"
	LevelMedium AlertLevel = "Medium"
	LevelHigh   AlertLevel = "High"
)

// ValidLevel reports whether s is one of the four severities.
func ValidLevel(s string) bool {
	switch AlertLevel(s) {
	case LevelNormal, LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

// AlertStatus is the lifecycle state of an alert record.
type AlertStatus string

const (
	StatusActive     AlertStatus = "Active"
	StatusSilenced   AlertStatus = "Silenced"
	StatusLiquidated AlertStatus = "Liquidated"
	StatusInactive   AlertStatus = "Inactive"
)

// NotificationType is the preferred channel recorded on an alert.
type NotificationType string

const (
	NotifyEmail     NotificationType = "Email"
	NotifySMS       NotificationType = "SMS"
	NotifyPhoneCall NotificationType = "PhoneCall"
)

// Position is one leveraged perpetual position pulled from the venue,
// enriched with derived risk metrics.
type Position struct {
	ID                  string         `json:"id" db:"id"`
	AssetType           AssetType      `json:"asset_type" db:"asset_type"`
	PositionType        PositionType   `json:"position_type" db:"position_type"`
	EntryPrice          float64        `json:"entry_price" db:"entry_price"`
	LiquidationPrice    float64        `json:"liquidation_price" db:"liquidation_price"`
	CurrentPrice        float64        `json:"current_price" db:"current_price"`
	Collateral          float64        `json:"collateral" db:"collateral"`
	Size                float64        `json:"size" db:"size"`
	Leverage            float64        `json:"leverage" db:"leverage"`
	Value               float64        `json:"value" db:"value"`
	TravelPercent       float64        `json:"travel_percent" db:"travel_percent"`
	LiquidationDistance float64        `json:"liquidation_distance" db:"liquidation_distance"`
	HeatIndex           float64        `json:"heat_index" db:"heat_index"`
	CurrentHeatIndex    *float64       `json:"current_heat_index,omitempty" db:"current_heat_index"`
	PnlAfterFeesUSD     float64        `json:"pnl_after_fees_usd" db:"pnl_after_fees_usd"`
	WalletName          string         `json:"wallet_name" db:"wallet_name"`
	HedgeBuddyID        *string        `json:"hedge_buddy_id,omitempty" db:"hedge_buddy_id"`
	Status              PositionStatus `json:"status" db:"status"`
	LastUpdated         time.Time      `json:"last_updated" db:"last_updated"`
}

// Price is a market price observation. The logical latest price per asset
// is the row with the greatest LastUpdateTime.
type Price struct {
	AssetType          AssetType `json:"asset_type" db:"asset_type"`
	CurrentPrice       float64   `json:"current_price" db:"current_price"`
	PreviousPrice      float64   `json:"previous_price" db:"previous_price"`
	Source             string    `json:"source" db:"source"`
	LastUpdateTime     time.Time `json:"last_update_time" db:"last_update_time"`
	PreviousUpdateTime time.Time `json:"previous_update_time" db:"previous_update_time"`
}

// Alert is one monitored condition over a position, the portfolio, the
// market, or the system itself.
type Alert struct {
	ID                  string           `json:"id" db:"id"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	AlertType           AlertType        `json:"alert_type" db:"alert_type"`
	AlertClass          AlertClass       `json:"alert_class" db:"alert_class"`
	AssetType           string           `json:"asset_type" db:"asset_type"`
	TriggerValue        float64          `json:"trigger_value" db:"trigger_value"`
	Condition           Condition        `json:"condition" db:"condition"`
	NotificationType    NotificationType `json:"notification_type" db:"notification_type"`
	Level               AlertLevel       `json:"level" db:"level"`
	LastTriggered       *time.Time       `json:"last_triggered,omitempty" db:"last_triggered"`
	Status              AlertStatus      `json:"status" db:"status"`
	Frequency           int              `json:"frequency" db:"frequency"`
	Counter             int              `json:"counter" db:"counter"`
	LiquidationDistance float64          `json:"liquidation_distance" db:"liquidation_distance"`
	TravelPercent       float64          `json:"travel_percent" db:"travel_percent"`
	LiquidationPrice    float64          `json:"liquidation_price" db:"liquidation_price"`
	Notes               string           `json:"notes" db:"notes"`
	Description         string           `json:"description" db:"description"`
	PositionReferenceID *string          `json:"position_reference_id,omitempty" db:"position_reference_id"`
	EvaluatedValue      *float64         `json:"evaluated_value,omitempty" db:"evaluated_value"`
	PositionType        string           `json:"position_type" db:"position_type"`
}

// AlertThreshold maps (alert_type, alert_class, condition) to severity
// boundaries. For ABOVE conditions low <= medium <= high; for BELOW the
// ordering is reversed and high is the most severe (smallest) value.
type AlertThreshold struct {
	ID           string     `json:"id" db:"id"`
	AlertType    AlertType  `json:"alert_type" db:"alert_type"`
	AlertClass   AlertClass `json:"alert_class" db:"alert_class"`
	MetricKey    string     `json:"metric_key" db:"metric_key"`
	Condition    Condition  `json:"condition" db:"condition"`
	Low          float64    `json:"low" db:"low"`
	Medium       float64    `json:"medium" db:"medium"`
	High         float64    `json:"high" db:"high"`
	Enabled      bool       `json:"enabled" db:"enabled"`
	LastModified time.Time  `json:"last_modified" db:"last_modified"`
	LowNotify    string     `json:"low_notify" db:"low_notify"`
	MediumNotify string     `json:"medium_notify" db:"medium_notify"`
	HighNotify   string     `json:"high_notify" db:"high_notify"`
}

// Totals is the aggregate view over active positions.
type Totals struct {
	TotalSize        float64 `json:"total_size"`
	TotalValue       float64 `json:"total_value"`
	TotalCollateral  float64 `json:"total_collateral"`
	AvgLeverage      float64 `json:"avg_leverage"`
	AvgTravelPercent float64 `json:"avg_travel_percent"`
	AvgHeatIndex     float64 `json:"avg_heat_index"`
}

// PortfolioSnapshot is one appended row of the totals time series.
type PortfolioSnapshot struct {
	ID           string    `json:"id" db:"id"`
	SnapshotTime time.Time `json:"snapshot_time" db:"snapshot_time"`
	Totals
}

// Ledger status values recorded per monitor run.
const (
	LedgerSuccess = "Success"
	LedgerError   = "Error"
)

// LedgerEntry is one append-only monitor ledger record.
type LedgerEntry struct {
	ID          string    `json:"id" db:"id"`
	MonitorName string    `json:"monitor_name" db:"monitor_name"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	Status      string    `json:"status" db:"status"`
	Metadata    string    `json:"metadata" db:"metadata"`
}

// MonitorStatus is the freshness view derived from the last ledger entry.
// AgeSeconds is 9999 when no entry exists.
type MonitorStatus struct {
	LastTimestamp *time.Time `json:"last_timestamp"`
	AgeSeconds    int        `json:"age_seconds"`
	Status        string     `json:"status,omitempty"`
}

// Hedge groups the positions sharing one hedge_buddy_id.
type Hedge struct {
	ID             string    `json:"id"`
	PositionIDs    []string  `json:"position_ids"`
	TotalLongSize  float64   `json:"total_long_size"`
	TotalShortSize float64   `json:"total_short_size"`
	LongHeatIndex  float64   `json:"long_heat_index"`
	ShortHeatIndex float64   `json:"short_heat_index"`
	TotalHeatIndex float64   `json:"total_heat_index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Notes          string    `json:"notes"`
}

// Wallet is a monitored venue wallet. PrivateKey is stored encrypted at
// rest; see the wallets package.
type Wallet struct {
	Name          string  `json:"name" db:"name"`
	PublicAddress string  `json:"public_address" db:"public_address"`
	PrivateKey    string  `json:"private_key,omitempty" db:"private_key"`
	Balance       float64 `json:"balance" db:"balance"`
}
