package reporting

import (
	"time"

	"supply-controller/internal/controller"
	"supply-controller/internal/domain"
)

// Report is the state of the controller and its recent inputs.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	FromDay     string
	ToDay       string

	// Daily records, ordered by day ASC
	Days []*domain.DailyMetrics

	Summary Summary
	State   ControllerState

	// Preview is what the controller would decide now. It is never persisted.
	Preview *controller.Decision
}

// Summary totals the reported days.
type Summary struct {
	DayCount           int
	TotalVolume        float64
	Minted             float64
	Burned             float64
	Contraction        float64
	LatestHolderCount  int64
	TotalSupply        float64
	CirculatingBalance float64
	TreasuryBalance    float64
}

// ControllerState is the persisted controller memory.
type ControllerState struct {
	HasBookmark bool
	Bookmark    uint64
	Threshold   float64
	Beginning   bool
	OpenDay     string
}
