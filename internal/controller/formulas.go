package controller

// Params are the controller's tuning constants.
type Params struct {
	DefaultThreshold float64 `yaml:"default_threshold"` // msct on first run
	Gamma            float64 `yaml:"gamma"`             // threshold adaptation rate
	K                float64 `yaml:"k"`                 // percent rule gain

	WeightVolume        float64 `yaml:"weight_volume"`
	WeightHolders       float64 `yaml:"weight_holders"`
	WeightConcentration float64 `yaml:"weight_concentration"`

	PeriodDays int     `yaml:"period_days"`
	MinVolume  float64 `yaml:"min_volume"` // period volume at or below this yields no decision
}

// DefaultParams returns the production constants.
func DefaultParams() Params {
	return Params{
		DefaultThreshold:    0.5,
		Gamma:               0.2,
		K:                   0.6,
		WeightVolume:        0.5,
		WeightHolders:       0.3,
		WeightConcentration: 0.2,
		PeriodDays:          7,
		MinVolume:           125000,
	}
}

// VolumeRatio is v_t: period volume as a percentage of circulating supply.
func VolumeRatio(volume, circulating float64) float64 {
	if circulating == 0 {
		return 0
	}
	return volume / circulating * 100
}

// HolderGrowth is h_t: relative change of the holder count over one period.
func HolderGrowth(current, prior int64) float64 {
	if prior == 0 {
		return 0
	}
	return float64(current-prior) / float64(prior)
}

// Concentration is c_t: unique senders per active wallet.
func Concentration(senders, wallets int64) float64 {
	if wallets == 0 {
		return 0
	}
	return float64(senders) / float64(wallets)
}

// DemandIndex combines the three normalized signals.
func (p Params) DemandIndex(v, h, c float64) float64 {
	return p.WeightVolume*v + p.WeightHolders*h + p.WeightConcentration*c
}

// AdaptiveThreshold moves msct toward d. It is a fixed point when d == msct.
func (p Params) AdaptiveThreshold(d, msct float64) float64 {
	return msct * (1 + p.Gamma*(d-msct))
}

// HeatGap is the controller error term.
func HeatGap(d, msct float64) float64 {
	return d - msct
}

// PercentRule maps the heat gap to a fractional supply change.
func (p Params) PercentRule(gap, msct float64) float64 {
	if msct == 0 {
		return 0
	}
	return p.K * gap / msct
}
