package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"supply-controller/internal/chain"
)

func TestAdaptiveThreshold_FixedPoint(t *testing.T) {
	p := DefaultParams()
	for _, msct := range []float64{0.01, 0.5, 3, 250} {
		assert.Equal(t, msct, p.AdaptiveThreshold(msct, msct))
	}
}

func TestGuardedDivisions(t *testing.T) {
	p := DefaultParams()
	assert.Zero(t, p.PercentRule(0.4, 0))
	assert.Zero(t, Concentration(5, 0))
	assert.Zero(t, HolderGrowth(10, 0))
	assert.Zero(t, VolumeRatio(100, 0))
}

func TestScenario_ThresholdAndPercent(t *testing.T) {
	p := DefaultParams()
	d, msct := 0.6, 0.5

	newMsct := p.AdaptiveThreshold(d, msct)
	gap := HeatGap(d, msct)
	percent := p.PercentRule(gap, msct)

	assert.InDelta(t, 0.51, newMsct, 1e-12)
	assert.InDelta(t, 0.1, gap, 1e-12)
	assert.InDelta(t, 0.12, percent, 1e-12)
	assert.Equal(t, "120000000000000000", chain.ScaleDecision(percent).String())
}

func TestScenario_DemandFromVolume(t *testing.T) {
	p := DefaultParams()

	v := VolumeRatio(100_000, 200_000)
	assert.Equal(t, 50.0, v)
	assert.Equal(t, 25.0, p.DemandIndex(v, 0, 0))
}

func TestHolderGrowthAndConcentration(t *testing.T) {
	assert.Equal(t, 0.25, HolderGrowth(125, 100))
	assert.Equal(t, -0.5, HolderGrowth(50, 100))
	assert.Equal(t, 0.75, Concentration(3, 4))
}

func TestPhase(t *testing.T) {
	assert.Equal(t, 0.51, phaseInitial.percentDenominator(0.5, 0.51))
	assert.Equal(t, 0.5, phaseSteady.percentDenominator(0.5, 0.51))

	next, persist := phaseInitial.transition()
	assert.Equal(t, phaseSteady, next)
	assert.True(t, persist)

	next, persist = phaseSteady.transition()
	assert.Equal(t, phaseSteady, next)
	assert.False(t, persist)
}
