package sgp41

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Algorithm selects the signal a GasIndex processes.
type Algorithm int

const (
	VOC Algorithm = iota
	NOx
)

func (a Algorithm) String() string {
	if a == NOx {
		return "NOx"
	}
	return "VOC"
}

// ErrTuning is returned for tuning parameters outside the supported range.
var ErrTuning = errors.New("sgp41: tuning parameter out of range")

// DefaultSamplingInterval is the sampling period in seconds the index
// constants are calibrated for.
const DefaultSamplingInterval float32 = 1

const (
	initialBlackout      = 45
	indexGain            = 230
	srawStdInitial       = 50
	srawStdBonusVOC      = 220
	srawStdNOx           = 2000
	tauMeanHours         = 12
	tauVarianceHours     = 12
	tauInitialMeanVOC    = 20
	tauInitialMeanNOx    = 1200
	initDurationMeanVOC  = 3600 * 0.75
	initDurationMeanNOx  = 3600 * 4.75
	initTransitionMean   = 0.01
	tauInitialVariance   = 2500
	initDurationVarVOC   = 3600 * 1.45
	initDurationVarNOx   = 3600 * 5.70
	initTransitionVar    = 0.01
	gatingThresholdVOC   = 340
	gatingThresholdNOx   = 30
	gatingThresholdInit  = 510
	gatingTransition     = 0.09
	gatingMaxMinutesVOC  = 60 * 3
	gatingMaxMinutesNOx  = 60 * 12
	gatingMaxRatio       = 0.3
	sigmoidL             = 500
	sigmoidKVOC          = -0.0065
	sigmoidX0VOC         = 213
	sigmoidKNOx          = -0.0101
	sigmoidX0NOx         = 614
	indexOffsetVOC       = 100
	indexOffsetNOx       = 1
	lpTauFast            = 20
	lpTauSlow            = 500
	lpAlpha              = -0.2
	srawMinimumVOC       = 20000
	srawMinimumNOx       = 10000
	gammaScaling         = 64
	additionalGammaScale = 8
	fix16Max             = 32767
)

// Tuning holds the adjustable parameters of the index algorithm. For NOx
// LearningTimeGainHours must stay 12 and StdInitial must stay 50.
type Tuning struct {
	IndexOffset              int32
	LearningTimeOffsetHours  int32
	LearningTimeGainHours    int32
	GatingMaxDurationMinutes int32
	StdInitial               int32
	GainFactor               int32
}

// GasIndex turns raw SGP41 ticks into a VOC index (1..500, baseline 100) or
// a NOx index (1..500, baseline 1). Process must be called once per
// sampling interval. A GasIndex is not safe for concurrent use.
type GasIndex struct {
	algorithm        Algorithm
	samplingInterval float32

	indexOffset      float32
	srawMinimum      int32
	gatingMaxMinutes float32
	initDurationMean float32
	initDurationVar  float32
	gatingThreshold  float32
	indexGain        float32
	tauMeanHours     float32
	tauVarianceHours float32
	srawStdInitial   float32
	uptime           float32
	sraw             float32
	index            float32
	est              estimator
	moxStd, moxMean  float32
	sigK, sigX0      float32
	sigOffsetDefault float32
	lpA1, lpA2       float32
	lpX1, lpX2, lpX3 float32
	lpInitialized    bool
}

type estimator struct {
	initialized       bool
	mean, offset, std float32

	gammaMean, gammaVariance               float32
	gammaInitialMean, gammaInitialVariance float32
	gatedMean, gatedVariance               float32

	uptimeGamma, uptimeGating float32
	gatingMinutes             float32

	sigK, sigX0 float32
}

// NewVOCIndex creates a VOC index for samples taken every samplingInterval
// seconds. A non-positive interval selects DefaultSamplingInterval.
func NewVOCIndex(samplingInterval float32) *GasIndex {
	return newGasIndex(VOC, samplingInterval)
}

// NewNOxIndex creates a NOx index for samples taken every samplingInterval
// seconds.
func NewNOxIndex(samplingInterval float32) *GasIndex {
	return newGasIndex(NOx, samplingInterval)
}

func newGasIndex(a Algorithm, samplingInterval float32) *GasIndex {
	if samplingInterval <= 0 {
		samplingInterval = DefaultSamplingInterval
	}
	g := &GasIndex{
		algorithm:        a,
		samplingInterval: samplingInterval,
		indexGain:        indexGain,
		tauMeanHours:     tauMeanHours,
		tauVarianceHours: tauVarianceHours,
		srawStdInitial:   srawStdInitial,
	}
	if a == NOx {
		g.indexOffset = indexOffsetNOx
		g.srawMinimum = srawMinimumNOx
		g.gatingMaxMinutes = gatingMaxMinutesNOx
		g.initDurationMean = initDurationMeanNOx
		g.initDurationVar = initDurationVarNOx
		g.gatingThreshold = gatingThresholdNOx
	} else {
		g.indexOffset = indexOffsetVOC
		g.srawMinimum = srawMinimumVOC
		g.gatingMaxMinutes = gatingMaxMinutesVOC
		g.initDurationMean = initDurationMeanVOC
		g.initDurationVar = initDurationVarVOC
		g.gatingThreshold = gatingThresholdVOC
	}
	g.Reset()
	return g
}

// Algorithm returns the signal this index processes.
func (g *GasIndex) Algorithm() Algorithm { return g.algorithm }

// Reset restarts learning and the initial blackout. Tuning is kept.
func (g *GasIndex) Reset() {
	g.uptime = 0
	g.sraw = 0
	g.index = 0
	g.init()
}

// Tuning returns the current tuning parameters.
func (g *GasIndex) Tuning() Tuning {
	return Tuning{
		IndexOffset:              int32(g.indexOffset),
		LearningTimeOffsetHours:  int32(g.tauMeanHours),
		LearningTimeGainHours:    int32(g.tauVarianceHours),
		GatingMaxDurationMinutes: int32(g.gatingMaxMinutes),
		StdInitial:               int32(g.srawStdInitial),
		GainFactor:               int32(g.indexGain),
	}
}

// SetTuning validates and applies t. Learning restarts without a new blackout.
func (g *GasIndex) SetTuning(t Tuning) error {
	checks := []struct {
		name     string
		v, lo, hi int32
	}{
		{"index offset", t.IndexOffset, 1, 250},
		{"learning time offset", t.LearningTimeOffsetHours, 1, 1000},
		{"learning time gain", t.LearningTimeGainHours, 1, 1000},
		{"gating max duration", t.GatingMaxDurationMinutes, 0, 3000},
		{"std initial", t.StdInitial, 10, 5000},
		{"gain factor", t.GainFactor, 1, 1000},
	}
	for _, c := range checks {
		if c.v < c.lo || c.v > c.hi {
			return errors.Wrapf(ErrTuning, "%s %s %d not in [%d, %d]", g.algorithm, c.name, c.v, c.lo, c.hi)
		}
	}
	if g.algorithm == NOx && (t.LearningTimeGainHours != tauVarianceHours || t.StdInitial != srawStdInitial) {
		return errors.Wrapf(ErrTuning, "NOx learning time gain must be %d and std initial %d", tauVarianceHours, srawStdInitial)
	}

	g.indexOffset = float32(t.IndexOffset)
	g.tauMeanHours = float32(t.LearningTimeOffsetHours)
	g.tauVarianceHours = float32(t.LearningTimeGainHours)
	g.gatingMaxMinutes = float32(t.GatingMaxDurationMinutes)
	g.srawStdInitial = float32(t.StdInitial)
	g.indexGain = float32(t.GainFactor)
	g.init()
	return nil
}

// SetLearningTimeOffset changes only the learning time offset in hours.
func (g *GasIndex) SetLearningTimeOffset(hours int32) error {
	t := g.Tuning()
	t.LearningTimeOffsetHours = hours
	return g.SetTuning(t)
}

// Process feeds one raw sample and returns the index. It returns 0 during
// the initial blackout. Samples outside (0, 65000) keep the previous raw
// value.
func (g *GasIndex) Process(sraw int32) int32 {
	if g.uptime <= initialBlackout {
		g.uptime += g.samplingInterval
		return int32(g.index + 0.5)
	}

	if sraw > 0 && sraw < 65000 {
		if sraw < g.srawMinimum+1 {
			sraw = g.srawMinimum + 1
		} else if sraw > g.srawMinimum+fix16Max {
			sraw = g.srawMinimum + fix16Max
		}
		g.sraw = float32(sraw - g.srawMinimum)
	}

	if g.algorithm == VOC || g.est.initialized {
		g.index = g.sigmoidScaled(g.mox(g.sraw))
	} else {
		g.index = g.indexOffset
	}
	g.index = g.lowpass(g.index)
	if g.index < 0.5 {
		g.index = 0.5
	}
	if g.sraw > 0 {
		g.estimate(g.sraw)
		g.moxStd, g.moxMean = g.est.std, g.est.mean+g.est.offset
	}
	return int32(g.index + 0.5)
}

func (g *GasIndex) init() {
	g.initEstimator()
	g.moxStd, g.moxMean = g.est.std, g.est.mean+g.est.offset
	if g.algorithm == NOx {
		g.sigX0, g.sigK, g.sigOffsetDefault = sigmoidX0NOx, sigmoidKNOx, indexOffsetNOx
	} else {
		g.sigX0, g.sigK, g.sigOffsetDefault = sigmoidX0VOC, sigmoidKVOC, indexOffsetVOC
	}
	g.lpA1 = g.samplingInterval / (lpTauFast + g.samplingInterval)
	g.lpA2 = g.samplingInterval / (lpTauSlow + g.samplingInterval)
	g.lpInitialized = false
}

func (g *GasIndex) initEstimator() {
	hours := g.samplingInterval / 3600
	tauInitialMean := float32(tauInitialMeanVOC)
	if g.algorithm == NOx {
		tauInitialMean = tauInitialMeanNOx
	}
	g.est = estimator{
		std:                  g.srawStdInitial,
		gammaMean:            additionalGammaScale * gammaScaling * hours / (g.tauMeanHours + hours),
		gammaVariance:        gammaScaling * hours / (g.tauVarianceHours + hours),
		gammaInitialMean:     additionalGammaScale * gammaScaling * g.samplingInterval / (tauInitialMean + g.samplingInterval),
		gammaInitialVariance: gammaScaling * g.samplingInterval / (tauInitialVariance + g.samplingInterval),
	}
}

func (e *estimator) sigmoid(sample float32) float32 {
	x := e.sigK * (sample - e.sigX0)
	switch {
	case x < -50:
		return 1
	case x > 50:
		return 0
	}
	return 1 / (1 + math32.Exp(x))
}

func (g *GasIndex) gamma() {
	e := &g.est
	limit := fix16Max - g.samplingInterval
	if e.uptimeGamma < limit {
		e.uptimeGamma += g.samplingInterval
	}
	if e.uptimeGating < limit {
		e.uptimeGating += g.samplingInterval
	}

	e.sigX0, e.sigK = g.initDurationMean, initTransitionMean
	sigGammaMean := e.sigmoid(e.uptimeGamma)
	gammaMean := e.gammaMean + (e.gammaInitialMean-e.gammaMean)*sigGammaMean
	thresholdMean := g.gatingThreshold + (gatingThresholdInit-g.gatingThreshold)*e.sigmoid(e.uptimeGating)
	e.sigX0, e.sigK = thresholdMean, gatingTransition
	sigGatingMean := e.sigmoid(g.index)
	e.gatedMean = sigGatingMean * gammaMean

	e.sigX0, e.sigK = g.initDurationVar, initTransitionVar
	sigGammaVar := e.sigmoid(e.uptimeGamma)
	gammaVar := e.gammaVariance + (e.gammaInitialVariance-e.gammaVariance)*(sigGammaVar-sigGammaMean)
	thresholdVar := g.gatingThreshold + (gatingThresholdInit-g.gatingThreshold)*e.sigmoid(e.uptimeGating)
	e.sigX0, e.sigK = thresholdVar, gatingTransition
	e.gatedVariance = e.sigmoid(g.index) * gammaVar

	e.gatingMinutes += g.samplingInterval / 60 * ((1-sigGatingMean)*(1+gatingMaxRatio) - gatingMaxRatio)
	if e.gatingMinutes < 0 {
		e.gatingMinutes = 0
	}
	if e.gatingMinutes > g.gatingMaxMinutes {
		e.uptimeGating = 0
	}
}

func (g *GasIndex) estimate(sraw float32) {
	e := &g.est
	if !e.initialized {
		e.initialized = true
		e.offset = sraw
		e.mean = 0
		return
	}
	if e.mean >= 100 || e.mean <= -100 {
		e.offset += e.mean
		e.mean = 0
	}
	sraw -= e.offset
	g.gamma()

	delta := (sraw - e.mean) / gammaScaling
	c := e.std + math32.Abs(delta)
	scale := float32(1)
	if c > 1440 {
		scale = (c / 1440) * (c / 1440)
	}
	e.std = math32.Sqrt(scale*(gammaScaling-e.gatedVariance)) *
		math32.Sqrt(e.std*(e.std/(gammaScaling*scale))+e.gatedVariance*delta/scale*delta)
	e.mean += e.gatedMean * delta / additionalGammaScale
}

func (g *GasIndex) mox(sraw float32) float32 {
	if g.algorithm == NOx {
		return (sraw - g.moxMean) / srawStdNOx * g.indexGain
	}
	return (sraw - g.moxMean) / -(g.moxStd + srawStdBonusVOC) * g.indexGain
}

func (g *GasIndex) sigmoidScaled(sample float32) float32 {
	x := g.sigK * (sample - g.sigX0)
	switch {
	case x < -50:
		return sigmoidL
	case x > 50:
		return 0
	}
	if sample < 0 {
		return g.indexOffset / g.sigOffsetDefault * (sigmoidL / (1 + math32.Exp(x)))
	}
	var shift float32
	if g.sigOffsetDefault == 1 {
		shift = 500.0 / 499.0 * (1 - g.indexOffset)
	} else {
		shift = (sigmoidL - 5*g.indexOffset) / 4
	}
	return (sigmoidL+shift)/(1+math32.Exp(x)) - shift
}

func (g *GasIndex) lowpass(sample float32) float32 {
	if !g.lpInitialized {
		g.lpX1, g.lpX2, g.lpX3 = sample, sample, sample
		g.lpInitialized = true
	}
	g.lpX1 = (1-g.lpA1)*g.lpX1 + g.lpA1*sample
	g.lpX2 = (1-g.lpA2)*g.lpX2 + g.lpA2*sample
	f := math32.Exp(lpAlpha * math32.Abs(g.lpX1-g.lpX2))
	tau := (lpTauSlow-lpTauFast)*f + lpTauFast
	a3 := g.samplingInterval / (g.samplingInterval + tau)
	g.lpX3 = (1-a3)*g.lpX3 + a3*sample
	return g.lpX3
}
