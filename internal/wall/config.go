package wall

// DetectorConfig holds every threshold governing candidate selection,
// confirmation and consumption. Zero values are invalid; use
// DefaultDetectorConfig as a base.
type DetectorConfig struct {
	MaxSymbols int
	Depth      int

	DistanceTicks int
	KRatio        float64
	AbsQtyThreshold float64

	DwellSeconds           float64
	RepositionWindowSeconds float64
	RepositionTicks        int
	RepositionSimilarPct   float64
	RepositionMax          int
	TeleportReset          bool

	TradesWindowSeconds float64
	Emin                float64
	Amin                float64
	CancelShareMax      float64

	ConsumingDropPct       float64
	ConsumingWindowSeconds float64
	MinExecConfirm         float64

	CooldownConfirmedSeconds float64
	CooldownConsumingSeconds float64

	VRefLevels int
}

// DefaultDetectorConfig mirrors the original implementation's defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MaxSymbols:              10,
		Depth:                   20,
		DistanceTicks:           10,
		KRatio:                  10.0,
		AbsQtyThreshold:         0.0,
		DwellSeconds:            30.0,
		RepositionWindowSeconds: 3.0,
		RepositionTicks:         1,
		RepositionSimilarPct:    0.2,
		RepositionMax:           1,
		TeleportReset:           false,
		TradesWindowSeconds:     20.0,
		Emin:                    200.0,
		Amin:                    0.2,
		CancelShareMax:          0.7,
		ConsumingDropPct:        0.2,
		ConsumingWindowSeconds:  8.0,
		MinExecConfirm:          50.0,
		CooldownConfirmedSeconds: 120.0,
		CooldownConsumingSeconds: 45.0,
		VRefLevels:              10,
	}
}
