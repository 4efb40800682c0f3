package config

import "wallwatch/internal/wall"

// ToDetectorConfig overlays non-zero YAML fields onto
// wall.DefaultDetectorConfig, so an empty detector: section in the config
// file yields the original's documented defaults.
func ToDetectorConfig(y DetectorYAML) wall.DetectorConfig {
	cfg := wall.DefaultDetectorConfig()

	if y.MaxSymbols != 0 {
		cfg.MaxSymbols = y.MaxSymbols
	}
	if y.Depth != 0 {
		cfg.Depth = y.Depth
	}
	if y.DistanceTicks != 0 {
		cfg.DistanceTicks = y.DistanceTicks
	}
	if y.KRatio != 0 {
		cfg.KRatio = y.KRatio
	}
	if y.AbsQtyThreshold != 0 {
		cfg.AbsQtyThreshold = y.AbsQtyThreshold
	}
	if y.DwellSeconds != 0 {
		cfg.DwellSeconds = y.DwellSeconds
	}
	if y.RepositionWindowSeconds != 0 {
		cfg.RepositionWindowSeconds = y.RepositionWindowSeconds
	}
	if y.RepositionTicks != 0 {
		cfg.RepositionTicks = y.RepositionTicks
	}
	if y.RepositionSimilarPct != 0 {
		cfg.RepositionSimilarPct = y.RepositionSimilarPct
	}
	if y.RepositionMax != 0 {
		cfg.RepositionMax = y.RepositionMax
	}
	cfg.TeleportReset = y.TeleportReset
	if y.TradesWindowSeconds != 0 {
		cfg.TradesWindowSeconds = y.TradesWindowSeconds
	}
	if y.Emin != 0 {
		cfg.Emin = y.Emin
	}
	if y.Amin != 0 {
		cfg.Amin = y.Amin
	}
	if y.CancelShareMax != 0 {
		cfg.CancelShareMax = y.CancelShareMax
	}
	if y.ConsumingDropPct != 0 {
		cfg.ConsumingDropPct = y.ConsumingDropPct
	}
	if y.ConsumingWindowSeconds != 0 {
		cfg.ConsumingWindowSeconds = y.ConsumingWindowSeconds
	}
	if y.MinExecConfirm != 0 {
		cfg.MinExecConfirm = y.MinExecConfirm
	}
	if y.CooldownConfirmedSeconds != 0 {
		cfg.CooldownConfirmedSeconds = y.CooldownConfirmedSeconds
	}
	if y.CooldownConsumingSeconds != 0 {
		cfg.CooldownConsumingSeconds = y.CooldownConsumingSeconds
	}
	if y.VRefLevels != 0 {
		cfg.VRefLevels = y.VRefLevels
	}
	return cfg
}
