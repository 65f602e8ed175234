package device

import "pixelbatch/internal/convert"

// Preset is a quality/dimension ceiling for one device tier.
type Preset struct {
	Name      string
	Quality   int
	MaxWidth  int
	MaxHeight int
}

// The three tiers, worst connection/hardware first.
var (
	PresetDataSaver = Preset{Name: "data-saver", Quality: 60, MaxWidth: 1200, MaxHeight: 1200}
	PresetMobile    = Preset{Name: "mobile", Quality: 75, MaxWidth: 1920, MaxHeight: 1920}
	PresetStandard  = Preset{Name: "standard", Quality: 85, MaxWidth: 2560, MaxHeight: 2560}
)

// PresetFor selects the tier for a capability profile.
func PresetFor(info Info) Preset {
	switch {
	case info.IsLowEndDevice || info.ConnectionSpeed == SpeedSlow:
		return PresetDataSaver
	case info.ConnectionSpeed == SpeedMedium:
		return PresetMobile
	default:
		return PresetStandard
	}
}

// MobileOptimizedOptions clamps base options to the ceiling of the preset
// selected for info. Desktop profiles pass through untouched. The result
// never exceeds the caller's own settings: clamping only lowers.
func MobileOptimizedOptions(base convert.Options, info Info) convert.Options {
	if !info.IsMobile {
		return base
	}
	p := PresetFor(info)

	out := base
	if out.Quality == 0 || out.Quality > p.Quality {
		out.Quality = p.Quality
	}
	out.MaxWidth = clampBound(base.MaxWidth, p.MaxWidth)
	out.MaxHeight = clampBound(base.MaxHeight, p.MaxHeight)
	return out
}

// clampBound merges a caller bound with a preset ceiling. A zero caller
// bound means unbounded, so the ceiling applies directly.
func clampBound(base, ceiling int) int {
	if base == 0 || base > ceiling {
		return ceiling
	}
	return base
}
