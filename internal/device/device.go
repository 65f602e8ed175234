package device

import "strings"

// Connection speed classes derived from network signals.
const (
	SpeedSlow    = "slow"
	SpeedMedium  = "medium"
	SpeedFast    = "fast"
	SpeedUnknown = "unknown"
)

// Signals are the raw environment readings capability detection consumes.
// Every field is optional; the zero value means the signal is unavailable.
type Signals struct {
	DeviceMemoryGB      float64 // reported memory hint, 0 = unknown
	HardwareConcurrency int     // reported CPU core count, 0 = unknown
	ConnectionType      string  // effective type: "slow-2g", "2g", "3g", "4g"
	DownlinkMbps        float64 // reported downlink, 0 = unknown
	UserAgent           string
}

// Info is the resolved device-capability profile.
type Info struct {
	IsMobile        bool
	IsLowEndDevice  bool
	ConnectionSpeed string // one of the Speed* constants
	MemoryGB        float64
	CPUCores        int
}

// User-agent substrings that mark known-weak platforms when the hardware
// signals are missing.
var weakPlatforms = []string{
	"android 4", "android 5", "android 6",
	"iphone os 9", "iphone os 10",
	"opera mini", "ucbrowser", "kaios",
}

var mobileMarkers = []string{"mobile", "android", "iphone", "ipad", "ipod"}

// DetectCapabilities resolves a capability profile from raw signals.
// Fallback order for the low-end classification: device memory, then
// hardware concurrency, then user-agent heuristics, then assume capable.
func DetectCapabilities(s Signals) Info {
	ua := strings.ToLower(s.UserAgent)

	info := Info{
		MemoryGB:        s.DeviceMemoryGB,
		CPUCores:        s.HardwareConcurrency,
		ConnectionSpeed: classifyConnection(s),
	}

	for _, marker := range mobileMarkers {
		if strings.Contains(ua, marker) {
			info.IsMobile = true
			break
		}
	}

	switch {
	case s.DeviceMemoryGB > 0:
		info.IsLowEndDevice = s.DeviceMemoryGB <= 2
	case s.HardwareConcurrency > 0:
		info.IsLowEndDevice = s.HardwareConcurrency <= 2
	default:
		for _, p := range weakPlatforms {
			if strings.Contains(ua, p) {
				info.IsLowEndDevice = true
				break
			}
		}
	}

	// Hardware signals override the UA heuristic only one way: a weak
	// reading always wins.
	if s.DeviceMemoryGB > 0 && s.DeviceMemoryGB <= 2 {
		info.IsLowEndDevice = true
	}
	if s.HardwareConcurrency > 0 && s.HardwareConcurrency <= 2 {
		info.IsLowEndDevice = true
	}

	return info
}

func classifyConnection(s Signals) string {
	switch strings.ToLower(s.ConnectionType) {
	case "slow-2g", "2g":
		return SpeedSlow
	case "3g":
		return SpeedMedium
	case "4g":
		return SpeedFast
	}
	if s.DownlinkMbps > 0 {
		switch {
		case s.DownlinkMbps < 1.5:
			return SpeedSlow
		case s.DownlinkMbps < 5:
			return SpeedMedium
		default:
			return SpeedFast
		}
	}
	return SpeedUnknown
}
