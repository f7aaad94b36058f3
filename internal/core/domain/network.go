package domain

import "time"

// EffectiveType classifies link quality the way browser connection APIs
// report it. The probe adapter derives it from measured round-trip time.
const (
	EffectiveType4G     = "4g"
	EffectiveType3G     = "3g"
	EffectiveType2G     = "2g"
	EffectiveTypeSlow2G = "slow-2g"
)

// NetworkState is a point-in-time connectivity snapshot.
type NetworkState struct {
	Online        bool          `json:"online"`
	EffectiveType string        `json:"effective_type,omitempty"`
	DownlinkMbps  float64       `json:"downlink_mbps,omitempty"`
	RTT           time.Duration `json:"rtt,omitempty"`
}

// Poor reports whether the link is classified as low-bandwidth or
// high-latency. A poor signal makes the executor shrink batches and
// stretch timeouts and retry delays.
func (s NetworkState) Poor() bool {
	if !s.Online {
		return false
	}
	return s.EffectiveType == EffectiveType2G || s.EffectiveType == EffectiveTypeSlow2G
}
