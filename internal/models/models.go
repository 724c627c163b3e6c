package models

import (
	"strings"
	"time"
)

// Protocol identifies the transport scheme of a streaming destination. The
// scheme decides the container format the encoder muxes into.
type Protocol string

const (
	ProtocolRTMP  Protocol = "rtmp"
	ProtocolRTMPS Protocol = "rtmps"
	ProtocolSRT   Protocol = "srt"
	ProtocolUDP   Protocol = "udp"
)

// ParseProtocol maps a URL scheme to its Protocol, reporting whether the
// scheme is one the panel can push to.
func ParseProtocol(scheme string) (Protocol, bool) {
	switch Protocol(strings.ToLower(strings.TrimSpace(scheme))) {
	case ProtocolRTMP:
		return ProtocolRTMP, true
	case ProtocolRTMPS:
		return ProtocolRTMPS, true
	case ProtocolSRT:
		return ProtocolSRT, true
	case ProtocolUDP:
		return ProtocolUDP, true
	default:
		return "", false
	}
}

// Destination is a configured live-streaming endpoint. A destination receives
// output only while it is enabled and carries a non-empty stream key.
type Destination struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	BaseURL     string `json:"baseUrl"`
	StreamKey   string `json:"streamKey"`
	Enabled     bool   `json:"enabled"`
}

// Eligible reports whether the destination may appear in an output clause.
func (d Destination) Eligible() bool {
	return d.Enabled && strings.TrimSpace(d.StreamKey) != ""
}

// Target returns the full push URL, joining the base URL and stream key.
func (d Destination) Target() string {
	base := strings.TrimRight(strings.TrimSpace(d.BaseURL), "/")
	key := strings.TrimSpace(d.StreamKey)
	if key == "" {
		return base
	}
	return base + "/" + key
}

// InputType selects where the encoder reads from: a file (or category of
// files) under the media root, or a remote pull URL.
type InputType string

const (
	InputFile InputType = "file"
	InputURL  InputType = "url"
)

// StreamSettings is the persisted configuration object: the last-used
// encoding parameters and the destination list. It is the entirety of the
// panel's durable state.
type StreamSettings struct {
	InputType    InputType     `json:"inputType"`
	Category     string        `json:"category,omitempty"`
	VideoOrURL   string        `json:"videoOrUrl,omitempty"`
	Shuffle      bool          `json:"shuffle"`
	LoopForever  bool          `json:"loopForever"`
	Bitrate      string        `json:"bitrate"`
	Encoder      string        `json:"encoder"`
	Preset       string        `json:"preset"`
	Destinations []Destination `json:"destinations"`
}

// Clone performs a deep copy so an in-flight command build never observes a
// concurrent settings update.
func (s StreamSettings) Clone() StreamSettings {
	out := s
	out.Destinations = make([]Destination, len(s.Destinations))
	copy(out.Destinations, s.Destinations)
	return out
}

// EligibleDestinations returns the destinations that may receive output.
func (s StreamSettings) EligibleDestinations() []Destination {
	var out []Destination
	for _, d := range s.Destinations {
		if d.Eligible() {
			out = append(out, d)
		}
	}
	return out
}

// StreamStatus is the observer-facing snapshot of the active run.
type StreamStatus struct {
	Running          bool      `json:"running"`
	Restarts         uint      `json:"restarts"`
	UptimeSeconds    int64     `json:"uptimeSeconds"`
	LastError        string    `json:"lastError,omitempty"`
	ProcessID        int       `json:"processId,omitempty"`
	CurrentMedia     string    `json:"currentMedia,omitempty"`
	DestinationCount int       `json:"destinationCount"`
	StartedAt        time.Time `json:"startedAt,omitempty"`
}
