// Package ffmpeg builds the external encoder invocation from validated panel
// settings. It never executes the command; the supervisor owns the process.
package ffmpeg

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"relaycast/internal/media"
	"relaycast/internal/models"
)

// HardwareUnavailableError names the device a hardware encoder needs but
// which is not present on this host.
type HardwareUnavailableError struct {
	Encoder string
	Device  string
}

func (e *HardwareUnavailableError) Error() string {
	return fmt.Sprintf("encoder %s requires device %s which is not available", e.Encoder, e.Device)
}

// InputKind distinguishes the three input shapes the builder understands.
type InputKind int

const (
	// InputMediaFile is a single local file played once.
	InputMediaFile InputKind = iota
	// InputRemoteURL is a pull URL (srt/rtmp/udp/http source).
	InputRemoteURL
	// InputConcatManifest is a playlist manifest in concat syntax.
	InputConcatManifest
)

// InputSpec describes where the encoder reads from.
type InputSpec struct {
	Kind InputKind
	// Path is a local file path, a remote URL, or a manifest path depending
	// on Kind.
	Path string
}

type encoderFamily int

const (
	familySoftware encoderFamily = iota
	familyVAAPI
	familyNVENC
)

var encoderFamilies = map[string]encoderFamily{
	"libx264":    familySoftware,
	"libx265":    familySoftware,
	"h264_vaapi": familyVAAPI,
	"hevc_vaapi": familyVAAPI,
	"h264_nvenc": familyNVENC,
}

var softwarePresets = map[string]struct{}{
	"ultrafast": {}, "superfast": {}, "veryfast": {}, "faster": {}, "fast": {},
	"medium": {}, "slow": {}, "slower": {}, "veryslow": {},
}

var nvencPresets = map[string]struct{}{
	"p1": {}, "p2": {}, "p3": {}, "p4": {}, "p5": {}, "p6": {}, "p7": {},
}

// vaapi has no named presets; compression_level stands in for the
// quality/speed knob.
var vaapiCompressionLevels = map[string]string{
	"fast":   "7",
	"medium": "4",
	"slow":   "2",
}

const (
	defaultSoftwarePreset = "veryfast"
	defaultNVENCPreset    = "p4"
	defaultVAAPIPreset    = "medium"

	defaultVAAPIDevice = "/dev/dri/renderD128"
	defaultNVENCDevice = "/dev/nvidia0"

	// Keyframe every two seconds at 30fps keeps RTMP ingest servers happy.
	keyframeInterval = "60"

	loudnormFilter = "loudnorm=I=-16:LRA=11:TP=-1.5"
)

// Builder parameterizes command construction. The stat hook exists so tests
// can simulate hardware presence.
type Builder struct {
	VAAPIDevice string
	NVENCDevice string

	logger *slog.Logger
	stat   func(string) error
}

// NewBuilder returns a Builder with default device paths.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		VAAPIDevice: defaultVAAPIDevice,
		NVENCDevice: defaultNVENCDevice,
		logger:      logger,
		stat: func(path string) error {
			_, err := os.Stat(path)
			return err
		},
	}
}

// BuildRequest carries the validated inputs for one invocation.
type BuildRequest struct {
	Encoder      string
	Preset       string
	Bitrate      string
	Input        InputSpec
	Destinations []models.Destination
}

// Build validates the request and produces the full argument vector: global
// flags, input clause, then one fully-parameterized output clause per
// eligible destination. The container format follows the destination scheme
// (rtmp/rtmps mux to flv, srt/udp to mpegts).
func (b *Builder) Build(req BuildRequest) ([]string, error) {
	if err := media.ValidateBitrate(req.Bitrate); err != nil {
		return nil, err
	}
	if err := media.ValidateEncoder(req.Encoder); err != nil {
		return nil, err
	}
	family := encoderFamilies[req.Encoder]
	if err := b.checkHardware(req.Encoder, family); err != nil {
		return nil, err
	}
	eligible := eligibleDestinations(req.Destinations)
	if len(eligible) == 0 {
		return nil, &media.ValidationError{Field: "destinations", Reason: "no enabled destination with a stream key"}
	}

	preset := b.normalizePreset(req.Encoder, family, req.Preset)
	maxrate, bufsize := rateControl(req.Bitrate)

	args := []string{"-hide_banner", "-loglevel", "info", "-re"}
	args = append(args, b.preInputArgs(family)...)
	args = append(args, inputArgs(req.Input)...)

	for _, dest := range eligible {
		args = append(args, b.videoArgs(req.Encoder, family, preset, req.Bitrate, maxrate, bufsize)...)
		args = append(args, audioArgs()...)
		args = append(args, "-f", muxFormat(dest), dest.Target())
	}
	return args, nil
}

func (b *Builder) checkHardware(encoder string, family encoderFamily) error {
	switch family {
	case familyVAAPI:
		if err := b.stat(b.VAAPIDevice); err != nil {
			return &HardwareUnavailableError{Encoder: encoder, Device: b.VAAPIDevice}
		}
	case familyNVENC:
		if err := b.stat(b.NVENCDevice); err != nil {
			return &HardwareUnavailableError{Encoder: encoder, Device: b.NVENCDevice}
		}
	}
	return nil
}

// normalizePreset clamps the requested preset to the encoder family's
// enumerated set. Unrecognized values are substituted with the family
// default rather than rejected: the preset is a quality/speed knob, not a
// correctness concern. The substitution is logged so typos stay visible.
func (b *Builder) normalizePreset(encoder string, family encoderFamily, preset string) string {
	requested := strings.ToLower(strings.TrimSpace(preset))
	var normalized string
	switch family {
	case familyNVENC:
		normalized = defaultNVENCPreset
		if _, ok := nvencPresets[requested]; ok {
			normalized = requested
		}
	case familyVAAPI:
		normalized = defaultVAAPIPreset
		if _, ok := vaapiCompressionLevels[requested]; ok {
			normalized = requested
		}
	default:
		normalized = defaultSoftwarePreset
		if _, ok := softwarePresets[requested]; ok {
			normalized = requested
		}
	}
	if requested != "" && requested != normalized {
		b.logger.Warn("unrecognized preset substituted",
			"encoder", encoder,
			"requested", requested,
			"using", normalized,
		)
	}
	return normalized
}

// rateControl derives maxrate and a buffer of twice the numeric bitrate,
// preserving the k suffix.
func rateControl(bitrate string) (maxrate, bufsize string) {
	numeric := strings.TrimSuffix(bitrate, "k")
	value, err := strconv.Atoi(numeric)
	if err != nil {
		return bitrate, bitrate
	}
	suffix := ""
	if strings.HasSuffix(bitrate, "k") {
		suffix = "k"
	}
	return bitrate, fmt.Sprintf("%d%s", value*2, suffix)
}

func (b *Builder) preInputArgs(family encoderFamily) []string {
	if family == familyVAAPI {
		return []string{"-init_hw_device", "vaapi=va:" + b.VAAPIDevice, "-filter_hw_device", "va"}
	}
	return nil
}

func inputArgs(input InputSpec) []string {
	switch input.Kind {
	case InputConcatManifest:
		return []string{"-f", "concat", "-safe", "0", "-i", input.Path}
	default:
		return []string{"-i", input.Path}
	}
}

func (b *Builder) videoArgs(encoder string, family encoderFamily, preset, bitrate, maxrate, bufsize string) []string {
	args := []string{"-c:v", encoder}
	switch family {
	case familyVAAPI:
		args = append(args, "-vf", "format=nv12,hwupload", "-compression_level", vaapiCompressionLevels[preset])
	default:
		args = append(args, "-preset", preset, "-pix_fmt", "yuv420p")
	}
	args = append(args,
		"-b:v", bitrate,
		"-maxrate", maxrate,
		"-bufsize", bufsize,
		"-g", keyframeInterval,
	)
	return args
}

func audioArgs() []string {
	return []string{
		"-c:a", "aac",
		"-b:a", "160k",
		"-ar", "44100",
		"-ac", "2",
		"-af", loudnormFilter,
	}
}

func muxFormat(dest models.Destination) string {
	parsed, err := url.Parse(dest.BaseURL)
	if err != nil {
		return "flv"
	}
	switch protocol, _ := models.ParseProtocol(parsed.Scheme); protocol {
	case models.ProtocolSRT, models.ProtocolUDP:
		return "mpegts"
	default:
		return "flv"
	}
}

func eligibleDestinations(destinations []models.Destination) []models.Destination {
	var out []models.Destination
	for _, d := range destinations {
		if d.Eligible() {
			out = append(out, d)
		}
	}
	return out
}
