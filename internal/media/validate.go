package media

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"relaycast/internal/models"
)

// ValidationError reports rejected user input with an actionable reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PathTraversalError reports a path that escapes the configured media root.
// It is always a hard rejection, never soft-corrected.
type PathTraversalError struct {
	Path string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("path %q escapes the media root", e.Path)
}

var bitratePattern = regexp.MustCompile(`^\d+k?$`)

// Encoders the command builder knows how to parameterize.
var allowedEncoders = map[string]struct{}{
	"libx264":    {},
	"libx265":    {},
	"h264_vaapi": {},
	"hevc_vaapi": {},
	"h264_nvenc": {},
}

// Extensions the library treats as playable video.
var allowedExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
	".flv":  {},
	".ts":   {},
	".webm": {},
}

// ValidateBitrate accepts values matching ^\d+k?$ (e.g. "4500k", "800").
func ValidateBitrate(bitrate string) error {
	if !bitratePattern.MatchString(bitrate) {
		return &ValidationError{Field: "bitrate", Reason: fmt.Sprintf("%q must match a number with optional k suffix", bitrate)}
	}
	return nil
}

// ValidateEncoder accepts only encoders on the fixed allow-list.
func ValidateEncoder(encoder string) error {
	if _, ok := allowedEncoders[encoder]; !ok {
		return &ValidationError{Field: "encoder", Reason: fmt.Sprintf("%q is not a supported encoder", encoder)}
	}
	return nil
}

// ValidateDestinationURL requires an rtmp, rtmps, srt, or udp scheme with a
// non-empty host.
func ValidateDestinationURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return &ValidationError{Field: "destination url", Reason: err.Error()}
	}
	if _, ok := models.ParseProtocol(parsed.Scheme); !ok {
		return &ValidationError{Field: "destination url", Reason: fmt.Sprintf("scheme %q is not rtmp, rtmps, srt, or udp", parsed.Scheme)}
	}
	if parsed.Host == "" {
		return &ValidationError{Field: "destination url", Reason: "missing host"}
	}
	return nil
}

// ValidateFilename rejects absolute paths, parent-directory segments, and
// non-video extensions.
func ValidateFilename(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return &ValidationError{Field: "filename", Reason: "must not be empty"}
	}
	if filepath.IsAbs(trimmed) || strings.HasPrefix(filepath.ToSlash(trimmed), "/") {
		return &ValidationError{Field: "filename", Reason: "must be relative"}
	}
	for _, segment := range strings.Split(filepath.ToSlash(trimmed), "/") {
		if segment == ".." {
			return &ValidationError{Field: "filename", Reason: "must not contain parent directory segments"}
		}
	}
	if !PlayableExtension(trimmed) {
		return &ValidationError{Field: "filename", Reason: fmt.Sprintf("%q does not have a playable video extension", trimmed)}
	}
	return nil
}

// PlayableExtension reports whether the path carries an allow-listed video
// extension.
func PlayableExtension(path string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
