package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateBitrate(t *testing.T) {
	valid := []string{"4500k", "800", "1k", "60000k"}
	for _, bitrate := range valid {
		if err := ValidateBitrate(bitrate); err != nil {
			t.Errorf("ValidateBitrate(%q) = %v, want nil", bitrate, err)
		}
	}

	invalid := []string{"", "k", "4500K", "4.5M", "4500kb", "-800", "800 k", "fastest"}
	for _, bitrate := range invalid {
		err := ValidateBitrate(bitrate)
		if err == nil {
			t.Errorf("ValidateBitrate(%q) = nil, want error", bitrate)
			continue
		}
		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
		require.Equal(t, "bitrate", validation.Field)
	}
}

func TestValidateEncoder(t *testing.T) {
	for _, encoder := range []string{"libx264", "libx265", "h264_vaapi", "hevc_vaapi", "h264_nvenc"} {
		require.NoError(t, ValidateEncoder(encoder))
	}
	for _, encoder := range []string{"", "libx264 ", "LIBX264", "mpeg2video", "copy", "libx264; rm -rf /"} {
		require.Error(t, ValidateEncoder(encoder), "encoder %q", encoder)
	}
}

func TestValidateDestinationURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "rtmp", url: "rtmp://live.example.com/app"},
		{name: "rtmps", url: "rtmps://live.example.com/app"},
		{name: "srt", url: "srt://relay.example.com:9000"},
		{name: "udp", url: "udp://239.0.0.1:1234"},
		{name: "http rejected", url: "http://example.com/app", wantErr: true},
		{name: "missing scheme", url: "live.example.com/app", wantErr: true},
		{name: "missing host", url: "rtmp://", wantErr: true},
		{name: "empty", url: "", wantErr: true},
		{name: "file scheme", url: "file:///etc/passwd", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDestinationURL(tc.url)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{name: "plain file", filename: "intro.mp4"},
		{name: "nested", filename: "music/sessions/live.mkv"},
		{name: "empty", filename: "", wantErr: true},
		{name: "absolute", filename: "/etc/passwd", wantErr: true},
		{name: "parent segment", filename: "../secrets.mp4", wantErr: true},
		{name: "nested parent segment", filename: "music/../../escape.mp4", wantErr: true},
		{name: "wrong extension", filename: "notes.txt", wantErr: true},
		{name: "no extension", filename: "video", wantErr: true},
		{name: "uppercase extension ok", filename: "INTRO.MP4"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFilename(tc.filename)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPlayableExtension(t *testing.T) {
	require.True(t, PlayableExtension("a.mp4"))
	require.True(t, PlayableExtension("a.WebM"))
	require.True(t, PlayableExtension("dir/a.ts"))
	require.False(t, PlayableExtension("a.srt"))
	require.False(t, PlayableExtension("a"))
}
