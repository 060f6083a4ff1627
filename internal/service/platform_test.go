package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/reelkitchen/backend/internal/types"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url      string
		platform string
	}{
		{"https://www.tiktok.com/@chef/video/7234", PlatformTikTok},
		{"https://vm.tiktok.com/ZMabc/", PlatformTikTok},
		{"https://www.instagram.com/reel/Cx1/", PlatformInstagram},
		{"https://m.youtube.com/watch?v=abc123", PlatformYouTube},
		{"https://youtu.be/abc123", PlatformYouTube},
		{"https://fb.watch/xyz/", PlatformFacebook},
		{"http://www.facebook.com/watch/?v=99", PlatformFacebook},
		{"https://pin.it/3aBc", PlatformPinterest},
		{"https://www.pinterest.com/pin/123/", PlatformPinterest},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := DetectPlatform(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.platform, got)
		})
	}
}

func TestDetectPlatformRejects(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://tiktok.com/x", "https://vimeo.com/123", "https://evil-tiktok.com/x"} {
		_, err := DetectPlatform(raw)
		assert.ErrorIs(t, err, types.ErrInvalidInput, raw)
	}
	assert.False(t, IsSupportedVideoURL("https://example.com"))
	assert.True(t, IsSupportedVideoURL("https://tiktok.com/@a/video/1"))
}

func TestNormalizeVideoURL(t *testing.T) {
	tests := map[string]string{
		"https://WWW.TikTok.com/@chef/video/7234/?is_from_webapp=1#top": "https://tiktok.com/@chef/video/7234",
		"https://m.youtube.com/watch?v=abc123&t=42s":                    "https://youtube.com/watch?v=abc123",
		"https://www.instagram.com/reel/Cx1/?igsh=zz":                   "https://instagram.com/reel/Cx1",
		"http://youtu.be/abc123":                                        "https://youtu.be/abc123",
	}
	for in, want := range tests {
		got, err := NormalizeVideoURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	a, _ := NormalizeVideoURL("https://www.tiktok.com/@chef/video/1")
	b, _ := NormalizeVideoURL("https://tiktok.com/@chef/video/1/")
	assert.Equal(t, a, b)
}
