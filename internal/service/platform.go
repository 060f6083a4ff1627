package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pageza/reelkitchen/backend/internal/types"
)

// Supported video platforms
const (
	PlatformTikTok    = "tiktok"
	PlatformInstagram = "instagram"
	PlatformYouTube   = "youtube"
	PlatformFacebook  = "facebook"
	PlatformPinterest = "pinterest"
)

// ErrUnsupportedPlatform is returned for URLs outside the supported platforms
var ErrUnsupportedPlatform = fmt.Errorf("%w: unsupported video platform", types.ErrInvalidInput)

var platformHosts = map[string]string{
	"tiktok.com":    PlatformTikTok,
	"vm.tiktok.com": PlatformTikTok,
	"vt.tiktok.com": PlatformTikTok,
	"instagram.com": PlatformInstagram,
	"instagr.am":    PlatformInstagram,
	"youtube.com":   PlatformYouTube,
	"youtu.be":      PlatformYouTube,
	"facebook.com":  PlatformFacebook,
	"fb.watch":      PlatformFacebook,
	"fb.com":        PlatformFacebook,
	"pinterest.com": PlatformPinterest,
	"pin.it":        PlatformPinterest,
}

// DetectPlatform identifies the social platform a video URL belongs to
func DetectPlatform(raw string) (string, error) {
	u, err := parseVideoURL(raw)
	if err != nil {
		return "", err
	}
	if p, ok := platformHosts[canonicalHost(u.Hostname())]; ok {
		return p, nil
	}
	return "", ErrUnsupportedPlatform
}

// NormalizeVideoURL returns a canonical form of the URL for duplicate detection
func NormalizeVideoURL(raw string) (string, error) {
	u, err := parseVideoURL(raw)
	if err != nil {
		return "", err
	}
	host := canonicalHost(u.Hostname())
	platform, ok := platformHosts[host]
	if !ok {
		return "", ErrUnsupportedPlatform
	}

	query := ""
	if platform == PlatformYouTube {
		if v := u.Query().Get("v"); v != "" {
			query = "?v=" + url.QueryEscape(v)
		}
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return "https://" + host + path + query, nil
}

func parseVideoURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: video url is required", types.ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: malformed video url", types.ErrInvalidInput)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: video url must be http or https", types.ErrInvalidInput)
	}
	return u, nil
}

func canonicalHost(host string) string {
	host = strings.ToLower(host)
	for _, prefix := range []string{"www.", "m.", "mobile."} {
		host = strings.TrimPrefix(host, prefix)
	}
	return host
}

// IsSupportedVideoURL reports whether DetectPlatform accepts the URL
func IsSupportedVideoURL(raw string) bool {
	_, err := DetectPlatform(raw)
	return err == nil
}
