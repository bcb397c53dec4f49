package domain

import (
	"strings"
	"time"
)

// Identity is an anonymous per-device identity issued by the identity provider.
type Identity struct {
	UserID    string
	CreatedAt time.Time
}

// DeviceInfo captures the client environment at session creation.
type DeviceInfo struct {
	UserAgent string `json:"user_agent"`
	Platform  string `json:"platform"`
	IsMobile  bool   `json:"is_mobile"`
}

// Type maps the device info onto the binding device type.
func (d DeviceInfo) Type() DeviceType {
	if d.IsMobile {
		return DeviceTypeMobile
	}
	return DeviceTypeDesktop
}

// DetectDeviceInfo derives device info from a raw user agent string.
func DetectDeviceInfo(userAgent, platform string) DeviceInfo {
	ua := strings.ToLower(userAgent)
	mobile := strings.Contains(ua, "mobile") ||
		strings.Contains(ua, "android") ||
		strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "ipad")
	return DeviceInfo{
		UserAgent: TruncateUserAgent(userAgent),
		Platform:  platform,
		IsMobile:  mobile,
	}
}

// ReaderSession is the durable per-device session record.
// A fallback session carries no identity token but still grants a degraded
// session that survives token-fetch failure.
type ReaderSession struct {
	UserID        string     `json:"user_id"`
	Token         string     `json:"token,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	DeviceInfo    DeviceInfo `json:"device_info"`
	Fallback      bool       `json:"fallback,omitempty"`
	FallbackError string     `json:"error,omitempty"`
}

// IsAuthenticated reports whether the session carries an identity.
func (s ReaderSession) IsAuthenticated() bool {
	return s.UserID != ""
}

// IsDegraded reports whether the session was persisted without an identity token.
func (s ReaderSession) IsDegraded() bool {
	return s.Fallback
}
