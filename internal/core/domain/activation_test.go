package domain

import (
	"strings"
	"testing"
	"time"
)

func TestActivationCode_BindAppendsAndActivates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code := ActivationCode{Code: "ABCD-1234-EFGH-5678", Status: CodeStatusUnused}

	changed := code.Bind(DeviceBinding{DeviceID: "u1", DeviceType: DeviceTypeMobile, UserAgent: "ua"}, now)
	if !changed {
		t.Fatalf("expected bind to change the record")
	}
	if code.Status != CodeStatusActive {
		t.Fatalf("expected status active, got %s", code.Status)
	}
	if len(code.Devices) != 1 || code.Devices[0].DeviceID != "u1" {
		t.Fatalf("expected single binding for u1, got %+v", code.Devices)
	}
	if !code.LastUpdated.Equal(now) {
		t.Fatalf("expected last updated %v, got %v", now, code.LastUpdated)
	}
}

func TestActivationCode_BindIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	code := ActivationCode{Code: "ABCD-1234", Status: CodeStatusUnused}

	if !code.Bind(DeviceBinding{DeviceID: "u1"}, now) {
		t.Fatalf("first bind should change the record")
	}
	if code.Bind(DeviceBinding{DeviceID: "u1"}, now.Add(time.Minute)) {
		t.Fatalf("second bind for the same device should be a no-op")
	}
	if len(code.Devices) != 1 {
		t.Fatalf("expected exactly one binding, got %d", len(code.Devices))
	}
}

func TestActivationCode_BindTruncatesUserAgent(t *testing.T) {
	code := ActivationCode{Code: "ABCD-1234"}
	long := strings.Repeat("x", MaxUserAgentLength*2)

	code.Bind(DeviceBinding{DeviceID: "u1", UserAgent: long}, time.Now().UTC())

	if got := len(code.Devices[0].UserAgent); got != MaxUserAgentLength {
		t.Fatalf("expected user agent truncated to %d, got %d", MaxUserAgentLength, got)
	}
}

func TestActivationCode_AtCapacity(t *testing.T) {
	code := ActivationCode{Code: "ABCD-1234", MaxDevices: 2}
	if code.AtCapacity() {
		t.Fatalf("empty code should not be at capacity")
	}

	now := time.Now().UTC()
	code.Bind(DeviceBinding{DeviceID: "u1"}, now)
	code.Bind(DeviceBinding{DeviceID: "u2"}, now)

	if !code.AtCapacity() {
		t.Fatalf("expected capacity reached at %d devices", code.MaxDevices)
	}
}

func TestActivationCode_EffectiveMaxDevicesDefault(t *testing.T) {
	code := ActivationCode{Code: "ABCD-1234"}
	if got := code.EffectiveMaxDevices(); got != DefaultMaxDevices {
		t.Fatalf("expected default %d, got %d", DefaultMaxDevices, got)
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  abcd-1234 "); got != "ABCD-1234" {
		t.Fatalf("unexpected normalised code %q", got)
	}
}

func TestAccessToken_Validity(t *testing.T) {
	now := time.Now().UTC()
	token := AccessToken{
		UserID:    "u1",
		IssuedAt:  now,
		ExpiresAt: now.Add(AccessTokenTTL),
		Value:     "abcdef0123456789",
	}

	if got := token.ExpiresAt.Sub(token.IssuedAt); got != AccessTokenTTL {
		t.Fatalf("expected validity window %v, got %v", AccessTokenTTL, got)
	}
	if !token.IsValid(now) {
		t.Fatalf("fresh token should be valid")
	}
	if token.IsValid(token.ExpiresAt) {
		t.Fatalf("token at its expiry instant should be invalid")
	}
	if (AccessToken{ExpiresAt: now.Add(time.Hour)}).IsValid(now) {
		t.Fatalf("token without a value should be invalid")
	}
}

func TestDetectDeviceInfo(t *testing.T) {
	info := DetectDeviceInfo("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", "iOS")
	if !info.IsMobile {
		t.Fatalf("expected iPhone user agent to be detected as mobile")
	}
	if info.Type() != DeviceTypeMobile {
		t.Fatalf("expected mobile device type, got %s", info.Type())
	}

	desktop := DetectDeviceInfo("Mozilla/5.0 (X11; Linux x86_64)", "Linux")
	if desktop.IsMobile {
		t.Fatalf("expected desktop user agent")
	}
}
