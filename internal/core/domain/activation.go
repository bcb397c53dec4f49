package domain

import (
	"strings"
	"time"
)

// CodeStatus enumerates the lifecycle states of an activation code.
type CodeStatus string

const (
	CodeStatusUnused CodeStatus = "unused"
	CodeStatusActive CodeStatus = "active"
)

const (
	// DefaultMaxDevices bounds how many devices a code may be bound to when
	// the record does not carry an explicit limit.
	DefaultMaxDevices = 3
	// MinCodeLength is the shortest code accepted for validation.
	MinCodeLength = 8
	// MaxUserAgentLength caps the user agent string stored per binding.
	MaxUserAgentLength = 100
)

// DeviceType classifies the device that redeemed a code.
type DeviceType string

const (
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeDesktop DeviceType = "desktop"
)

// DeviceBinding records a single device redeemed against an activation code.
type DeviceBinding struct {
	DeviceID    string     `json:"device_id"`
	ActivatedAt time.Time  `json:"activated_at"`
	DeviceType  DeviceType `json:"device_type"`
	UserAgent   string     `json:"user_agent"`
}

// ActivationCode mirrors the persisted entitlement record keyed by code.
type ActivationCode struct {
	Code        string
	Status      CodeStatus
	Devices     []DeviceBinding
	MaxDevices  int
	LastUpdated time.Time
}

// EffectiveMaxDevices returns the configured device limit, falling back to the default.
func (c ActivationCode) EffectiveMaxDevices() int {
	if c.MaxDevices > 0 {
		return c.MaxDevices
	}
	return DefaultMaxDevices
}

// HasDevice reports whether the device is already bound to the code.
func (c ActivationCode) HasDevice(deviceID string) bool {
	for _, d := range c.Devices {
		if d.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// AtCapacity reports whether the code has exhausted its device slots.
func (c ActivationCode) AtCapacity() bool {
	return len(c.Devices) >= c.EffectiveMaxDevices()
}

// IsUsable reports whether the code status permits any further validation.
func (c ActivationCode) IsUsable() bool {
	return c.Status == CodeStatusUnused || c.Status == CodeStatusActive
}

// Bind appends the device binding and activates the code.
// Returns true when the record changed; binding an already-present device is a no-op.
func (c *ActivationCode) Bind(binding DeviceBinding, at time.Time) bool {
	if c.HasDevice(binding.DeviceID) {
		return false
	}

	binding.UserAgent = TruncateUserAgent(binding.UserAgent)
	if binding.ActivatedAt.IsZero() {
		binding.ActivatedAt = at
	}

	c.Devices = append(c.Devices, binding)
	c.Status = CodeStatusActive
	c.LastUpdated = at
	return true
}

// TruncateUserAgent trims and bounds a raw user agent string for storage.
func TruncateUserAgent(ua string) string {
	ua = strings.TrimSpace(ua)
	if len(ua) > MaxUserAgentLength {
		return ua[:MaxUserAgentLength]
	}
	return ua
}

// NormalizeCode canonicalises user input before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
