package domain

import "time"

// CodeActivatedEvent represents the payload for flipgate.code.activated messages.
type CodeActivatedEvent struct {
	EventID     string
	Code        string
	UserID      string
	DeviceCount int
	ActivatedAt time.Time
	Metadata    map[string]any
}

// DeviceBoundEvent represents the payload for flipgate.device.bound messages.
type DeviceBoundEvent struct {
	EventID    string
	Code       string
	DeviceID   string
	DeviceType DeviceType
	UserAgent  string
	BoundAt    time.Time
	Metadata   map[string]any
}

// SessionCommittedEvent represents the payload for flipgate.session.committed messages.
type SessionCommittedEvent struct {
	EventID     string
	UserID      string
	Fallback    bool
	CommittedAt time.Time
	Metadata    map[string]any
}

// GenerationActivatedEvent represents the payload for flipgate.cache.generation.activated messages.
type GenerationActivatedEvent struct {
	EventID      string
	Generation   string
	Version      int
	AssetsCached int
	ShellBroken  bool
	ActivatedAt  time.Time
	Metadata     map[string]any
}
