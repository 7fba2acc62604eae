package model

// PlatformFamily groups switch models by product line.
type PlatformFamily string

const (
	FamilyMS       PlatformFamily = "MS"
	FamilyCatalyst PlatformFamily = "Catalyst"
	FamilyUnknown  PlatformFamily = "unknown"
)

// Platform is a hardware tag derived from a run's display name.
type Platform struct {
	Family PlatformFamily `json:"family"`
	Model  string         `json:"model"`
}

// PlatformUnknown is the tag for runs whose name names no known model.
var PlatformUnknown = Platform{Family: FamilyUnknown, Model: "unknown"}

// IsUnknown reports whether p is the unknown tag (or unset).
func (p Platform) IsUnknown() bool {
	return p.Model == "" || p == PlatformUnknown
}

// String returns the model identifier.
func (p Platform) String() string {
	if p.Model == "" {
		return PlatformUnknown.Model
	}
	return p.Model
}

// DeviceType distinguishes single switches from stacks.
type DeviceType string

const (
	DeviceSingle  DeviceType = "single"
	DeviceStack   DeviceType = "stack"
	DeviceUnknown DeviceType = "unknown"
)

// ParseDeviceType converts s to a DeviceType; anything unrecognized is unknown.
func ParseDeviceType(s string) DeviceType {
	switch DeviceType(s) {
	case DeviceSingle:
		return DeviceSingle
	case DeviceStack:
		return DeviceStack
	default:
		return DeviceUnknown
	}
}
