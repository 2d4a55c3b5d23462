package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GatewayLimitsChanged is true if rate, burst, or any quota changed.
	GatewayLimitsChanged bool

	// FeatureFlagsChanged is true if the sync feature flag map changed.
	FeatureFlagsChanged bool

	DevicesChanged bool         // true if any device was added, removed, or modified
	DeviceChanges  []DeviceDiff // per-device diffs
}

// DeviceDiff describes what changed for a single device between two configs.
type DeviceDiff struct {
	ID       string
	Modified bool
	Added    bool
	Removed  bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Gateway limits
	if old.Gateway.RatePerSecond != new.Gateway.RatePerSecond ||
		old.Gateway.Burst != new.Gateway.Burst ||
		old.Gateway.Quotas != new.Gateway.Quotas {
		d.GatewayLimitsChanged = true
	}

	// Feature flags
	if !maps.Equal(old.Sync.FeatureFlags, new.Sync.FeatureFlags) {
		d.FeatureFlagsChanged = true
	}

	// Build device lookup maps keyed by ID.
	oldDevs := make(map[string]*DeviceConfig, len(old.Devices))
	for i := range old.Devices {
		oldDevs[old.Devices[i].ID] = &old.Devices[i]
	}
	newDevs := make(map[string]*DeviceConfig, len(new.Devices))
	for i := range new.Devices {
		newDevs[new.Devices[i].ID] = &new.Devices[i]
	}

	// Detect modified and removed devices.
	for id, oldDev := range oldDevs {
		newDev, exists := newDevs[id]
		if !exists {
			d.DeviceChanges = append(d.DeviceChanges, DeviceDiff{
				ID:      id,
				Removed: true,
			})
			d.DevicesChanged = true
			continue
		}
		if deviceModified(oldDev, newDev) {
			d.DeviceChanges = append(d.DeviceChanges, DeviceDiff{
				ID:       id,
				Modified: true,
			})
			d.DevicesChanged = true
		}
	}

	// Detect added devices.
	for id := range newDevs {
		if _, exists := oldDevs[id]; !exists {
			d.DeviceChanges = append(d.DeviceChanges, DeviceDiff{
				ID:    id,
				Added: true,
			})
			d.DevicesChanged = true
		}
	}

	return d
}

// deviceModified compares two device configs with the same ID.
func deviceModified(old, new *DeviceConfig) bool {
	if old.Class != new.Class || old.Addr != new.Addr {
		return true
	}
	return !slices.Equal(old.Capabilities, new.Capabilities)
}
