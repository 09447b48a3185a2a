package event

import (
	"encoding/json"
	"fmt"
)

// EventUpgrader rewrites an event payload from one schema version to the next
type EventUpgrader interface {
	SourceVersion() int
	TargetVersion() int
	Upgrade(payload []byte) ([]byte, error)
}

// FieldTransform edits a decoded payload in place
type FieldTransform func(data map[string]any) error

// MapUpgrader upgrades a payload by decoding it into a map, applying
// transforms and stamping the target schema version
type MapUpgrader struct {
	source     int
	transforms []FieldTransform
}

// NewMapUpgrader creates an upgrader from version source to source+1
func NewMapUpgrader(source int, transforms ...FieldTransform) *MapUpgrader {
	return &MapUpgrader{source: source, transforms: transforms}
}

// SourceVersion returns the source version
func (u *MapUpgrader) SourceVersion() int {
	return u.source
}

// TargetVersion returns the target version
func (u *MapUpgrader) TargetVersion() int {
	return u.source + 1
}

// Upgrade transforms the payload from source to target version
func (u *MapUpgrader) Upgrade(payload []byte) ([]byte, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	for _, transform := range u.transforms {
		if err := transform(data); err != nil {
			return nil, fmt.Errorf("transform failed: %w", err)
		}
	}
	data["schema_version"] = u.TargetVersion()

	result, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transformed payload: %w", err)
	}
	return result, nil
}

// RenameField moves a value to a new key. Missing keys are left alone.
func RenameField(from, to string) FieldTransform {
	return func(data map[string]any) error {
		if v, ok := data[from]; ok {
			data[to] = v
			delete(data, from)
		}
		return nil
	}
}

// DefaultField sets a value when the key is absent
func DefaultField(key string, value any) FieldTransform {
	return func(data map[string]any) error {
		if _, ok := data[key]; !ok {
			data[key] = value
		}
		return nil
	}
}

// RequireField fails the upgrade when the key is absent
func RequireField(key string) FieldTransform {
	return func(data map[string]any) error {
		if _, ok := data[key]; !ok {
			return fmt.Errorf("missing field %q", key)
		}
		return nil
	}
}

var _ EventUpgrader = (*MapUpgrader)(nil)
