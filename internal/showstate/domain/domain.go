// Package domain owns the show-state mutation pipeline: it validates one
// state change, applies it through the store, re-reads the authoritative
// collection, and hands the full snapshot to the broadcast publisher.
package domain

import (
	"errors"
	"time"
)

// Broadcast topics, one per entity kind.
const (
	// TopicLightUpdated carries full light snapshots.
	TopicLightUpdated = "LIGHT_UPDATED"
	// TopicPickUpdated carries full pick snapshots.
	TopicPickUpdated = "PICK_UPDATED"
)

var (
	// ErrNameRequired indicates the participant name is missing.
	ErrNameRequired = errors.New("participant name is required")
	// ErrInvalidMode indicates the light mode is not on, off, or blast.
	ErrInvalidMode = errors.New("light mode must be on, off, or blast")
	// ErrPickRequired indicates the pick value is missing.
	ErrPickRequired = errors.New("pick value is required")
	// ErrNotFound indicates the targeted record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("show-state store is not configured")
	// ErrPublisherNotConfigured indicates the service is missing broadcast wiring.
	ErrPublisherNotConfigured = errors.New("broadcast publisher is not configured")
)

// LightMode identifies one participant light state.
type LightMode string

const (
	// LightModeOn means the participant light is lit.
	LightModeOn LightMode = "on"
	// LightModeOff means the participant light is dark.
	LightModeOff LightMode = "off"
	// LightModeBlast means the participant light is in blast mode.
	LightModeBlast LightMode = "blast"
)

// ParseLightMode validates a wire-supplied mode string.
func ParseLightMode(value string) (LightMode, error) {
	switch LightMode(value) {
	case LightModeOn, LightModeOff, LightModeBlast:
		return LightMode(value), nil
	default:
		return "", ErrInvalidMode
	}
}

// Light is one participant light state. The participant name is the identity
// key: mutations for an existing name update the record in place.
type Light struct {
	Name      string
	RealName  string
	Mode      LightMode
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pick is one participant pick. A participant holds at most one pick; later
// submissions replace its value, and Show controls whether the pick is
// revealed to the audience.
type Pick struct {
	Name      string
	Pick      string
	Show      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetLightModeInput describes one light mutation request.
type SetLightModeInput struct {
	Name     string
	RealName string
	Mode     string
}

// SubmitPickInput describes one pick submission.
type SubmitPickInput struct {
	Name string
	Pick string
}

// SetPickVisibilityInput toggles the reveal flag on an existing pick.
type SetPickVisibilityInput struct {
	Name string
	Show bool
}
