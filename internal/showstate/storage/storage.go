// Package storage defines the persistence boundary for show state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested light or pick record is missing.
var ErrNotFound = errors.New("record not found")

// LightMode identifies one light state.
type LightMode string

const (
	// LightModeOn means the participant light is lit.
	LightModeOn LightMode = "on"
	// LightModeOff means the participant light is dark.
	LightModeOff LightMode = "off"
	// LightModeBlast means the participant light is in blast mode.
	LightModeBlast LightMode = "blast"
)

// LightRecord stores one participant light state. Name is the identity key;
// writes for an existing name update the record in place.
type LightRecord struct {
	Name      string
	RealName  string
	Mode      LightMode
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PickRecord stores one participant pick. Name is the identity key; a
// participant has at most one pick and later submissions replace its value.
type PickRecord struct {
	Name      string
	Pick      string
	Show      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LightStore persists participant light state.
//
// Implementations must provide read-your-writes consistency for a single
// calling sequence: a ListLights issued after UpsertLight returns reflects
// that write. The broadcast pipeline depends on this.
type LightStore interface {
	ListLights(ctx context.Context) ([]LightRecord, error)
	UpsertLight(ctx context.Context, record LightRecord) (LightRecord, error)
}

// PickStore persists participant picks under the same read-your-writes
// contract as LightStore.
type PickStore interface {
	ListPicks(ctx context.Context) ([]PickRecord, error)
	UpsertPick(ctx context.Context, record PickRecord) (PickRecord, error)
	// SetPickVisibility updates the show flag on an existing pick. It never
	// creates a record; a missing name yields ErrNotFound.
	SetPickVisibility(ctx context.Context, name string, show bool, updatedAt time.Time) (PickRecord, error)
}
