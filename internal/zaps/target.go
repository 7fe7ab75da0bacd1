// Package zaps implements the NIP-57 zap / LNURL tip invoice request
// pipeline: relay selection, zap request construction, invoice retrieval
// and amount validation.
package zaps

import (
	"fmt"

	"zap-server/internal/types"
	"zap-server/internal/util"
)

// TargetRef references the content being zapped, in exactly one of two
// forms: a coordinate (kind:author:identifier, for addressable events) or a
// plain event ID. The form is resolved once when the target is supplied and
// never re-derived.
type TargetRef struct {
	// Coordinate form
	Kind       int
	Author     string
	Identifier string

	// Event ID form
	EventID string
}

// IsCoordinate reports whether the reference uses the coordinate form.
func (t *TargetRef) IsCoordinate() bool {
	return t.EventID == ""
}

// Coordinate returns the kind:author:identifier string for the a tag.
func (t *TargetRef) Coordinate() string {
	return fmt.Sprintf("%d:%s:%s", t.Kind, t.Author, t.Identifier)
}

// TargetFromEvent resolves the reference form for an event: coordinate if
// the event is replaceable and carries a stable identifier (d tag), plain
// event ID otherwise. Returns nil for a nil event.
func TargetFromEvent(evt *types.Event) *TargetRef {
	if evt == nil {
		return nil
	}

	if IsReplaceableKind(evt.Kind) && util.HasTag(evt.Tags, "d") {
		return &TargetRef{
			Kind:       evt.Kind,
			Author:     evt.PubKey,
			Identifier: util.GetTagValue(evt.Tags, "d"),
		}
	}

	return &TargetRef{EventID: evt.ID}
}

// IsReplaceableKind reports whether events of this kind can be superseded
// by later events from the same author (NIP-01 replaceable ranges plus the
// legacy kinds 0 and 3).
func IsReplaceableKind(kind int) bool {
	return kind == 0 || kind == 3 ||
		(kind >= 10000 && kind < 20000) ||
		(kind >= 30000 && kind < 40000)
}
