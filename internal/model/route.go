package model

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Route is a source/destination pair served by one or more trips.  Routes
// are maintained by the administrative service; this service only reads
// them.  The (source, destination) pair is unique.
//
// Fields:
//  ID          – primary key identifier.
//  Source      – display name of the origin, case-normalized.
//  Destination – display name of the destination, case-normalized.
//  DistanceKm  – route length in kilometres.
//  IsActive    – inactive routes accept no new bookings.
type Route struct {
	ID          uint64    `json:"id"`          // routes.id
	Source      string    `json:"source"`      // routes.source
	Destination string    `json:"destination"` // routes.destination
	DistanceKm  float64   `json:"distance_km"` // routes.distance_km
	IsActive    bool      `json:"is_active"`   // routes.is_active
	CreatedAt   time.Time `json:"-"`           // routes.created_at
	UpdatedAt   time.Time `json:"-"`           // routes.updated_at
}

// NormalizePlace trims and title-cases a place name so that "  pune" and
// "PUNE" compare equal and display as "Pune".
func NormalizePlace(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
