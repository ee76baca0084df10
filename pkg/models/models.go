package models

import (
	"encoding/json"
	"time"
)

// StringSlice is a thin wrapper around []string that always serializes as a
// JSON array, so a nil and an empty list produce identical snapshot bytes.
type StringSlice []string

// MarshalJSON implements json.Marshaler
func (s StringSlice) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// UnmarshalJSON implements json.Unmarshaler
func (s *StringSlice) UnmarshalJSON(b []byte) error {
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	if out == nil {
		out = []string{}
	}
	*s = out
	return nil
}

// Festival is the canonical record of the festival feed.
type Festival struct {
	ID           string      `json:"id"`
	Index        int         `json:"index"`
	Name         string      `json:"name"`
	VenueName    string      `json:"venue_name"`
	Latitude     string      `json:"latitude"`
	Longitude    string      `json:"longitude"`
	StartDate    string      `json:"start_date"`
	EndDate      string      `json:"end_date"`
	Fee          string      `json:"fee"`
	Parking      string      `json:"parking"`
	Category     string      `json:"category"`
	Scale        string      `json:"scale"`
	Status       string      `json:"status"`
	Description  string      `json:"description"`
	OpeningHours string      `json:"opening_hours"`
	ClosedDays   string      `json:"closed_days"`
	OfficialURL  string      `json:"official_url"`
	PhotoURLs    StringSlice `json:"photo_urls"`
	Tags         StringSlice `json:"tags"`

	// Distance is meters from the resolved position, set only in distance mode
	// and never persisted with a snapshot.
	Distance *float64 `json:"distance,omitempty"`
}

// RangeEnd returns EndDate, or StartDate when the feed left it blank.
func (f Festival) RangeEnd() string {
	if f.EndDate != "" {
		return f.EndDate
	}
	return f.StartDate
}

// Strings returns every free-form string value of the record, used by text search.
func (f Festival) Strings() []string {
	out := []string{
		f.ID, f.Name, f.VenueName, f.Latitude, f.Longitude, f.StartDate, f.EndDate,
		f.Fee, f.Parking, f.Category, f.Scale, f.Status, f.Description,
		f.OpeningHours, f.ClosedDays, f.OfficialURL,
	}
	out = append(out, f.PhotoURLs...)
	return append(out, f.Tags...)
}

// Event is a record of the secondary (time-sensitive) events feed.
type Event struct {
	ID          string      `json:"id"`
	Index       int         `json:"index"`
	Name        string      `json:"name"`
	Period      string      `json:"period"`
	Place       string      `json:"place"`
	Hours       string      `json:"hours"`
	Description string      `json:"description"`
	Tags        string      `json:"tags"`
	Organizer   string      `json:"organizer"`
	OfficialURL string      `json:"official_url"`
	Instagram   string      `json:"instagram"`
	Facebook    string      `json:"facebook"`
	X           string      `json:"x"`
	Latitude    string      `json:"latitude"`
	Longitude   string      `json:"longitude"`
	ImageURLs   StringSlice `json:"image_urls"`
}

// Coordinate is a point in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Position is a resolved geolocation sample.
type Position struct {
	Coordinate
	ResolvedAt time.Time `json:"resolved_at"`
}
