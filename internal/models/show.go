package models

import "time"

// ShowMetadata describes one show file in the library without its timeline
// payload.
type ShowMetadata struct {
	Path      string    `json:"path"`
	Format    string    `json:"format"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Show pairs metadata with the decoded timeline.
type Show struct {
	Metadata ShowMetadata `json:"metadata"`
	Timeline *Timeline    `json:"timeline"`
}
