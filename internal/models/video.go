package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// VideoAsset covers an inclusive sheet range of a level.
type VideoAsset struct {
	ID          string    `db:"id" json:"id"`
	Level       int       `db:"level" json:"level"`
	SheetStart  int       `db:"sheet_start" json:"sheet_start"`
	SheetEnd    int       `db:"sheet_end" json:"sheet_end"`
	URL         string    `db:"video_url" json:"url"`
	StorageKey  *string   `db:"storage_key" json:"storage_key,omitempty"`
	Filename    string    `db:"filename" json:"filename"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	PlaybackURL string    `db:"-" json:"playback_url,omitempty"`
}

// VideoNeighbourhood is the result of a sheet lookup.
type VideoNeighbourhood struct {
	Current  *VideoAsset `json:"current"`
	Next     *VideoAsset `json:"next"`
	Previous *VideoAsset `json:"previous"`
}

// SheetRange identifies a video slot parsed from or rendered to a filename.
type SheetRange struct {
	Level      int
	SheetStart int
	SheetEnd   int
}

var videoFilenamePattern = regexp.MustCompile(`^L(\d+)_(\d+)_(\d+)\.mp4$`)

// CanonicalFilename renders L{level}_{start}_{end}.mp4.
func (r SheetRange) CanonicalFilename() string {
	return fmt.Sprintf("L%d_%d_%d.mp4", r.Level, r.SheetStart, r.SheetEnd)
}

// ExternalFilename names externally hosted links.
func (r SheetRange) ExternalFilename() string {
	return fmt.Sprintf("L%d_%d_%d_gdrive", r.Level, r.SheetStart, r.SheetEnd)
}

// Valid reports whether the range could be stored: positive level and
// sheets, end not before start.
func (r SheetRange) Valid() bool {
	return r.Level >= 1 && r.SheetStart >= 1 && r.SheetEnd >= r.SheetStart
}

// ParseVideoFilename extracts the sheet range from a canonical filename.
// ok is false for names that do not match the pattern or describe an
// impossible range.
func ParseVideoFilename(filename string) (SheetRange, bool) {
	m := videoFilenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return SheetRange{}, false
	}
	level, err1 := strconv.Atoi(m[1])
	start, err2 := strconv.Atoi(m[2])
	end, err3 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return SheetRange{}, false
	}
	r := SheetRange{Level: level, SheetStart: start, SheetEnd: end}
	if !r.Valid() {
		return SheetRange{}, false
	}
	return r, true
}
