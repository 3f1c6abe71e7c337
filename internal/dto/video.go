package dto

import "io"

// VideoRangeForm carries the sheet range fields of an upload form.
type VideoRangeForm struct {
	Level      int `form:"level" json:"level" validate:"required,min=1"`
	SheetStart int `form:"sheetStart" json:"sheetStart" validate:"required,min=1"`
	SheetEnd   int `form:"sheetEnd" json:"sheetEnd" validate:"required,min=1,gtefield=SheetStart"`
}

// UploadVideoInput is the service-level view of a multipart upload.
type UploadVideoInput struct {
	VideoRangeForm
	ContentType string
	Size        int64
	Body        io.Reader
}

// ExternalLinkRequest registers an externally hosted video.
type ExternalLinkRequest struct {
	Level      int    `json:"level" validate:"required,min=1"`
	SheetStart int    `json:"sheetStart" validate:"required,min=1"`
	SheetEnd   int    `json:"sheetEnd" validate:"required,min=1,gtefield=SheetStart"`
	DriveURL   string `json:"driveUrl" validate:"required,url"`
}

// SyncResult reports the outcome of a storage reconciliation.
type SyncResult struct {
	Message string   `json:"message"`
	Added   int      `json:"added"`
	Skipped []string `json:"skipped"`
	Failed  []string `json:"failed"`
}
