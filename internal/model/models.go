package model

import "time"

// Flow is the root record produced by a completed scan.
// A Flow and its Reviews are handed to storage as one unit and never updated afterwards.
type Flow struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	CategoryID    string    `json:"categoryId"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Downloads     uint64    `json:"downloads"`
	Featured      bool      `json:"featured"`
	Created       time.Time `json:"created"`
	Modified      time.Time `json:"modified"` // expected >= Created
	UploadVersion string    `json:"uploadVersion"`
	DataVersion   string    `json:"dataVersion"`
	Payload       string    `json:"payload"` // opaque binary-as-text blob
	Reviews       []Review  `json:"reviews"`
}

// Review is a child record of a Flow.
type Review struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	FlowID   string    `json:"flowId"` // Foreign key to Flow
	Comment  string    `json:"comment"`
	Rating   float64   `json:"rating"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}
