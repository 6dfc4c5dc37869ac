package database

import (
	"time"

	"flowscan/internal/model"
	"flowscan/internal/schema"
)

// record maps catalog column names to the values stored for one row/document.
type record map[string]any

// flowRecord builds the stored shape of a flow. ts converts timestamps to the
// backend's native representation.
func flowRecord(f *model.Flow, ts func(time.Time) any) record {
	return record{
		"id":            f.ID,
		"userId":        f.UserID,
		"categoryId":    f.CategoryID,
		"title":         f.Title,
		"description":   f.Description,
		"downloads":     f.Downloads,
		"featured":      f.Featured,
		"created":       ts(f.Created),
		"modified":      ts(f.Modified),
		"uploadVersion": f.UploadVersion,
		"dataVersion":   f.DataVersion,
		"payload":       f.Payload,
	}
}

func reviewRecord(r *model.Review, ts func(time.Time) any) record {
	return record{
		"id":       r.ID,
		"userId":   r.UserID,
		"flowId":   r.FlowID,
		"comment":  r.Comment,
		"rating":   r.Rating,
		"created":  ts(r.Created),
		"modified": ts(r.Modified),
	}
}

// values returns the record's values in the table's column order.
func (rec record) values(t schema.Table) []any {
	out := make([]any, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = rec[f.Name]
	}
	return out
}
