package domain

import "time"

// RecordData is the opaque JSON payload of a Record, following the owning
// model's schema at validation time but stored and passed around as a plain
// map (spec.md §9: "the `data` payload of a Record is an opaque JSON value
// at the storage layer"). Grounded on the teacher's SObject type.
type RecordData map[string]interface{}

func (d RecordData) GetString(key string) string {
	if v, ok := d[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (d RecordData) Clone() RecordData {
	out := make(RecordData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Record is an instance of a published model (spec.md §3).
type Record struct {
	ID             string
	ModelID        string
	ModelName      string
	ModelVersionID *string
	Data           RecordData
	OwnerID        *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}
