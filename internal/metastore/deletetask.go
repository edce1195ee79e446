package metastore

import "time"

// DeleteTask is a per-index deletion query assigned a monotonically
// increasing opstamp at creation.
type DeleteTask struct {
	Opstamp uint64 `json:"opstamp"`
	IndexUID string `json:"index_uid"`
	Query string `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}
