// Package model holds the core data-model types shared by every
// duskline component: Index, Source, Split, SplitState, checkpoints
// and delete tasks.
package model

import "time"

// SourceType enumerates the ingestion endpoint kinds.
type SourceType string

const (
	SourceTypeFile SourceType = "file"
	SourceTypeQueue SourceType = "queue"
	SourceTypePushAPI SourceType = "push_api"
	SourceTypeVoid SourceType = "void"
)

// Source is a named ingestion endpoint within an index.
type Source struct {
	SourceID string `json:"source_id"`
	SourceType SourceType `json:"source_type"`
	Enabled bool `json:"enabled"`
	DesiredNumPipelines int `json:"desired_num_pipelines"`
	MaxNumPipelinesPerNode int `json:"max_num_pipelines_per_indexer"`
	Params map[string]interface{} `json:"params,omitempty"`
	Checkpoint Checkpoint `json:"checkpoint"`
}

// Clone returns a deep-enough copy for safe concurrent mutation by callers.
func (s *Source) Clone() *Source {
	if s == nil {
		return nil
	}
	c := *s
	c.Checkpoint = s.Checkpoint.Clone()
	if s.Params != nil {
		c.Params = make(map[string]interface{}, len(s.Params))
		for k, v := range s.Params {
			c.Params[k] = v
		}
	}
	return &c
}

// Index is a logical grouping of splits sharing a schema.
type Index struct {
	IndexID string `json:"index_id"`
	IndexUID string `json:"index_uid"`
	IndexURI string `json:"index_uri"`
	Mapping map[string]interface{} `json:"mapping"`
	Sources map[string]*Source `json:"sources"`
	CreatedAt time.Time `json:"created_at"`

	// LastDeleteOpstamp is the highest opstamp issued to a delete task
	// for this index.
	LastDeleteOpstamp uint64 `json:"last_delete_opstamp"`
}

// Clone returns a deep-enough copy of the index metadata.
func (idx *Index) Clone() *Index {
	if idx == nil {
		return nil
	}
	c := *idx
	c.Sources = make(map[string]*Source, len(idx.Sources))
	for k, v := range idx.Sources {
		c.Sources[k] = v.Clone()
	}
	if idx.Mapping != nil {
		c.Mapping = make(map[string]interface{}, len(idx.Mapping))
		for k, v := range idx.Mapping {
			c.Mapping[k] = v
		}
	}
	return &c
}

// EnabledSources returns the subset of sources with Enabled == true.
func (idx *Index) EnabledSources() []*Source {
	var out []*Source
	for _, s := range idx.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
