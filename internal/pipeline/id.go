package pipeline

import "fmt"

// Id identifies one running pipeline instance: an (index, source) pair
// physically assigned to one node at one ordinal, disambiguating
// multiple concurrent pipelines serving the same source.
type Id struct {
	IndexUID      string
	SourceID      string
	NodeID        string
	PipelineOrd   int
}

func (id Id) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", id.IndexUID, id.SourceID, id.NodeID, id.PipelineOrd)
}
