package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLogicalPlanFlattensAndSorts(t *testing.T) {
	sources := map[[2]string]SourceConfig{
		{"idx-b", "src"}: {IndexUID: "idx-b", SourceID: "src", DesiredNumPipelines: 1},
		{"idx-a", "src"}: {IndexUID: "idx-a", SourceID: "src", DesiredNumPipelines: 2},
	}
	tasks := BuildLogicalPlan(sources)
	require.Len(t, tasks, 3)
	assert.Equal(t, "idx-a", tasks[0].IndexUID)
	assert.Equal(t, "idx-a", tasks[1].IndexUID)
	assert.Equal(t, "idx-b", tasks[2].IndexUID)
}

func indexerNode(id string) Node {
	return Node{NodeID: id, EnabledServices: []string{"indexer"}}
}

func TestBuildPhysicalPlanDistributesAcrossNodes(t *testing.T) {
	nodes := []Node{indexerNode("n1"), indexerNode("n2")}
	tasks := []IndexingTask{{IndexUID: "idx", SourceID: "src"}, {IndexUID: "idx", SourceID: "src"}}
	sources := map[[2]string]SourceConfig{{"idx", "src"}: {}}

	plan := BuildPhysicalPlan(nodes, tasks, sources)
	assert.Len(t, plan["n1"], 1)
	assert.Len(t, plan["n2"], 1)
}

func TestBuildPhysicalPlanRespectsMaxPerNode(t *testing.T) {
	nodes := []Node{indexerNode("n1"), indexerNode("n2")}
	tasks := []IndexingTask{
		{IndexUID: "idx", SourceID: "src"},
		{IndexUID: "idx", SourceID: "src"},
		{IndexUID: "idx", SourceID: "src"},
	}
	sources := map[[2]string]SourceConfig{{"idx", "src"}: {MaxNumPipelinesPerNode: 1}}

	plan := BuildPhysicalPlan(nodes, tasks, sources)
	assert.Len(t, plan["n1"], 1)
	assert.Len(t, plan["n2"], 1)
}

func TestBuildPhysicalPlanLeavesOverflowUnassignedWhenCapExceeded(t *testing.T) {
	nodes := []Node{indexerNode("n1")}
	tasks := []IndexingTask{{IndexUID: "idx", SourceID: "src"}, {IndexUID: "idx", SourceID: "src"}}
	sources := map[[2]string]SourceConfig{{"idx", "src"}: {MaxNumPipelinesPerNode: 1}}

	plan := BuildPhysicalPlan(nodes, tasks, sources)
	assert.Len(t, plan["n1"], 1)
}

func TestBuildPhysicalPlanIgnoresNonIndexerNodes(t *testing.T) {
	nodes := []Node{indexerNode("n1"), {NodeID: "n2", EnabledServices: []string{"controlplane"}}}
	tasks := []IndexingTask{{IndexUID: "idx", SourceID: "src"}}
	plan := BuildPhysicalPlan(nodes, tasks, map[[2]string]SourceConfig{})
	_, ok := plan["n2"]
	assert.False(t, ok)
	assert.Len(t, plan["n1"], 1)
}

func TestPhysicalPlanEqualIgnoresOrderButNotMultiplicity(t *testing.T) {
	a := PhysicalPlan{"n1": {{IndexUID: "x"}, {IndexUID: "y"}}}
	b := PhysicalPlan{"n1": {{IndexUID: "y"}, {IndexUID: "x"}}}
	assert.True(t, a.Equal(b))

	c := PhysicalPlan{"n1": {{IndexUID: "x"}}}
	assert.False(t, a.Equal(c))
}

func TestDiffReportsOnlyChangedNodes(t *testing.T) {
	current := PhysicalPlan{"n1": {{IndexUID: "x"}}, "n2": {{IndexUID: "y"}}}
	desired := PhysicalPlan{"n1": {{IndexUID: "x"}}, "n2": {{IndexUID: "z"}}, "n3": {{IndexUID: "w"}}}

	changed := Diff(current, desired)
	assert.Equal(t, []string{"n2", "n3"}, changed)
}

func TestDiffEmptyWhenPlansMatch(t *testing.T) {
	plan := PhysicalPlan{"n1": {{IndexUID: "x"}}}
	assert.Empty(t, Diff(plan, plan))
}
