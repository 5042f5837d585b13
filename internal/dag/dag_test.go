package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aipilotbyjd/lnkflow-core/internal/domain"
)

func node(id string) domain.WorkflowNode {
	return domain.WorkflowNode{ID: id, Type: "generic"}
}

func edge(id, source, target string) domain.WorkflowEdge {
	return domain.WorkflowEdge{ID: id, Source: source, Target: target}
}

func TestBuild_LinearChainLevelsAndOrder(t *testing.T) {
	def := Definition{
		Nodes: []domain.WorkflowNode{node("a"), node("b"), node("c")},
		Edges: []domain.WorkflowEdge{edge("e1", "a", "b"), edge("e2", "b", "c")},
	}

	g, err := Build(def)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, g.Order)
	assert.Equal(t, 0, g.Levels["a"])
	assert.Equal(t, 1, g.Levels["b"])
	assert.Equal(t, 2, g.Levels["c"])
	assert.Equal(t, []string{"a"}, g.EntryNodes)
	assert.Equal(t, []string{"c"}, g.ExitNodes)
}

func TestBuild_DiamondConvergesAtMaxLevel(t *testing.T) {
	def := Definition{
		Nodes: []domain.WorkflowNode{node("a"), node("b"), node("c"), node("d")},
		Edges: []domain.WorkflowEdge{
			edge("e1", "a", "b"),
			edge("e2", "a", "c"),
			edge("e3", "b", "d"),
			edge("e4", "c", "d"),
		},
	}

	g, err := Build(def)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Levels["a"])
	assert.Equal(t, 1, g.Levels["b"])
	assert.Equal(t, 1, g.Levels["c"])
	assert.Equal(t, 2, g.Levels["d"])
}

func TestBuild_DetectsCycle(t *testing.T) {
	def := Definition{
		Nodes: []domain.WorkflowNode{node("a"), node("b"), node("c")},
		Edges: []domain.WorkflowEdge{
			edge("e1", "a", "b"),
			edge("e2", "b", "c"),
			edge("e3", "c", "a"),
		},
	}

	_, err := Build(def)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestBuild_DetectsSelfLoop(t *testing.T) {
	def := Definition{
		Nodes: []domain.WorkflowNode{node("a")},
		Edges: []domain.WorkflowEdge{edge("e1", "a", "a")},
	}
	_, err := Build(def)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestBuild_ReportsCycleWhenEveryNodeHasAnIncomingEdge(t *testing.T) {
	// Two nodes pointing at each other: every node has an incoming edge,
	// but Build must report the cycle, not silently treat it as NoEntry.
	def := Definition{
		Nodes: []domain.WorkflowNode{node("a"), node("b")},
		Edges: []domain.WorkflowEdge{edge("e1", "a", "b"), edge("e2", "b", "a")},
	}
	_, err := Build(def)
	assert.ErrorIs(t, err, ErrCycleDetected)
}

func TestBuild_RejectsEdgeToUnknownNode(t *testing.T) {
	def := Definition{
		Nodes: []domain.WorkflowNode{node("a")},
		Edges: []domain.WorkflowEdge{edge("e1", "a", "ghost")},
	}
	_, err := Build(def)
	assert.ErrorIs(t, err, ErrInvalidEdge)
}

func TestBuild_RejectsDuplicateNodeID(t *testing.T) {
	def := Definition{Nodes: []domain.WorkflowNode{node("a"), node("a")}}
	_, err := Build(def)
	assert.ErrorIs(t, err, ErrDuplicateNodeID)
}

func TestBuild_ConditionBranchHandles(t *testing.T) {
	def := Definition{
		Nodes: []domain.WorkflowNode{node("cond"), node("yes"), node("no")},
		Edges: []domain.WorkflowEdge{
			{ID: "e1", Source: "cond", Target: "yes", SourceHandle: "true"},
			{ID: "e2", Source: "cond", Target: "no", SourceHandle: "false"},
		},
	}

	g, err := Build(def)
	require.NoError(t, err)
	assert.Equal(t, []string{"false", "true"}, g.OutgoingConditionHandles("cond"))
}

func TestBuild_MultipleEntryNodes(t *testing.T) {
	def := Definition{
		Nodes: []domain.WorkflowNode{node("a"), node("b"), node("c")},
		Edges: []domain.WorkflowEdge{edge("e1", "a", "c"), edge("e2", "b", "c")},
	}
	g, err := Build(def)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, g.EntryNodes)
}
