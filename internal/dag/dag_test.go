package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/orchestra/pkg/api"
)

func TestTopologicalOrder_RespectsDependencies(t *testing.T) {
	g := New()
	g.AddNode("deploy", "build", "test")
	g.AddNode("build")
	g.AddNode("test", "build")
	g.AddNode("notify")

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["build"], pos["test"])
	assert.Less(t, pos["test"], pos["deploy"])
	assert.Less(t, pos["build"], pos["deploy"])
}

func TestTopologicalOrder_TiesFollowInsertionOrder(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("c", "a")
	g.AddNode("b", "a")
	g.AddNode("d")

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b", "d"}, order)
}

func TestDetectCycles(t *testing.T) {
	tests := []struct {
		name  string
		build func(g *Graph)
		cycle bool
	}{
		{
			name: "acyclic diamond",
			build: func(g *Graph) {
				g.AddNode("a")
				g.AddNode("b", "a")
				g.AddNode("c", "a")
				g.AddNode("d", "b", "c")
			},
		},
		{
			name: "self reference",
			build: func(g *Graph) {
				g.AddNode("a", "a")
			},
			cycle: true,
		},
		{
			name: "three node loop",
			build: func(g *Graph) {
				g.AddNode("a", "c")
				g.AddNode("b", "a")
				g.AddNode("c", "b")
			},
			cycle: true,
		},
		{
			name: "unknown dependency is not a cycle",
			build: func(g *Graph) {
				g.AddNode("a", "ghost")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			tt.build(g)

			err := g.DetectCycles()
			if !tt.cycle {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, api.ErrCyclicDependency))
			assert.True(t, errors.Is(err, api.ErrValidation))

			var ce *CycleError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, ce.Path[0], ce.Path[len(ce.Path)-1], "cycle path should be closed")

			_, err = g.TopologicalOrder()
			assert.ErrorIs(t, err, api.ErrCyclicDependency)
		})
	}
}

func TestDescendantsAndMissing(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b", "a")
	g.AddNode("c", "b")
	g.AddNode("d")
	g.AddNode("e", "ghost")

	assert.Equal(t, []string{"b", "c"}, g.Descendants("a"))
	assert.Empty(t, g.Descendants("d"))
	assert.Equal(t, map[string][]string{"e": {"ghost"}}, g.Missing())
	assert.Equal(t, 0, g.InDegrees()["e"])
}
