// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func recorder(trace *[]string) func(name string, deps ...string) Node {
	return func(name string, deps ...string) Node {
		return NewFuncNode(name, deps, func(ctx context.Context) error {
			*trace = append(*trace, name)
			return nil
		})
	}
}

func TestBuilder_Order(t *testing.T) {
	var trace []string
	node := recorder(&trace)

	dag, err := NewBuilder("interop").
		AddNode(node("safety", "deps", "import")).
		AddNode(node("import")).
		AddNode(node("deps", "import")).
		AddNode(node("report")).
		Build()
	require.NoError(t, err)

	order := dag.Order()
	assert.Len(t, order, 4)
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["import"], pos["deps"])
	assert.Less(t, pos["deps"], pos["safety"])

	again, err := NewBuilder("interop").
		AddNode(node("safety", "deps", "import")).
		AddNode(node("import")).
		AddNode(node("deps", "import")).
		AddNode(node("report")).
		Build()
	require.NoError(t, err)
	assert.Equal(t, order, again.Order(), "order is stable")
}

func TestBuilder_Errors(t *testing.T) {
	noop := func(context.Context) error { return nil }

	t.Run("empty", func(t *testing.T) {
		_, err := NewBuilder("x").Build()
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("nil node", func(t *testing.T) {
		_, err := NewBuilder("x").AddNode(nil).Build()
		assert.ErrorIs(t, err, ErrNilNode)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := NewBuilder("x").
			AddNode(NewFuncNode("a", nil, noop)).
			AddNode(NewFuncNode("a", nil, noop)).
			Build()
		assert.ErrorIs(t, err, ErrDuplicateNode)
	})

	t.Run("missing dependency", func(t *testing.T) {
		_, err := NewBuilder("x").AddNode(NewFuncNode("a", []string{"b"}, noop)).Build()
		var ne *NodeError
		require.ErrorAs(t, err, &ne)
		assert.Equal(t, "a", ne.NodeName)
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("cycle", func(t *testing.T) {
		_, err := NewBuilder("x").
			AddNode(NewFuncNode("a", []string{"c"}, noop)).
			AddNode(NewFuncNode("b", []string{"a"}, noop)).
			AddNode(NewFuncNode("c", []string{"b"}, noop)).
			Build()
		var ce *CycleError
		require.ErrorAs(t, err, &ce)
		assert.ErrorIs(t, err, ErrCycleDetected)
		require.NotEmpty(t, ce.Path)
		assert.Equal(t, ce.Path[0], ce.Path[len(ce.Path)-1])
	})
}

func TestExecutor_Run(t *testing.T) {
	var trace []string
	node := recorder(&trace)
	dag, err := NewBuilder("interop").
		AddNode(node("b", "a")).
		AddNode(node("a")).
		Build()
	require.NoError(t, err)

	ex, err := NewExecutor(dag, quiet)
	require.NoError(t, err)
	res, err := ex.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, trace)
	assert.Equal(t, 2, res.NodesExecuted)
	assert.Len(t, res.RunID, 12)
	assert.Empty(t, res.FailedNode)
	assert.Contains(t, res.NodeDurations, "a")
}

func TestExecutor_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	ran := map[string]bool{}
	var seenRunID string
	dag, err := NewBuilder("interop").
		AddNode(NewFuncNode("a", nil, func(ctx context.Context) error {
			ran["a"] = true
			seenRunID = RunID(ctx)
			return boom
		})).
		AddNode(NewFuncNode("b", []string{"a"}, func(context.Context) error {
			ran["b"] = true
			return nil
		})).
		Build()
	require.NoError(t, err)

	ex, err := NewExecutor(dag, quiet)
	require.NoError(t, err)
	res, err := ex.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var ne *NodeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "a", ne.NodeName)
	assert.Equal(t, "a", res.FailedNode)
	assert.Equal(t, res.RunID, seenRunID)
	assert.False(t, ran["b"])
}

func TestExecutor_Cancelled(t *testing.T) {
	dag, err := NewBuilder("x").AddNode(NewFuncNode("a", nil, func(context.Context) error { return nil })).Build()
	require.NoError(t, err)
	ex, err := NewExecutor(dag, quiet)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := ex.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.NodesExecuted)

	var nilCtx context.Context
	_, err = ex.Run(nilCtx)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestNewExecutor_NilDAG(t *testing.T) {
	_, err := NewExecutor(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
