package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_Table(t *testing.T) {
	allStates := []PipelineState{
		StateReceived, StateProcessing, StateDispatching, StateExecuting,
		StateProcessingResults, StateCompleted, StateFailed, StateCleaned, StateExpired,
	}

	legal := map[PipelineState][]PipelineState{
		StateReceived:          {StateProcessing, StateFailed},
		StateProcessing:        {StateDispatching, StateFailed},
		StateDispatching:       {StateExecuting, StateFailed},
		StateExecuting:         {StateProcessingResults, StateFailed},
		StateProcessingResults: {StateCompleted, StateFailed},
		StateCompleted:         {StateCleaned},
		StateFailed:            {StateCleaned},
		StateCleaned:           {StateExpired},
		StateExpired:           {},
	}

	for _, from := range allStates {
		allowed := make(map[PipelineState]bool)
		for _, to := range legal[from] {
			allowed[to] = true
		}
		for _, to := range allStates {
			got := CanTransition(from, to)
			assert.Equal(t, allowed[to], got, "%s -> %s", from, to)
		}
	}
}

func TestPipelineState_IsTerminal(t *testing.T) {
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())

	for _, s := range []PipelineState{
		StateReceived, StateProcessing, StateDispatching, StateExecuting,
		StateProcessingResults, StateCleaned, StateExpired,
	} {
		assert.False(t, s.IsTerminal(), "%s", s)
	}
}

func TestPipelineState_ExpiredIsFinal(t *testing.T) {
	for _, to := range []PipelineState{
		StateReceived, StateProcessing, StateDispatching, StateExecuting,
		StateProcessingResults, StateCompleted, StateFailed, StateCleaned, StateExpired,
	} {
		assert.False(t, CanTransition(StateExpired, to), "expired -> %s must be illegal", to)
	}
}

func TestPipelineState_IsValid(t *testing.T) {
	assert.True(t, StateReceived.IsValid())
	assert.True(t, StateExpired.IsValid())
	assert.False(t, PipelineState("running").IsValid())
	assert.False(t, PipelineState("").IsValid())
}

func TestNewPipeline(t *testing.T) {
	p := NewPipeline(ServiceGitHub, "octo/repo")

	require.NotEmpty(t, p.PipelineID)
	assert.Equal(t, StateReceived, p.CurrentState)
	assert.Equal(t, ServiceGitHub, p.Service)
	assert.Equal(t, "octo/repo", p.Repository)
	assert.Nil(t, p.ExpiresAt)
	assert.NotNil(t, p.Metadata)

	other := NewPipeline(ServiceGitHub, "octo/repo")
	assert.NotEqual(t, p.PipelineID, other.PipelineID)
}

func TestPipeline_MergeMetadata(t *testing.T) {
	p := NewPipeline(ServiceSlack, "")
	p.Metadata["a"] = "1"

	p.MergeMetadata(map[string]string{"a": "2", "b": "3"})
	assert.Equal(t, "2", p.Metadata["a"])
	assert.Equal(t, "3", p.Metadata["b"])

	var empty Pipeline
	empty.MergeMetadata(map[string]string{"x": "y"})
	assert.Equal(t, "y", empty.Metadata["x"])
}

func TestStandardizedEvent_DedupKey(t *testing.T) {
	e := StandardizedEvent{Service: ServiceGitHub, EventID: "delivery-1"}
	assert.Equal(t, "github:delivery-1", e.DedupKey())
}

func TestRepositoryContext_FullName(t *testing.T) {
	assert.Equal(t, "octo/repo", RepositoryContext{Owner: "octo", Name: "repo"}.FullName())
	assert.Equal(t, "repo", RepositoryContext{Name: "repo"}.FullName())
}
