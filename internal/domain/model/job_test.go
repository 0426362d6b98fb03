package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValid(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusPending, true},
		{JobStatusRunning, true},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatus(""), false},
		{JobStatus("queued"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Valid())
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestCreateJobRequestValidate(t *testing.T) {
	require.Error(t, (&CreateJobRequest{}).Validate())
	require.Error(t, (&CreateJobRequest{WebCode: "   "}).Validate())
	require.NoError(t, (&CreateJobRequest{WebCode: "17924062"}).Validate())
}
