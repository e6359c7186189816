package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filecollector/internal/domain"
)

func TestArchiveTracker_Poll(t *testing.T) {
	ctx := context.Background()
	jobs := &fakeZipJobs{statuses: map[string]domain.ZipJobStatus{
		"done":    {Code: domain.ZipCodeSuccess, Key: "temp_package/1/a.zip"},
		"running": {Code: domain.ZipCodeProcessing},
		"broken":  {Code: domain.ZipCodeFailed, Description: "zip failed: ", Error: "source unreachable"},
	}}
	tracker := NewArchiveTracker(jobs)

	status, err := tracker.Poll(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, domain.ArchiveSuccess, status.State())
	assert.Equal(t, "temp_package/1/a.zip", status.Key)

	status, err = tracker.Poll(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, domain.ArchivePending, status.State())

	status, err = tracker.Poll(ctx, "broken")
	require.ErrorIs(t, err, domain.ErrUpstreamFatal)
	assert.Equal(t, "zip failed: source unreachable", err.Error())
	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, domain.ZipCodeFailed, status.Code)

	_, err = tracker.Poll(ctx, "unknown")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = tracker.Poll(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestArchiveTracker_PollTransportError(t *testing.T) {
	tracker := NewArchiveTracker(&fakeZipJobs{pollErr: errTransport})

	_, err := tracker.Poll(context.Background(), "job-1")
	require.ErrorIs(t, err, domain.ErrUpstreamTransient)
}
