package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/finance-sync/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetJob(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.GetJob(ctx, "missing")
	require.ErrorIs(t, err, jobs.ErrJobNotFound)

	require.Error(t, store.SaveJob(ctx, &jobs.ExportJob{}))

	job := &jobs.ExportJob{JobID: "j1", ItemID: "item-1", AccountIDs: []string{"acc-1"}}
	require.NoError(t, store.SaveJob(ctx, job))

	// Later changes to the caller's job are not visible until saved again.
	job.Status = jobs.JobStatusRunning
	job.AccountIDs[0] = "changed"

	got, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatus(""), got.Status)
	assert.Equal(t, []string{"acc-1"}, got.AccountIDs)
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []*jobs.ExportJob{
		{JobID: "a", ItemID: "item-1", Status: jobs.JobStatusCompleted},
		{JobID: "b", ItemID: "item-2", Status: jobs.JobStatusFailed},
		{JobID: "c", ItemID: "item-1", Status: jobs.JobStatusFailed},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveJob(ctx, j))
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"c", "b", "a"}},
		{"by item", jobs.JobFilter{ItemID: "item-1"}, []string{"c", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusFailed}, []string{"c", "b"}},
		{"limit", jobs.JobFilter{Limit: 1}, []string{"c"}},
		{"offset", jobs.JobFilter{Offset: 1, Limit: 1}, []string{"b"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListJobs(ctx, tt.filter)
			require.NoError(t, err)

			ids := []string{}
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
