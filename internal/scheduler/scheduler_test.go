package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

type panickingJob struct {
	runs atomic.Int32
}

func (j *panickingJob) Run() error {
	j.runs.Add(1)
	panic("cycle blew up")
}

func (j *panickingJob) Name() string { return "panicking" }

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	assert.Error(t, s.AddJob("every five minutes", &countingJob{}))
	assert.NoError(t, s.AddJob("@every 5m", &countingJob{}))
	assert.NoError(t, s.AddJob("*/5 * * * *", &countingJob{}))
	assert.NoError(t, s.AddJob("0 */5 * * * *", &countingJob{}))
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: errors.New("boom")}
	assert.Error(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduledRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestPanickingJobKeepsSchedulerAlive(t *testing.T) {
	s := New(zerolog.Nop())
	bad := &panickingJob{}
	good := &countingJob{}
	require.NoError(t, s.AddJob("@every 1s", bad))
	require.NoError(t, s.AddJob("@every 1s", good))

	s.Start()
	// the panicking job is recovered and keeps getting scheduled
	assert.Eventually(t, func() bool { return bad.runs.Load() >= 2 && good.runs.Load() >= 2 },
		5*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestRunNowRecoversPanic(t *testing.T) {
	s := New(zerolog.Nop())
	job := &panickingJob{}
	err := s.RunNow(job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle blew up")
	assert.Equal(t, int32(1), job.runs.Load())
}
