package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResetter struct {
	monthly, daily int
	err            error
}

func (f *fakeResetter) ResetMonthly(ctx context.Context) (int64, error) {
	f.monthly++
	return 3, f.err
}

func (f *fakeResetter) ResetDaily(ctx context.Context) (int64, error) {
	f.daily++
	return 1, f.err
}

func TestNewRegistersJobs(t *testing.T) {
	s, err := New(Config{MonthlyReset: MonthlyResetSpec, DailyReset: DailyResetSpec}, &fakeResetter{})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs())

	s, err = New(Config{MonthlyReset: MonthlyResetSpec}, &fakeResetter{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Jobs())
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(Config{MonthlyReset: "every month"}, &fakeResetter{})
	assert.Error(t, err)
}

func TestRunInvokesJob(t *testing.T) {
	r := &fakeResetter{}
	s, err := New(Config{}, r)
	require.NoError(t, err)

	s.run("monthly_reset", r.ResetMonthly)
	r.err = errors.New("db down")
	s.run("daily_reset", r.ResetDaily)

	assert.Equal(t, 1, r.monthly)
	assert.Equal(t, 1, r.daily)
}

func TestStartStop(t *testing.T) {
	s, err := New(Config{DailyReset: DailyResetSpec}, &fakeResetter{})
	require.NoError(t, err)
	s.Start()
	s.Stop(context.Background())
}
