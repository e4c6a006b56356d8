package cronsched

import (
	"context"
	"sync"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

func TestNew(t *testing.T) {
	s, err := New(&mockLogger{})
	require.NoError(t, err)
	assert.NotNil(t, s)

	s, err = New(nil)
	require.Error(t, err)
	assert.Nil(t, s)
}

func TestScheduleValidatesSpec(t *testing.T) {
	s, err := New(&mockLogger{})
	require.NoError(t, err)

	_, err = s.Schedule("every day around noon", func() {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to schedule job")

	id, err := s.Schedule("0 0 * * * *", func() {})
	require.NoError(t, err)
	assert.True(t, s.cron.Entry(cron.EntryID(id)).Valid())
}

func TestRemove(t *testing.T) {
	s, err := New(&mockLogger{})
	require.NoError(t, err)

	id, err := s.Schedule("@every 1h", func() {})
	require.NoError(t, err)
	require.True(t, s.cron.Entry(cron.EntryID(id)).Valid())

	s.Remove(id)
	assert.False(t, s.cron.Entry(cron.EntryID(id)).Valid())

	// Unknown IDs are a no-op
	s.Remove(9999)
}

func TestJobPanicIsRecovered(t *testing.T) {
	logger := &mockLogger{}
	s, err := New(logger)
	require.NoError(t, err)

	panicID, err := s.Schedule("@every 1h", func() { panic("corrupt upstream payload") })
	require.NoError(t, err)
	var ran bool
	okID, err := s.Schedule("@every 1h", func() { ran = true })
	require.NoError(t, err)

	// Run the entries the way a firing schedule would
	assert.NotPanics(t, func() { s.cron.Entry(cron.EntryID(panicID)).WrappedJob.Run() })
	s.cron.Entry(cron.EntryID(okID)).WrappedJob.Run()
	assert.True(t, ran, "a panicking job must not take later jobs with it")

	logger.mu.Lock()
	defer logger.mu.Unlock()
	require.NotEmpty(t, logger.errorMsgs)
	assert.Contains(t, logger.errorMsgs[0], "panic")
}

func TestStopOnIdleScheduler(t *testing.T) {
	s, err := New(&mockLogger{})
	require.NoError(t, err)

	s.Start()
	assert.NoError(t, s.Stop(context.Background()))
}
