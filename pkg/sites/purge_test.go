package sites

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrashPurgerDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	p := NewTrashPurger(svc, 0, "", nil)
	assert.Equal(t, DefaultTrashRetention, p.retention)
	assert.Equal(t, DefaultPurgeSchedule, p.schedule)
}

func TestTrashPurgerRejectsBadSchedule(t *testing.T) {
	svc, _ := newTestService(t)
	p := NewTrashPurger(svc, time.Hour, "not a schedule", nil)
	assert.Error(t, p.Start())
}

func TestTrashPurgerStartStop(t *testing.T) {
	svc, _ := newTestService(t)
	p := NewTrashPurger(svc, time.Hour, "@every 1h", nil)
	require.NoError(t, p.Start())
	p.Stop()
}

func TestTrashPurgerRunOnce(t *testing.T) {
	svc, backend := newTestService(t)
	mustCreateSite(t, svc, "alice", "stale", VisibilityPrivate)
	require.NoError(t, svc.DeleteSite(as("alice"), "stale"))

	p := NewTrashPurger(svc, time.Millisecond, "", nil)
	time.Sleep(10 * time.Millisecond)

	purged, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	exists, err := backend.Exists(context.Background(), MasterGroupAuthority("stale"))
	require.NoError(t, err)
	assert.False(t, exists)
}
