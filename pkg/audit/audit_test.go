package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitekit/sitekit/pkg/repo"
	"github.com/sitekit/sitekit/pkg/sites"
)

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestFileLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{Dir: dir})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, logger.Log(ctx, Record{
		Event:   EventTypeSiteCreate,
		Actor:   "alice",
		Site:    "engineering",
		Details: map[string]string{"visibility": "PUBLIC"},
	}))
	require.NoError(t, logger.Log(ctx, Record{
		Event: EventTypeSiteDelete,
		Actor: "alice",
		Site:  "engineering",
	}))
	require.NoError(t, logger.Close())

	records := readRecords(t, filepath.Join(dir, "audit.log"))
	require.Len(t, records, 2)

	assert.Equal(t, EventTypeSiteCreate, records[0].Event)
	assert.Equal(t, "alice", records[0].Actor)
	assert.Equal(t, "engineering", records[0].Site)
	assert.Equal(t, "PUBLIC", records[0].Details["visibility"])
	assert.False(t, records[0].Time.IsZero(), "missing timestamps are stamped on write")

	assert.Equal(t, EventTypeSiteDelete, records[1].Event)
}

func TestFileLoggerAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileLogger(FileLoggerConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, first.Log(ctx, Record{Event: EventTypeSiteCreate, Site: "one"}))
	require.NoError(t, first.Close())

	second, err := NewFileLogger(FileLoggerConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, second.Log(ctx, Record{Event: EventTypeSiteCreate, Site: "two"}))
	require.NoError(t, second.Close())

	records := readRecords(t, filepath.Join(dir, "audit.log"))
	require.Len(t, records, 2)
	assert.Equal(t, "one", records[0].Site)
	assert.Equal(t, "two", records[1].Site)
}

func TestFileLoggerRotates(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewFileLogger(FileLoggerConfig{Dir: dir, MaxSize: 1})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, logger.Log(ctx, Record{Event: EventTypeSitePurge, Site: "stale"}))
	}
	require.NoError(t, logger.Close())

	rotated, err := filepath.Glob(filepath.Join(dir, "audit-*.log"))
	require.NoError(t, err)
	assert.NotEmpty(t, rotated)

	total := len(readRecords(t, filepath.Join(dir, "audit.log")))
	for _, path := range rotated {
		total += len(readRecords(t, path))
	}
	assert.Equal(t, 3, total, "rotation loses no records")
}

type memoryLogger struct {
	records []Record
}

func (m *memoryLogger) Log(_ context.Context, rec Record) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryLogger) Close() error { return nil }

func TestAttachRecordsLifecycleEvents(t *testing.T) {
	registry := sites.NewEventRegistry()
	logger := &memoryLogger{}
	Attach(registry, logger)

	ctx := repo.WithCaller(context.Background(), "alice")
	require.NoError(t, registry.Dispatch(ctx, sites.Event{
		Type:      sites.EventSiteCreated,
		ShortName: "engineering",
		Node:      repo.NodeRef("node-1"),
	}))
	require.NoError(t, registry.Dispatch(ctx, sites.Event{
		Type: sites.EventNodeRelocated,
		Node: repo.NodeRef("node-2"),
	}))

	require.Len(t, logger.records, 2)

	assert.Equal(t, EventTypeSiteCreate, logger.records[0].Event)
	assert.Equal(t, "alice", logger.records[0].Actor)
	assert.Equal(t, "engineering", logger.records[0].Site)
	assert.Equal(t, "node-1", logger.records[0].Node)

	assert.Equal(t, EventTypeNodeRelocate, logger.records[1].Event)
	assert.Empty(t, logger.records[1].Site)
	assert.Equal(t, "node-2", logger.records[1].Node)
}
