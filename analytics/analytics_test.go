package analytics

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogFileDataCollector(t *testing.T) {
	file := filepath.Join(t.TempDir(), "analytics.log")
	c, err := NewDataCollector(DataCollectorConfig{FileName: file})
	require.NoError(t, err)
	lc := c.(*LogFileDataCollector)

	lc.RecordStepSuccess("ticket-flow", "i-1", "GetOrCreateTicket", 0, map[string]any{"id": "t-1"})
	lc.RecordStepFailure("ticket-flow", "i-1", "AssignTicket", 6, "no agent")
	lc.RecordSignal("ticket-flow", "i-1", "resolve", "")
	require.NoError(t, lc.Sync())

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.Len(t, records, 3)
	require.Equal(t, "success", records[0]["msg"])
	require.Equal(t, "t-1", records[0]["output"].(map[string]any)["id"])
	require.Equal(t, "failure", records[1]["msg"])
	require.Equal(t, "no agent", records[1]["reason"])
	require.Equal(t, "resolve", records[2]["signal"])
}

func TestNewDataCollector(t *testing.T) {
	c, err := NewDataCollector(DataCollectorConfig{})
	require.NoError(t, err)
	require.IsType(t, NoopDataCollector{}, c)

	_, err = NewDataCollector(DataCollectorConfig{CollectorType: "ELASTIC"})
	require.Error(t, err)
}
