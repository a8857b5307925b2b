package agent

import (
	"context"
	"testing"
	"time"

	"github.com/mohitkumar/ticketflow/compiler"
	"github.com/mohitkumar/ticketflow/config"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/stretchr/testify/require"
)

func TestAgentLifecycle(t *testing.T) {
	a, err := New(config.Config{
		HttpPort:      0,
		StorageType:   config.STORAGE_TYPE_INMEM,
		RingConfig:    config.RingConfig{NodeName: "test", PartitionCount: 3},
		SignalWorkers: 4,
		TimerConfig: config.TimerConfig{
			PollInterval:  10 * time.Millisecond,
			AuditInterval: time.Minute,
			MaxWait:       time.Hour,
		},
		ActivityConfig: config.ActivityConfig{Timeout: time.Second, RetryCount: 1},
	})
	require.NoError(t, err)
	require.NoError(t, a.Start())

	plan, err := a.metadataService.Latest(context.Background(), compiler.DEFAULT_PLAN_NAME)
	require.NoError(t, err)
	require.Equal(t, 1, plan.Version)

	inst, created, err := a.engine.Trigger(context.Background(), compiler.DEFAULT_PLAN_NAME, model.InboundMessage{Id: "m-1", Sender: "alice", Text: "hello"})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, model.COMPLETED, inst.Status)

	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
}

func TestAgentRejectsUnknownStorage(t *testing.T) {
	_, err := New(config.Config{StorageType: "dynamo"})
	require.Error(t, err)
}
