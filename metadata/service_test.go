package metadata

import (
	"context"
	"testing"

	"github.com/mohitkumar/ticketflow/compiler"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/persistence/memory"
	"github.com/stretchr/testify/require"
)

func TestRegisterVersions(t *testing.T) {
	ctx := context.Background()
	svc := NewMetadataService(memory.NewPlanStore(), compiler.New())

	_, err := svc.Latest(ctx, compiler.DEFAULT_PLAN_NAME)
	require.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, svc.Bootstrap(ctx))
	require.NoError(t, svc.Bootstrap(ctx))
	versions, err := svc.Versions(ctx, compiler.DEFAULT_PLAN_NAME)
	require.NoError(t, err)
	require.Equal(t, []int{1}, versions)

	latest, err := svc.Latest(ctx, compiler.DEFAULT_PLAN_NAME)
	require.NoError(t, err)
	require.Equal(t, 1, latest.Version)

	v2, err := svc.Register(ctx, compiler.DEFAULT_PLAN_NAME, compiler.DefaultTicketGraph())
	require.NoError(t, err)
	require.Equal(t, 2, v2.Version)

	latest, err = svc.Latest(ctx, compiler.DEFAULT_PLAN_NAME)
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)

	v1, err := svc.Get(ctx, compiler.DEFAULT_PLAN_NAME, 1)
	require.NoError(t, err)
	require.Equal(t, 1, v1.Version)
	require.Equal(t, v2.Steps, v1.Steps)
}

func TestRegisterRejectsInvalidGraph(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPlanStore()
	svc := NewMetadataService(store, compiler.New())
	g := model.Graph{
		Nodes: []model.Node{
			{Id: "a", Kind: model.TIMER_NODE, TimerDuration: "1s"},
			{Id: "b", Kind: model.TIMER_NODE, TimerDuration: "1s"},
		},
		Edges: []model.Edge{{Id: "e1", Source: "a", Target: "b"}, {Id: "e2", Source: "b", Target: "a"}},
	}
	_, err := svc.Register(ctx, "loop", g)
	require.Error(t, err)

	_, err = store.Latest(ctx, "loop")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	_, err = svc.Validate("loop", g)
	require.Error(t, err)
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	svc := NewMetadataService(memory.NewPlanStore(), compiler.New())
	require.NoError(t, svc.Bootstrap(ctx))
	_, err := svc.Register(ctx, compiler.DEFAULT_PLAN_NAME, compiler.DefaultTicketGraph())
	require.NoError(t, err)

	active, err := svc.LatestActive(ctx, compiler.DEFAULT_PLAN_NAME)
	require.NoError(t, err)
	require.Equal(t, 2, active.Version)

	require.NoError(t, svc.Deactivate(ctx, compiler.DEFAULT_PLAN_NAME, 2))
	active, err = svc.LatestActive(ctx, compiler.DEFAULT_PLAN_NAME)
	require.NoError(t, err)
	require.Equal(t, 1, active.Version)

	latest, err := svc.Latest(ctx, compiler.DEFAULT_PLAN_NAME)
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)

	summaries, err := svc.Summaries(ctx, compiler.DEFAULT_PLAN_NAME)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.True(t, summaries[0].Active)
	require.False(t, summaries[1].Active)

	require.NoError(t, svc.Deactivate(ctx, compiler.DEFAULT_PLAN_NAME, 1))
	_, err = svc.LatestActive(ctx, compiler.DEFAULT_PLAN_NAME)
	require.ErrorIs(t, err, persistence.ErrNotFound)

	// a new registration is active again
	v3, err := svc.Register(ctx, compiler.DEFAULT_PLAN_NAME, compiler.DefaultTicketGraph())
	require.NoError(t, err)
	active, err = svc.LatestActive(ctx, compiler.DEFAULT_PLAN_NAME)
	require.NoError(t, err)
	require.Equal(t, v3.Version, active.Version)

	require.ErrorIs(t, svc.Deactivate(ctx, compiler.DEFAULT_PLAN_NAME, 9), persistence.ErrNotFound)

	names, err := svc.Names(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{compiler.DEFAULT_PLAN_NAME}, names)
}
