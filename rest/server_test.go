package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/ticketflow/action"
	"github.com/mohitkumar/ticketflow/cluster"
	"github.com/mohitkumar/ticketflow/compiler"
	"github.com/mohitkumar/ticketflow/engine"
	"github.com/mohitkumar/ticketflow/metadata"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence/memory"
	"github.com/mohitkumar/ticketflow/signal"
	"github.com/mohitkumar/ticketflow/timer"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	tickets := memory.NewTicketStore()
	registry := action.NewRegistry()
	require.NoError(t, action.NewTicketActivities(tickets, action.NewDefaultClassifier(), action.DefaultAgentPool()).Register(registry))
	executor := action.NewExecutor(registry, action.ExecutorConfig{RetryCount: 1, RetryAfter: time.Millisecond})
	ring := cluster.NewLocalRing(cluster.RingConfig{PartitionCount: 2}, "test")
	meta := metadata.NewMetadataService(memory.NewPlanStore(), compiler.New())
	require.NoError(t, meta.Bootstrap(ctx))
	e := engine.NewEngine(memory.NewInstanceStore(), meta, executor, timer.NewService(memory.NewTimerQueue(), ring, nil))

	wg := &sync.WaitGroup{}
	bus := signal.NewBus(ring, 8, wg)
	require.NoError(t, bus.Start(e))
	t.Cleanup(func() {
		require.NoError(t, bus.Stop())
		wg.Wait()
	})

	s, err := NewServer(0, meta, e, bus, tickets)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method string, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	var res map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	}
	return rec, res
}

func TestPlanEndpoints(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, s *Server){
		"register and fetch a plan": func(t *testing.T, s *Server) {
			rec, res := do(t, s, http.MethodPost, "/plans/support", compiler.DefaultTicketGraph())
			require.Equal(t, http.StatusCreated, rec.Code)
			require.Equal(t, "support", res["name"])
			require.EqualValues(t, 1, res["version"])

			rec, res = do(t, s, http.MethodGet, "/plans/support", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			require.EqualValues(t, 1, res["version"])

			rec, _ = do(t, s, http.MethodGet, "/plans/support/1", nil)
			require.Equal(t, http.StatusOK, rec.Code)

			rec, res = do(t, s, http.MethodGet, "/plans/support/versions", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, []any{float64(1)}, res["versions"])
		},
		"invalid graph is rejected with its code": func(t *testing.T, s *Server) {
			g := model.Graph{Nodes: []model.Node{
				{Id: "a", Kind: model.ACTIVITY_NODE, ActivityName: "A"},
				{Id: "b", Kind: model.ACTIVITY_NODE, ActivityName: "B"},
			}}
			rec, res := do(t, s, http.MethodPost, "/plans/broken", g)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, string(compiler.NO_START_NODE), res["code"])

			rec, _ = do(t, s, http.MethodGet, "/plans/broken", nil)
			require.Equal(t, http.StatusNotFound, rec.Code)
		},
		"deactivated version is withdrawn": func(t *testing.T, s *Server) {
			rec, _ := do(t, s, http.MethodPost, "/plans/support", compiler.DefaultTicketGraph())
			require.Equal(t, http.StatusCreated, rec.Code)
			rec, _ = do(t, s, http.MethodPost, "/plans/support", compiler.DefaultTicketGraph())
			require.Equal(t, http.StatusCreated, rec.Code)

			rec, _ = do(t, s, http.MethodPost, "/plans/support/2/deactivate", nil)
			require.Equal(t, http.StatusNoContent, rec.Code)
			rec, res := do(t, s, http.MethodGet, "/plans/support", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			require.EqualValues(t, 1, res["version"])

			rec, res = do(t, s, http.MethodGet, "/plans/support/summaries", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			summaries := res["summaries"].([]any)
			require.Len(t, summaries, 2)
			require.Equal(t, true, summaries[0].(map[string]any)["active"])
			require.Equal(t, false, summaries[1].(map[string]any)["active"])

			// a deactivated version stays readable by number
			rec, _ = do(t, s, http.MethodGet, "/plans/support/2", nil)
			require.Equal(t, http.StatusOK, rec.Code)

			rec, _ = do(t, s, http.MethodPost, "/plans/support/1/deactivate", nil)
			require.Equal(t, http.StatusNoContent, rec.Code)
			rec, _ = do(t, s, http.MethodGet, "/plans/support", nil)
			require.Equal(t, http.StatusNotFound, rec.Code)
			rec, _ = do(t, s, http.MethodPost, "/plans/support/messages", map[string]any{"id": "m-1", "from": "alice", "body": "hi"})
			require.Equal(t, http.StatusNotFound, rec.Code)

			rec, _ = do(t, s, http.MethodPost, "/plans/support/7/deactivate", nil)
			require.Equal(t, http.StatusNotFound, rec.Code)
		},
		"list plan names": func(t *testing.T, s *Server) {
			rec, _ := do(t, s, http.MethodPost, "/plans/support", compiler.DefaultTicketGraph())
			require.Equal(t, http.StatusCreated, rec.Code)
			rec, res := do(t, s, http.MethodGet, "/plans", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			require.Equal(t, []any{"support", compiler.DEFAULT_PLAN_NAME}, res["names"])
		},
		"validate does not register": func(t *testing.T, s *Server) {
			rec, _ := do(t, s, http.MethodPost, "/plans/dry/validate", compiler.DefaultTicketGraph())
			require.Equal(t, http.StatusOK, rec.Code)
			rec, _ = do(t, s, http.MethodGet, "/plans/dry", nil)
			require.Equal(t, http.StatusNotFound, rec.Code)
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, newTestServer(t))
		})
	}
}

func TestMessageAndSignalEndpoints(t *testing.T) {
	s := newTestServer(t)
	msg := map[string]any{"id": "m-1", "from": "alice", "channel": "chat", "body": "refund please"}

	rec, res := do(t, s, http.MethodPost, "/messages", msg)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, true, res["created"])
	require.Equal(t, string(model.COMPLETED), res["status"])
	id := res["instanceId"].(string)
	require.Equal(t, engine.InstanceId("alice", 1), id)

	rec, res = do(t, s, http.MethodPost, "/plans/"+compiler.DEFAULT_PLAN_NAME+"/messages", map[string]any{"id": "m-2", "from": "alice", "body": "still waiting"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, res["created"])
	require.Equal(t, id, res["instanceId"])

	rec, res = do(t, s, http.MethodGet, "/instances/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ticketId := res["variables"].(map[string]any)["ticket"].(map[string]any)["id"].(string)

	rec, res = do(t, s, http.MethodGet, "/tickets/"+ticketId, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, res["messages"], 2)

	rec, _ = do(t, s, http.MethodPost, "/instances/"+id+"/signals/resolve", map[string]any{"resolution": "refunded"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		_, res := do(t, s, http.MethodGet, "/tickets/"+ticketId, nil)
		return res["status"] == string(model.TICKET_CLOSED)
	}, time.Second, 5*time.Millisecond)

	rec, res = do(t, s, http.MethodGet, "/customers/alice/tickets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, res["tickets"], 1)

	rec, _ = do(t, s, http.MethodPost, "/instances/"+id+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)
	for scenario, tc := range map[string]struct {
		method string
		path   string
		body   any
		code   int
	}{
		"message without sender": {http.MethodPost, "/messages", map[string]any{"text": "hi"}, http.StatusBadRequest},
		"unknown plan":           {http.MethodPost, "/plans/missing/messages", map[string]any{"sender": "bob"}, http.StatusNotFound},
		"unknown instance":       {http.MethodGet, "/instances/missing", nil, http.StatusNotFound},
		"unknown ticket":         {http.MethodGet, "/tickets/missing", nil, http.StatusNotFound},
		"unknown plan version":   {http.MethodGet, "/plans/" + compiler.DEFAULT_PLAN_NAME + "/9", nil, http.StatusNotFound},
	} {
		t.Run(scenario, func(t *testing.T) {
			rec, res := do(t, s, tc.method, tc.path, tc.body)
			require.Equal(t, tc.code, rec.Code)
			require.NotEmpty(t, res["error"])
		})
	}
}
