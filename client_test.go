package mosaico

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queryOnlyServer answers the control-plane actions a Client exercises in
// these tests, recording the payloads it receives.
type queryOnlyServer struct {
	flight.BaseFlightServer

	mu      sync.Mutex
	queries []map[string]any
	deletes []map[string]any
}

func (s *queryOnlyServer) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	var body map[string]any
	_ = json.Unmarshal(action.Body, &body)

	switch action.Type {
	case "topic_delete":
		s.mu.Lock()
		s.deletes = append(s.deletes, body)
		s.mu.Unlock()
		return nil
	case "query":
		s.mu.Lock()
		s.queries = append(s.queries, body)
		s.mu.Unlock()
		payload, _ := json.Marshal(map[string]any{
			"action": "query",
			"response": map[string]any{
				"items": []map[string]any{
					{"sequence": "seq-A", "topics": []string{"/t1", "/t2"}},
				},
			},
		})
		return stream.Send(&flight.Result{Body: payload})
	case "sequence_delete":
		s.mu.Lock()
		s.deletes = append(s.deletes, body)
		s.mu.Unlock()
		return nil
	default:
		return nil
	}
}

func startServer(t *testing.T) (*queryOnlyServer, string, int) {
	t.Helper()
	svc := &queryOnlyServer{}
	srv := flight.NewServerWithMiddleware(nil)
	require.NoError(t, srv.Init("localhost:0"))
	srv.RegisterFlightService(svc)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { srv.Shutdown() })

	host, portStr, err := net.SplitHostPort(srv.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return svc, host, port
}

func connectClient(t *testing.T) (*Client, *queryOnlyServer) {
	t.Helper()
	svc, host, port := startServer(t)
	client, err := Connect(context.Background(), host, port,
		WithConnectionPoolSize(1),
		WithWorkerLaneCount(1),
		WithDialTimeout(5*time.Second),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, svc
}

func TestClientQueryEmitsRootPayload(t *testing.T) {
	client, svc := connectClient(t)

	topicQ := NewQueryTopic("user_metadata")
	leaf, err := BuildCatalogProxy(QueryDomainTopic, catalogFields()).Field("name")
	require.NoError(t, err)
	expr, err := leaf.Eq("/t1")
	require.NoError(t, err)
	require.NoError(t, topicQ.Add(expr))

	resp, err := client.Query(context.Background(), topicQ)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "seq-A", resp.Items[0].Sequence)
	assert.Equal(t, []string{"/t1", "/t2"}, resp.Items[0].Topics)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.queries, 1)
	assert.Equal(t, map[string]any{
		"topic": map[string]any{"name": map[string]any{"$eq": "/t1"}},
	}, svc.queries[0])
}

func TestClientQueryRejectsDuplicateDomains(t *testing.T) {
	client, _ := connectClient(t)
	_, err := client.Query(context.Background(), NewQueryTopic(), NewQueryTopic())
	require.Error(t, err)
}

func TestClientDeleteSequenceIsBestEffort(t *testing.T) {
	client, svc := connectClient(t)

	client.DeleteSequence(context.Background(), "seq-gone")

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.deletes, 1)
	assert.Equal(t, "seq-gone", svc.deletes[0]["name"])
}

func TestClientDeleteTopicIsBestEffort(t *testing.T) {
	client, svc := connectClient(t)

	client.DeleteTopic(context.Background(), "seq-A", "/t1")

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.deletes, 1)
	assert.Equal(t, "seq-A/t1", svc.deletes[0]["name"])
}

func TestClientCloseRejectsFurtherUse(t *testing.T) {
	client, _ := connectClient(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close()) // idempotent

	_, err := client.Query(context.Background(), NewQueryTopic())
	require.ErrorIs(t, err, ErrClientClosed)
	_, err = client.ConnectSequence(context.Background(), "seq-A")
	require.ErrorIs(t, err, ErrClientClosed)
}

func catalogFields() []arrow.Field {
	return []arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "user_metadata", Type: arrow.MapOf(arrow.BinaryTypes.String, arrow.BinaryTypes.String)},
	}
}
