package comm

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// scriptedActionServer replies to DoAction with a fixed list of result
// chunks, recording every call it sees.
type scriptedActionServer struct {
	flight.BaseFlightServer

	mu      sync.Mutex
	calls   []recordedAction
	results []*flight.Result
}

type recordedAction struct {
	Type string
	Body map[string]any
}

func (s *scriptedActionServer) DoAction(action *flight.Action, stream flight.FlightService_DoActionServer) error {
	s.mu.Lock()
	var body map[string]any
	_ = json.Unmarshal(action.Body, &body)
	s.calls = append(s.calls, recordedAction{Type: action.Type, Body: body})
	results := s.results
	s.mu.Unlock()

	for _, r := range results {
		if err := stream.Send(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *scriptedActionServer) lastCall(t *testing.T) recordedAction {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.calls)
	return s.calls[len(s.calls)-1]
}

func startActionServer(t *testing.T, svc flight.FlightServer) flight.Client {
	t.Helper()
	srv := flight.NewServerWithMiddleware(nil)
	require.NoError(t, srv.Init("localhost:0"))
	srv.RegisterFlightService(svc)
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { srv.Shutdown() })

	client, err := flight.NewClientWithMiddleware(srv.Addr().String(), nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func envelope(t *testing.T, action string, response any) *flight.Result {
	t.Helper()
	body, err := json.Marshal(map[string]any{"action": action, "response": response})
	require.NoError(t, err)
	return &flight.Result{Body: body}
}

func TestDoDecodesKeyResponse(t *testing.T) {
	svc := &scriptedActionServer{results: []*flight.Result{
		envelope(t, ActionSequenceCreate, map[string]any{"key": "K-123"}),
	}}
	client := startActionServer(t, svc)

	var resp KeyResponse
	err := Do(context.Background(), client, ActionSequenceCreate,
		map[string]any{"name": "seq-A"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "K-123", resp.Key)

	call := svc.lastCall(t)
	assert.Equal(t, ActionSequenceCreate, call.Type)
	assert.Equal(t, "seq-A", call.Body["name"])
}

func TestDoSkipsEmptyChunksAndIgnoresExtras(t *testing.T) {
	svc := &scriptedActionServer{results: []*flight.Result{
		{Body: nil},
		envelope(t, ActionTopicCreate, map[string]any{"key": "first"}),
		envelope(t, ActionTopicCreate, map[string]any{"key": "second"}),
	}}
	client := startActionServer(t, svc)

	var resp KeyResponse
	err := Do(context.Background(), client, ActionTopicCreate, map[string]any{}, &resp)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Key)
}

func TestDoNoResponseVariants(t *testing.T) {
	tests := []struct {
		name    string
		results []*flight.Result
	}{
		{name: "no chunks at all", results: nil},
		{name: "literal empty action", results: []*flight.Result{
			envelopeRaw(`{"action":"empty","response":{}}`),
		}},
		{name: "missing action field", results: []*flight.Result{
			envelopeRaw(`{"response":{}}`),
		}},
		{name: "mismatched action name", results: []*flight.Result{
			envelopeRaw(`{"action":"sequence_create","response":{}}`),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &scriptedActionServer{results: tt.results}
			client := startActionServer(t, svc)
			err := Do(context.Background(), client, ActionSequenceFinalize, map[string]any{}, nil)
			require.ErrorIs(t, err, ErrNoResponse)
		})
	}
}

func envelopeRaw(s string) *flight.Result {
	return &flight.Result{Body: []byte(s)}
}

func TestDoMalformedEnvelopeIsProtocolError(t *testing.T) {
	svc := &scriptedActionServer{results: []*flight.Result{
		envelopeRaw(`{{not json`),
	}}
	client := startActionServer(t, svc)
	err := Do(context.Background(), client, ActionQuery, map[string]any{}, nil)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestDoNilDstAcceptsMatchingEnvelope(t *testing.T) {
	svc := &scriptedActionServer{results: []*flight.Result{
		envelope(t, ActionSequenceDelete, map[string]any{}),
	}}
	client := startActionServer(t, svc)
	err := Do(context.Background(), client, ActionSequenceDelete, map[string]any{"name": "seq"}, nil)
	require.NoError(t, err)
}

func TestDoResponseShapeMismatch(t *testing.T) {
	svc := &scriptedActionServer{results: []*flight.Result{
		envelope(t, ActionSequenceCreate, map[string]any{"key": 42}),
	}}
	client := startActionServer(t, svc)

	var resp KeyResponse
	err := Do(context.Background(), client, ActionSequenceCreate, map[string]any{}, &resp)
	require.ErrorIs(t, err, ErrProtocol)
}
