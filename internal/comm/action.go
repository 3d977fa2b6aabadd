package comm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
)

// Action names recognised by the control plane. The dispatcher does not
// hardcode a closed switch over these: Do accepts any action name, so a
// caller with a typed response can issue actions this package does not
// itself wrap.
const (
	ActionSequenceCreate       = "sequence_create"
	ActionSequenceFinalize     = "sequence_finalize"
	ActionSequenceNotifyCreate = "sequence_notify_create"
	ActionSequenceSystemInfo   = "sequence_system_info"
	ActionSequenceAbort        = "sequence_abort"
	ActionSequenceDelete       = "sequence_delete"
	ActionTopicCreate          = "topic_create"
	ActionTopicNotifyCreate    = "topic_notify_create"
	ActionTopicSystemInfo      = "topic_system_info"
	ActionTopicDelete          = "topic_delete"
	ActionQuery                = "query"
)

// ErrProtocol is the sentinel for "response missing/mismatched fields".
var ErrProtocol = errors.New("comm: protocol error")

// ErrNoResponse indicates the server returned no usable response chunk;
// this is not itself an error condition for the caller, who checks for it
// explicitly when it matters.
var ErrNoResponse = errors.New("comm: action returned no response")

// actionEnvelope is the wire shape `{ "action": "<name>"|"empty", "response": <obj> }`.
type actionEnvelope struct {
	Action   string          `json:"action"`
	Response json.RawMessage `json:"response"`
}

// KeyResponse is returned by sequence_create and topic_create: the
// server-issued ownership token.
type KeyResponse struct {
	Key string `json:"key"`
}

// SystemInfoResponse is returned by sequence_system_info and
// topic_system_info.
type SystemInfoResponse struct {
	TotalSizeBytes  int64     `json:"total_size_bytes"`
	CreatedDatetime time.Time `json:"created_datetime"`
	IsLocked        bool      `json:"is_locked"`
	ChunksNumber    *int64    `json:"chunks_number,omitempty"`
}

// QueryResponseItem is one row of a QueryResponse.
type QueryResponseItem struct {
	Sequence string   `json:"sequence"`
	Topics   []string `json:"topics"`
}

// QueryResponse is returned by the query action.
type QueryResponse struct {
	Items []QueryResponseItem `json:"items"`
}

// Do invokes a single control-plane action and decodes at most one non-empty
// response chunk into dst (a pointer to one of the response variants above,
// or nil when no response body is expected, e.g. delete/finalize/abort).
//
// Further response chunks beyond the first non-empty one are ignored. A
// chunk whose top-level "action" field is missing, equals the literal
// string "empty", or mismatches the requested action name is treated as
// no-response: Do returns ErrNoResponse in that case, leaving dst untouched.
func Do(ctx context.Context, client flight.Client, action string, payload any, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("comm: encoding payload for action %q: %w", action, err)
	}

	stream, err := client.DoAction(ctx, &flight.Action{Type: action, Body: body})
	if err != nil {
		return fmt.Errorf("comm: action %q failed: %w", action, err)
	}

	for {
		result, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return ErrNoResponse
		}
		if err != nil {
			return fmt.Errorf("comm: action %q failed: %w", action, err)
		}
		if len(result.Body) == 0 {
			continue
		}

		var env actionEnvelope
		if err := json.Unmarshal(result.Body, &env); err != nil {
			return fmt.Errorf("%w: action %q: malformed envelope: %v", ErrProtocol, action, err)
		}
		if env.Action == "" || env.Action == "empty" || env.Action != action {
			return ErrNoResponse
		}
		if dst == nil {
			return nil
		}
		if err := json.Unmarshal(env.Response, dst); err != nil {
			return fmt.Errorf("%w: action %q: response does not match expected shape: %v", ErrProtocol, action, err)
		}
		return nil
	}
}
