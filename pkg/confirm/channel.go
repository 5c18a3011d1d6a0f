// Package confirm implements the gateway's out-of-band confirmation
// channel: a human-in-the-loop yes/no gate that egress policy and the
// internal tool host's management plugin use before taking an
// action a script or client cannot pre-approve by config alone.
package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Action is the outcome a requester reports for one confirmation.
type Action string

// Supported actions, named after the MCP elicitation response actions
// this channel is designed to sit behind when the client supports them.
const (
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
	ActionCancel  Action = "cancel"
)

// Sentinel errors.
var (
	ErrTimeout      = errors.New("confirm: request timed out")
	ErrSchemaTooLarge = errors.New("confirm: schema too large")
)

// maxSchemaBytes bounds a Request's Schema, mirroring the 100KiB cap the
// teacher's elicitation handler applies before it will forward a request
// to the client.
const maxSchemaBytes = 100 * 1024

const (
	defaultTimeout = time.Minute
	maxTimeout     = 10 * time.Minute
)

// Request is one confirmation ask: a human-readable prompt plus an
// optional structured schema describing the fields being confirmed
// (e.g. the destination host/port for an egress prompt).
type Request struct {
	Prompt  string
	Schema  map[string]any
	Timeout time.Duration
}

// Response is the requester's answer.
type Response struct {
	Action  Action
	Content map[string]any
}

// Requester is the transport-level seam: something capable of asking
// the connected MCP client (or any other out-of-band surface) to
// confirm a Request. SDKRequester, below, is the production
// implementation wired to an mcp-go server session; tests substitute a
// fake.
type Requester interface {
	RequestConfirmation(ctx context.Context, req Request) (*Response, error)
}

// Channel implements egress.Confirmer and is the confirmation channel the
// egress policy and internal tool host depend on: it validates and bounds a Request,
// caps its timeout, and translates a Requester's Response into the
// simple allow/deny boolean callers want.
type Channel struct {
	requester Requester
}

// New constructs a Channel backed by requester. A nil requester makes
// every Confirm call fail with ErrTimeout, so a gateway run without a
// confirmation-capable client fails closed rather than silently
// approving every prompt.
func New(requester Requester) *Channel {
	return &Channel{requester: requester}
}

// Confirm asks prompt and reports whether the requester accepted it.
// Decline and Cancel both report false; only a genuine transport error
// (including a timeout) is returned as an error.
func (c *Channel) Confirm(ctx context.Context, prompt string) (bool, error) {
	resp, err := c.Request(ctx, Request{Prompt: prompt, Timeout: defaultTimeout})
	if err != nil {
		return false, err
	}
	return resp.Action == ActionAccept, nil
}

// Request issues a full Request, capping its timeout to maxTimeout and
// rejecting an oversized Schema before ever reaching the Requester.
func (c *Channel) Request(ctx context.Context, req Request) (*Response, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("confirm: prompt is required")
	}
	if err := validateSchemaSize(req.Schema); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}
	req.Timeout = timeout

	if c.requester == nil {
		return nil, ErrTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.requester.RequestConfirmation(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("confirm: request failed: %w", err)
	}
	if resp == nil {
		return &Response{Action: ActionCancel}, nil
	}
	return resp, nil
}

func validateSchemaSize(schema map[string]any) error {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("confirm: schema is not serializable: %w", err)
	}
	if len(raw) > maxSchemaBytes {
		return ErrSchemaTooLarge
	}
	return nil
}
