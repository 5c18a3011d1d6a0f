package confirm

import "context"

// NativeRequester is a Requester fallback for a gateway running without
// a client that declared elicitation capability: it always reports
// ActionCancel, distinguishable from a real decline so callers (and
// audit log entries) can tell "nobody was there to ask" apart from "the
// human said no".
type NativeRequester struct{}

// RequestConfirmation always cancels; there is no terminal attached to
// prompt a human through in a headless gateway process.
func (NativeRequester) RequestConfirmation(_ context.Context, _ Request) (*Response, error) {
	return &Response{Action: ActionCancel}, nil
}
