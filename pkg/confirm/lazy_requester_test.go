package confirm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyRequester_UnsetFallsBackToCancel(t *testing.T) {
	t.Parallel()
	var l LazyRequester
	resp, err := l.RequestConfirmation(context.Background(), Request{Prompt: "allow?"})
	require.NoError(t, err)
	assert.Equal(t, ActionCancel, resp.Action)
}

func TestLazyRequester_SetForwards(t *testing.T) {
	t.Parallel()
	var l LazyRequester
	l.Set(&fakeRequester{resp: &Response{Action: ActionAccept}})
	resp, err := l.RequestConfirmation(context.Background(), Request{Prompt: "allow?"})
	require.NoError(t, err)
	assert.Equal(t, ActionAccept, resp.Action)
}

func TestLazyRequester_SetIsRaceSafe(t *testing.T) {
	t.Parallel()
	var l LazyRequester
	done := make(chan struct{})
	go func() {
		l.Set(&fakeRequester{resp: &Response{Action: ActionDecline}})
		close(done)
	}()
	_, _ = l.RequestConfirmation(context.Background(), Request{Prompt: "allow?"})
	<-done
}
