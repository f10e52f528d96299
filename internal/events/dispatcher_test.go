package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryDispatcher(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()
	var calls []string

	dispatcher.Subscribe(EventSessionIssued, func(_ context.Context, e Event) error {
		calls = append(calls, "first:"+e.SubjectID)
		return errors.New("first failed")
	})
	dispatcher.Subscribe(EventSessionIssued, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.SubjectID)
		return nil
	})
	dispatcher.Subscribe(EventSessionRevoked, func(context.Context, Event) error {
		calls = append(calls, "revoked")
		return nil
	})

	err := dispatcher.Publish(context.Background(), Event{Type: EventSessionIssued, SubjectID: "s-1"})
	assert.EqualError(t, err, "first failed")
	assert.Equal(t, []string{"first:s-1", "second:s-1"}, calls)

	assert.NoError(t, dispatcher.Publish(context.Background(), Event{Type: EventGuestMigrated}))
	assert.Len(t, calls, 2)
}
