package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tasklift/autopilot/internal/models"
)

func TestPublishFansOut(t *testing.T) {
	b := New()

	var first, second []models.EventType
	require.NoError(t, b.Subscribe("first", func(e models.Event) {
		first = append(first, e.Type)
	}))
	require.NoError(t, b.Subscribe("second", func(e models.Event) {
		second = append(second, e.Type)
	}))

	b.Publish(models.Event{Type: models.EventTypeUsageUpdated})

	require.Equal(t, []models.EventType{models.EventTypeUsageUpdated}, first)
	require.Equal(t, []models.EventType{models.EventTypeUsageUpdated}, second)
}

func TestDuplicateSubscriberRejected(t *testing.T) {
	b := New()
	require.NoError(t, b.Subscribe("x", func(models.Event) {}))
	require.ErrorIs(t, b.Subscribe("x", func(models.Event) {}), ErrDuplicateSubscriber)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()

	calls := 0
	require.NoError(t, b.Subscribe("x", func(models.Event) { calls++ }))
	b.Publish(models.Event{Type: models.EventTypeWarning})
	require.NoError(t, b.Unsubscribe("x"))
	b.Publish(models.Event{Type: models.EventTypeWarning})

	require.Equal(t, 1, calls)
	require.ErrorIs(t, b.Unsubscribe("x"), ErrSubscriberNotFound)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New()

	require.NoError(t, b.Subscribe("bad", func(models.Event) {
		panic("handler bug")
	}))

	delivered := false
	require.NoError(t, b.Subscribe("good", func(models.Event) {
		delivered = true
	}))

	require.NotPanics(t, func() {
		b.Publish(models.Event{Type: models.EventTypeError})
	})
	require.True(t, delivered)
}
