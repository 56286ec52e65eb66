package broadcast

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wanghui5801/fleetmon/internal/models"
)

func event(id string, to models.Status) models.StatusChange {
	return models.StatusChange{
		NodeID:    id,
		OldStatus: models.StatusMaintenance,
		NewStatus: to,
		Time:      time.Now().UTC(),
	}
}

func TestPublishReachesEveryObserver(t *testing.T) {
	hub := NewHub(4, nil)
	defer hub.Close()

	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.Publish(event("n1", models.StatusRunning))

	for _, o := range []*Observer{a, b} {
		select {
		case ev := <-o.Events():
			require.Equal(t, "n1", ev.NodeID)
			require.Equal(t, models.StatusRunning, ev.NewStatus)
		case <-time.After(time.Second):
			t.Fatal("observer never received the event")
		}
	}
}

func TestSlowObserverDropsOldest(t *testing.T) {
	hub := NewHub(2, nil)
	defer hub.Close()

	o := hub.Subscribe()
	for i := 0; i < 5; i++ {
		hub.Publish(event("n"+strconv.Itoa(i), models.StatusRunning))
	}
	o.Close()

	var got []string
	for ev := range o.Events() {
		got = append(got, ev.NodeID)
	}
	// Queue of 2 keeps the newest events; the rest were evicted.
	require.Equal(t, []string{"n3", "n4"}, got)
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	hub := NewHub(16, nil)
	defer hub.Close()

	o := hub.Subscribe()
	for i := 0; i < 10; i++ {
		hub.Publish(event("n1", models.StatusRunning))
		hub.Publish(event("n1", models.StatusStopped))
	}
	o.Close()

	var seq []models.Status
	for ev := range o.Events() {
		seq = append(seq, ev.NewStatus)
	}
	require.Len(t, seq, 16)
	for i, st := range seq {
		want := models.StatusRunning
		if i%2 == 1 {
			want = models.StatusStopped
		}
		require.Equal(t, want, st, "event %d out of order", i)
	}
}

func TestObserverCloseIsIdempotent(t *testing.T) {
	hub := NewHub(4, nil)
	defer hub.Close()

	o := hub.Subscribe()
	o.Close()
	o.Close()

	// Publishing after close must not panic or deliver.
	hub.Publish(event("n1", models.StatusRunning))
	_, open := <-o.Events()
	require.False(t, open)
}

func TestHubCloseReleasesObservers(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.Close()

	for _, o := range []*Observer{a, b} {
		_, open := <-o.Events()
		require.False(t, open)
	}

	// Subscribing after close returns an already-closed observer.
	late := hub.Subscribe()
	_, open := <-late.Events()
	require.False(t, open)
	late.Close()
}
