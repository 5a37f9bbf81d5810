package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devghori1264/feederbalancer/internal/models"
)

func ev(i int, node string) models.Event {
	return models.Event{
		ID:        fmt.Sprintf("EV-%05d", i),
		Timestamp: time.Unix(int64(i), 0).UTC(),
		Type:      models.EventSystem,
		NodeID:    node,
		Severity:  models.SeverityInfo,
	}
}

func TestListNewestFirst(t *testing.T) {
	l := NewLog(10)
	for i := 0; i < 3; i++ {
		l.Push(ev(i, "ND-001"))
	}
	got := l.List(10, "")
	require.Len(t, got, 3)
	assert.Equal(t, "EV-00002", got[0].ID)
	assert.Equal(t, "EV-00000", got[2].ID)

	assert.Len(t, l.List(2, ""), 2)
	assert.Len(t, l.List(0, ""), 3)
}

func TestListFilterByNode(t *testing.T) {
	l := NewLog(10)
	l.Push(ev(0, "ND-001"))
	l.Push(ev(1, "ND-002"))
	l.Push(ev(2, "ND-001"))
	l.Push(ev(3, "ND-002"))

	got := l.List(10, "ND-001")
	require.Len(t, got, 2)
	assert.Equal(t, "EV-00002", got[0].ID)
	assert.Equal(t, "EV-00000", got[1].ID)

	assert.Len(t, l.List(1, "ND-002"), 1)
	assert.Empty(t, l.List(10, "ND-404"))
}

func TestLogBoundedAtDefaultCapacity(t *testing.T) {
	l := NewLog(0)
	require.Equal(t, DefaultCapacity, l.Capacity())

	for i := 0; i < DefaultCapacity+1; i++ {
		l.Push(ev(i, "ND-001"))
	}
	got := l.List(DefaultCapacity+1, "")
	require.Len(t, got, DefaultCapacity)
	assert.Equal(t, DefaultCapacity, l.Len())
	assert.Equal(t, fmt.Sprintf("EV-%05d", DefaultCapacity), got[0].ID)
	assert.Equal(t, "EV-00001", got[len(got)-1].ID)
	for _, e := range got {
		assert.NotEqual(t, "EV-00000", e.ID)
	}
}

func TestSubscribe(t *testing.T) {
	l := NewLog(4)
	ch, cancel := l.Subscribe()

	l.Push(ev(1, "ND-001"))
	select {
	case got := <-ch:
		assert.Equal(t, "EV-00001", got.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	l.Push(ev(2, "ND-001"))
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	l := NewLog(8)
	_, cancel := l.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			l.Push(ev(i, "ND-001"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked on a full subscriber")
	}
	assert.Equal(t, 8, l.Len())
}
