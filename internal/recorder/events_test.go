package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(o *observer) []Event {
	var out []Event
	for {
		select {
		case ev := <-o.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestObserverDropsTicksWhenFull(t *testing.T) {
	o := newObserver(1, 2)
	for i := 1; i <= 5; i++ {
		o.send(Event{Kind: EventTick, Seconds: i})
	}
	got := drain(o)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Seconds)
	assert.Equal(t, 2, got[1].Seconds)
}

func TestObserverAlwaysDeliversTerminalEvents(t *testing.T) {
	o := newObserver(1, 4)
	o.send(Event{Kind: EventStarted, SessionID: "s1"})
	for i := 0; i < 10; i++ {
		o.send(Event{Kind: EventAmplitude, Level: i})
	}
	o.send(Event{Kind: EventStopped, SessionID: "s1", Path: "/rec/rec1.wav"})

	got := drain(o)
	require.Len(t, got, 4)
	last := got[len(got)-1]
	assert.Equal(t, EventStopped, last.Kind)
	assert.Equal(t, "/rec/rec1.wav", last.Path)

	// a buffer of one still ends on the terminal event
	o = newObserver(2, 1)
	o.send(Event{Kind: EventTick})
	o.send(Event{Kind: EventStarted, SessionID: "s2"})
	o.send(Event{Kind: EventStopped, SessionID: "s2"})
	got = drain(o)
	require.Len(t, got, 1)
	assert.Equal(t, EventStopped, got[0].Kind)
}
