package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalsConnectEmitDisconnect(t *testing.T) {
	sig := NewSignals()

	var got []string
	id := sig.Connect("changed", func(sender any, params ...any) {
		got = append(got, sender.(string))
	})
	sig.Connect("changed", func(sender any, params ...any) {
		got = append(got, "second")
	})

	sig.Emit("changed", "first")
	assert.Equal(t, []string{"first", "second"}, got)

	sig.Disconnect("changed", id)
	got = nil
	sig.Emit("changed", "first")
	assert.Equal(t, []string{"second"}, got)

	// unknown events are a no-op
	sig.Emit("other", nil)
}
