package broadcast_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowscan/internal/broadcast"
	"flowscan/internal/config"
	"flowscan/internal/flowscan"
	"flowscan/internal/session"
)

// drain returns every queued message without blocking, and whether the queue is still open.
func drain(o *broadcast.Observer) ([]broadcast.Message, bool) {
	var msgs []broadcast.Message
	for {
		select {
		case m, ok := <-o.Messages():
			if !ok {
				return msgs, false
			}
			msgs = append(msgs, m)
		default:
			return msgs, true
		}
	}
}

func types(msgs []broadcast.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func newHub() *broadcast.Hub {
	return broadcast.NewHub(config.Settings{Sources: []string{"https://flows.example.org"}, MaxFlows: 10}, flowscan.NewNopLogger())
}

func TestHub_AttachResync(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		h := newHub()
		o := h.Attach("a")

		msgs, open := drain(o)
		require.True(t, open)
		require.Len(t, msgs, 1)
		assert.Equal(t, broadcast.TypeInit, msgs[0].Type)

		payload := msgs[0].Payload.(broadcast.InitPayload)
		assert.Equal(t, session.Idle, payload.Status)
		assert.Equal(t, 10, payload.Config.MaxFlows)
	})

	t.Run("mid scan", func(t *testing.T) {
		h := newHub()
		h.OnStart()
		h.OnLog("fetching\n")
		h.OnStatus([]string{"page 2 of 5"}, 40)

		o := h.Attach("late")
		msgs, _ := drain(o)
		require.Equal(t, []string{broadcast.TypeInit, broadcast.TypeLogs, broadcast.TypeStatus}, types(msgs))

		assert.Equal(t, session.Scanning, msgs[0].Payload.(broadcast.InitPayload).Status)
		assert.Equal(t, "fetching\n", msgs[1].Payload)
		assert.Equal(t, broadcast.StatusPayload{Text: []string{"page 2 of 5"}, Percentage: 40}, msgs[2].Payload)
	})

	t.Run("after end", func(t *testing.T) {
		h := newHub()
		h.OnStart()
		h.OnLog("done\n")
		h.OnEnd(0, true)

		o := h.Attach("after")
		msgs, _ := drain(o)
		require.Equal(t, []string{broadcast.TypeInit, broadcast.TypeLogs, broadcast.TypeEnd}, types(msgs))
		assert.Equal(t, session.End, msgs[0].Payload.(broadcast.InitPayload).Status)
		assert.Equal(t, broadcast.EndPayload{Code: 0, Stopped: true}, msgs[2].Payload)
	})

	t.Run("start clears previous run", func(t *testing.T) {
		h := newHub()
		h.OnStart()
		h.OnLog("old\n")
		h.OnEnd(1, false)
		h.OnStart()

		o := h.Attach("x")
		msgs, _ := drain(o)
		require.Equal(t, []string{broadcast.TypeInit, broadcast.TypeStatus}, types(msgs))
		assert.Equal(t, broadcast.StatusPayload{Text: []string{}}, msgs[1].Payload)
	})
}

func TestHub_Broadcast(t *testing.T) {
	h := newHub()
	a := h.Attach("a")
	b := h.Attach("b")
	drain(a)
	drain(b)

	h.OnStart()
	h.OnLog("x\n")
	h.OnStatus([]string{"one"}, 10)
	h.OnEnd(3, false)

	want := []string{broadcast.TypeStartScan, broadcast.TypeLogs, broadcast.TypeStatus, broadcast.TypeEnd}
	for _, o := range []*broadcast.Observer{a, b} {
		msgs, open := drain(o)
		assert.True(t, open)
		assert.Equal(t, want, types(msgs), "observer %s", o.ID)
		assert.Equal(t, broadcast.EndPayload{Code: 3}, msgs[3].Payload)
	}
}

func TestHub_SlowObserverIsDropped(t *testing.T) {
	h := newHub()
	h.SetQueueSize(2)
	slow := h.Attach("slow")
	fast := h.Attach("fast")
	drain(fast)

	h.OnStart()
	drain(fast)
	h.OnLog("a\n")
	drain(fast)
	h.OnLog("a\nb\n")

	msgs, open := drain(slow)
	assert.False(t, open, "slow observer queue closed")
	assert.Equal(t, []string{broadcast.TypeInit, broadcast.TypeStartScan}, types(msgs))

	msgs, open = drain(fast)
	assert.True(t, open)
	assert.Equal(t, []string{broadcast.TypeLogs}, types(msgs))
	assert.Equal(t, 1, h.Len())
}

func TestHub_ResyncLargerThanQueue(t *testing.T) {
	h := newHub()
	h.SetQueueSize(1)
	h.OnStart()
	h.OnLog("x\n")

	o := h.Attach("tiny")
	msgs, open := drain(o)
	assert.False(t, open)
	assert.Equal(t, []string{broadcast.TypeInit}, types(msgs))
	assert.Zero(t, h.Len())
}

func TestHub_Reply(t *testing.T) {
	h := newHub()
	a := h.Attach("a")
	b := h.Attach("b")
	drain(a)
	drain(b)

	h.Reply(a, broadcast.Rejected(broadcast.TypeStartScan, errors.New("scan already running")))

	msgs, _ := drain(a)
	require.Len(t, msgs, 1)
	assert.Equal(t, broadcast.TypeCommandRejected, msgs[0].Type)
	assert.Equal(t, broadcast.RejectedPayload{Command: "start-scan", Reason: "scan already running"}, msgs[0].Payload)

	msgs, _ = drain(b)
	assert.Empty(t, msgs)
}

func TestHub_SetConfig(t *testing.T) {
	h := newHub()
	a := h.Attach("a")
	drain(a)

	next := config.Settings{Categories: []string{"iot"}}
	h.SetConfig(next)

	msgs, _ := drain(a)
	require.Len(t, msgs, 1)
	assert.Equal(t, broadcast.TypeSettings, msgs[0].Type)
	assert.Equal(t, next, msgs[0].Payload)
	assert.Equal(t, []string{"iot"}, h.Settings().Categories)

	late := h.Attach("late")
	msgs, _ = drain(late)
	assert.Equal(t, next, msgs[0].Payload.(broadcast.InitPayload).Config)
}

func TestHub_Detach(t *testing.T) {
	h := newHub()
	a := h.Attach("a")
	h.Detach(a)
	h.Detach(a)

	_, open := drain(a)
	assert.False(t, open)
	assert.Zero(t, h.Len())

	h.OnLog("ignored\n")
	h.Reply(a, broadcast.SettingsChanged(true))
}

func TestHub_Close(t *testing.T) {
	h := newHub()
	a := h.Attach("a")
	b := h.Attach("b")
	h.Close()

	for _, o := range []*broadcast.Observer{a, b} {
		_, open := drain(o)
		assert.False(t, open)
	}
	assert.Zero(t, h.Len())
}
