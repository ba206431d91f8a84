package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_EvictsStaleViewersAndBroadcaster(t *testing.T) {
	h, _ := newTestHub(t)
	b := joinBroadcaster(t, h, "b1")
	v1 := joinAnon(t, h, "v1")
	v2 := joinAnon(t, h, "v2")
	chatJoin(t, h, v1, "viewer", "")
	send(t, h, b, `{"type":"stream_start","title":"Hi"}`)

	_ = v1.Close()
	rep := h.Sweep()
	assert.Equal(t, 1, rep.Viewers)
	assert.Equal(t, 1, rep.ChatMembers)
	assert.False(t, rep.Broadcaster)
	assert.Equal(t, 1, h.ViewerCount())
	assert.Equal(t, 0, h.Status().ChatMembers)
	assert.Equal(t, "v1", b.last(t, "viewer_left")["viewerId"])
	assert.Equal(t, float64(1), v2.last(t, "viewer_count")["count"])

	_ = b.Close()
	rep = h.Sweep()
	assert.True(t, rep.Broadcaster)
	st := h.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.False(t, st.IsStreaming)
	assert.Equal(t, "broadcaster disconnected", v2.last(t, "stream_end")["message"])

	v3 := joinAnon(t, h, "v3")
	assert.Equal(t, "Ghost_s1", displayName(t, v3.last(t, "viewer_joined")))
}

func TestSweep_RebroadcastsDriftedCount(t *testing.T) {
	h, _ := newTestHub(t)
	b := joinBroadcaster(t, h, "b1")
	joinAnon(t, h, "v1")
	b.reset()

	rep := h.Sweep()
	assert.False(t, rep.CountRebroadcast)
	assert.Empty(t, b.ofType(t, "viewer_count"))

	h.mu.Lock()
	h.lastCount = 7
	h.mu.Unlock()

	rep = h.Sweep()
	assert.True(t, rep.CountRebroadcast)
	assert.Equal(t, float64(1), b.last(t, "viewer_count")["count"])
}

func TestSweep_ForgetsExpiredRateRecords(t *testing.T) {
	h, clk := newTestHub(t)
	v1 := joinAnon(t, h, "v1")
	require.Equal(t, true, chatSay(t, h, v1, "viewer", "hello", "a")["ok"])

	clk.Advance(10 * time.Second)
	assert.Equal(t, 1, h.Sweep().RateRecords)
}

func TestRun_SweepsUntilCanceled(t *testing.T) {
	h, _ := newTestHub(t, func(c *Config) { c.SweepInterval = 5 * time.Millisecond })
	v1 := joinAnon(t, h, "v1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	_ = v1.Close()
	require.Eventually(t, func() bool { return h.ViewerCount() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
