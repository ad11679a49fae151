package liveness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgth/SpatialVisualizer/internal/timeutil"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []*osc.Message
}

func (r *recordingSender) Send(msg *osc.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSender) addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Address
	}
	return out
}

func (r *recordingSender) count(address string) int {
	n := 0
	for _, a := range r.addresses() {
		if a == address {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T) (*Manager, *recordingSender, *timeutil.MockClock, *[]string) {
	t.Helper()
	sender := &recordingSender{}
	clock := timeutil.NewMockClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	var reasons []string
	m := NewManager(sender, Config{
		Clock:      clock,
		OnRegister: func(reason string) { reasons = append(reasons, reason) },
	})
	return m, sender, clock, &reasons
}

func TestManager_StartRegisters(t *testing.T) {
	m, sender, _, reasons := newTestManager(t)
	assert.Equal(t, Unregistered, m.State())

	m.Start(9000)

	require.Len(t, sender.msgs, 1)
	assert.Equal(t, "/truehdd/register", sender.msgs[0].Address)
	assert.Equal(t, []interface{}{int32(9000)}, sender.msgs[0].Arguments)
	assert.Equal(t, Registered, m.State())
	assert.Equal(t, []string{ReasonStartup}, *reasons)
}

func TestManager_TickBeforeStartIsNoop(t *testing.T) {
	m, sender, _, _ := newTestManager(t)
	m.Tick()
	m.HandleUnknown()
	assert.Empty(t, sender.msgs)
}

func TestManager_HeartbeatAndAck(t *testing.T) {
	m, sender, clock, _ := newTestManager(t)
	m.Start(9000)

	clock.Advance(5 * time.Second)
	m.Tick()
	assert.Equal(t, []string{"/truehdd/register", "/truehdd/heartbeat"}, sender.addresses())
	assert.Equal(t, []interface{}{int32(9000)}, sender.msgs[1].Arguments)
	assert.Equal(t, AwaitingAck, m.State())

	m.HandleAck()
	assert.Equal(t, Registered, m.State())
	st := m.Status()
	assert.Equal(t, clock.Now(), st.LastAck)
	assert.Equal(t, 1, st.Acks)
	assert.Equal(t, 1, st.Heartbeats)
	assert.Equal(t, "registered", st.State)
}

// Without acks, each timeout window produces exactly one re-registration.
func TestManager_OneReregistrationPerTimeoutWindow(t *testing.T) {
	m, sender, clock, reasons := newTestManager(t)
	m.Start(9000)

	want := map[int]int{5: 1, 10: 1, 15: 2, 20: 2, 25: 2, 30: 3, 35: 3, 40: 3, 45: 4}
	for elapsed := 5; elapsed <= 45; elapsed += 5 {
		clock.Advance(5 * time.Second)
		m.Tick()
		assert.Equal(t, want[elapsed], sender.count("/truehdd/register"), "after %ds", elapsed)
	}
	assert.Equal(t, 9, sender.count("/truehdd/heartbeat"))
	assert.Equal(t, []string{ReasonStartup, ReasonTimeout, ReasonTimeout, ReasonTimeout}, *reasons)
}

func TestManager_AcksPreventReregistration(t *testing.T) {
	m, sender, clock, _ := newTestManager(t)
	m.Start(9000)

	for i := 0; i < 10; i++ {
		clock.Advance(5 * time.Second)
		m.Tick()
		m.HandleAck()
	}
	assert.Equal(t, 1, sender.count("/truehdd/register"))
}

func TestManager_UnknownReregistersImmediately(t *testing.T) {
	m, sender, _, reasons := newTestManager(t)
	m.Start(9000)

	m.HandleUnknown()
	assert.Equal(t, 2, sender.count("/truehdd/register"))
	assert.Equal(t, []string{ReasonStartup, ReasonUnknown}, *reasons)
	assert.Equal(t, 2, m.Status().Registrations)
}

func TestManager_RunTicksOnClock(t *testing.T) {
	sender := &recordingSender{}
	clock := timeutil.NewMockClock(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	m := NewManager(sender, Config{Clock: clock, Interval: time.Second, Timeout: 2 * time.Second})
	m.Start(9100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return clock.TickerCount() == 1 }, time.Second, time.Millisecond)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return sender.count("/truehdd/heartbeat") == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
