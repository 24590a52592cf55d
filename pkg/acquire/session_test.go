package acquire

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heyjunin/HLSgrab/pkg/progress"
	"github.com/heyjunin/HLSgrab/pkg/remux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifications struct {
	mu   sync.Mutex
	list []Notification
}

func (n *notifications) add(x Notification) {
	n.mu.Lock()
	n.list = append(n.list, x)
	n.mu.Unlock()
}

func (n *notifications) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.list...)
}

func TestSessionSupersedesActiveJob(t *testing.T) {
	srv := newStreamServer(t)
	srv.addMedia("/slow/index.m3u8", 2, ".ts", false)
	srv.addMedia("/fast/index.m3u8", 2, ".ts", false)

	service := &fakeRemux{
		supported: []remux.ContainerType{remux.MP4},
		block:     func(source string) bool { return strings.Contains(source, "/slow/") },
	}
	h := newHarness(t, service, Options{})
	got := &notifications{}
	session := NewSession(h.orchestrator, got.add)

	first := session.Start(context.Background(), srv.URL+"/slow/index.m3u8")
	require.Eventually(t, func() bool { return service.calls.Load() == 1 }, 5*time.Second, time.Millisecond)
	assert.True(t, session.Busy())

	second := session.Start(context.Background(), srv.URL+"/fast/index.m3u8")
	session.Wait()
	assert.False(t, session.Busy())

	list := got.all()
	require.Len(t, list, 2, "exactly one notification per job")
	assert.Equal(t, OutcomeCancelled, list[0].Outcome)
	assert.Nil(t, list[0].Result)
	assert.Equal(t, OutcomeSucceeded, list[1].Outcome)
	require.NotNil(t, list[1].Result)
	assert.NotEqual(t, list[0].JobID, list[1].JobID)
	t.Cleanup(func() { list[1].Result.Cleanup() })

	assert.True(t, first.Cancelled())
	assert.Equal(t, progress.StatusCancelled, first.Snapshot().Status)
	assert.Equal(t, progress.StatusCompleted, second.Snapshot().Status)
}

func TestSessionCancel(t *testing.T) {
	srv := newStreamServer(t)
	srv.addMedia("/slow/index.m3u8", 2, ".ts", false)

	service := &fakeRemux{
		supported: []remux.ContainerType{remux.MP4},
		block:     func(string) bool { return true },
	}
	h := newHarness(t, service, Options{})
	got := &notifications{}
	session := NewSession(h.orchestrator, got.add)

	ch := session.Start(context.Background(), srv.URL+"/slow/index.m3u8")
	require.Eventually(t, func() bool { return service.calls.Load() == 1 }, 5*time.Second, time.Millisecond)

	session.Cancel()
	session.Cancel()
	session.Wait()

	list := got.all()
	require.Len(t, list, 1)
	assert.Equal(t, OutcomeCancelled, list[0].Outcome)

	var terminal int
	for e := range ch.Updates() {
		if e.Status.Terminal() {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal, "exactly one terminal event")
	assert.Empty(t, h.leftovers(t))
}

func TestSessionNotificationCarriesFailureDetails(t *testing.T) {
	srv := newStreamServer(t)
	h := newHarness(t, nil, Options{})
	got := &notifications{}
	session := NewSession(h.orchestrator, got.add)

	session.Start(context.Background(), srv.URL+"/missing.m3u8")
	session.Wait()

	list := got.all()
	require.Len(t, list, 1)
	n := list[0]
	assert.Equal(t, OutcomeFailed, n.Outcome)
	assert.Error(t, n.Err)
	assert.NotEmpty(t, n.JobID)
	assert.Equal(t, srv.URL+"/missing.m3u8", n.URL)
	assert.False(t, n.FinishedAt.Before(n.StartedAt))
}

func TestSessionNotifyMayQuerySession(t *testing.T) {
	srv := newStreamServer(t)
	srv.addMedia("/slow/index.m3u8", 2, ".ts", false)
	srv.addMedia("/fast/index.m3u8", 2, ".ts", false)

	service := &fakeRemux{
		supported: []remux.ContainerType{remux.MP4},
		block:     func(source string) bool { return strings.Contains(source, "/slow/") },
	}
	h := newHarness(t, service, Options{})
	got := &notifications{}
	var busy []bool
	var session *Session
	session = NewSession(h.orchestrator, func(n Notification) {
		busy = append(busy, session.Busy())
		got.add(n)
	})

	session.Start(context.Background(), srv.URL+"/slow/index.m3u8")
	require.Eventually(t, func() bool { return service.calls.Load() == 1 }, 5*time.Second, time.Millisecond)

	started := make(chan struct{})
	go func() {
		session.Start(context.Background(), srv.URL+"/fast/index.m3u8")
		close(started)
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return while the superseded job was notifying")
	}
	session.Wait()

	list := got.all()
	require.Len(t, list, 2)
	assert.Equal(t, OutcomeCancelled, list[0].Outcome)
	assert.Equal(t, OutcomeSucceeded, list[1].Outcome)
	require.NotNil(t, list[1].Result)
	t.Cleanup(func() { list[1].Result.Cleanup() })

	// The replacement job is already active while the first one is notified.
	assert.Equal(t, []bool{true, true}, busy)
}
