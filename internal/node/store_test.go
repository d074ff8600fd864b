package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"nyxstore/internal/pd/mockpd"
	"nyxstore/internal/raftstore"
	"nyxstore/internal/raftstore/pdworker"
	regionpkg "nyxstore/internal/region"
	"nyxstore/internal/server"
	"nyxstore/internal/transport"
)

type fakeScheduler struct {
	tasks   []pdworker.Task
	err     error
	stopped int
}

func (f *fakeScheduler) Schedule(task pdworker.Task) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeScheduler) Stop() { f.stopped++ }

type recordingApplier struct {
	msgs []raftstore.Msg
	err  error
}

func (a *recordingApplier) Apply(msg raftstore.Msg) error {
	a.msgs = append(a.msgs, msg)
	return a.err
}

func newSender() *server.Sender {
	return server.NewLoop(server.BaseHandler{}, server.Config{}, nil).Sender()
}

func tombstone(id regionpkg.ID) raftstore.Msg {
	return raftstore.NewRaftMessageMsg(raftstore.NewTombstoneMessage(id, regionpkg.Peer{ID: 1}, regionpkg.Epoch{}))
}

func TestStoreDrainsInboundOnTick(t *testing.T) {
	inbound := transport.NewSendCh[raftstore.Msg]("store", 8)
	applier := &recordingApplier{err: errors.New("region not found")}
	s := NewStore(Config{StoreID: 1}, inbound, &fakeScheduler{}, applier, nil, nil, nil)

	require.NoError(t, inbound.TrySend(tombstone(1)))
	require.NoError(t, inbound.TrySend(tombstone(2)))
	require.NoError(t, s.OnTick(newSender()))

	require.Len(t, applier.msgs, 2)
	assert.Equal(t, regionpkg.ID(1), applier.msgs[0].RegionID())
	assert.Equal(t, regionpkg.ID(2), applier.msgs[1].RegionID())
	assert.Equal(t, 0, inbound.Len())
}

func TestStoreHeartbeatEveryNTicks(t *testing.T) {
	inbound := transport.NewSendCh[raftstore.Msg]("store", 8)
	sched := &fakeScheduler{}
	table := NewRegionTable()
	table.Put(regionpkg.Region{ID: 1}, regionpkg.Peer{ID: 1, StoreID: 7})
	s := NewStore(Config{StoreID: 7, StoreHeartbeatTicks: 3}, inbound, sched, nil, table, nil, nil)

	sender := newSender()
	for i := 0; i < 7; i++ {
		require.NoError(t, s.OnTick(sender))
	}

	require.Len(t, sched.tasks, 2)
	hb, ok := sched.tasks[0].(pdworker.StoreHeartbeat)
	require.True(t, ok)
	assert.Equal(t, uint64(7), hb.Stats.StoreID)
	assert.Equal(t, uint32(1), hb.Stats.RegionCount)
	assert.False(t, hb.Stats.StartTime.IsZero())
}

func TestStoreValidatePeersTimer(t *testing.T) {
	inbound := transport.NewSendCh[raftstore.Msg]("store", 8)
	sched := &fakeScheduler{}
	table := NewRegionTable()
	table.Put(regionpkg.Region{ID: 9}, regionpkg.Peer{ID: 90, StoreID: 1})
	table.Put(regionpkg.Region{ID: 4}, regionpkg.Peer{ID: 40, StoreID: 1})
	s := NewStore(Config{StoreID: 1, ValidatePeerInterval: time.Hour}, inbound, sched, nil, nil, table, nil)

	sender := newSender()
	require.NoError(t, s.OnTimer(sender, server.TimerMsg{Kind: server.TimerCustom}))
	assert.Empty(t, sched.tasks)

	require.NoError(t, s.OnTimer(sender, server.TimerMsg{Kind: server.TimerValidatePeers}))
	require.Len(t, sched.tasks, 2)
	first := sched.tasks[0].(pdworker.ValidatePeer)
	second := sched.tasks[1].(pdworker.ValidatePeer)
	assert.Equal(t, regionpkg.ID(4), first.Region.ID)
	assert.Equal(t, uint64(40), first.Peer.ID)
	assert.Equal(t, regionpkg.ID(9), second.Region.ID)
}

func TestStoreScheduleFailureIsLogged(t *testing.T) {
	inbound := transport.NewSendCh[raftstore.Msg]("store", 8)
	sched := &fakeScheduler{err: errors.New("queue full")}
	s := NewStore(Config{StoreID: 1}, inbound, sched, nil, nil, nil, nil)

	assert.NotPanics(t, func() {
		s.AskSplit(regionpkg.Region{ID: 1}, []byte("k"), regionpkg.Peer{ID: 1})
	})
	assert.Empty(t, sched.tasks)
}

func TestStoreScheduleFailureLoggedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	inbound := transport.NewSendCh[raftstore.Msg]("store", 8)
	outbound := transport.NewSendCh[raftstore.Msg]("pd", 8)
	sched := pdworker.NewScheduler(pdworker.Config{WorkerCount: 1, QueueCapacity: 1},
		mockpd.New(0), outbound, logger)
	s := NewStore(Config{StoreID: 1}, inbound, sched, nil, nil, nil, logger)

	s.AskSplit(regionpkg.Region{ID: 1}, []byte("k"), regionpkg.Peer{ID: 1})
	assert.Equal(t, 0, logs.Len())
	s.AskSplit(regionpkg.Region{ID: 1}, []byte("k"), regionpkg.Peer{ID: 1})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "failed to schedule pd task", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	sched.Stop()
}

func TestStoreForwardsRegionEvents(t *testing.T) {
	inbound := transport.NewSendCh[raftstore.Msg]("store", 8)
	sched := &fakeScheduler{}
	s := NewStore(Config{StoreID: 1}, inbound, sched, nil, nil, nil, nil)

	r := regionpkg.Region{ID: 3}
	s.AskSplit(r, []byte("k"), regionpkg.Peer{ID: 1})
	s.RegionHeartbeat(r, regionpkg.Peer{ID: 1}, nil, nil)
	s.ReportSplit(r, regionpkg.Region{ID: 4})

	require.Len(t, sched.tasks, 3)
	assert.IsType(t, pdworker.AskSplit{}, sched.tasks[0])
	assert.IsType(t, pdworker.Heartbeat{}, sched.tasks[1])
	assert.IsType(t, pdworker.ReportSplit{}, sched.tasks[2])
}

func TestStoreOnQuit(t *testing.T) {
	inbound := transport.NewSendCh[raftstore.Msg]("store", 8)
	sched := &fakeScheduler{}
	s := NewStore(Config{StoreID: 1}, inbound, sched, nil, nil, nil, nil)

	s.OnQuit()
	assert.Equal(t, 1, sched.stopped)
	assert.ErrorIs(t, inbound.TrySend(tombstone(1)), transport.ErrChannelClosed)
}

type notifyApplier struct {
	inner   Applier
	applied chan regionpkg.ID
}

func (a notifyApplier) Apply(msg raftstore.Msg) error {
	err := a.inner.Apply(msg)
	select {
	case a.applied <- msg.RegionID():
	default:
	}
	return err
}

// TestStoreEndToEnd runs a store on a real loop and pd worker: a region whose
// peer was removed in PD gets destroyed after one validation round.
func TestStoreEndToEnd(t *testing.T) {
	client := mockpd.New(0)
	epoch := regionpkg.Epoch{Version: 1, ConfVersion: 2}
	client.PutRegion(regionpkg.Region{ID: 5, Epoch: epoch, Peers: []regionpkg.Peer{{ID: 2, StoreID: 2}}})
	client.PutRegion(regionpkg.Region{ID: 6, Epoch: epoch, Peers: []regionpkg.Peer{{ID: 3, StoreID: 1}}})

	table := NewRegionTable()
	table.Put(regionpkg.Region{ID: 5, Epoch: epoch, Peers: []regionpkg.Peer{{ID: 1, StoreID: 1}}}, regionpkg.Peer{ID: 1, StoreID: 1})
	table.Put(regionpkg.Region{ID: 6, Epoch: epoch, Peers: []regionpkg.Peer{{ID: 3, StoreID: 1}}}, regionpkg.Peer{ID: 3, StoreID: 1})

	inbound := transport.NewSendCh[raftstore.Msg]("store", 16)
	applier := notifyApplier{inner: TableApplier{Table: table}, applied: make(chan regionpkg.ID, 16)}
	sched := pdworker.NewScheduler(pdworker.Config{WorkerCount: 2}, client, inbound, nil,
		pdworker.WithUUIDGenerator(uuid.New))
	require.NoError(t, sched.Start(context.Background()))

	s := NewStore(Config{StoreID: 1, StoreHeartbeatTicks: 1, ValidatePeerInterval: 5 * time.Millisecond},
		inbound, sched, applier, table, table, nil)
	loop := server.NewLoop(s, server.Config{TickInterval: 2 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case id := <-applier.applied:
		assert.Equal(t, regionpkg.ID(5), id)
	case <-time.After(5 * time.Second):
		t.Fatal("tombstone not applied")
	}
	require.Eventually(t, func() bool {
		_, ok := client.StoreStats(1)
		return ok
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}

	// The table is owned by the loop goroutine; it is safe to read once Run
	// has returned.
	_, ok := table.Get(5)
	assert.False(t, ok)
	_, ok = table.Get(6)
	assert.True(t, ok)
	assert.ErrorIs(t, inbound.TrySend(tombstone(1)), transport.ErrChannelClosed)
}
