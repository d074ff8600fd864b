// Package node hosts the consensus-loop side of a store: it drains commands
// produced by the pd worker and schedules periodic PD reports.
package node

import (
	"time"

	"go.uber.org/zap"

	"nyxstore/internal/pd"
	"nyxstore/internal/raftstore"
	"nyxstore/internal/raftstore/pdworker"
	regionpkg "nyxstore/internal/region"
	"nyxstore/internal/server"
	"nyxstore/internal/transport"
)

const (
	DefaultStoreHeartbeatTicks  = 100
	DefaultValidatePeerInterval = time.Minute
)

// Applier consumes commands addressed to local regions. It stands for the
// Raft and storage layers, which live outside this module.
type Applier interface {
	Apply(msg raftstore.Msg) error
}

// StatsProvider reports store level statistics for store heartbeats.
type StatsProvider interface {
	StoreStats() pd.StoreStats
}

// LocalPeer is a region replica hosted on this store.
type LocalPeer struct {
	Region regionpkg.Region
	Peer   regionpkg.Peer
}

// RegionSource lists the replicas hosted on this store.
type RegionSource interface {
	LocalPeers() []LocalPeer
}

// TaskScheduler queues pd tasks without blocking. pdworker.Scheduler
// implements it.
type TaskScheduler interface {
	Schedule(task pdworker.Task) error
	Stop()
}

// Config tunes a Store.
type Config struct {
	StoreID uint64
	// StoreHeartbeatTicks is the number of ticks between store heartbeats.
	StoreHeartbeatTicks int
	// ValidatePeerInterval is the delay between peer validation rounds.
	// Zero disables validation.
	ValidatePeerInterval time.Duration
}

// Store is the server.Handler of a storage node. All methods run on the
// event loop goroutine.
type Store struct {
	server.BaseHandler

	cfg       Config
	inbound   *transport.SendCh[raftstore.Msg]
	scheduler TaskScheduler
	applier   Applier
	stats     StatsProvider
	regions   RegionSource
	logger    *zap.Logger

	ticks         int
	validateArmed bool
	startTime     time.Time
}

var _ server.Handler = (*Store)(nil)

// NewStore wires a store. inbound is the channel the pd worker delivers
// commands into; the store owns its receiving end.
func NewStore(cfg Config, inbound *transport.SendCh[raftstore.Msg], scheduler TaskScheduler,
	applier Applier, stats StatsProvider, regions RegionSource, logger *zap.Logger) *Store {
	if cfg.StoreHeartbeatTicks <= 0 {
		cfg.StoreHeartbeatTicks = DefaultStoreHeartbeatTicks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cfg:       cfg,
		inbound:   inbound,
		scheduler: scheduler,
		applier:   applier,
		stats:     stats,
		regions:   regions,
		logger:    logger.With(zap.Uint64("store_id", cfg.StoreID)),
		startTime: time.Now(),
	}
}

// OnTick applies queued commands and emits a store heartbeat every
// StoreHeartbeatTicks ticks.
func (s *Store) OnTick(sender *server.Sender) error {
	s.ticks++
	s.drainInbound()

	if !s.validateArmed && s.cfg.ValidatePeerInterval > 0 {
		if err := sender.Timeout(s.cfg.ValidatePeerInterval, server.TimerMsg{Kind: server.TimerValidatePeers}); err != nil {
			return err
		}
		s.validateArmed = true
	}

	if s.ticks%s.cfg.StoreHeartbeatTicks == 0 {
		s.scheduleStoreHeartbeat()
	}
	return nil
}

// drainInbound applies at most the messages queued when it starts, so a busy
// producer cannot starve the rest of the tick.
func (s *Store) drainInbound() {
	n := s.inbound.Len()
	for i := 0; i < n; i++ {
		var msg raftstore.Msg
		select {
		case m, ok := <-s.inbound.Receiver():
			if !ok {
				return
			}
			msg = m
		default:
			return
		}
		if s.applier == nil {
			continue
		}
		if err := s.applier.Apply(msg); err != nil {
			s.logger.Warn("apply message failed",
				zap.Uint64("region_id", uint64(msg.RegionID())),
				zap.Stringer("msg_type", msg.Type),
				zap.Error(err))
		}
	}
}

func (s *Store) scheduleStoreHeartbeat() {
	stats := pd.StoreStats{}
	if s.stats != nil {
		stats = s.stats.StoreStats()
	}
	stats.StoreID = s.cfg.StoreID
	if stats.StartTime.IsZero() {
		stats.StartTime = s.startTime
	}
	s.schedule(pdworker.StoreHeartbeat{Stats: stats})
}

// OnTimer starts a peer validation round and re-arms the timer.
func (s *Store) OnTimer(sender *server.Sender, msg server.TimerMsg) error {
	if msg.Kind != server.TimerValidatePeers {
		return nil
	}
	if s.regions != nil {
		for _, lp := range s.regions.LocalPeers() {
			s.schedule(pdworker.ValidatePeer{Region: lp.Region, Peer: lp.Peer})
		}
	}
	if s.cfg.ValidatePeerInterval > 0 {
		return sender.Timeout(s.cfg.ValidatePeerInterval, msg)
	}
	return nil
}

// OnQuit stops the pd worker, waiting for tasks in flight, and closes the
// inbound channel.
func (s *Store) OnQuit() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.inbound.Close()
	s.logger.Info("store stopped")
}

// AskSplit asks PD for ids to split region at splitKey.
func (s *Store) AskSplit(region regionpkg.Region, splitKey []byte, peer regionpkg.Peer) {
	s.schedule(pdworker.AskSplit{Region: region, SplitKey: splitKey, Peer: peer})
}

// RegionHeartbeat reports a region this store leads.
func (s *Store) RegionHeartbeat(region regionpkg.Region, leader regionpkg.Peer, down []pd.PeerStats, pending []regionpkg.Peer) {
	s.schedule(pdworker.Heartbeat{Region: region, Peer: leader, DownPeers: down, PendingPeers: pending})
}

// ReportSplit tells PD about a split this store applied.
func (s *Store) ReportSplit(left, right regionpkg.Region) {
	s.schedule(pdworker.ReportSplit{Left: left, Right: right})
}

func (s *Store) schedule(task pdworker.Task) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Schedule(task); err != nil {
		s.logger.Warn("failed to schedule pd task", zap.Stringer("task", task), zap.Error(err))
	}
}
