package pdworker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"nyxstore/internal/logutil"
	"nyxstore/internal/observability/tracing"
	"nyxstore/internal/pd"
	"nyxstore/internal/raftstore"
	regionpkg "nyxstore/internal/region"
	"nyxstore/internal/transport"
)

// Runner executes pd tasks against a PD client and turns PD's answers into
// commands for the store's consensus loop. A Runner holds no mutable state;
// all communication with the loop goes through ch by value.
type Runner struct {
	client  pd.Client
	ch      *transport.SendCh[raftstore.Msg]
	logger  *zap.Logger
	metrics Metrics
	tracer  trace.Tracer
	newUUID func() uuid.UUID
}

// Option customises a Runner.
type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithUUIDGenerator overrides how request ids are generated.
func WithUUIDGenerator(fn func() uuid.UUID) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newUUID = fn
		}
	}
}

// NewRunner creates a Runner that reports to client and delivers commands
// into ch.
func NewRunner(client pd.Client, ch *transport.SendCh[raftstore.Msg], opts ...Option) *Runner {
	r := &Runner{
		client:  client,
		ch:      ch,
		logger:  zap.NewNop(),
		metrics: NopMetrics{},
		tracer:  tracing.Tracer(),
		newUUID: uuid.New,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run handles one task to completion. Failures are logged and counted; they
// never escape.
func (r *Runner) Run(ctx context.Context, task Task) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "pd "+task.Kind(),
		trace.WithAttributes(attribute.Int64("region_id", int64(task.routingKey()))))
	defer span.End()
	ctx = logutil.WithFields(ctx, zap.String("task", task.Kind()))

	r.logger.Debug("executing task", zap.Stringer("task", task))

	switch t := task.(type) {
	case AskSplit:
		r.handleAskSplit(ctx, t)
	case Heartbeat:
		r.handleHeartbeat(ctx, t)
	case StoreHeartbeat:
		r.handleStoreHeartbeat(ctx, t)
	case ReportSplit:
		r.handleReportSplit(ctx, t)
	case ValidatePeer:
		r.handleValidatePeer(ctx, t)
	default:
		r.logger.Error("unknown pd task", zap.Stringer("task", task))
		span.SetStatus(codes.Error, "unknown task")
	}

	r.metrics.ObserveTask(task.Kind(), time.Since(start))
}

func (r *Runner) sendAdminRequest(ctx context.Context, region regionpkg.Region, peer regionpkg.Peer, req *raftstore.AdminRequest) {
	cmd := raftstore.NewAdminCmd(region, peer, req, r.newUUID())
	if err := r.ch.TrySend(raftstore.NewRaftCmdMsg(cmd, nil)); err != nil {
		r.metrics.IncDropped(req.CmdType.String())
		logutil.WithContext(ctx, r.logger).Warn("send admin request failed",
			zap.Uint64("region_id", uint64(region.ID)),
			zap.Stringer("cmd_type", req.CmdType),
			zap.Error(err))
	}
}

func (r *Runner) handleAskSplit(ctx context.Context, t AskSplit) {
	r.metrics.IncRequest(kindAskSplit, statusAll)
	logger := logutil.WithContext(ctx, r.logger)

	resp, err := r.client.AskSplit(ctx, t.Region)
	if err != nil {
		logger.Debug("failed to ask split",
			zap.Uint64("region_id", uint64(t.Region.ID)), zap.Error(err))
		recordError(ctx, err)
		return
	}
	r.metrics.IncRequest(kindAskSplit, statusSuccess)
	if resp == nil {
		return
	}

	logger.Info("try to split region",
		zap.Uint64("region_id", uint64(t.Region.ID)),
		zap.Uint64("new_region_id", uint64(resp.NewRegionID)),
		zap.Uint64s("new_peer_ids", resp.NewPeerIDs),
		zap.Stringer("epoch", t.Region.Epoch))
	req := raftstore.NewSplitRequest(t.SplitKey, resp.NewRegionID, resp.NewPeerIDs)
	r.sendAdminRequest(ctx, t.Region, t.Peer, req)
}

func (r *Runner) handleHeartbeat(ctx context.Context, t Heartbeat) {
	r.metrics.IncRequest(kindHeartbeat, statusAll)
	logger := logutil.WithContext(ctx, r.logger)

	resp, err := r.client.RegionHeartbeat(ctx, t.Region, t.Peer, t.DownPeers, t.PendingPeers)
	if err != nil {
		logger.Debug("failed to send heartbeat",
			zap.Uint64("region_id", uint64(t.Region.ID)), zap.Error(err))
		recordError(ctx, err)
		return
	}
	r.metrics.IncRequest(kindHeartbeat, statusSuccess)
	if resp == nil {
		return
	}

	// PD should never ask for both at once; if it does, only the membership
	// change is applied this round.
	switch {
	case resp.ChangePeer != nil:
		r.metrics.IncHeartbeatAction(actionChangePeer)
		cp := resp.ChangePeer
		logger.Info("try to change peer",
			zap.Uint64("region_id", uint64(t.Region.ID)),
			zap.Stringer("change_type", cp.ChangeType),
			zap.Uint64("peer_id", cp.Peer.ID),
			zap.Uint64("store_id", cp.Peer.StoreID))
		r.sendAdminRequest(ctx, t.Region, t.Peer, raftstore.NewChangePeerRequest(cp.ChangeType, cp.Peer))
	case resp.TransferLeader != nil:
		r.metrics.IncHeartbeatAction(actionTransferLeader)
		tl := resp.TransferLeader
		logger.Info("try to transfer leader",
			zap.Uint64("region_id", uint64(t.Region.ID)),
			zap.Uint64("from_peer_id", t.Peer.ID),
			zap.Uint64("to_peer_id", tl.Peer.ID))
		r.sendAdminRequest(ctx, t.Region, t.Peer, raftstore.NewTransferLeaderRequest(tl.Peer))
	}
}

func (r *Runner) handleStoreHeartbeat(ctx context.Context, t StoreHeartbeat) {
	r.metrics.IncRequest(kindStoreHeartbeat, statusAll)
	if err := r.client.StoreHeartbeat(ctx, t.Stats); err != nil {
		logFailure(logutil.WithContext(ctx, r.logger), "store heartbeat failed", err,
			zap.Uint64("store_id", t.Stats.StoreID))
		recordError(ctx, err)
		return
	}
	r.metrics.IncRequest(kindStoreHeartbeat, statusSuccess)
}

func (r *Runner) handleReportSplit(ctx context.Context, t ReportSplit) {
	r.metrics.IncRequest(kindReportSplit, statusAll)
	if err := r.client.ReportSplit(ctx, t.Left, t.Right); err != nil {
		logFailure(logutil.WithContext(ctx, r.logger), "report split failed", err,
			zap.Uint64("left_region_id", uint64(t.Left.ID)),
			zap.Uint64("right_region_id", uint64(t.Right.ID)))
		recordError(ctx, err)
		return
	}
	r.metrics.IncRequest(kindReportSplit, statusSuccess)
}

// sendDestroyPeerMessage asks peer to garbage-collect itself. The tombstone
// carries PD's epoch so the receiver can refuse it if it knows better.
func (r *Runner) sendDestroyPeerMessage(ctx context.Context, local regionpkg.Region, peer regionpkg.Peer, pdRegion *regionpkg.Region) {
	msg := raftstore.NewTombstoneMessage(local.ID, peer, pdRegion.Epoch)
	if err := r.ch.TrySend(raftstore.NewRaftMessageMsg(msg)); err != nil {
		r.metrics.IncDropped(raftstore.MsgRaftMessage.String())
		logutil.WithContext(ctx, r.logger).Warn("send gc peer message failed",
			zap.Uint64("region_id", uint64(local.ID)),
			zap.Uint64("peer_id", peer.ID),
			zap.Error(err))
	}
}

func (r *Runner) handleValidatePeer(ctx context.Context, t ValidatePeer) {
	r.metrics.IncRequest(kindGetRegion, statusAll)
	local := t.Region
	logger := logutil.WithContext(ctx, r.logger).With(
		zap.Uint64("region_id", uint64(local.ID)),
		zap.Uint64("peer_id", t.Peer.ID))

	pdRegion, err := r.client.GetRegionByID(ctx, local.ID)
	if err != nil {
		logFailure(logger, "get region failed", err)
		recordError(ctx, err)
		return
	}
	r.metrics.IncRequest(kindGetRegion, statusSuccess)

	if pdRegion == nil {
		// The split that created this region has not reached PD yet.
		// TODO: validate peers of merged regions once merge is reported to PD.
		logger.Debug("region not found in pd")
		return
	}

	if regionpkg.IsEpochStale(pdRegion.Epoch, local.Epoch) {
		// PD never caught up with a change this store already applied.
		logger.Error("local region epoch is newer than the epoch in pd",
			zap.Stringer("local_epoch", local.Epoch),
			zap.Stringer("pd_epoch", pdRegion.Epoch))
		r.metrics.IncValidatePeer(validateEpochError)
		return
	}

	if !pdRegion.HasPeer(t.Peer) {
		logger.Info("peer is not a member of the region in pd, to be destroyed",
			zap.Stringer("pd_epoch", pdRegion.Epoch),
			zap.Int("pd_peers", len(pdRegion.Peers)))
		r.metrics.IncValidatePeer(validatePeerStale)
		r.sendDestroyPeerMessage(ctx, local, t.Peer, pdRegion)
		return
	}

	logger.Info("peer is still valid", zap.Stringer("pd_epoch", pdRegion.Epoch))
	r.metrics.IncValidatePeer(validatePeerValid)
}

// logFailure logs a failed PD call at warn for transport failures and at error
// otherwise.
func logFailure(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if pd.IsTransportError(err) {
		logger.Warn(msg, fields...)
		return
	}
	logger.Error(msg, fields...)
}

func recordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
