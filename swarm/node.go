// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package swarm

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/qres/raas-core/aggregate"
	"github.com/qres/raas-core/audit"
	"github.com/qres/raas-core/config"
	"github.com/qres/raas-core/fixedpoint"
	"github.com/qres/raas-core/gossip"
	"github.com/qres/raas-core/logx"
	"github.com/qres/raas-core/modelstore"
	"github.com/qres/raas-core/regime"
	"github.com/qres/raas-core/reputation"
	"github.com/qres/raas-core/scheduler"
	"github.com/qres/raas-core/telemetry"
	"github.com/qres/raas-core/wire"
)

// PeerID is the swarm-wide 32-byte peer identifier.
type PeerID = wire.PeerID

// Node is the per-device swarm member of spec.md §3/§5: one owned
// SwarmState tying every subsystem package behind the single step_round
// entry point. It holds no locks and is not safe for concurrent use from
// more than one goroutine — spec §5's "single-threaded, cooperative"
// execution model — mirroring the teacher's top-level consensus.go, which
// re-exports a struct holding every subsystem behind one clean surface.
type Node struct {
	cfg    config.Config
	logger logx.Logger

	signingKey ed25519.PrivateKey
	self       PeerID

	reputation *reputation.Table
	detector   *regime.Detector
	store      *modelstore.ModelStore
	scheduler  *scheduler.Scheduler
	queue      *gossip.Queue
	reassembly *gossip.Reassembler
	metrics    *telemetry.Metrics

	predictor Predictor
	sensor    Sensor
	radio     Radio

	round            uint64
	noProgressRounds uint64
	byzantineEMA     float64
	energyPercent    int
	epochHash        [32]byte
	model            fixedpoint.Vector
	lastResidual     fixedpoint.Q16_16

	pendingEvals map[PeerID][]fixedpoint.Q16_16
}

// NewNode constructs a Node. backend persists the model snapshot chain
// (modelstore.Storage); clock drives the scheduler's reputation-scaled
// cadence (scheduler.Clock); predictor, sensor, and radio are the three
// external interfaces spec §6 requires every host environment to supply.
func NewNode(cfg config.Config, signingKey ed25519.PrivateKey, backend modelstore.Storage, clock scheduler.Clock, predictor Predictor, sensor Sensor, radio Radio, logger logx.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	self, err := wire.DerivePeerID(signingKey.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	store, err := modelstore.New(backend)
	if err != nil {
		return nil, err
	}
	model := fixedpoint.ZeroVector(cfg.ModelDim)
	if head, ok := store.Head(); ok {
		model = head.Model
	}

	detCfg := regime.Config{
		VoteThreshold:         fixedpoint.Q16_16(cfg.VoteThreshold),
		QuorumMin:             cfg.QuorumMin,
		VoteWindow:            cfg.VoteWindow,
		ThetaDerivative:       fixedpoint.Q16_16(cfg.ThetaDerivative),
		ThetaStormEnter:       fixedpoint.Q16_16(cfg.ThetaStormEnter),
		ThetaStormExit:        fixedpoint.Q16_16(cfg.ThetaStormExit),
		HysteresisCalmToPre:   cfg.HysteresisCalmToPre,
		HysteresisPreToStorm:  cfg.HysteresisPreToStorm,
		HysteresisPreToCalm:   cfg.HysteresisPreToCalm,
		HysteresisStormToCalm: cfg.HysteresisStormToCalm,
		EnergyCritical:        cfg.EnergyCritical,
		TMaxRounds:            cfg.TMaxRounds,
	}

	if logger == nil {
		logger = logx.NewNoOp()
	}

	n := &Node{
		cfg:           cfg,
		logger:        logger,
		signingKey:    signingKey,
		self:          self,
		reputation:    reputation.NewTable(fixedpoint.Q16_16(cfg.InitialTrust), fixedpoint.Q16_16(cfg.BanThreshold)),
		detector:      regime.NewDetector(detCfg),
		store:         store,
		scheduler:     scheduler.NewScheduler(cfg, scheduler.Scheduled, clock),
		queue:         gossip.NewQueue(cfg.GossipQueueCapacity),
		reassembly:    gossip.NewReassembler(cfg.ReassemblyTimeout),
		metrics:       telemetry.New(),
		predictor:     predictor,
		sensor:        sensor,
		radio:         radio,
		energyPercent: 100,
		model:         model,
		pendingEvals:  make(map[PeerID][]fixedpoint.Q16_16),
	}
	return n, nil
}

// Self returns this node's derived PeerID.
func (n *Node) Self() PeerID { return n.self }

// Regime returns the currently committed regime.
func (n *Node) Regime() regime.Regime { return n.detector.State() }

// Metrics exposes the Prometheus registry for scraping.
func (n *Node) Metrics() *telemetry.Metrics { return n.metrics }

// SetEnergyPercent records the host's current EnergyPool reserve, read by
// the regime detector's INV-5 override and the gossip engine's INV-6 guard
// on the next StepRound/Gossip call. The EnergyPool itself is owned by the
// host environment (spec §5: "EnergyPool owned by the scheduler, borrowed
// via a spend capability"); this core tracks only the percentage it reports.
func (n *Node) SetEnergyPercent(pct int) {
	n.energyPercent = pct
	n.metrics.EnergyPercent.Set(float64(pct))
}

// Observe feeds one Sensor/Predictor-derived entropy sample into the
// regime detector ahead of the next StepRound (spec §4.3).
func (n *Node) Observe(rawEntropy fixedpoint.Q16_16) {
	n.detector.Observe(rawEntropy)
}

// SubmitPeerEval buffers one peer-submitted evaluation score for peer, the
// slander-resistant feedback channel of spec §4.5. Scores are not applied
// immediately: they accumulate per target until the next StepRound, which
// folds each target's batch through a median (reputation.Median) before
// applying it as a single delta. This is what makes the channel slander-
// resistant — fewer than a third of a batch pushing an extreme score
// cannot move the median, whereas applying each score as a direct
// additive delta would let any single submission move it.
func (n *Node) SubmitPeerEval(peer PeerID, score fixedpoint.Q16_16) {
	n.pendingEvals[peer] = append(n.pendingEvals[peer], score)
}

// flushPeerEvals applies this round's buffered peer evaluations, one
// median-folded delta per target, then clears the buffer for the next
// round.
func (n *Node) flushPeerEvals() {
	for peer, scores := range n.pendingEvals {
		n.reputation.ApplyEvals(peer, n.round, scores)
	}
	n.pendingEvals = make(map[PeerID][]fixedpoint.Q16_16)
}

// Snapshot returns the most recently persisted model snapshot.
func (n *Node) Snapshot() (modelstore.Snapshot, bool) {
	return n.store.Head()
}

// StepRound runs one full consensus round (spec §5/§6's step_round):
// admit and aggregate inbox, apply reputation penalties, advance the
// regime detector, decide this round's audit targets, predict and enqueue
// this node's own outbound update, and persist the resulting model. It
// returns the signed GhostUpdate this node should broadcast, the regime
// committed after this round, and the interval the caller should sleep
// before the next round (scheduler.Scheduler.Wait's argument).
func (n *Node) StepRound(ctx context.Context, inbox []wire.GhostUpdate) (StepResult, error) {
	n.round++
	n.metrics.RoundsTotal.Inc()

	inputs := n.admit(inbox)
	result := aggregate.Aggregate(inputs, n.cfg.ModelDim, n.reputation.BannedCount(), n.reputation.Len(), n.reputation.BanRateOverWindow(n.round, n.cfg.AuditConvictionWindow), n.byzantineEMA)

	for _, p := range result.Penalties {
		n.reputation.Apply(p.Peer, n.round, p.Delta)
	}
	n.flushPeerEvals()
	nUnbanned := 0
	for _, in := range inputs {
		if !in.Banned {
			nUnbanned++
		}
	}
	n.updateByzantineEMA(nUnbanned-len(result.Penalties), len(result.Penalties))

	if result.Warning {
		n.noProgressRounds++
	} else {
		n.noProgressRounds = 0
		n.model = fixedpoint.AddVec(n.model, result.Delta)
	}

	for _, in := range inputs {
		weight := reputation.Influence(in.Score, reputation.InfluenceExponent(n.reputation.ActiveCount()))
		n.metrics.ObserveInfluence(weight.Float64())
	}

	before := n.detector.State()
	newRegime := n.detector.Step(n.round, n.energyPercent)
	if newRegime != before {
		n.metrics.RecordRegimeTransition(newRegime.String())
		n.scheduler.EmergencyWake()
	}

	if n.detector.LivenessExceeded(n.noProgressRounds) {
		n.recoverFromLiveness()
	}

	targets := n.auditTargets()

	outbound, err := n.buildOutbound(ctx)
	if err != nil {
		return StepResult{}, err
	}
	n.enqueueOutbound(outbound)
	n.metrics.GossipQueueDepth.Set(float64(n.queue.Len()))
	n.metrics.ReputationBannedPeers.Set(float64(n.reputation.BannedCount()))

	if err := n.store.Save(n.round, n.model); err != nil {
		n.logger.Warn("model snapshot save failed", "round", n.round, "err", err)
	}

	reputationSelf := n.reputation.Score(n.self)
	sleep := n.scheduler.Interval(newRegime, reputationSelf, n.cfg.BaseIntervalStorm)

	return StepResult{
		Outbound:    outbound,
		Regime:      newRegime,
		Sleep:       sleep,
		AuditTargets: targets,
		Mode:        result.Mode,
	}, nil
}

// StepResult is StepRound's outcome (spec §6's step_round return tuple,
// plus the audit targets and aggregation mode a caller commonly logs).
type StepResult struct {
	Outbound     wire.GhostUpdate
	Regime       regime.Regime
	Sleep        time.Duration
	AuditTargets []PeerID
	Mode         aggregate.Mode
}

// admit converts inbox into aggregate.Input, attaching each sender's
// current reputation snapshot and ban state (spec §4.2's admission gate
// runs inside Aggregate itself; this just supplies the reputation view).
func (n *Node) admit(inbox []wire.GhostUpdate) []aggregate.Input {
	inputs := make([]aggregate.Input, 0, len(inbox))
	for _, u := range inbox {
		inputs = append(inputs, aggregate.Input{
			Update: u,
			Score:  n.reputation.Score(u.Sender),
			Banned: n.reputation.Banned(u.Sender),
		})
	}
	return inputs
}

// updateByzantineEMA maintains the exponential moving average of the
// per-round penalized fraction (penalized inputs over all non-banned
// inputs) that Aggregate consumes as its
// observedByzantineFraction parameter (see aggregate.Aggregate's doc
// comment and DESIGN.md).
func (n *Node) updateByzantineEMA(nAdmitted, nPenalized int) {
	total := nAdmitted + nPenalized
	if total == 0 {
		return
	}
	const alpha = 0.1
	sample := float64(nPenalized) / float64(total)
	n.byzantineEMA = alpha*sample + (1-alpha)*n.byzantineEMA
}

// recoverFromLiveness implements INV-7: roll the model store back to its
// head (a no-op if nothing newer was ever committed) and reset the regime
// detector, then clear the no-progress counter so the fallback does not
// immediately re-trigger.
func (n *Node) recoverFromLiveness() {
	n.logger.Warn("liveness bound exceeded, rolling back", "round", n.round, "noProgressRounds", n.noProgressRounds)
	if head, ok := n.store.Head(); ok {
		n.model = head.Model
		_ = n.store.Rollback(head.Round)
	}
	n.detector.Reset()
	n.noProgressRounds = 0
	n.scheduler.EmergencyWake()
}

// auditTargets decides and returns this round's stochastic audit targets
// (spec §4.4). It never performs the challenge/response handshake itself
// — that is asynchronous over Radio and is the caller's responsibility,
// per spec §5's rule that the auditor never suspends the consensus path.
func (n *Node) auditTargets() []PeerID {
	if !audit.ShouldAudit(n.cfg, n.round, n.detector.LastObserved()) {
		return nil
	}
	active := n.reputation.ActivePeers()
	count := audit.TargetCount(len(active), n.cfg.AuditRate)
	return audit.SelectTargets(n.round, n.epochHash, active, count)
}

// buildOutbound asks the Predictor for this node's local update, packages
// it as a signed GhostUpdate, and computes its residual error via the
// Sensor.
func (n *Node) buildOutbound(ctx context.Context) (wire.GhostUpdate, error) {
	prediction, err := n.predictor.Predict(ctx)
	if err != nil {
		return wire.GhostUpdate{}, err
	}
	observed, err := n.sensor.Observe(ctx)
	if err != nil {
		return wire.GhostUpdate{}, err
	}
	residual := fixedpoint.Abs(fixedpoint.Sub(observed, n.lastResidualBaseline(prediction)))
	accuracyDelta := fixedpoint.Sub(n.lastResidual, residual)
	n.lastResidual = residual

	u := wire.GhostUpdate{
		Sender:        n.self,
		Round:         n.round,
		Delta:         fixedpoint.FromVector(prediction),
		ResidualError: residual,
		AccuracyDelta: accuracyDelta,
	}
	return wire.SignGhostUpdate(n.signingKey, u), nil
}

// lastResidualBaseline reduces a prediction vector to the single scalar
// the residual-error comparison needs: the mean of its coordinates. This
// keeps the ResidualError/AccuracyDelta fields genuinely scalar (spec §3)
// regardless of ModelDim.
func (n *Node) lastResidualBaseline(v fixedpoint.Vector) fixedpoint.Q16_16 {
	if len(v) == 0 {
		return 0
	}
	var sum fixedpoint.Q16_16
	for _, c := range v {
		sum = fixedpoint.Add(sum, c)
	}
	return fixedpoint.Div(sum, fixedpoint.FromInt(int32(len(v))))
}

// enqueueOutbound applies the INV-6 energy guard, with its stricter floor
// for cures, before pushing u onto the bounded outbound queue (spec §4.6).
// The queue priority is gossip.Priority alone; a cure is not placed ahead
// of other updates.
func (n *Node) enqueueOutbound(u wire.GhostUpdate) {
	isCure := gossip.IsCure(u.ResidualError, u.AccuracyDelta, n.cfg)
	if !gossip.EnergyAllows(n.cfg, n.energyPercent, isCure) {
		n.logger.Info("gossip suppressed by energy guard", "round", n.round, "isCure", isCure, "energyPercent", n.energyPercent)
		return
	}
	priority := gossip.Priority(u.ResidualError, u.AccuracyDelta, n.reputation.Score(n.self))
	n.queue.Push(gossip.Item{Update: u, Priority: priority})
}

// DrainGossip pops and sends every item currently in the outbound queue
// through Radio, fragmenting each to the configured MTU (spec §4.6). It
// returns the number of messages sent.
func (n *Node) DrainGossip(ctx context.Context, encode func(wire.GhostUpdate) []byte) (int, error) {
	sent := 0
	for {
		item, ok := n.queue.Pop()
		if !ok {
			return sent, nil
		}
		payload := encode(item.Update)
		msgID := uint64(item.Update.Round)<<32 | uint64(firstBytes(item.Update.Sender))
		for _, frag := range gossip.Fragment(msgID, payload, n.cfg.MTU) {
			if err := n.radio.Send(ctx, frag); err != nil {
				return sent, err
			}
		}
		sent++
	}
}

func firstBytes(id PeerID) uint32 {
	return uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
}

// ReceiveFragment feeds one inbound wire fragment through this node's
// reassembler, returning the reassembled payload once every fragment of
// its message has arrived (spec §4.6). Callers are expected to decode the
// result into a GhostUpdate/AuditChallenge/AuditResponse as appropriate
// and hand it to StepRound's inbox or the auditor, outside the single-
// threaded consensus step itself.
func (n *Node) ReceiveFragment(frag []byte, now time.Time) ([]byte, bool) {
	return n.reassembly.Push(frag, now)
}

// ExpireReassembly drops any in-progress reassembly older than
// ReassemblyTimeout as of now, returning the number of messages dropped.
func (n *Node) ExpireReassembly(now time.Time) int {
	return n.reassembly.Expire(now)
}
