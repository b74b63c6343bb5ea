// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gossip implements the energy-guarded epidemic gossip engine of
// spec.md §4.6: a bounded, priority-ordered outbound queue, MTU
// fragmentation and reassembly, and the cure/energy interlock that decides
// whether an update is allowed onto the wire at all. The priority queue is
// grounded on container/heap (the teacher repo and the wider retrieved
// corpus never implement a priority queue of their own — see DESIGN.md);
// everything above it — cure detection, the energy guard, fragmentation —
// follows the teacher's networking/sender/sender.go framing discipline.
package gossip

import (
	"container/heap"
	"time"

	"github.com/qres/raas-core/config"
	"github.com/qres/raas-core/fixedpoint"
	"github.com/qres/raas-core/wire"
)

// Item is one pending outbound GhostUpdate with its computed priority.
type Item struct {
	Update   wire.GhostUpdate
	Priority fixedpoint.Q16_16
}

// Priority computes p = residual_error * accuracy_delta * reputation
// (spec §4.6), entirely in Q16.16.
func Priority(residualError, accuracyDelta, reputation fixedpoint.Q16_16) fixedpoint.Q16_16 {
	return fixedpoint.Mul(fixedpoint.Mul(residualError, accuracyDelta), reputation)
}

// IsCure reports whether an update qualifies as a "cure" (spec §4.6): a
// near-converged update (residual error strictly below theta_cure) paired
// with a large accuracy gain (strictly above theta_improve). Being a cure
// only subjects an update to the stricter energy gate (INV-6); it does not
// change the update's queue priority, which is Priority alone.
func IsCure(residualError, accuracyDelta fixedpoint.Q16_16, cfg config.Config) bool {
	return residualError < fixedpoint.Q16_16(cfg.ThetaCure) && accuracyDelta > fixedpoint.Q16_16(cfg.ThetaImprove)
}

// EnergyAllows implements INV-6: no gossip at all below EnergyCritical, and
// cures specifically blocked below EnergyGossipFloor.
func EnergyAllows(cfg config.Config, energyPercent int, isCure bool) bool {
	if energyPercent < cfg.EnergyCritical {
		return false
	}
	if isCure && energyPercent < cfg.EnergyGossipFloor {
		return false
	}
	return true
}

// itemHeap is a max-heap over Item.Priority, with PeerID as a deterministic
// tie-break so two nodes replaying the same inserts evict the same loser.
type itemHeap []Item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority // max-heap: higher priority first
	}
	return lessSender(h[i].Update.Sender, h[j].Update.Sender)
}
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)        { *h = append(*h, x.(Item)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func lessSender(a, b wire.PeerID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Queue is the bounded outbound priority queue of spec §4.6: when full,
// inserting a higher-priority item evicts the current lowest-priority
// occupant; inserting a lower-or-equal-priority item is dropped.
type Queue struct {
	capacity int
	items    itemHeap
}

// NewQueue constructs an empty Queue with the given bounded capacity.
func NewQueue(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	heap.Init(&q.items)
	return q
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int { return q.items.Len() }

// Push inserts item, evicting the lowest-priority occupant if the queue is
// at capacity and item outranks it. Returns false if item was dropped.
func (q *Queue) Push(item Item) bool {
	if q.items.Len() < q.capacity {
		heap.Push(&q.items, item)
		return true
	}
	lowest := q.lowestIndex()
	if q.items[lowest].Priority >= item.Priority {
		return false
	}
	heap.Remove(&q.items, lowest)
	heap.Push(&q.items, item)
	return true
}

// Pop removes and returns the highest-priority item. ok is false if the
// queue is empty.
func (q *Queue) Pop() (item Item, ok bool) {
	if q.items.Len() == 0 {
		return Item{}, false
	}
	return heap.Pop(&q.items).(Item), true
}

func (q *Queue) lowestIndex() int {
	lowest := 0
	for i := 1; i < len(q.items); i++ {
		if q.items[i].Priority < q.items[lowest].Priority {
			lowest = i
		}
	}
	return lowest
}

// fragmentHeaderLen is msgID(8) + index(2) + total(2).
const fragmentHeaderLen = 12

// Fragment splits payload into MTU-bounded fragments, each prefixed with a
// 12-byte header (message ID, fragment index, fragment count), per spec
// §4.6's MTU constraint. msgID lets the receiver correlate fragments of the
// same message arriving out of order or interleaved with others.
func Fragment(msgID uint64, payload []byte, mtu int) [][]byte {
	chunkSize := mtu - fragmentHeaderLen
	if chunkSize <= 0 {
		chunkSize = 1
	}
	total := (len(payload) + chunkSize - 1) / chunkSize
	if total == 0 {
		total = 1
	}
	out := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		frag := make([]byte, fragmentHeaderLen+(end-start))
		putUint64(frag[0:8], msgID)
		putUint16(frag[8:10], uint16(i))
		putUint16(frag[10:12], uint16(total))
		copy(frag[fragmentHeaderLen:], payload[start:end])
		out = append(out, frag)
	}
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func parseUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func parseUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

// partial is the in-progress reassembly state for one message ID.
type partial struct {
	total    uint16
	chunks   map[uint16][]byte
	deadline time.Time
}

// Reassembler collects fragments into complete payloads, discarding any
// message whose fragments have not all arrived within ReassemblyTimeout
// (spec §4.6).
type Reassembler struct {
	timeout time.Duration
	pending map[uint64]*partial
}

// NewReassembler constructs a Reassembler with the given per-message
// timeout.
func NewReassembler(timeout time.Duration) *Reassembler {
	return &Reassembler{timeout: timeout, pending: make(map[uint64]*partial)}
}

// Push feeds one fragment in. now is the caller's clock reading (spec §6's
// injected Clock, not time.Now, to keep reassembly deterministic in tests).
// It returns the reassembled payload and true once every fragment of its
// message has arrived.
func (r *Reassembler) Push(frag []byte, now time.Time) ([]byte, bool) {
	if len(frag) < fragmentHeaderLen {
		return nil, false
	}
	msgID := parseUint64(frag[0:8])
	idx := parseUint16(frag[8:10])
	total := parseUint16(frag[10:12])
	body := frag[fragmentHeaderLen:]

	p, ok := r.pending[msgID]
	if !ok {
		p = &partial{total: total, chunks: make(map[uint16][]byte, total), deadline: now.Add(r.timeout)}
		r.pending[msgID] = p
	}
	p.chunks[idx] = body

	if uint16(len(p.chunks)) < p.total {
		return nil, false
	}

	out := make([]byte, 0)
	for i := uint16(0); i < p.total; i++ {
		out = append(out, p.chunks[i]...)
	}
	delete(r.pending, msgID)
	return out, true
}

// Expire removes any in-progress reassembly whose deadline has passed as
// of now, returning the number of messages dropped.
func (r *Reassembler) Expire(now time.Time) int {
	dropped := 0
	for id, p := range r.pending {
		if now.After(p.deadline) {
			delete(r.pending, id)
			dropped++
		}
	}
	return dropped
}
