/*
Copyright PD Control Plane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package scheduler is the placement policy: which compute node a
// prefill or decode request lands on, and which memory node (if any) it
// should share a host with for local KV transfer. The scheduler holds no
// node state of its own beyond four monotonic counters; every placement
// decision reads the registry fresh.
package scheduler

import (
	"sync/atomic"

	"k8s.io/klog/v2"

	"github.com/matrixinfer-ai/pd-control-plane/pkg/apierror"
	"github.com/matrixinfer-ai/pd-control-plane/pkg/registry"
)

// PrefillPlacement is the result of SchedulePrefill. Score is the
// winning host's check_hits count, 0 when placement fell back to
// round-robin.
type PrefillPlacement struct {
	CNHost             registry.HostID
	CNPort             int
	MNHost             *registry.HostID
	DirectHybridDecode bool
	Score              int
}

// DecodePlacement is the result of ScheduleDecode.
type DecodePlacement struct {
	CNHost registry.HostID
	CNPort int
	MNHost *registry.HostID
}

// Scheduler picks compute/memory node placements against a shared
// Registry. It is safe for concurrent use: its own state is four
// atomic counters, and every registry access goes through the
// registry's own locking.
type Scheduler struct {
	reg *registry.Registry

	prefillRR     atomic.Uint64
	decodeRR      atomic.Uint64
	hybridSampler atomic.Uint64
	cpuRR         atomic.Uint64
}

// New creates a scheduler over reg. All four counters start at zero.
func New(reg *registry.Registry) *Scheduler {
	return &Scheduler{reg: reg}
}

// nextMod atomically increments counter and returns its pre-increment
// value modulo mod, so the first call against a fresh counter returns 0.
func nextMod(counter *atomic.Uint64, mod uint64) uint64 {
	v := counter.Add(1) - 1
	return v % mod
}

// SchedulePrefill prefers the prefill host whose memory node holds the
// strictly largest number of the request's blocks, and falls back to
// round-robin over prefill_hosts if every host scored zero (including
// the case of an empty block-hash list).
func (s *Scheduler) SchedulePrefill(blockHashes []registry.BlockID) (PrefillPlacement, error) {
	entries := s.reg.PrefillHostGroups()
	if len(entries) == 0 {
		return PrefillPlacement{}, apierror.NoCapacityf("no prefill hosts registered")
	}

	bestIdx := -1
	bestScore := 0
	for i, e := range entries {
		score := e.Group.CheckHits(blockHashes)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	var chosen registry.HostEntry
	var mnHost *registry.HostID
	if bestIdx >= 0 {
		chosen = entries[bestIdx]
		h := chosen.Host
		mnHost = &h
	} else {
		idx := nextMod(&s.prefillRR, uint64(len(entries)))
		chosen = entries[idx]
	}

	cn, ok := chosen.Group.RoundRobinCompute(registry.RolePrefill)
	if !ok {
		return PrefillPlacement{}, apierror.NoCapacityf("prefill host %s has no compute node", chosen.Host)
	}

	direct := nextMod(&s.hybridSampler, 100) == 0

	klog.V(4).Infof("schedule_prefill host=%s port=%d score=%d affinity=%v direct_hybrid=%v blocks=%d",
		cn.Host, cn.Port, bestScore, bestIdx >= 0, direct, len(blockHashes))

	return PrefillPlacement{
		CNHost:             cn.Host,
		CNPort:             cn.Port,
		MNHost:             mnHost,
		DirectHybridDecode: direct,
		Score:              bestScore,
	}, nil
}

// ScheduleDecode places a decode request. When directHybrid is true,
// placement goes to a CPU node with no memory-node affinity; otherwise
// it round-robins over decode_hosts with mn_host pinned to the chosen
// compute host so the engine spills to its local memory node.
func (s *Scheduler) ScheduleDecode(blockHashes []registry.BlockID, directHybrid bool) (DecodePlacement, error) {
	if directHybrid {
		cpus := s.reg.CPUNodes()
		if len(cpus) == 0 {
			return DecodePlacement{}, apierror.NoCapacityf("no cpu nodes registered")
		}
		idx := nextMod(&s.cpuRR, uint64(len(cpus)))
		cn := cpus[idx]
		klog.V(4).Infof("schedule_decode direct_hybrid host=%s port=%d", cn.Host, cn.Port)
		return DecodePlacement{CNHost: cn.Host, CNPort: cn.Port}, nil
	}

	entries := s.reg.DecodeHostGroups()
	if len(entries) == 0 {
		return DecodePlacement{}, apierror.NoCapacityf("no decode hosts registered")
	}
	idx := nextMod(&s.decodeRR, uint64(len(entries)))
	chosen := entries[idx]

	cn, ok := chosen.Group.RoundRobinCompute(registry.RoleDecode)
	if !ok {
		return DecodePlacement{}, apierror.NoCapacityf("decode host %s has no compute node", chosen.Host)
	}

	host := chosen.Host
	klog.V(4).Infof("schedule_decode host=%s port=%d blocks=%d", cn.Host, cn.Port, len(blockHashes))
	return DecodePlacement{CNHost: cn.Host, CNPort: cn.Port, MNHost: &host}, nil
}

// GetMNForPrefixSharing is a read-only lookup of the prefill host with
// the strictly largest check_hits score, for callers that want the
// memory location only, without committing to a compute placement.
func (s *Scheduler) GetMNForPrefixSharing(blockHashes []registry.BlockID) (registry.HostID, bool) {
	entries := s.reg.PrefillHostGroups()
	bestIdx := -1
	bestScore := 0
	for i, e := range entries {
		score := e.Group.CheckHits(blockHashes)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return "", false
	}
	return entries[bestIdx].Host, true
}

// MemoryHitRate returns the cluster-wide fetch_hits/num_fetch ratio.
func (s *Scheduler) MemoryHitRate() float64 {
	return s.reg.MempoolHitRate()
}
