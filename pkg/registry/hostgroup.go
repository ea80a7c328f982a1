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

package registry

import (
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"

	"github.com/matrixinfer-ai/pd-control-plane/pkg/apierror"
)

// mutation is one pending sync/add_blocks/delete_blocks call against this
// host's pools. Queuing these by arrival order (rather than by lock
// acquisition order, which the Go runtime does not guarantee to be fair)
// keeps a slow caller from having its update reordered behind a faster
// one that raced it to the mutex.
type mutation struct {
	apply func() error
	done  chan error
}

// HostGroup is everything living on one physical host: its memory node
// and the compute nodes (prefill, decode, or cpu) paired with it. A
// single RWMutex protects the memory node, the compute-node set, and the
// round-robin counter; a FIFO queue on top of that serializes mutating
// calls in the order they arrived.
type HostGroup struct {
	mu        sync.RWMutex
	memory    *MemoryNode
	compNodes *orderedMap[int, *ComputeNode]
	rrCounter atomic.Uint64

	queueMu sync.Mutex
	queue   deque.Deque[*mutation]
	wake    chan struct{}
}

// NewHostGroup creates a host group around an already-constructed memory
// node and starts its mutation worker.
func NewHostGroup(memory *MemoryNode) *HostGroup {
	hg := &HostGroup{
		memory:    memory,
		compNodes: newOrderedMap[int, *ComputeNode](),
		wake:      make(chan struct{}, 1),
	}
	go hg.drain()
	return hg
}

// drain runs for the lifetime of the host group, applying queued
// mutations one at a time in the order they were pushed.
func (hg *HostGroup) drain() {
	for range hg.wake {
		for {
			hg.queueMu.Lock()
			if hg.queue.Len() == 0 {
				hg.queueMu.Unlock()
				break
			}
			m := hg.queue.PopFront()
			hg.queueMu.Unlock()
			m.done <- m.apply()
		}
	}
}

func (hg *HostGroup) enqueue(apply func() error) error {
	m := &mutation{apply: apply, done: make(chan error, 1)}
	hg.queueMu.Lock()
	hg.queue.PushBack(m)
	hg.queueMu.Unlock()
	select {
	case hg.wake <- struct{}{}:
	default:
	}
	return <-m.done
}

// MutateMemory runs fn against this host's memory node, serialized with
// every other queued mutation on the host.
func (hg *HostGroup) MutateMemory(fn func(*MemoryNode) error) error {
	return hg.enqueue(func() error {
		hg.mu.Lock()
		defer hg.mu.Unlock()
		return fn(hg.memory)
	})
}

// MutateCompute runs fn against the compute node on port, serialized the
// same way. Returns NotFound if no compute node is registered on that
// port.
func (hg *HostGroup) MutateCompute(port int, fn func(*ComputeNode) error) error {
	return hg.enqueue(func() error {
		hg.mu.Lock()
		defer hg.mu.Unlock()
		cn, ok := hg.compNodes.get(port)
		if !ok {
			return apierror.NotFoundf("compute node on port %d not found", port)
		}
		return fn(cn)
	})
}

// CheckHits scores the request's block set against this host's memory
// node under the read lock. The hit-statistics update inside CheckHits
// is atomic, so concurrent scheduling scans may score the same host.
func (hg *HostGroup) CheckHits(ids []BlockID) int {
	hg.mu.RLock()
	defer hg.mu.RUnlock()
	return hg.memory.CheckHits(ids)
}

// ViewMemory runs fn against the memory node under the read lock. fn
// must not retain the pointer past its return.
func (hg *HostGroup) ViewMemory(fn func(*MemoryNode)) {
	hg.mu.RLock()
	defer hg.mu.RUnlock()
	fn(hg.memory)
}

// AddComputeNode registers a new compute node on the host. It is
// structural, not a pool mutation, so it bypasses the arrival-order
// queue and takes the write lock directly.
func (hg *HostGroup) AddComputeNode(cn *ComputeNode) error {
	hg.mu.Lock()
	defer hg.mu.Unlock()
	if hg.compNodes.has(cn.Port) {
		return apierror.AlreadyExistsf("compute node already registered on port %d", cn.Port)
	}
	hg.compNodes.set(cn.Port, cn)
	return nil
}

// RemoveComputeNode deregisters the compute node on port.
func (hg *HostGroup) RemoveComputeNode(port int) error {
	hg.mu.Lock()
	defer hg.mu.Unlock()
	if !hg.compNodes.has(port) {
		return apierror.NotFoundf("compute node on port %d not found", port)
	}
	hg.compNodes.delete(port)
	return nil
}

// computeNodesByRole returns, in registration order, every compute node
// on the host matching role. Callers may read the returned nodes' Host,
// Port, and Role freely (immutable after construction) but must go
// through ViewComputeNodes for RequestCount or pool state.
func (hg *HostGroup) computeNodesByRole(role Role) []*ComputeNode {
	hg.mu.RLock()
	defer hg.mu.RUnlock()
	var out []*ComputeNode
	hg.compNodes.each(func(_ int, cn *ComputeNode) {
		if cn.Role == role {
			out = append(out, cn)
		}
	})
	return out
}

// ViewComputeNodes runs fn for each compute node of role, in
// registration order, under the read lock. fn must not retain the
// pointer past its return.
func (hg *HostGroup) ViewComputeNodes(role Role, fn func(*ComputeNode)) {
	hg.mu.RLock()
	defer hg.mu.RUnlock()
	hg.compNodes.each(func(_ int, cn *ComputeNode) {
		if cn.Role == role {
			fn(cn)
		}
	})
}

// RoundRobinCompute returns the next compute node of the given role in
// round-robin order, advancing the host's shared counter. Returns false
// if the host has no compute node of that role.
func (hg *HostGroup) RoundRobinCompute(role Role) (*ComputeNode, bool) {
	matches := hg.computeNodesByRole(role)
	if len(matches) == 0 {
		return nil, false
	}
	idx := hg.rrCounter.Add(1) - 1
	return matches[idx%uint64(len(matches))], true
}
