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

	"github.com/matrixinfer-ai/pd-control-plane/pkg/apierror"
)

// cpuKey identifies a CPU hybrid-decode compute node, which lives in the
// flat cpu_nodes list rather than under a HostGroup.
type cpuKey struct {
	Host HostID
	Port int
}

// Registry is the cluster topology: two disjoint host maps, one per
// memory-node kind, and a flat ordered list of CPU compute nodes. It
// exclusively owns every HostGroup; HostGroups in turn exclusively own
// their MemoryNode and ComputeNodes.
type Registry struct {
	mu sync.RWMutex

	prefillHosts *orderedMap[HostID, *HostGroup]
	decodeHosts  *orderedMap[HostID, *HostGroup]
	cpuNodes     *orderedMap[cpuKey, *ComputeNode]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		prefillHosts: newOrderedMap[HostID, *HostGroup](),
		decodeHosts:  newOrderedMap[HostID, *HostGroup](),
		cpuNodes:     newOrderedMap[cpuKey, *ComputeNode](),
	}
}

func (r *Registry) hostMap(kind NodeKind) *orderedMap[HostID, *HostGroup] {
	if kind == KindDecode {
		return r.decodeHosts
	}
	return r.prefillHosts
}

func kindForRole(role Role) NodeKind {
	if role == RoleDecode {
		return KindDecode
	}
	return KindPrefill
}

func validatePool(capacity, blockSize int) error {
	if capacity <= 0 {
		return apierror.InvalidArgumentf("pool capacity must be positive, got %d", capacity)
	}
	if blockSize <= 0 {
		return apierror.InvalidArgumentf("block size must be positive, got %d", blockSize)
	}
	return nil
}

// AddMemoryNode creates an empty HostGroup for (host, kind). Fails with
// AlreadyExists if one is already registered.
func (r *Registry) AddMemoryNode(host HostID, kind NodeKind, capacity, blockSize int) error {
	if err := validatePool(capacity, blockSize); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	hosts := r.hostMap(kind)
	if hosts.has(host) {
		return apierror.AlreadyExistsf("memory node %s/%s already registered", host, kind)
	}
	hosts.set(host, NewHostGroup(NewMemoryNode(kind, capacity, blockSize)))
	return nil
}

// AddComputeNode attaches a new compute node. For role prefill/decode the
// matching HostGroup must already exist (PreconditionFailed otherwise);
// for role cpu it is appended to the flat, host-group-less cpu list.
func (r *Registry) AddComputeNode(host HostID, port int, role Role, capacity, blockSize int) error {
	if err := validatePool(capacity, blockSize); err != nil {
		return err
	}

	if role == RoleCPU {
		r.mu.Lock()
		defer r.mu.Unlock()
		key := cpuKey{Host: host, Port: port}
		if r.cpuNodes.has(key) {
			return apierror.AlreadyExistsf("cpu node %s:%d already registered", host, port)
		}
		r.cpuNodes.set(key, NewComputeNode(host, port, RoleCPU, capacity, blockSize))
		return nil
	}

	r.mu.RLock()
	hg, ok := r.hostMap(kindForRole(role)).get(host)
	r.mu.RUnlock()
	if !ok {
		return apierror.PreconditionFailedf("memory node for %s/%s not registered", host, kindForRole(role))
	}
	return hg.AddComputeNode(NewComputeNode(host, port, role, capacity, blockSize))
}

// SyncMemory replaces the resident block set of the memory node at
// (host, kind) and returns its new cached-block count.
func (r *Registry) SyncMemory(host HostID, kind NodeKind, ids []BlockID) (int, error) {
	r.mu.RLock()
	hg, ok := r.hostMap(kind).get(host)
	r.mu.RUnlock()
	if !ok {
		return 0, apierror.NotFoundf("memory node %s/%s not found", host, kind)
	}

	var count int
	err := hg.MutateMemory(func(mn *MemoryNode) error {
		if err := mn.Pool.Sync(ids); err != nil {
			return err
		}
		count = mn.Pool.Len()
		return nil
	})
	return count, err
}

// AddMemoryBlocks unions ids into the memory node's held set.
func (r *Registry) AddMemoryBlocks(host HostID, kind NodeKind, ids []BlockID) (int, error) {
	r.mu.RLock()
	hg, ok := r.hostMap(kind).get(host)
	r.mu.RUnlock()
	if !ok {
		return 0, apierror.NotFoundf("memory node %s/%s not found", host, kind)
	}

	var count int
	err := hg.MutateMemory(func(mn *MemoryNode) error {
		if err := mn.Pool.AddBlocks(ids); err != nil {
			return err
		}
		count = mn.Pool.Len()
		return nil
	})
	return count, err
}

// DeleteMemoryBlocks removes ids from the memory node's held set,
// failing NotFound (all-or-nothing) if any id is absent.
func (r *Registry) DeleteMemoryBlocks(host HostID, kind NodeKind, ids []BlockID) error {
	r.mu.RLock()
	hg, ok := r.hostMap(kind).get(host)
	r.mu.RUnlock()
	if !ok {
		return apierror.NotFoundf("memory node %s/%s not found", host, kind)
	}
	return hg.MutateMemory(func(mn *MemoryNode) error {
		return mn.Pool.DeleteBlocks(ids)
	})
}

// SyncCompute dispatches to the owned compute node's Sync, whether it
// lives under a HostGroup (prefill/decode) or the flat cpu list.
func (r *Registry) SyncCompute(host HostID, port int, role Role, requestCount int, ids []BlockID) error {
	if role == RoleCPU {
		// CPU nodes have no HostGroup lock or mutation queue of their
		// own, so their sync runs under the top-level write lock.
		r.mu.Lock()
		defer r.mu.Unlock()
		cn, ok := r.cpuNodes.get(cpuKey{Host: host, Port: port})
		if !ok {
			return apierror.NotFoundf("cpu node %s:%d not found", host, port)
		}
		return cn.Sync(requestCount, ids)
	}

	r.mu.RLock()
	hg, ok := r.hostMap(kindForRole(role)).get(host)
	r.mu.RUnlock()
	if !ok {
		return apierror.NotFoundf("compute node %s:%d not found", host, port)
	}
	return hg.MutateCompute(port, func(cn *ComputeNode) error {
		return cn.Sync(requestCount, ids)
	})
}

// RemoveHost deregisters the HostGroup for (host, kind), dropping its
// memory node and every compute node attached to it.
func (r *Registry) RemoveHost(host HostID, kind NodeKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	hosts := r.hostMap(kind)
	if !hosts.has(host) {
		return apierror.NotFoundf("memory node %s/%s not found", host, kind)
	}
	hosts.delete(host)
	return nil
}

// RemoveComputeNode deregisters one compute node, whether it lives under
// a HostGroup or the flat cpu list.
func (r *Registry) RemoveComputeNode(host HostID, port int, role Role) error {
	if role == RoleCPU {
		r.mu.Lock()
		defer r.mu.Unlock()
		key := cpuKey{Host: host, Port: port}
		if !r.cpuNodes.has(key) {
			return apierror.NotFoundf("cpu node %s:%d not found", host, port)
		}
		r.cpuNodes.delete(key)
		return nil
	}

	r.mu.RLock()
	hg, ok := r.hostMap(kindForRole(role)).get(host)
	r.mu.RUnlock()
	if !ok {
		return apierror.NotFoundf("compute node %s:%d not found", host, port)
	}
	return hg.RemoveComputeNode(port)
}

// HostEntry pairs a host id with its HostGroup, preserving registration
// order for affinity tie-breaking and round-robin fallback.
type HostEntry struct {
	Host  HostID
	Group *HostGroup
}

// PrefillHostGroups returns a registration-order snapshot of
// prefill_hosts, taken under the top-level read lock.
func (r *Registry) PrefillHostGroups() []HostEntry {
	return r.snapshotHosts(r.prefillHosts)
}

// DecodeHostGroups returns a registration-order snapshot of
// decode_hosts.
func (r *Registry) DecodeHostGroups() []HostEntry {
	return r.snapshotHosts(r.decodeHosts)
}

func (r *Registry) snapshotHosts(hosts *orderedMap[HostID, *HostGroup]) []HostEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HostEntry, 0, hosts.len())
	hosts.each(func(h HostID, hg *HostGroup) {
		out = append(out, HostEntry{Host: h, Group: hg})
	})
	return out
}

// CPUNodes returns a registration-order snapshot of the flat cpu list.
// The returned nodes' Host, Port, and Role are immutable; mutable state
// must be read through ViewCPUNodes.
func (r *Registry) CPUNodes() []*ComputeNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ComputeNode, 0, r.cpuNodes.len())
	r.cpuNodes.each(func(_ cpuKey, cn *ComputeNode) {
		out = append(out, cn)
	})
	return out
}

// ViewCPUNodes runs fn for each CPU node in registration order under
// the read lock, which excludes concurrent CPU syncs.
func (r *Registry) ViewCPUNodes(fn func(*ComputeNode)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.cpuNodes.each(func(_ cpuKey, cn *ComputeNode) {
		fn(cn)
	})
}

// MempoolHitRate aggregates fetch_hits/num_fetch across every registered
// memory node, prefill and decode alike. Returns 0 if nothing has been
// fetched yet anywhere in the cluster.
func (r *Registry) MempoolHitRate() float64 {
	var fetches, hits int64
	accumulate := func(mn *MemoryNode) {
		fetches += mn.Hits.NumFetch()
		hits += mn.Hits.FetchHits()
	}
	for _, e := range r.PrefillHostGroups() {
		e.Group.ViewMemory(accumulate)
	}
	for _, e := range r.DecodeHostGroups() {
		e.Group.ViewMemory(accumulate)
	}
	if fetches == 0 {
		return 0
	}
	return float64(hits) / float64(fetches)
}
