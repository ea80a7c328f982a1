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

package controlplane

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/matrixinfer-ai/pd-control-plane/pkg/registry"
)

// decisionRecord is one entry in the bounded recent-scheduling-decision
// ring served at /debug/recent.
type decisionRecord struct {
	Kind         string `json:"kind"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	DirectHybrid bool   `json:"direct_hybrid"`
	RequestID    string `json:"request_id,omitempty"`
}

// recentDecisions is a bounded ring of the last N scheduling decisions,
// keyed by a monotonic sequence number so LRU eviction order matches
// insertion order.
type recentDecisions struct {
	mu    sync.Mutex
	seq   uint64
	cache *lru.Cache[uint64, decisionRecord]
}

func newRecentDecisions(size int) *recentDecisions {
	cache, _ := lru.New[uint64, decisionRecord](size)
	return &recentDecisions{cache: cache}
}

func (r *recentDecisions) record(d decisionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.cache.Add(r.seq, d)
}

func (r *recentDecisions) list() []decisionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.cache.Keys()
	out := make([]decisionRecord, 0, len(keys))
	for _, k := range keys {
		if v, ok := r.cache.Peek(k); ok {
			out = append(out, v)
		}
	}
	return out
}

func (h *Handler) debugRecent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"recent": h.Recent.list()})
}

type computeNodeSummary struct {
	Port         int `json:"port"`
	RequestCount int `json:"request_count"`
	BlocksHeld   int `json:"blocks_held"`
}

type hostGroupSummary struct {
	Host          registry.HostID      `json:"host"`
	PoolOccupancy int                  `json:"pool_occupancy"`
	PoolCapacity  int                  `json:"pool_capacity"`
	HitRate       float64              `json:"hit_rate"`
	ComputeNodes  []computeNodeSummary `json:"compute_nodes"`
}

type cpuNodeSummary struct {
	Host         registry.HostID `json:"host"`
	Port         int             `json:"port"`
	RequestCount int             `json:"request_count"`
	BlocksHeld   int             `json:"blocks_held"`
}

func summarizeHostGroup(host registry.HostID, hg *registry.HostGroup, role registry.Role) hostGroupSummary {
	summary := hostGroupSummary{Host: host}
	hg.ViewMemory(func(mn *registry.MemoryNode) {
		summary.PoolOccupancy = mn.Pool.Len()
		summary.PoolCapacity = mn.Pool.Capacity()
		summary.HitRate = mn.Hits.HitRate()
	})
	hg.ViewComputeNodes(role, func(cn *registry.ComputeNode) {
		summary.ComputeNodes = append(summary.ComputeNodes, computeNodeSummary{
			Port:         cn.Port,
			RequestCount: cn.RequestCount,
			BlocksHeld:   cn.Pool.Len(),
		})
	})
	return summary
}

// debugTopology handles GET /debug/topology: a snapshot dump of every
// registered host, its pool occupancy, and its compute nodes' request
// counts.
func (h *Handler) debugTopology(c *gin.Context) {
	prefill := make([]hostGroupSummary, 0)
	for _, e := range h.Registry.PrefillHostGroups() {
		prefill = append(prefill, summarizeHostGroup(e.Host, e.Group, registry.RolePrefill))
	}

	decode := make([]hostGroupSummary, 0)
	for _, e := range h.Registry.DecodeHostGroups() {
		decode = append(decode, summarizeHostGroup(e.Host, e.Group, registry.RoleDecode))
	}

	cpu := make([]cpuNodeSummary, 0)
	h.Registry.ViewCPUNodes(func(cn *registry.ComputeNode) {
		cpu = append(cpu, cpuNodeSummary{
			Host: cn.Host, Port: cn.Port, RequestCount: cn.RequestCount, BlocksHeld: cn.Pool.Len(),
		})
	})

	c.JSON(http.StatusOK, gin.H{
		"prefill_hosts": prefill,
		"decode_hosts":  decode,
		"cpu_nodes":     cpu,
	})
}
