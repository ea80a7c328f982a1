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
	"sync/atomic"

	"github.com/matrixinfer-ai/pd-control-plane/pkg/pool"
)

// HitStatistics accumulates check_hits calls so the cluster-wide cache
// hit rate served at /mempool/hits can be computed without re-scanning
// every pool. Counters are atomic because CheckHits
// runs under the HostGroup read lock, where multiple scheduling scans
// may record concurrently.
type HitStatistics struct {
	numFetch  atomic.Int64
	fetchHits atomic.Int64
}

func (s *HitStatistics) record(requested, hits int) {
	s.numFetch.Add(int64(requested))
	s.fetchHits.Add(int64(hits))
}

// NumFetch returns the total number of blocks ever asked about.
func (s *HitStatistics) NumFetch() int64 { return s.numFetch.Load() }

// FetchHits returns how many of those blocks were resident when asked.
func (s *HitStatistics) FetchHits() int64 { return s.fetchHits.Load() }

// HitRate returns FetchHits/NumFetch, or 0 if nothing has been fetched
// yet.
func (s *HitStatistics) HitRate() float64 {
	fetches := s.numFetch.Load()
	if fetches == 0 {
		return 0
	}
	return float64(s.fetchHits.Load()) / float64(fetches)
}

// MemoryNode owns one BlockPool (a host's KV-cache repository) and its
// hit statistics. Its Kind says whether it backs prefill or decode
// compute nodes on the same host.
type MemoryNode struct {
	Kind NodeKind
	Pool *pool.BlockPool
	Hits HitStatistics
}

// NewMemoryNode creates a memory node with an empty pool of the given
// capacity. blockSize is carried so SequenceHits can hash raw token
// sequences on this node's behalf.
func NewMemoryNode(kind NodeKind, capacity, blockSize int) *MemoryNode {
	return &MemoryNode{
		Kind: kind,
		Pool: pool.New(capacity, blockSize),
	}
}

// CheckHits returns the unordered intersection count between ids and
// the pool's held set, and folds the observation into HitStatistics.
//
// This is deliberately not the ordered-prefix measure BlockPool.BlockHits
// computes: a memory node's cache may hold blocks belonging to many
// unrelated sessions, so unordered intersection is the right first-order
// affinity score across hosts, while ordered prefix length is reserved
// for ranking within a single GPU pool.
func (m *MemoryNode) CheckHits(ids []BlockID) int {
	hits := m.Pool.Intersect(ids)
	m.Hits.record(len(ids), hits)
	return hits
}
