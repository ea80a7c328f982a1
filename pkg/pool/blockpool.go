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

// Package pool implements the set-of-block-ids accounting shared by
// memory nodes and compute nodes: a capacity-bounded set of BlockIDs
// with hit counting. It holds no locks of its own — callers (HostGroup)
// serialize access per the concurrency model.
package pool

import (
	"github.com/matrixinfer-ai/pd-control-plane/pkg/apierror"
	"github.com/matrixinfer-ai/pd-control-plane/pkg/hashing"
)

// BlockPool tracks which block ids a node currently holds, bounded by a
// fixed capacity declared at registration.
type BlockPool struct {
	capacity  int
	blockSize int
	held      map[hashing.BlockID]struct{}
}

// New creates an empty pool. capacity and blockSize must be positive;
// the caller (registry) validates this before construction.
func New(capacity, blockSize int) *BlockPool {
	return &BlockPool{
		capacity:  capacity,
		blockSize: blockSize,
		held:      make(map[hashing.BlockID]struct{}, capacity),
	}
}

func (p *BlockPool) Capacity() int  { return p.capacity }
func (p *BlockPool) BlockSize() int { return p.blockSize }
func (p *BlockPool) Len() int       { return len(p.held) }

// Sync replaces held with the given ids. Fails without mutating state
// if the deduplicated id count would exceed capacity.
func (p *BlockPool) Sync(ids []hashing.BlockID) error {
	deduped := toSet(ids)
	if len(deduped) > p.capacity {
		return apierror.InvalidArgumentf("sync would hold %d blocks, capacity is %d", len(deduped), p.capacity)
	}
	p.held = deduped
	return nil
}

// AddBlocks unions ids into held. Fails without mutating state if the
// resulting size would exceed capacity.
func (p *BlockPool) AddBlocks(ids []hashing.BlockID) error {
	merged := make(map[hashing.BlockID]struct{}, len(p.held)+len(ids))
	for id := range p.held {
		merged[id] = struct{}{}
	}
	for _, id := range ids {
		merged[id] = struct{}{}
	}
	if len(merged) > p.capacity {
		return apierror.InvalidArgumentf("add_blocks would hold %d blocks, capacity is %d", len(merged), p.capacity)
	}
	p.held = merged
	return nil
}

// DeleteBlocks removes each id from held. All-or-nothing: if any id is
// absent, the pool is left unchanged and a NotFound error is returned.
func (p *BlockPool) DeleteBlocks(ids []hashing.BlockID) error {
	for _, id := range ids {
		if _, ok := p.held[id]; !ok {
			return apierror.NotFoundf("block %d not held", id)
		}
	}
	for _, id := range ids {
		delete(p.held, id)
	}
	return nil
}

// FreeBlocks returns the number of additional blocks this pool could
// accept before reaching capacity.
func (p *BlockPool) FreeBlocks() int {
	return p.capacity - len(p.held)
}

// BlockHits returns the largest k such that ids[0:k] are all held — the
// longest-known-prefix measure. Because block ids are chained (see
// package hashing), this is equivalent to finding the longest prefix of
// the original token sequence this pool has cached.
func (p *BlockPool) BlockHits(ids []hashing.BlockID) int {
	k := 0
	for _, id := range ids {
		if _, ok := p.held[id]; !ok {
			break
		}
		k++
	}
	return k
}

// SequenceHits hashes tokens and returns BlockHits of the result.
func (p *BlockPool) SequenceHits(tokens []int64) int {
	ids := hashing.Hash(tokens, p.blockSize)
	return p.BlockHits(ids)
}

// Intersect returns the unordered intersection count between ids and
// held — the affinity score a memory node reports to the scheduler,
// distinct from the ordered prefix length BlockHits computes for a
// single GPU pool (see the memory-node package for the rationale).
func (p *BlockPool) Intersect(ids []hashing.BlockID) int {
	n := 0
	for _, id := range ids {
		if _, ok := p.held[id]; ok {
			n++
		}
	}
	return n
}

func toSet(ids []hashing.BlockID) map[hashing.BlockID]struct{} {
	s := make(map[hashing.BlockID]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
