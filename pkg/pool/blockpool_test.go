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

package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixinfer-ai/pd-control-plane/pkg/apierror"
	"github.com/matrixinfer-ai/pd-control-plane/pkg/hashing"
)

func TestBlockPool_SyncRespectsCapacity(t *testing.T) {
	p := New(2, 16)
	err := p.Sync([]uint64{1, 2, 3})
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.InvalidArgument))
	assert.Equal(t, 0, p.Len(), "failed sync must leave the pool unchanged")
}

func TestBlockPool_SyncReplacesHeldSet(t *testing.T) {
	p := New(4, 16)
	require.NoError(t, p.Sync([]uint64{1, 2}))
	require.NoError(t, p.Sync([]uint64{3, 4}))
	assert.Equal(t, 0, p.BlockHits([]uint64{1}))
	assert.Equal(t, 1, p.BlockHits([]uint64{3}))
}

func TestBlockPool_AddBlocksUnionsAndRespectsCapacity(t *testing.T) {
	p := New(3, 16)
	require.NoError(t, p.AddBlocks([]uint64{1, 2}))
	require.NoError(t, p.AddBlocks([]uint64{2, 3}))
	assert.Equal(t, 3, p.Len())

	err := p.AddBlocks([]uint64{4, 5})
	require.Error(t, err)
	assert.Equal(t, 3, p.Len(), "failed add_blocks must leave the pool unchanged")
}

func TestBlockPool_DeleteBlocksAllOrNothing(t *testing.T) {
	p := New(4, 16)
	require.NoError(t, p.Sync([]uint64{1, 2, 3}))

	err := p.DeleteBlocks([]uint64{1, 99})
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.NotFound))
	assert.Equal(t, 3, p.Len(), "a partially-missing delete must not mutate the pool")

	require.NoError(t, p.DeleteBlocks([]uint64{1, 2}))
	assert.Equal(t, 1, p.Len())
}

func TestBlockPool_FreeBlocks(t *testing.T) {
	p := New(5, 16)
	require.NoError(t, p.Sync([]uint64{1, 2}))
	assert.Equal(t, 3, p.FreeBlocks())
}

func TestBlockPool_BlockHitsIsLongestPrefix(t *testing.T) {
	p := New(10, 16)
	require.NoError(t, p.Sync([]uint64{1, 2, 4}))

	assert.Equal(t, 2, p.BlockHits([]uint64{1, 2, 3, 4}), "3 breaks the prefix even though 4 is held")
	assert.Equal(t, 0, p.BlockHits([]uint64{9, 1, 2}))
	assert.Equal(t, 3, p.BlockHits([]uint64{1, 2, 4}))
}

func TestBlockPool_Intersect(t *testing.T) {
	p := New(10, 16)
	require.NoError(t, p.Sync([]uint64{1, 2, 3}))
	assert.Equal(t, 2, p.Intersect([]uint64{3, 2, 99}))
}

func TestBlockPool_SequenceHits(t *testing.T) {
	p := New(10, 4)
	tokens := []int64{1, 2, 3, 4, 5, 6, 7, 8}
	ids := hashing.Hash(tokens, 4)
	require.NoError(t, p.Sync(ids[:1]))
	assert.Equal(t, 1, p.SequenceHits(tokens))
}
