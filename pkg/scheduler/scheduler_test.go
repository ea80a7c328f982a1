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

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixinfer-ai/pd-control-plane/pkg/apierror"
	"github.com/matrixinfer-ai/pd-control-plane/pkg/registry"
)

func newPrefillHost(t *testing.T, reg *registry.Registry, host registry.HostID, port int, synced []registry.BlockID) {
	t.Helper()
	require.NoError(t, reg.AddMemoryNode(host, registry.KindPrefill, 16, 16))
	require.NoError(t, reg.AddComputeNode(host, port, registry.RolePrefill, 8, 16))
	if len(synced) > 0 {
		_, err := reg.SyncMemory(host, registry.KindPrefill, synced)
		require.NoError(t, err)
	}
}

func TestScheduler_PrefersHostWithMostCachedBlocks(t *testing.T) {
	reg := registry.NewRegistry()
	newPrefillHost(t, reg, "h1", 1000, []registry.BlockID{10, 20, 30})
	newPrefillHost(t, reg, "h2", 2000, []registry.BlockID{10})

	s := New(reg)
	p, err := s.SchedulePrefill([]registry.BlockID{10, 20})
	require.NoError(t, err)
	assert.Equal(t, registry.HostID("h1"), p.CNHost)
	require.NotNil(t, p.MNHost)
	assert.Equal(t, registry.HostID("h1"), *p.MNHost)
}

// When no host scores above zero, placement round-robins over
// prefill_hosts in insertion order.
func TestScheduler_RoundRobinFallbackWhenNoHits(t *testing.T) {
	reg := registry.NewRegistry()
	newPrefillHost(t, reg, "h1", 1000, []registry.BlockID{10, 20, 30})
	newPrefillHost(t, reg, "h2", 2000, []registry.BlockID{10})

	s := New(reg)
	hosts := make([]registry.HostID, 3)
	for i := range hosts {
		p, err := s.SchedulePrefill([]registry.BlockID{999})
		require.NoError(t, err)
		assert.Nil(t, p.MNHost)
		hosts[i] = p.CNHost
	}
	assert.Equal(t, []registry.HostID{"h1", "h2", "h1"}, hosts)
}

// The hybrid sampler starts at zero, so the very first prefill schedule
// carries the hybrid-decode hint and the next 99 do not.
func TestScheduler_HybridSamplerFiresOnFirstCall(t *testing.T) {
	reg := registry.NewRegistry()
	newPrefillHost(t, reg, "h1", 1000, nil)
	require.NoError(t, reg.AddMemoryNode("h2", registry.KindDecode, 16, 16))
	require.NoError(t, reg.AddComputeNode("h2", 3000, registry.RoleDecode, 8, 16))
	require.NoError(t, reg.AddComputeNode("cpu1", 4000, registry.RoleCPU, 8, 16))

	s := New(reg)
	p, err := s.SchedulePrefill([]registry.BlockID{1})
	require.NoError(t, err)
	assert.True(t, p.DirectHybridDecode)

	for i := 0; i < 99; i++ {
		p, err := s.SchedulePrefill([]registry.BlockID{1})
		require.NoError(t, err)
		assert.False(t, p.DirectHybridDecode, "index %d should not sample", i+1)
	}
}

// Over 1000 consecutive prefill schedules, exactly 10 sample true, at
// indices 0, 100, 200, ... — the sampling is counter-based, not random.
func TestScheduler_HybridSamplingCadence(t *testing.T) {
	reg := registry.NewRegistry()
	newPrefillHost(t, reg, "h1", 1000, nil)

	s := New(reg)
	var hits []int
	for i := 0; i < 1000; i++ {
		p, err := s.SchedulePrefill(nil)
		require.NoError(t, err)
		if p.DirectHybridDecode {
			hits = append(hits, i)
		}
	}

	require.Len(t, hits, 10)
	for i, idx := range hits {
		assert.Equal(t, i*100, idx)
	}
}

func TestScheduler_DecodePaths(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.AddComputeNode("cpu1", 4000, registry.RoleCPU, 8, 16))
	require.NoError(t, reg.AddMemoryNode("h2", registry.KindDecode, 16, 16))
	require.NoError(t, reg.AddComputeNode("h2", 3000, registry.RoleDecode, 8, 16))

	s := New(reg)

	hybrid, err := s.ScheduleDecode(nil, true)
	require.NoError(t, err)
	assert.Equal(t, registry.HostID("cpu1"), hybrid.CNHost)
	assert.Equal(t, 4000, hybrid.CNPort)
	assert.Nil(t, hybrid.MNHost)

	normal, err := s.ScheduleDecode(nil, false)
	require.NoError(t, err)
	require.NotNil(t, normal.MNHost)
	assert.Equal(t, normal.CNHost, *normal.MNHost)
}

func TestScheduler_EmptyPrefillHostsIsNoCapacity(t *testing.T) {
	reg := registry.NewRegistry()
	s := New(reg)
	_, err := s.SchedulePrefill([]registry.BlockID{1})
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.NoCapacity))
}

func TestScheduler_DirectHybridWithNoCPUNodesIsNoCapacity(t *testing.T) {
	reg := registry.NewRegistry()
	s := New(reg)
	_, err := s.ScheduleDecode(nil, true)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.NoCapacity))
}

func TestScheduler_GetMNForPrefixSharing(t *testing.T) {
	reg := registry.NewRegistry()
	newPrefillHost(t, reg, "h1", 1000, []registry.BlockID{10, 20})
	newPrefillHost(t, reg, "h2", 2000, nil)

	s := New(reg)
	host, ok := s.GetMNForPrefixSharing([]registry.BlockID{10, 20})
	require.True(t, ok)
	assert.Equal(t, registry.HostID("h1"), host)

	_, ok = s.GetMNForPrefixSharing([]registry.BlockID{999})
	assert.False(t, ok)
}

func TestScheduler_MemoryHitRate(t *testing.T) {
	reg := registry.NewRegistry()
	newPrefillHost(t, reg, "h1", 1000, []registry.BlockID{10, 20})

	s := New(reg)
	_, err := s.SchedulePrefill([]registry.BlockID{10, 20, 30})
	require.NoError(t, err)

	assert.InDelta(t, 2.0/3.0, s.MemoryHitRate(), 1e-9)
}
