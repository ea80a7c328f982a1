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
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixinfer-ai/pd-control-plane/pkg/apierror"
)

// Registering a memory node then a compute node on it succeeds;
// re-registering the memory node fails AlreadyExists.
func TestRegistry_RegisterMemoryThenCompute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddMemoryNode("h1", KindPrefill, 8, 16))
	require.NoError(t, r.AddComputeNode("h1", 1000, RolePrefill, 4, 16))

	err := r.AddMemoryNode("h1", KindPrefill, 8, 16)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.AlreadyExists))
}

func TestRegistry_RejectsNonPositiveCapacity(t *testing.T) {
	r := NewRegistry()

	err := r.AddMemoryNode("h1", KindPrefill, 0, 16)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.InvalidArgument))

	err = r.AddComputeNode("h1", 1000, RolePrefill, -4, 16)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.InvalidArgument))
}

func TestRegistry_AddComputeNodeRequiresMemoryNode(t *testing.T) {
	r := NewRegistry()
	err := r.AddComputeNode("h1", 1000, RolePrefill, 4, 16)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.PreconditionFailed))
}

func TestRegistry_CPUNodeNeedsNoMemoryNode(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddComputeNode("h1", 2000, RoleCPU, 4, 16))
	assert.Len(t, r.CPUNodes(), 1)
}

func TestRegistry_SyncMemoryNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.SyncMemory("ghost", KindPrefill, []BlockID{1})
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.NotFound))
}

func TestRegistry_SyncMemoryReturnsNewCount(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddMemoryNode("h1", KindPrefill, 8, 16))
	count, err := r.SyncMemory("h1", KindPrefill, []BlockID{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRegistry_RemoveHostDropsComputeNodes(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddMemoryNode("h1", KindPrefill, 8, 16))
	require.NoError(t, r.AddComputeNode("h1", 1000, RolePrefill, 4, 16))

	require.NoError(t, r.RemoveHost("h1", KindPrefill))
	assert.Empty(t, r.PrefillHostGroups())

	err := r.RemoveHost("h1", KindPrefill)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.NotFound))
}

func TestRegistry_RemoveComputeNode(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddMemoryNode("h1", KindDecode, 8, 16))
	require.NoError(t, r.AddComputeNode("h1", 1000, RoleDecode, 4, 16))

	require.NoError(t, r.RemoveComputeNode("h1", 1000, RoleDecode))
	err := r.RemoveComputeNode("h1", 1000, RoleDecode)
	require.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.NotFound))
}

func TestRegistry_PrefillHostsPreserveInsertionOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddMemoryNode("h3", KindPrefill, 8, 16))
	require.NoError(t, r.AddMemoryNode("h1", KindPrefill, 8, 16))
	require.NoError(t, r.AddMemoryNode("h2", KindPrefill, 8, 16))

	entries := r.PrefillHostGroups()
	require.Len(t, entries, 3)
	assert.Equal(t, []HostID{"h3", "h1", "h2"}, []HostID{entries[0].Host, entries[1].Host, entries[2].Host})
}

func TestRegistry_MempoolHitRateAggregates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddMemoryNode("h1", KindPrefill, 8, 16))
	require.NoError(t, r.AddMemoryNode("h2", KindDecode, 8, 16))
	_, err := r.SyncMemory("h1", KindPrefill, []BlockID{1, 2})
	require.NoError(t, err)

	entries := r.PrefillHostGroups()
	entries[0].Group.CheckHits([]BlockID{1, 2, 3})

	assert.InDelta(t, 2.0/3.0, r.MempoolHitRate(), 1e-9)
}

// TestRegistry_ConcurrentRegistrationAndSync exercises parallel
// registrations racing with parallel syncs against distinct hosts:
// every successful add must be observable and the capacity bound must
// hold throughout.
func TestRegistry_ConcurrentRegistrationAndSync(t *testing.T) {
	r := NewRegistry()
	const hosts = 20

	var wg sync.WaitGroup
	for i := 0; i < hosts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			host := HostID(fmt.Sprintf("h%02d", i))
			require.NoError(t, r.AddMemoryNode(host, KindPrefill, 4, 16))
			_, err := r.SyncMemory(host, KindPrefill, []BlockID{1, 2, 3, 4})
			require.NoError(t, err)
			_, err = r.SyncMemory(host, KindPrefill, []BlockID{1, 2, 3, 4, 5})
			require.Error(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.PrefillHostGroups(), hosts)
}
