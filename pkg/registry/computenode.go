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

import "github.com/matrixinfer-ai/pd-control-plane/pkg/pool"

// ComputeNode is a GPU (or CPU hybrid-decode) engine: a BlockPool of
// resident KV blocks plus the in-flight request count the engine last
// reported.
type ComputeNode struct {
	Host         HostID
	Port         int
	Role         Role
	RequestCount int
	Pool         *pool.BlockPool
}

// NewComputeNode creates a compute node with an empty GPU-residency
// pool of the given capacity.
func NewComputeNode(host HostID, port int, role Role, capacity, blockSize int) *ComputeNode {
	return &ComputeNode{
		Host: host,
		Port: port,
		Role: role,
		Pool: pool.New(capacity, blockSize),
	}
}

// Sync replaces request_count and the resident block set atomically:
// either both fields move together, or — if the block sync is rejected
// for exceeding capacity — neither does.
func (c *ComputeNode) Sync(requestCount int, gpuBlockIDs []BlockID) error {
	if err := c.Pool.Sync(gpuBlockIDs); err != nil {
		return err
	}
	c.RequestCount = requestCount
	return nil
}
