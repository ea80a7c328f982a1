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

import "github.com/matrixinfer-ai/pd-control-plane/pkg/registry"

// Wire DTOs for the JSON-over-HTTP control surface.

type addMemoryNodeRequest struct {
	Host      registry.HostID   `json:"host" binding:"required"`
	NodeType  registry.NodeKind `json:"node_type" binding:"required"`
	NumBlocks int               `json:"num_blocks" binding:"required"`
	BlockSize int               `json:"block_size"`
}

type addComputeNodeRequest struct {
	Host         registry.HostID `json:"host" binding:"required"`
	Port         int             `json:"port" binding:"required"`
	Role         registry.Role   `json:"role" binding:"required"`
	NumGPUBlocks int             `json:"num_gpu_blocks" binding:"required"`
	BlockSize    int             `json:"block_size"`
}

type removeComputeNodeRequest struct {
	Host registry.HostID `json:"host" binding:"required"`
	Port int             `json:"port" binding:"required"`
	Role registry.Role   `json:"role" binding:"required"`
}

type removeMemoryNodeRequest struct {
	Host     registry.HostID   `json:"host" binding:"required"`
	NodeType registry.NodeKind `json:"node_type" binding:"required"`
}

type schedulePrefillRequest struct {
	BlockHashes []registry.BlockID `json:"block_hashes"`
}

type scheduleDecodeRequest struct {
	BlockHashes  []registry.BlockID `json:"block_hashes"`
	DirectHybrid *bool              `json:"direct_hybrid"`
}

type syncComputeRequest struct {
	Host         registry.HostID    `json:"host" binding:"required"`
	Port         int                `json:"port" binding:"required"`
	Role         registry.Role      `json:"role" binding:"required"`
	RequestCount int                `json:"request_count"`
	GPUBlocks    []registry.BlockID `json:"gpu_blocks"`
}

type syncMemoryRequest struct {
	Host        registry.HostID    `json:"host" binding:"required"`
	NodeType    registry.NodeKind  `json:"node_type" binding:"required"`
	BlockHashes []registry.BlockID `json:"block_hashes"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type prefillPlacementResponse struct {
	CNHost             registry.HostID  `json:"cn_host"`
	CNPort             int              `json:"cn_port"`
	MNHost             *registry.HostID `json:"mn_host,omitempty"`
	DirectHybridDecode bool             `json:"direct_hybrid_decode"`
}

type decodePlacementResponse struct {
	CNHost registry.HostID  `json:"cn_host"`
	CNPort int              `json:"cn_port"`
	MNHost *registry.HostID `json:"mn_host,omitempty"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type hitRateResponse struct {
	Ret float64 `json:"ret"`
}
