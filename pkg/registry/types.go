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

// Package registry is the cluster topology model: per-host grouping of
// one memory node with zero or more compute nodes, per role, plus a flat
// set of CPU compute nodes. It owns every MemoryNode and ComputeNode in
// the cluster; the scheduler only ever borrows a reference to it.
package registry

import "github.com/matrixinfer-ai/pd-control-plane/pkg/hashing"

// HostID identifies a physical host. The wire format is a string, but
// nothing in the core depends on that beyond map-key equality.
type HostID string

// Role is the role a compute node serves.
type Role string

const (
	RolePrefill Role = "prefill"
	RoleDecode  Role = "decode"
	RoleCPU     Role = "cpu"
)

// NodeKind is the kind of memory node — which role's compute nodes it
// backs. There is no "cpu" memory node: CPU compute nodes spill to the
// decode memory node of whatever host they're paired with.
type NodeKind string

const (
	KindPrefill NodeKind = "prefill"
	KindDecode  NodeKind = "decode"
)

// BlockID re-exports hashing.BlockID so callers of this package don't
// need to import hashing directly for simple signatures.
type BlockID = hashing.BlockID
