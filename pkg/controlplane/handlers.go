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

// Package controlplane is the HTTP control surface: it translates the
// JSON-over-HTTP API into registry/scheduler operations and structured
// error kinds, and never holds either's locks across a network
// suspension point.
package controlplane

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/matrixinfer-ai/pd-control-plane/pkg/apierror"
	"github.com/matrixinfer-ai/pd-control-plane/pkg/metrics"
	"github.com/matrixinfer-ai/pd-control-plane/pkg/registry"
	"github.com/matrixinfer-ai/pd-control-plane/pkg/scheduler"
)

// Handler wires the registry and scheduler into gin routes. DefaultBlockSize
// is used whenever a registration request omits block_size, since the
// wire bodies carry block counts but not block size.
type Handler struct {
	Registry         *registry.Registry
	Scheduler        *scheduler.Scheduler
	Metrics          *metrics.Metrics
	DefaultBlockSize int
	Recent           *recentDecisions
	ready            bool
}

// NewHandler builds a Handler around an already-constructed registry and
// scheduler.
func NewHandler(reg *registry.Registry, sched *scheduler.Scheduler, m *metrics.Metrics, defaultBlockSize int) *Handler {
	return &Handler{
		Registry:         reg,
		Scheduler:        sched,
		Metrics:          m,
		DefaultBlockSize: defaultBlockSize,
		Recent:           newRecentDecisions(64),
		ready:            true,
	}
}

// Register attaches every control-plane route, including the removal
// and debug endpoints, to engine.
func (h *Handler) Register(engine *gin.Engine) {
	engine.Use(requestIDMiddleware())

	engine.GET("/healthz", h.healthz)
	engine.GET("/readyz", h.readyz)

	engine.POST("/compnode/add_node", h.addComputeNode)
	engine.POST("/mempool/add_node", h.addMemoryNode)
	engine.DELETE("/compnode/node", h.removeComputeNode)
	engine.DELETE("/mempool/node", h.removeMemoryNode)

	engine.POST("/compnode/schedule_prefill", h.schedulePrefill)
	engine.POST("/compnode/schedule_decode", h.scheduleDecode)

	engine.PUT("/compnode/sync", h.syncCompute)
	engine.PUT("/mempool/sync", h.syncMemory)
	engine.POST("/mempool/blocks", h.addMemoryBlocks)
	engine.POST("/mempool/hits", h.mempoolHits)

	engine.GET("/debug/topology", h.debugTopology)
	engine.GET("/debug/recent", h.debugRecent)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("x-request-id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Set("request_id", reqID)
		c.Writer.Header().Set("x-request-id", reqID)
		c.Next()
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

func (h *Handler) readyz(c *gin.Context) {
	if h.ready {
		c.JSON(http.StatusOK, gin.H{"message": "control plane is ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"message": "control plane is not ready"})
}

// respondError translates a core error into its HTTP status and body,
// falling back to 500 Internal for anything not wrapped as
// *apierror.Error.
func respondError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apierror.StatusCode(err), gin.H{"error": err.Error()})
}

func (h *Handler) blockSize(requested int) int {
	if requested > 0 {
		return requested
	}
	return h.DefaultBlockSize
}

func (h *Handler) addMemoryNode(c *gin.Context) {
	var req addMemoryNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.InvalidArgumentf("%v", err))
		return
	}
	if err := h.Registry.AddMemoryNode(req.Host, req.NodeType, req.NumBlocks, h.blockSize(req.BlockSize)); err != nil {
		respondError(c, err)
		return
	}
	klog.Infof("[%s] add_memory_node host=%s kind=%s capacity=%d", requestID(c), req.Host, req.NodeType, req.NumBlocks)
	c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

func (h *Handler) addComputeNode(c *gin.Context) {
	var req addComputeNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.InvalidArgumentf("%v", err))
		return
	}
	if err := h.Registry.AddComputeNode(req.Host, req.Port, req.Role, req.NumGPUBlocks, h.blockSize(req.BlockSize)); err != nil {
		respondError(c, err)
		return
	}
	klog.Infof("[%s] add_compute_node host=%s port=%d role=%s capacity=%d", requestID(c), req.Host, req.Port, req.Role, req.NumGPUBlocks)
	c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

func (h *Handler) removeComputeNode(c *gin.Context) {
	var req removeComputeNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.InvalidArgumentf("%v", err))
		return
	}
	if err := h.Registry.RemoveComputeNode(req.Host, req.Port, req.Role); err != nil {
		respondError(c, err)
		return
	}
	klog.Infof("[%s] remove_compute_node host=%s port=%d role=%s", requestID(c), req.Host, req.Port, req.Role)
	c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

func (h *Handler) removeMemoryNode(c *gin.Context) {
	var req removeMemoryNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.InvalidArgumentf("%v", err))
		return
	}
	if err := h.Registry.RemoveHost(req.Host, req.NodeType); err != nil {
		respondError(c, err)
		return
	}
	klog.Infof("[%s] remove_host host=%s kind=%s", requestID(c), req.Host, req.NodeType)
	c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

func (h *Handler) schedulePrefill(c *gin.Context) {
	var req schedulePrefillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.InvalidArgumentf("%v", err))
		return
	}
	p, err := h.Scheduler.SchedulePrefill(req.BlockHashes)
	if err != nil {
		h.Metrics.RecordError(metrics.KindPrefill)
		respondError(c, err)
		return
	}

	kind := metrics.KindPrefill
	if p.DirectHybridDecode {
		kind = metrics.KindHybrid
	}
	h.Metrics.RecordDecision(kind, p.Score, len(req.BlockHashes))
	h.Recent.record(decisionRecord{
		Kind: "schedule_prefill", Host: string(p.CNHost), Port: p.CNPort,
		DirectHybrid: p.DirectHybridDecode, RequestID: requestID(c),
	})
	klog.V(4).Infof("[%s] schedule_prefill -> host=%s port=%d hybrid=%v", requestID(c), p.CNHost, p.CNPort, p.DirectHybridDecode)

	c.JSON(http.StatusOK, dataEnvelope{Data: prefillPlacementResponse{
		CNHost: p.CNHost, CNPort: p.CNPort, MNHost: p.MNHost, DirectHybridDecode: p.DirectHybridDecode,
	}})
}

func (h *Handler) scheduleDecode(c *gin.Context) {
	var req scheduleDecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.InvalidArgumentf("%v", err))
		return
	}
	directHybrid := req.DirectHybrid != nil && *req.DirectHybrid

	p, err := h.Scheduler.ScheduleDecode(req.BlockHashes, directHybrid)
	if err != nil {
		h.Metrics.RecordError(metrics.KindDecode)
		respondError(c, err)
		return
	}

	kind := metrics.KindDecode
	if directHybrid {
		kind = metrics.KindHybrid
	}
	h.Metrics.RecordDecision(kind, 0, len(req.BlockHashes))
	h.Recent.record(decisionRecord{
		Kind: "schedule_decode", Host: string(p.CNHost), Port: p.CNPort,
		DirectHybrid: directHybrid, RequestID: requestID(c),
	})
	klog.V(4).Infof("[%s] schedule_decode -> host=%s port=%d", requestID(c), p.CNHost, p.CNPort)

	c.JSON(http.StatusOK, dataEnvelope{Data: decodePlacementResponse{
		CNHost: p.CNHost, CNPort: p.CNPort, MNHost: p.MNHost,
	}})
}

func (h *Handler) syncCompute(c *gin.Context) {
	var req syncComputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.InvalidArgumentf("%v", err))
		return
	}
	if err := h.Registry.SyncCompute(req.Host, req.Port, req.Role, req.RequestCount, req.GPUBlocks); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}

func (h *Handler) syncMemory(c *gin.Context) {
	var req syncMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.InvalidArgumentf("%v", err))
		return
	}
	count, err := h.Registry.SyncMemory(req.Host, req.NodeType, req.BlockHashes)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Metrics.SetPoolOccupancy(string(req.Host), string(req.NodeType), count)
	c.JSON(http.StatusOK, statusResponse{Status: fmt.Sprintf("%d cached blocks now", count)})
}

func (h *Handler) addMemoryBlocks(c *gin.Context) {
	var req syncMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.InvalidArgumentf("%v", err))
		return
	}
	count, err := h.Registry.AddMemoryBlocks(req.Host, req.NodeType, req.BlockHashes)
	if err != nil {
		respondError(c, err)
		return
	}
	h.Metrics.SetPoolOccupancy(string(req.Host), string(req.NodeType), count)
	c.JSON(http.StatusOK, statusResponse{Status: fmt.Sprintf("%d cached blocks now", count)})
}

func (h *Handler) mempoolHits(c *gin.Context) {
	c.JSON(http.StatusOK, hitRateResponse{Ret: h.Scheduler.MemoryHitRate()})
}

func requestID(c *gin.Context) string {
	if v, ok := c.Get("request_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
