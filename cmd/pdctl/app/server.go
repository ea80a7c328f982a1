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

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/matrixinfer-ai/pd-control-plane/pkg/controlplane"
	"github.com/matrixinfer-ai/pd-control-plane/pkg/metrics"
	"github.com/matrixinfer-ai/pd-control-plane/pkg/registry"
	"github.com/matrixinfer-ai/pd-control-plane/pkg/scheduler"
)

const gracefulShutdownTimeout = 15 * time.Second

// Server owns the registry, scheduler, and HTTP engine for one control
// plane process. The default bind port is 6666.
type Server struct {
	Port             string
	DefaultBlockSize int
}

// NewServer creates a server bound to port with the given default block
// size for registrations that omit one.
func NewServer(port string, defaultBlockSize int) *Server {
	return &Server{Port: port, DefaultBlockSize: defaultBlockSize}
}

// Run builds the registry/scheduler/handler stack, starts the HTTP
// server, and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) {
	reg := registry.NewRegistry()
	sched := scheduler.New(reg)
	m := metrics.NewMetrics()
	h := controlplane.NewHandler(reg, sched, m, s.DefaultBlockSize)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/healthz", "/readyz"), gin.Recovery())
	h.Register(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:    ":" + s.Port,
		Handler: engine.Handler(),
	}

	go func() {
		klog.Infof("pd-control-plane listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.Fatalf("listen failed: %v", err)
		}
	}()

	<-ctx.Done()
	klog.Info("shutting down HTTP server ...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		klog.Errorf("server shutdown failed: %v", err)
	}
	klog.Info("HTTP server exited")
}
