// Copyright (c) 2022 The rcproxy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rpcengine

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apaluca/sockrpc/pkg/logging"
)

// webServer is the optional ambient admin HTTP surface: Prometheus
// metrics, a liveness probe, the registered method list, and pprof. It has
// nothing to do with the RPC protocol itself and runs on its own TCP
// listener, gated behind Options.AdminAddr.
type webServer struct {
	server *Server
	http   *http.Server
}

func newWebServer(s *Server) *webServer {
	return &webServer{server: s}
}

func (w *webServer) start(addr string) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(w.server.stats.Registry, promhttp.HandlerOpts{})))
	r.GET("/healthz", w.healthz)
	r.GET("/methods", w.methods)
	pprof.Register(r)

	w.http = &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := w.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("admin http server stopped: %v", err)
		}
	}()
	logging.Infof("admin http surface listening on %s", addr)
}

func (w *webServer) stop() {
	if w.http == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = w.http.Shutdown(ctx)
}

func (w *webServer) healthz(c *gin.Context) {
	if !w.server.Running() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stopped"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (w *webServer) methods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"methods": w.server.registry.Names(),
		"calls":   w.server.stats.MethodCallCounts(),
	})
}
