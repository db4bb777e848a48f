// Copyright 2025 AxonFlow
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

// Package main is the entry point for the control plane service.
//
// The control plane evaluates access policy, enforces kernel-level
// authorization, routes classified thoughts through the brain
// dispatcher, runs the reactive slot network, and exposes the uniform
// operator-invocation contract over HTTP.
//
// Usage:
//
//	./controlplaned
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL/MySQL connection string for the policy mirror
//	REDIS_URL - session/key store backend (falls back to in-memory)
//	MASTER_KEY_HASH - sha-256 hash of the pre-provisioned root API key
//	JWT_SECRET - token signing material
//	SECRET_SOURCE - aws|azure: resolve startup secrets from AWS_SECRET_ID / AZURE_KEYVAULT_URL
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"controlplane/internal/api"
	"controlplane/internal/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	container, err := app.NewContainer(cfg)
	if err != nil {
		log.Fatalf("build container: %v", err)
	}
	defer container.Close()

	container.Network.Start()
	defer container.Network.Stop()

	server := api.NewServer(container)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}

	go func() {
		log.Printf("control plane listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
