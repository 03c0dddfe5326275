/*
Copyright 2024 Blnk Finance Authors.

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

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/nexus/api"
	"github.com/jerry-enebeli/nexus/config"
	trace "github.com/jerry-enebeli/nexus/internal/traces"
)

const shutdownGracePeriod = 15 * time.Second

/*
serveTLS starts an HTTPS server using CertMagic for automatic certificate management.
If no domain is specified, the server defaults to localhost.
*/
func serveTLS(ctx context.Context, r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(ctx, domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	return runUntilDone(ctx, server, func() error { return server.ListenAndServeTLS("", "") })
}

// runUntilDone serves until ctx is cancelled, then drains in-flight requests.
func runUntilDone(ctx context.Context, server *http.Server, serve func() error) error {
	errCh := make(chan error, 1)
	go func() {
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	logrus.Info("shutting down http server")
	return server.Shutdown(shutdownCtx)
}

// sendHeartbeat initializes and maintains a periodic heartbeat to PostHog
func sendHeartbeat(client posthog.Client, heartbeatID string) {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		for range ticker.C {
			if err := client.Enqueue(posthog.Capture{
				DistinctId: heartbeatID,
				Event:      "server_heartbeat",
				Properties: map[string]interface{}{
					"timestamp": time.Now().UTC(),
				},
			}); err != nil {
				log.Printf("Failed to send heartbeat: %v", err)
			}
		}
	}()
}

func initializeTracing(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	shutdown, err := trace.SetupOTelSDK(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

func initializePostHog(cfg *config.Configuration) posthog.Client {
	if cfg.PostHog.ApiKey == "" {
		return nil
	}
	client, err := posthog.NewWithConfig(cfg.PostHog.ApiKey, posthog.Config{Endpoint: cfg.PostHog.Endpoint})
	if err != nil {
		log.Printf("PostHog disabled: %v", err)
		return nil
	}
	sendHeartbeat(client, uuid.New().String())
	return client
}

func initializeObservability(ctx context.Context, cfg *config.Configuration) (posthog.Client, func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return nil, func(context.Context) error { return nil }, nil
	}

	shutdown, err := initializeTracing(ctx, cfg.ProjectName)
	if err != nil {
		return nil, nil, err
	}

	return initializePostHog(cfg), shutdown, nil
}

func startServer(ctx context.Context, router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(ctx, router, cfg)
	}
	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return runUntilDone(ctx, server, server.ListenAndServe)
}

// serverCommands returns the command that serves the HTTP API.
func serverCommands(n *nexusInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start nexus server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			defer func() {
				if err := n.nexus.Close(); err != nil {
					log.Printf("Error closing nexus: %v", err)
				}
			}()

			phClient, shutdown, err := initializeObservability(ctx, n.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}

			router := api.NewAPI(n.nexus).Router()
			if err := startServer(ctx, router, n.cnf.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
