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

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jerry-enebeli/nexus"
	"github.com/jerry-enebeli/nexus/config"
	redis_db "github.com/jerry-enebeli/nexus/internal/redis-db"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func redisConnOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %v", err)
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// initializeWebhookServer builds the asynq server that delivers outgoing
// webhooks. Invoicing jobs do not go through asynq.
func initializeWebhookServer(conf *config.Configuration) (*asynq.Server, *asynq.ServeMux, error) {
	connOpt, err := redisConnOpt(conf)
	if err != nil {
		return nil, nil, err
	}

	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{conf.Queue.WebhookQueue: 1},
		Logger:      logrus.StandardLogger(),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(conf.Queue.WebhookQueue, nexus.ProcessWebhook)
	return srv, mux, nil
}

// startMonitoring serves the asynqmon dashboard for the webhook queue.
func startMonitoring(conf *config.Configuration) (*http.Server, error) {
	connOpt, err := redisConnOpt(conf)
	if err != nil {
		return nil, err
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: connOpt,
	})

	server := &http.Server{Addr: fmt.Sprintf(":%s", conf.Queue.MonitoringPort), Handler: h}
	go func() {
		log.Printf("Asynqmon server listening on %s/monitoring", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("asynqmon server stopped")
		}
	}()
	return server, nil
}

// workerCommands defines the "workers" command: the invoicing workers, the
// reconciliation sweeper and the webhook delivery server.
func workerCommands(n *nexusInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start nexus workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			defer func() {
				if err := n.nexus.Close(); err != nil {
					log.Printf("Error closing nexus: %v", err)
				}
			}()
			conf := n.cnf

			phClient, shutdown, err := initializeObservability(ctx, conf)
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

			srv, mux, err := initializeWebhookServer(conf)
			if err != nil {
				log.Fatal(err)
			}
			if err := srv.Start(mux); err != nil {
				log.Fatalf("could not start webhook server: %v", err)
			}
			defer srv.Shutdown()

			monitor, err := startMonitoring(conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() { _ = monitor.Close() }()

			sweeper := nexus.NewReconciliationSweeper(n.nexus)
			sweeper.Start(ctx)
			defer sweeper.Stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return nexus.NewInvoicingWorker(n.nexus).Run(gctx)
			})

			logrus.WithField("concurrency", conf.Queue.Concurrency).Info("invoicing workers running")
			if err := g.Wait(); err != nil {
				logrus.WithError(err).Error("invoicing workers stopped with error")
			}
		},
	}

	return cmd
}
