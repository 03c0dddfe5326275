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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	DefaultInvoiceQueue    = "nexus:invoicing"
	DefaultWebhookQueue    = "nexus_webhooks"
	DefaultMaxAttempts     = 5
	DefaultDequeueTimeout  = 5 * time.Second
	DefaultBackoffInitial  = 2 * time.Second
	DefaultBackoffMax      = 5 * time.Minute
	DefaultInvoiceTimeout  = 30 * time.Second
	DefaultSweepInterval   = time.Minute
	DefaultStuckThreshold  = 15 * time.Minute
	DefaultSweepBatchSize  = 500
	DefaultCatalogCacheTTL = 30 * time.Second
	DefaultPostHogEndpoint = "https://us.i.posthog.com"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"NEXUS_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"NEXUS_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"NEXUS_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"NEXUS_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"NEXUS_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"NEXUS_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"NEXUS_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"NEXUS_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"NEXUS_REDIS_SKIP_TLS_VERIFY"`
}

// QueueConfig controls the invoicing queue and the workers consuming it.
type QueueConfig struct {
	InvoiceQueue   string        `json:"invoice_queue" envconfig:"NEXUS_QUEUE_INVOICE_QUEUE"`
	WebhookQueue   string        `json:"webhook_queue" envconfig:"NEXUS_QUEUE_WEBHOOK_QUEUE"`
	DequeueTimeout time.Duration `json:"dequeue_timeout" envconfig:"NEXUS_QUEUE_DEQUEUE_TIMEOUT"`
	MaxAttempts    int           `json:"max_attempts" envconfig:"NEXUS_QUEUE_MAX_ATTEMPTS"`
	BackoffInitial time.Duration `json:"backoff_initial" envconfig:"NEXUS_QUEUE_BACKOFF_INITIAL"`
	BackoffMax     time.Duration `json:"backoff_max" envconfig:"NEXUS_QUEUE_BACKOFF_MAX"`
	Concurrency    int           `json:"concurrency" envconfig:"NEXUS_QUEUE_CONCURRENCY"`
	MonitoringPort string        `json:"monitoring_port" envconfig:"NEXUS_QUEUE_MONITORING_PORT"`
}

// InvoicingConfig points at the external invoicing authority.
type InvoicingConfig struct {
	AuthorityURL string            `json:"authority_url" envconfig:"NEXUS_INVOICING_AUTHORITY_URL"`
	Timeout      time.Duration     `json:"timeout" envconfig:"NEXUS_INVOICING_TIMEOUT"`
	Headers      map[string]string `json:"headers"`
}

type ReconciliationConfig struct {
	Interval       time.Duration `json:"interval" envconfig:"NEXUS_RECONCILIATION_INTERVAL"`
	StuckThreshold time.Duration `json:"stuck_threshold" envconfig:"NEXUS_RECONCILIATION_STUCK_THRESHOLD"`
	BatchSize      int           `json:"batch_size" envconfig:"NEXUS_RECONCILIATION_BATCH_SIZE"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `json:"cache_ttl" envconfig:"NEXUS_CATALOG_CACHE_TTL"`
}

type WhatsAppConfig struct {
	VerifyToken string `json:"verify_token" envconfig:"NEXUS_WHATSAPP_VERIFY_TOKEN"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"NEXUS_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"NEXUS_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"NEXUS_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type PostHogConfig struct {
	ApiKey   string `json:"api_key" envconfig:"NEXUS_POSTHOG_API_KEY"`
	Endpoint string `json:"endpoint" envconfig:"NEXUS_POSTHOG_ENDPOINT"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"NEXUS_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"NEXUS_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type Configuration struct {
	ProjectName     string               `json:"project_name" envconfig:"NEXUS_PROJECT_NAME"`
	EnableTelemetry bool                 `json:"enable_telemetry" envconfig:"NEXUS_ENABLE_TELEMETRY"`
	Server          ServerConfig         `json:"server"`
	DataSource      DataSourceConfig     `json:"data_source"`
	Redis           RedisConfig          `json:"redis"`
	Queue           QueueConfig          `json:"queue"`
	Invoicing       InvoicingConfig      `json:"invoicing"`
	Reconciliation  ReconciliationConfig `json:"reconciliation"`
	Catalog         CatalogConfig        `json:"catalog"`
	WhatsApp        WhatsAppConfig       `json:"whatsapp"`
	Notification    Notification         `json:"notification"`
	RateLimit       RateLimitConfig      `json:"rate_limit"`
	PostHog         PostHogConfig        `json:"posthog"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("nexus", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called nexus.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Nexus Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Invoicing.AuthorityURL = strings.TrimSpace(cnf.Invoicing.AuthorityURL)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Queue.applyDefaults()
	cnf.Reconciliation.applyDefaults()

	if cnf.Invoicing.Timeout <= 0 {
		cnf.Invoicing.Timeout = DefaultInvoiceTimeout
	}
	if cnf.Catalog.CacheTTL <= 0 {
		cnf.Catalog.CacheTTL = DefaultCatalogCacheTTL
	}
	if cnf.PostHog.Endpoint == "" {
		cnf.PostHog.Endpoint = DefaultPostHogEndpoint
	}

	// A sale waiting out its longest backoff must not look stuck to the sweep.
	if cnf.Reconciliation.StuckThreshold <= cnf.Queue.BackoffMax+cnf.Invoicing.Timeout {
		cnf.Reconciliation.StuckThreshold = 2*cnf.Queue.BackoffMax + cnf.Invoicing.Timeout
		log.Printf("Warning: Reconciliation stuck threshold raised to %s to exceed the retry backoff", cnf.Reconciliation.StuckThreshold)
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (q *QueueConfig) applyDefaults() {
	if q.InvoiceQueue == "" {
		q.InvoiceQueue = DefaultInvoiceQueue
	}
	if q.WebhookQueue == "" {
		q.WebhookQueue = DefaultWebhookQueue
	}
	if q.DequeueTimeout < time.Second {
		q.DequeueTimeout = DefaultDequeueTimeout
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = DefaultMaxAttempts
	}
	if q.BackoffInitial <= 0 {
		q.BackoffInitial = DefaultBackoffInitial
	}
	if q.BackoffMax < q.BackoffInitial {
		q.BackoffMax = DefaultBackoffMax
		if q.BackoffMax < q.BackoffInitial {
			q.BackoffMax = q.BackoffInitial
		}
	}
	if q.Concurrency <= 0 {
		q.Concurrency = 1
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5004"
	}
}

func (r *ReconciliationConfig) applyDefaults() {
	if r.Interval <= 0 {
		r.Interval = DefaultSweepInterval
	}
	if r.StuckThreshold <= 0 {
		r.StuckThreshold = DefaultStuckThreshold
	}
	if r.BatchSize <= 0 {
		r.BatchSize = DefaultSweepBatchSize
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
