// Package config wraps viper the way the teacher's internal/pkg/config
// does, trimmed to the execution substrate's own concerns. The HTTP/
// OAuth/SMTP/Stripe sections the teacher carries are dropped because
// those subsystems are out of scope for this module (spec §1), not
// because config-as-a-concern is out of scope.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App           AppConfig
	Redis         RedisConfig
	Scheduler     SchedulerConfig
	Cache         CacheConfig
	Credit        CreditConfig
	Observability ObservabilityConfig
}

type AppConfig struct {
	Environment string
	Debug       bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TLS      bool
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SchedulerConfig struct {
	Concurrency        int
	DefaultNodeTimeout time.Duration
	WorkflowTimeout    time.Duration
	MaxAttempts        int
	BackoffBase        time.Duration
	MaxBackoff         time.Duration
	CancelGrace        time.Duration
	TaskQueueCapacity  int
}

type CacheConfig struct {
	L1Capacity     int
	DefaultTTL     time.Duration
	SweepInterval  time.Duration
	CredentialTTL  time.Duration
}

type CreditConfig struct {
	ReconcileInterval time.Duration
}

type ObservabilityConfig struct {
	MetricsNamespace string
}

// Load reads configuration from the given path (if any), environment
// variables (prefixed LNKFLOW_), and defaults, mirroring the teacher's
// viper precedence order.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LNKFLOW")
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Environment: v.GetString("app.environment"),
			Debug:       v.GetBool("app.debug"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			TLS:      v.GetBool("redis.tls"),
		},
		Scheduler: SchedulerConfig{
			Concurrency:        v.GetInt("scheduler.concurrency"),
			DefaultNodeTimeout: v.GetDuration("scheduler.default_node_timeout"),
			WorkflowTimeout:    v.GetDuration("scheduler.workflow_timeout"),
			MaxAttempts:        v.GetInt("scheduler.max_attempts"),
			BackoffBase:        v.GetDuration("scheduler.backoff_base"),
			MaxBackoff:         v.GetDuration("scheduler.max_backoff"),
			CancelGrace:        v.GetDuration("scheduler.cancel_grace"),
			TaskQueueCapacity:  v.GetInt("scheduler.task_queue_capacity"),
		},
		Cache: CacheConfig{
			L1Capacity:    v.GetInt("cache.l1_capacity"),
			DefaultTTL:    v.GetDuration("cache.default_ttl"),
			SweepInterval: v.GetDuration("cache.sweep_interval"),
			CredentialTTL: v.GetDuration("cache.credential_ttl"),
		},
		Credit: CreditConfig{
			ReconcileInterval: v.GetDuration("credit.reconcile_interval"),
		},
		Observability: ObservabilityConfig{
			MetricsNamespace: v.GetString("observability.metrics_namespace"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "production")
	v.SetDefault("app.debug", false)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.concurrency", 10)
	v.SetDefault("scheduler.default_node_timeout", 30*time.Second)
	v.SetDefault("scheduler.workflow_timeout", time.Hour)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.backoff_base", time.Second)
	v.SetDefault("scheduler.max_backoff", 5*time.Minute)
	v.SetDefault("scheduler.cancel_grace", 5*time.Second)
	v.SetDefault("scheduler.task_queue_capacity", 256)

	v.SetDefault("cache.l1_capacity", 10000)
	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.sweep_interval", 60*time.Second)
	v.SetDefault("cache.credential_ttl", 5*time.Minute)

	v.SetDefault("credit.reconcile_interval", time.Hour)

	v.SetDefault("observability.metrics_namespace", "lnkflow")
}
