// Package config loads the kaijs YAML configuration file used by both
// cmd/listener and cmd/loader, grounded on the teacher's
// quarry/cli/config/{config,envexpand,load}.go: a YAML document whose string
// values are first passed through ${VAR}/${VAR:-default} environment
// expansion, then unmarshaled.
//
// Every scalar field in this struct has a corresponding KAIJS_* environment
// variable reference baked into defaultYAML (see load.go); the list fields
// (subscriptions, bindings, search-index addresses) are set only through a
// YAML file. An operator
// can run either binary against the embedded default config with nothing
// but environment variables set, or supply their own YAML file to override
// any subset of fields.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level kaijs.yaml document.
type Config struct {
	Broker      BrokerConfig      `yaml:"broker"`
	Spool       SpoolConfig       `yaml:"spool"`
	Schemas     SchemaConfig      `yaml:"schemas"`
	Docstore    DocstoreConfig    `yaml:"docstore"`
	SearchIndex SearchIndexConfig `yaml:"search_index"`
	Buildsys    BuildsysConfig    `yaml:"buildsys"`
	Loader      LoaderConfig      `yaml:"loader"`
	Listener    ListenerConfig    `yaml:"listener"`
}

// BrokerConfig selects and configures the ingress broker of spec §4.1/§6.1.
type BrokerConfig struct {
	// Provider is "umb" or "rabbitmq".
	Provider string         `yaml:"provider"`
	UMB      UMBConfig      `yaml:"umb"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// TopicBindingConfig pairs a topic/routing pattern with an optional
// JMS-style selector expression (UMB only).
type TopicBindingConfig struct {
	Topic    string `yaml:"topic"`
	Selector string `yaml:"selector,omitempty"`
}

// UMBConfig configures the AMQP-1.0 Unified Message Bus receiver.
type UMBConfig struct {
	URL            string               `yaml:"url"`
	ClientCertPath string               `yaml:"client_cert_path"`
	ClientKeyPath  string               `yaml:"client_key_path"`
	CACertPath     string               `yaml:"ca_cert_path"`
	IdleTimeout    Duration             `yaml:"idle_timeout"`
	Subscriptions  []TopicBindingConfig `yaml:"subscriptions"`
}

// RabbitMQConfig configures the AMQP-0.9.1 RabbitMQ receiver.
type RabbitMQConfig struct {
	URL            string               `yaml:"url"`
	Exchange       string               `yaml:"exchange"`
	ClientCertPath string               `yaml:"client_cert_path"`
	ClientKeyPath  string               `yaml:"client_key_path"`
	CACertPath     string               `yaml:"ca_cert_path"`
	SASLExternal   bool                 `yaml:"sasl_external"`
	Bindings       []TopicBindingConfig `yaml:"bindings"`
}

// SpoolConfig configures the on-disk durable queue of spec §3.1.
type SpoolConfig struct {
	Dir string `yaml:"dir"`
}

// SchemaConfig configures the git-mirrored schema catalog of spec §4.3.
type SchemaConfig struct {
	GitURL          string         `yaml:"git_url"`
	LocalPath       string         `yaml:"local_path"`
	RefreshInterval Duration       `yaml:"refresh_interval"`
	Redis           RedisTagConfig `yaml:"redis"`
}

// RedisTagConfig configures the optional Redis-backed compiled-schema cache.
type RedisTagConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

// DocstoreConfig configures the MongoDB document store of spec §4.7/§6.3.
type DocstoreConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SearchIndexConfig configures the Elasticsearch search index of spec §4.8.
// FlushBytes and FlushCount are loaded but not read by any component:
// searchindex.BatchWriter flushes at its own fixed thresholds of 100 updates
// and 50 MiB. IdleFlush is the tick at which cmd/loader checks the batch
// writer's fixed 3s idle threshold.
type SearchIndexConfig struct {
	Addresses   []string `yaml:"addresses"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	IndexPrefix string   `yaml:"index_prefix"`
	FlushBytes  int      `yaml:"flush_bytes"`
	FlushCount  int      `yaml:"flush_count"`
	IdleFlush   Duration `yaml:"idle_flush"`
}

// BuildsysConfig configures the build-system XML-RPC enrichment client of
// spec §4.9.
type BuildsysConfig struct {
	XMLRPCURL string `yaml:"xmlrpc_url"`
}

// LoaderConfig holds the loader's poll_interval setting. cmd/loader does not
// pass it on: internal/loader.Loop always waits its fixed PollInterval after
// an empty spool.
type LoaderConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
}

// ListenerConfig tunes internal/listener.Listener, run by cmd/listener.
type ListenerConfig struct {
	LivenessPeriod Duration `yaml:"liveness_period"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m"),
// carried over verbatim from the teacher's config.Duration.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
