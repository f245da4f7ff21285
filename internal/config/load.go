package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultYAML is the exhaustive default configuration named in spec §6.4:
// every scalar field resolves to a named KAIJS_* environment variable via
// ExpandEnv, with a literal fallback where an empty value would be wrong
// (ports, intervals, retry counts). List-typed fields (broker subscriptions,
// search-index addresses beyond the first node) are YAML-only, the same way
// the teacher's Proxies/Endpoints lists are not individually env-addressable.
const defaultYAML = `
broker:
  provider: "${KAIJS_BROKER_PROVIDER:-umb}"
  umb:
    url: "${KAIJS_UMB_URL}"
    client_cert_path: "${KAIJS_UMB_CLIENT_CERT_PATH}"
    client_key_path: "${KAIJS_UMB_CLIENT_KEY_PATH}"
    ca_cert_path: "${KAIJS_UMB_CA_CERT_PATH}"
    idle_timeout: "${KAIJS_UMB_IDLE_TIMEOUT:-60s}"
    subscriptions: []
  rabbitmq:
    url: "${KAIJS_RABBITMQ_URL}"
    exchange: "${KAIJS_RABBITMQ_EXCHANGE:-amq.topic}"
    client_cert_path: "${KAIJS_RABBITMQ_CLIENT_CERT_PATH}"
    client_key_path: "${KAIJS_RABBITMQ_CLIENT_KEY_PATH}"
    ca_cert_path: "${KAIJS_RABBITMQ_CA_CERT_PATH}"
    sasl_external: ${KAIJS_RABBITMQ_SASL_EXTERNAL:-false}
    bindings: []

spool:
  dir: "${KAIJS_SPOOL_DIR:-/var/lib/kaijs/spool}"

schemas:
  git_url: "${KAIJS_SCHEMAS_GIT_URL}"
  local_path: "${KAIJS_SCHEMAS_LOCAL_PATH:-/var/lib/kaijs/schemas}"
  refresh_interval: "${KAIJS_SCHEMAS_REFRESH_INTERVAL:-12h}"
  redis:
    enabled: ${KAIJS_SCHEMAS_REDIS_ENABLED:-false}
    addr: "${KAIJS_SCHEMAS_REDIS_ADDR:-localhost:6379}"
    password: "${KAIJS_SCHEMAS_REDIS_PASSWORD}"
    db: ${KAIJS_SCHEMAS_REDIS_DB:-0}
    ttl: "${KAIJS_SCHEMAS_REDIS_TTL:-1h}"

docstore:
  uri: "${KAIJS_DOCSTORE_URI:-mongodb://localhost:27017}"
  database: "${KAIJS_DOCSTORE_DATABASE:-kaijs}"

search_index:
  addresses:
    - "${KAIJS_SEARCH_INDEX_ADDRESS:-http://localhost:9200}"
  username: "${KAIJS_SEARCH_INDEX_USERNAME}"
  password: "${KAIJS_SEARCH_INDEX_PASSWORD}"
  index_prefix: "${KAIJS_SEARCH_INDEX_PREFIX:-kaijs}"
  flush_bytes: ${KAIJS_SEARCH_INDEX_FLUSH_BYTES:-5242880}
  flush_count: ${KAIJS_SEARCH_INDEX_FLUSH_COUNT:-500}
  idle_flush: "${KAIJS_SEARCH_INDEX_IDLE_FLUSH:-5s}"

buildsys:
  xmlrpc_url: "${KAIJS_BUILDSYS_XMLRPC_URL}"

loader:
  poll_interval: "${KAIJS_LOADER_POLL_INTERVAL:-500ms}"

listener:
  liveness_period: "${KAIJS_LISTENER_LIVENESS_PERIOD:-1m}"
`

// Load builds a Config from the embedded default document (every field
// resolved from its KAIJS_* environment variable, per spec §6.4), then, if
// path is non-empty, reads that YAML file, expands it the same way, and
// unmarshals it over the defaults so the override file only needs to name
// the fields it actually changes.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := unmarshalExpanded([]byte(defaultYAML), &cfg); err != nil {
		return nil, fmt.Errorf("config: invalid embedded defaults: %w", err)
	}

	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config: file not found: %s", path)
		}
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}
	if err := unmarshalExpanded(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: invalid YAML in %s: %w", path, err)
	}
	return &cfg, nil
}

func unmarshalExpanded(data []byte, cfg *Config) error {
	return yaml.Unmarshal([]byte(ExpandEnv(string(data))), cfg)
}
