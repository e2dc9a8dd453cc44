package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends selectable by name.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBolt   = "bolt"
)

// MinMemory is the floor for the node-cache byte budget.
const MinMemory int64 = 1 << 20

// Options holds connection configuration. Zero values take defaults via
// Validate.
type Options struct {
	// Servers lists endpoints for remote storage. Empty means local.
	Servers []string `yaml:"servers"`

	// Parallelism bounds concurrent background workers.
	Parallelism int `yaml:"parallelism"`

	// Memory is the byte budget for the node cache (minimum 1 MiB).
	Memory int64 `yaml:"memory"`

	// Serializer names the codec; "json" is the only built-in.
	Serializer string `yaml:"serializer"`

	// DefaultNetwork scopes ledger names without an explicit network.
	DefaultNetwork string `yaml:"default-network"`

	// Transactor enables the write path; readers leave it false.
	Transactor bool `yaml:"transactor"`

	// StorageBackend selects memory | file | bolt for local storage.
	StorageBackend string `yaml:"storage-backend"`

	// StoragePath is the data directory for file and bolt backends.
	StoragePath string `yaml:"storage-path"`

	// NSLookup maps ledger names to storage addresses.
	NSLookup map[string]string `yaml:"ns-lookup"`

	// KeepAlive enables liveness pings on remote connections.
	KeepAlive         bool          `yaml:"keep-alive"`
	KeepAliveInterval time.Duration `yaml:"keep-alive-interval"`

	// DID is the default identity presented with transactions.
	DID string `yaml:"did"`

	// Context is the default JSON-LD context applied to queries and
	// transactions.
	Context map[string]any `yaml:"context"`

	// TxPrivateKey signs transactions when set.
	TxPrivateKey string `yaml:"tx-private-key"`

	// Reindex policy.
	ReindexMin      int64         `yaml:"reindex-min"`
	ReindexMax      int64         `yaml:"reindex-max"`
	ReindexInterval time.Duration `yaml:"reindex-interval"`
}

// Default returns the options an empty configuration resolves to.
func Default() Options {
	o := Options{}
	_ = o.Validate()
	return o
}

// Load reads options from a YAML file.
func Load(path string) (Options, error) {
	var o Options
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := o.Validate(); err != nil {
		return o, err
	}
	return o, nil
}

// Validate normalizes the options, applying defaults and floors.
func (o *Options) Validate() error {
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
	if o.Memory < MinMemory {
		o.Memory = MinMemory
	}
	if o.Serializer == "" {
		o.Serializer = "json"
	}
	if o.Serializer != "json" {
		return fmt.Errorf("unknown serializer %q", o.Serializer)
	}
	if o.DefaultNetwork == "" {
		o.DefaultNetwork = "local"
	}
	if o.StorageBackend == "" {
		o.StorageBackend = BackendMemory
	}
	switch o.StorageBackend {
	case BackendMemory, BackendFile, BackendBolt:
	default:
		return fmt.Errorf("unknown storage backend %q", o.StorageBackend)
	}
	if (o.StorageBackend == BackendFile || o.StorageBackend == BackendBolt) && o.StoragePath == "" {
		return fmt.Errorf("storage backend %q needs storage-path", o.StorageBackend)
	}
	if o.KeepAlive && o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = 30 * time.Second
	}
	if o.ReindexMin <= 0 {
		o.ReindexMin = 1 << 20
	}
	if o.ReindexMax <= o.ReindexMin {
		o.ReindexMax = o.ReindexMin * 16
	}
	if o.ReindexInterval <= 0 {
		o.ReindexInterval = 10 * time.Minute
	}
	return nil
}
