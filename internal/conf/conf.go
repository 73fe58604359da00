package conf

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/env"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-playground/validator/v10"
)

// Bootstrap is the root of the configuration tree shared by both binaries.
type Bootstrap struct {
	Server       *Server       `json:"server" validate:"required"`
	Data         *Data         `json:"data" validate:"required"`
	Broker       *Broker       `json:"broker" validate:"required"`
	PublishQueue *PublishQueue `json:"publish_queue" validate:"required"`
	Consumers    *Consumers    `json:"consumers" validate:"required"`
	Emitter      *Emitter      `json:"emitter" validate:"required"`
	URL          *URL          `json:"url" validate:"required"`
	Log          *Log          `json:"log"`
}

type Server struct {
	HTTP *Endpoint `json:"http" validate:"required"`
	GRPC *Endpoint `json:"grpc"`
}

type Endpoint struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr" validate:"required"`
	Timeout Duration `json:"timeout"`
}

type Data struct {
	Database *Database `json:"database" validate:"required"`
	Redis    *Redis    `json:"redis"`
}

// Database driver is one of sqlite3, postgres (lib/pq) or pgx.
type Database struct {
	Driver  string `json:"driver" validate:"required,oneof=sqlite3 postgres pgx"`
	Source  string `json:"source" validate:"required"`
	Migrate bool   `json:"migrate"`
}

type Redis struct {
	Addr         string   `json:"addr"`
	Password     string   `json:"password"`
	DB           int      `json:"db"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

// Broker selects the message transport. gochannel keeps everything in process.
type Broker struct {
	Driver string `json:"driver" validate:"required,oneof=gochannel nats"`
	NATS   *NATS  `json:"nats" validate:"required_if=Driver nats"`
}

type NATS struct {
	URL             string   `json:"url" validate:"required"`
	Stream          string   `json:"stream" validate:"required"`
	MaxBatchSize    int      `json:"max_batch_size" validate:"gt=0"`
	MaxBatchBytes   int      `json:"max_batch_bytes"`
	AckWait         Duration `json:"ack_wait"`
	PublishMaxAsync int      `json:"publish_max_async"`
	MaxAckPending   int      `json:"max_ack_pending"`
}

// PublishQueue has no defaults: every field must be set explicitly.
type PublishQueue struct {
	MaxQueueSize   int      `json:"max_queue_size" validate:"required,gt=0"`
	WorkerCount    int      `json:"worker_count" validate:"required,gt=0"`
	EnqueueTimeout Duration `json:"enqueue_timeout" validate:"required,gt=0"`
	MaxRetries     int      `json:"max_retries" validate:"required,gt=0,lte=30"`
	BaseBackoff    Duration `json:"base_backoff" validate:"required,gt=0"`
	BatchMaxSize   int      `json:"batch_max_size" validate:"required,gt=0"`
	BatchWindow    Duration `json:"batch_window" validate:"required,gt=0"`
	ReportInterval Duration `json:"report_interval" validate:"required,gt=0"`
}

type Consumers struct {
	NewURLs *Consumer `json:"new_urls" validate:"required"`
	Clicks  *Consumer `json:"clicks" validate:"required"`
}

type Consumer struct {
	Group         string   `json:"group" validate:"required"`
	BatchSize     int      `json:"batch_size" validate:"required,gt=0"`
	BatchInterval Duration `json:"batch_interval" validate:"required,gt=0"`
	MaxInFlight   int64    `json:"max_in_flight" validate:"required,gt=0"`
}

type Emitter struct {
	Workers int `json:"workers" validate:"required,gt=0"`
	Buffer  int `json:"buffer" validate:"required,gt=0"`
}

type URL struct {
	BaseURL     string   `json:"base_url" validate:"required,url"`
	KeyLength   int      `json:"key_length" validate:"required,gte=4,lte=32"`
	SyncPersist bool     `json:"sync_persist"`
	CacheTTL    Duration `json:"cache_ttl"`
}

type Log struct {
	Level      string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Duration accepts either a Go duration string ("200ms") or nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// AsDuration returns d as a time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required fields and ranges of the whole tree.
func (b *Bootstrap) Validate() error {
	if err := validate.Struct(b); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidatePublishQueue checks a standalone publish queue configuration.
func ValidatePublishQueue(c *PublishQueue) error {
	if c == nil {
		return fmt.Errorf("invalid publish queue configuration: missing")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid publish queue configuration: %w", err)
	}
	return nil
}

// Load reads the file (or directory) at path, resolves ${ENV:default}
// placeholders from the process environment and validates the result.
// The returned close func releases the config watchers.
func Load(path string) (*Bootstrap, func(), error) {
	c := config.New(
		config.WithSource(
			env.NewSource(),
			file.NewSource(path),
		),
	)

	if err := c.Load(); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("scan config: %w", err)
	}
	if err := bc.Validate(); err != nil {
		_ = c.Close()
		return nil, nil, err
	}

	return &bc, func() { _ = c.Close() }, nil
}
