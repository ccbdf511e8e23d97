package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/go-homedir"
	"github.com/turbot/tailpipe-elb-log-forwarder/artifact_sink"
	"github.com/turbot/tailpipe-elb-log-forwarder/connection"
	"github.com/turbot/tailpipe-elb-log-forwarder/rate_limiter"
	"golang.org/x/time/rate"
)

const (
	EnvLogGroup           = "LOG_GROUP"
	EnvConfigFile         = "FORWARDER_CONFIG_FILE"
	EnvMaxBatchEvents     = "FORWARDER_MAX_BATCH_EVENTS"
	EnvMaxBatchSize       = "FORWARDER_MAX_BATCH_SIZE"
	EnvMaxLineSize        = "FORWARDER_MAX_LINE_SIZE"
	EnvPutRateLimit       = "FORWARDER_PUT_RATE_LIMIT"
	EnvSkipMalformedLines = "FORWARDER_SKIP_MALFORMED_LINES"

	defaultPutRateLimit = 25
)

// Config is the process wide forwarder configuration, read once at cold start
type Config struct {
	// LogGroup is the destination CloudWatch log group
	LogGroup    string
	BatchLimits artifact_sink.BatchLimits
	// MaxLineSize defaults to the longest message a single batch can hold
	MaxLineSize datasize.ByteSize
	// PutRateLimit is the max PutLogEvents calls per second, 0 for no limit
	PutRateLimit float64
	// SkipMalformedLines logs and skips lines without a valid timestamp rather than failing
	SkipMalformedLines bool
	Aws                *connection.AwsConnection
}

// fileConfig is the HCL representation of [Config]
type fileConfig struct {
	LogGroup           *string                   `hcl:"log_group"`
	MaxBatchEvents     *int                      `hcl:"max_batch_events"`
	MaxBatchSize       *string                   `hcl:"max_batch_size"`
	MaxLineSize        *string                   `hcl:"max_line_size"`
	PutRateLimit       *float64                  `hcl:"put_rate_limit"`
	SkipMalformedLines *bool                     `hcl:"skip_malformed_lines"`
	Aws                *connection.AwsConnection `hcl:"aws,block"`
}

func defaultConfig() *Config {
	return &Config{
		BatchLimits:  artifact_sink.DefaultBatchLimits(),
		PutRateLimit: defaultPutRateLimit,
		Aws:          &connection.AwsConnection{},
	}
}

// LoadFromEnvironment loads the config from the process environment
func LoadFromEnvironment() (*Config, error) {
	return Load(os.Environ())
}

// Load builds the config from the defaults, then the optional HCL file named by
// FORWARDER_CONFIG_FILE, then the environment. environ is in os.Environ form.
func Load(environ []string) (*Config, error) {
	env := envMap(environ)
	cfg := defaultConfig()

	if path := env[EnvConfigFile]; path != "" {
		if err := cfg.applyFile(path, env); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if cfg.MaxLineSize == 0 && cfg.BatchLimits.MaxBytes > artifact_sink.EventOverheadBytes {
		cfg.MaxLineSize = datasize.ByteSize(cfg.BatchLimits.MaxMessageBytes())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string, env map[string]string) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand config path %s, %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file, %w", err)
	}

	var fc fileConfig
	if err := ParseConfig(data, filepath.Base(path), env, &fc); err != nil {
		return err
	}

	if fc.LogGroup != nil {
		c.LogGroup = *fc.LogGroup
	}
	if fc.MaxBatchEvents != nil {
		c.BatchLimits.MaxEvents = *fc.MaxBatchEvents
	}
	if fc.MaxBatchSize != nil {
		if c.BatchLimits.MaxBytes, err = parseSize("max_batch_size", *fc.MaxBatchSize); err != nil {
			return err
		}
	}
	if fc.MaxLineSize != nil {
		size, err := parseSize("max_line_size", *fc.MaxLineSize)
		if err != nil {
			return err
		}
		c.MaxLineSize = datasize.ByteSize(size)
	}
	if fc.PutRateLimit != nil {
		c.PutRateLimit = *fc.PutRateLimit
	}
	if fc.SkipMalformedLines != nil {
		c.SkipMalformedLines = *fc.SkipMalformedLines
	}
	if fc.Aws != nil {
		c.Aws = fc.Aws
	}
	return nil
}

func (c *Config) applyEnv(env map[string]string) error {
	var err error
	if v, ok := env[EnvLogGroup]; ok && v != "" {
		c.LogGroup = v
	}
	if v := env[EnvMaxBatchEvents]; v != "" {
		if c.BatchLimits.MaxEvents, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid %s %q, %w", EnvMaxBatchEvents, v, err)
		}
	}
	if v := env[EnvMaxBatchSize]; v != "" {
		if c.BatchLimits.MaxBytes, err = parseSize(EnvMaxBatchSize, v); err != nil {
			return err
		}
	}
	if v := env[EnvMaxLineSize]; v != "" {
		size, err := parseSize(EnvMaxLineSize, v)
		if err != nil {
			return err
		}
		c.MaxLineSize = datasize.ByteSize(size)
	}
	if v := env[EnvPutRateLimit]; v != "" {
		if c.PutRateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("invalid %s %q, %w", EnvPutRateLimit, v, err)
		}
	}
	if v := env[EnvSkipMalformedLines]; v != "" {
		if c.SkipMalformedLines, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("invalid %s %q, %w", EnvSkipMalformedLines, v, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.LogGroup == "" {
		return fmt.Errorf("log group is required - set %s", EnvLogGroup)
	}
	if err := c.BatchLimits.Validate(); err != nil {
		return err
	}
	if c.MaxLineSize == 0 {
		return fmt.Errorf("max line size must be greater than zero")
	}
	// a line must fit in a PutLogEvents call on its own
	if maxMessage := c.BatchLimits.MaxMessageBytes(); c.MaxLineSize.Bytes() > uint64(maxMessage) {
		return fmt.Errorf("max line size %s exceeds the %d bytes a batch of max size %d can hold", c.MaxLineSize.HumanReadable(), maxMessage, c.BatchLimits.MaxBytes)
	}
	if c.PutRateLimit < 0 || math.IsNaN(c.PutRateLimit) {
		return fmt.Errorf("put rate limit must not be negative")
	}
	return c.Aws.Validate()
}

// PutLogEventsLimiter returns the limiter definition pacing PutLogEvents calls
func (c *Config) PutLogEventsLimiter() *rate_limiter.Definition {
	if c.PutRateLimit == 0 {
		return &rate_limiter.Definition{Name: "put_log_events"}
	}
	return &rate_limiter.Definition{
		Name:       "put_log_events",
		FillRate:   rate.Limit(c.PutRateLimit),
		BucketSize: max(1, int(math.Ceil(c.PutRateLimit))),
	}
}

func parseSize(name, value string) (int, error) {
	var size datasize.ByteSize
	if err := size.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("invalid %s %q, %w", name, value, err)
	}
	if size.Bytes() > math.MaxInt32 {
		return 0, fmt.Errorf("invalid %s %q, too large", name, value)
	}
	return int(size.Bytes()), nil
}

func envMap(environ []string) map[string]string {
	res := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		res[k] = v
	}
	return res
}
