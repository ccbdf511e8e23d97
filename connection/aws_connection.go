package connection

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const defaultRegion = "us-east-1"

// AwsConnection holds the optional AWS client settings. Inside Lambda all of these are
// normally left unset and the execution role, AWS_REGION etc. are picked up by the default chain
type AwsConnection struct {
	DefaultRegion         *string `hcl:"default_region"`
	Profile               *string `hcl:"profile"`
	AccessKey             *string `hcl:"access_key"`
	SecretKey             *string `hcl:"secret_key"`
	SessionToken          *string `hcl:"session_token"`
	MaxErrorRetryAttempts *int    `hcl:"max_error_retry_attempts"`
	MinErrorRetryDelay    *int    `hcl:"min_error_retry_delay"`
	EndpointUrl           *string `hcl:"endpoint_url"`
	S3ForcePathStyle      *bool   `hcl:"s3_force_path_style"`
}

func (c *AwsConnection) Validate() error {
	if c.AccessKey != nil && c.SecretKey == nil {
		return fmt.Errorf("access_key set without secret_key")
	}

	if c.AccessKey == nil && c.SecretKey != nil {
		return fmt.Errorf("secret_key set without access_key")
	}

	if c.MinErrorRetryDelay != nil && *c.MinErrorRetryDelay < 1 {
		return fmt.Errorf("min_error_retry_delay must be greater than or equal to 1")
	}

	if c.MaxErrorRetryAttempts != nil && *c.MaxErrorRetryAttempts < 1 {
		return fmt.Errorf("max_error_retry_attempts must be greater than or equal to 1")
	}

	return nil
}

// UsePathStyle reports whether S3 requests should use path style addressing (e.g. for localstack)
func (c *AwsConnection) UsePathStyle() bool {
	return c.S3ForcePathStyle != nil && *c.S3ForcePathStyle
}

func (c *AwsConnection) GetClientConfiguration(ctx context.Context) (*aws.Config, error) {
	var configOptions []func(*config.LoadOptions) error

	// profile
	if c.Profile != nil {
		profile := aws.ToString(c.Profile)
		configOptions = append(configOptions, config.WithSharedConfigProfile(profile))
	}

	// access keys
	if c.AccessKey != nil && c.SecretKey != nil {
		accessKey := aws.ToString(c.AccessKey)
		secretKey := aws.ToString(c.SecretKey)
		sessionToken := aws.ToString(c.SessionToken)
		provider := credentials.NewStaticCredentialsProvider(accessKey, secretKey, sessionToken)
		configOptions = append(configOptions, config.WithCredentialsProvider(provider))
	}

	// shared http client
	configOptions = append(configOptions, config.WithHTTPClient(SharedHTTPClient()))

	// load base config
	cfg, err := config.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}

	// if no region from base config, apply default region
	if cfg.Region == "" {
		cfg.Region = c.getDefaultRegion()
		slog.Info("No region set, using default", "region", cfg.Region)
	}

	// retry handling
	maxRetries := getConfigOrEnvInt(c.MaxErrorRetryAttempts, "AWS_MAX_ATTEMPTS", 9)
	var minRetryDelay = 25 * time.Millisecond
	if c.MinErrorRetryDelay != nil {
		minRetryDelay = time.Duration(*c.MinErrorRetryDelay) * time.Millisecond
	}

	retryer := retry.NewStandard(func(o *retry.StandardOptions) {
		o.MaxAttempts = maxRetries
		o.MaxBackoff = 5 * time.Minute
		o.RateLimiter = NoOpRateLimit{} // With no rate limiter
		o.Backoff = NewExponentialJitterBackoff(minRetryDelay, maxRetries)
	})
	cfg.Retryer = func() aws.Retryer {
		// UnknownError is the code returned for a 408 from the aws go sdk
		additionalErrors := []string{"UnknownError"}
		return retry.AddWithErrorCodes(retryer, additionalErrors...)
	}

	// custom endpoint
	if endpointUrl := getConfigOrEnv(c.EndpointUrl, "AWS_ENDPOINT_URL"); endpointUrl != "" {
		cfg.BaseEndpoint = aws.String(endpointUrl)
	}

	return &cfg, nil
}

func (c *AwsConnection) getDefaultRegion() string {
	if c.DefaultRegion != nil && *c.DefaultRegion != "" {
		return *c.DefaultRegion
	}
	return defaultRegion
}

// Helper function to get value from Config or environment variable
func getConfigOrEnv(configValue *string, env string) string {
	if configValue != nil {
		return *configValue
	}

	return os.Getenv(env)
}

func getConfigOrEnvInt(configValue *int, env string, defaultValue int) int {
	if configValue != nil {
		return *configValue
	}

	return readEnvVarToInt(env, defaultValue)
}

// Helper function for integer based environment variables.
func readEnvVarToInt(name string, defaultVal int) int {
	val := defaultVal
	envValue := os.Getenv(name)
	if envValue != "" {
		i, err := strconv.Atoi(envValue)
		if err == nil {
			val = i
		}
	}
	return val
}
