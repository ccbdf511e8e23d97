package connection

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/rs/dnscache"
	"golang.org/x/sync/semaphore"
)

var (
	sharedHTTPClient     aws.HTTPClient
	sharedHTTPClientOnce sync.Once
)

// SharedHTTPClient returns the single HTTP client shared by the S3 and CloudWatch Logs clients.
// A warm Lambda container reuses it (and its DNS cache) across invocations.
func SharedHTTPClient() aws.HTTPClient {
	sharedHTTPClientOnce.Do(func() {
		sharedHTTPClient = newHTTPClient(loadHTTPClientSettings())
	})
	return sharedHTTPClient
}

type httpClientSettings struct {
	// max parallel DNS lookups
	dnsLookupMaxParallel int
	// DNS cache refresh interval. 0 disables refresh, -1 disables the cache
	dnsCacheRefreshIntervalSecs int
	// max connections per host, 0 is unlimited (the AWS SDK default)
	maxConnsPerHost int
}

func loadHTTPClientSettings() httpClientSettings {
	return httpClientSettings{
		dnsLookupMaxParallel:        readEnvVarToInt("FORWARDER_AWS_DNS_LOOKUP_MAX_PARALLEL", 25),
		dnsCacheRefreshIntervalSecs: readEnvVarToInt("FORWARDER_AWS_DNS_CACHE_REFRESH_INTERVAL_SECS", 300),
		maxConnsPerHost:             readEnvVarToInt("FORWARDER_AWS_HTTP_TRANSPORT_MAX_CONNS_PER_HOST", 64),
	}
}

func newHTTPClient(s httpClientSettings) *awshttp.BuildableClient {
	// The AWS SDK has a special "buildable" HTTP client so it can be combined
	// with specific options. We keep the AWS defaults (timeouts etc) and only
	// override connection limits and DNS lookups.
	client := awshttp.NewBuildableClient()

	if s.maxConnsPerHost > 0 {
		client = client.WithTransportOptions(func(tr *http.Transport) {
			tr.MaxConnsPerHost = s.maxConnsPerHost
		})
	}

	if s.dnsCacheRefreshIntervalSecs < 0 {
		return client
	}

	var resolver = &dnscache.Resolver{}
	if s.dnsCacheRefreshIntervalSecs > 0 {
		go func() {
			t := time.NewTicker(time.Duration(s.dnsCacheRefreshIntervalSecs) * time.Second)
			defer t.Stop()
			for range t.C {
				resolver.Refresh(true)
			}
		}()
	}

	// A semaphore is used to control the number of parallel DNS lookups.
	sem := semaphore.NewWeighted(int64(max(s.dnsLookupMaxParallel, 1)))
	dialer := client.GetDialer()

	return client.WithTransportOptions(func(tr *http.Transport) {
		tr.DialContext = func(ctx context.Context, network string, addr string) (conn net.Conn, err error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			sem.Release(1)
			if err != nil {
				return nil, err
			}

			// try each address until one connects
			for _, ip := range ips {
				conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					break
				}
			}
			return
		}
	})
}
