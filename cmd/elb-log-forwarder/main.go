package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/turbot/tailpipe-elb-log-forwarder/config"
	"github.com/turbot/tailpipe-elb-log-forwarder/forwarder"
	"github.com/turbot/tailpipe-elb-log-forwarder/logging"
)

const functionName = "elb-log-forwarder"

func main() {
	logging.Initialize(functionName)

	cfg, err := config.LoadFromEnvironment()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// clients are created once per container and reused by every invocation
	fwd, err := forwarder.NewFromConfig(context.Background(), cfg)
	if err != nil {
		slog.Error("Failed to initialize forwarder", "error", err)
		os.Exit(1)
	}

	lambda.Start(fwd.HandleS3Event)
}
