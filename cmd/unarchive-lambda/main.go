// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/hashicorp/go-unarchive"
	"github.com/hashicorp/go-unarchive/telemetry/cwevents"
)

// main starts the unarchive lambda function. Telemetry data is published to the
// event bus in UNARCHIVE_EVENT_BUS if UNARCHIVE_CLOUDWATCH_EVENTS is set.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	h := &handler{
		logger:      logger,
		destination: os.Getenv("UNARCHIVE_DESTINATION"),
	}

	if os.Getenv("UNARCHIVE_CLOUDWATCH_EVENTS") != "" {
		hook, err := cwevents.NewFromConfig(context.Background(),
			cwevents.WithEventBus(os.Getenv("UNARCHIVE_EVENT_BUS")),
			cwevents.WithLogger(logger),
		)
		if err != nil {
			logger.Error("cannot set up telemetry publishing", "error", err)
			os.Exit(1)
		}
		h.hooks = []unarchive.TelemetryHook{hook.TelemetryHook()}
	}

	lambda.Start(h.Handle)
}
