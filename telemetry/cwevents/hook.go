// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package cwevents publishes [unarchive.TelemetryData] as CloudWatch Events
// (Amazon EventBridge) events.
package cwevents

//go:generate mockgen -destination=mock_client_test.go -package=cwevents . PutEventsAPI

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchevents/types"

	"github.com/hashicorp/go-unarchive"
)

const (
	// DefaultSource is the event source set on published events.
	DefaultSource = "hashicorp.go-unarchive"

	// DefaultDetailType is the detail type set on published events.
	DefaultDetailType = "Unarchive Telemetry"
)

// PutEventsAPI is the part of the CloudWatch Events client used by [Hook].
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *cloudwatchevents.PutEventsInput, optFns ...func(*cloudwatchevents.Options)) (*cloudwatchevents.PutEventsOutput, error)
}

// Option adjusts a [Hook].
type Option func(*Hook)

// Hook sends telemetry data to an event bus.
type Hook struct {
	client     PutEventsAPI
	source     string
	detailType string
	eventBus   string
	logger     *slog.Logger
}

// New creates a [Hook] publishing with client.
func New(client PutEventsAPI, opts ...Option) *Hook {
	h := &Hook{
		client:     client,
		source:     DefaultSource,
		detailType: DefaultDetailType,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewFromConfig creates a [Hook] with a client from the default AWS configuration
// chain (environment, shared config, instance role).
func NewFromConfig(ctx context.Context, opts ...Option) (*Hook, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot load aws config: %w", err)
	}
	return New(cloudwatchevents.NewFromConfig(cfg), opts...), nil
}

// WithSource sets the event source.
func WithSource(source string) Option {
	return func(h *Hook) {
		h.source = source
	}
}

// WithDetailType sets the event detail type.
func WithDetailType(detailType string) Option {
	return func(h *Hook) {
		h.detailType = detailType
	}
}

// WithEventBus sets the event bus name. The default event bus is used if unset.
func WithEventBus(name string) Option {
	return func(h *Hook) {
		h.eventBus = name
	}
}

// WithLogger sets the logger that receives publishing failures.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hook) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Publish sends td as a single event.
func (h *Hook) Publish(ctx context.Context, td *unarchive.TelemetryData) error {
	detail, err := json.Marshal(td)
	if err != nil {
		return fmt.Errorf("cannot marshal telemetry data: %w", err)
	}

	entry := types.PutEventsRequestEntry{
		Source:     aws.String(h.source),
		DetailType: aws.String(h.detailType),
		Detail:     aws.String(string(detail)),
		Time:       aws.Time(time.Now()),
	}
	if h.eventBus != "" {
		entry.EventBusName = aws.String(h.eventBus)
	}

	out, err := h.client.PutEvents(ctx, &cloudwatchevents.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("cannot put event: %w", err)
	}
	for _, e := range out.Entries {
		if e.ErrorCode != nil {
			return fmt.Errorf("event rejected: %s: %s", aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
		}
	}
	return nil
}

// TelemetryHook returns a [unarchive.TelemetryHook] that publishes the data of every
// extraction. Publishing failures are logged, they never fail the extraction.
func (h *Hook) TelemetryHook() unarchive.TelemetryHook {
	return func(ctx context.Context, td *unarchive.TelemetryData) {
		if err := h.Publish(ctx, td); err != nil {
			h.logger.Error("cannot publish telemetry", "error", err)
		}
	}
}
