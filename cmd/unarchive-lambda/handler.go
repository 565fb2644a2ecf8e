// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hashicorp/go-unarchive"
)

const defaultDestination = "/tmp/unarchive"

// Request is the event the function is invoked with.
type Request struct {
	Archive           string `json:"archive"`
	Destination       string `json:"destination,omitempty"`
	DenySymlinks      bool   `json:"deny_symlinks,omitempty"`
	MaxExtractionSize *int64 `json:"max_extraction_size,omitempty"`
	MaxFiles          *int64 `json:"max_files,omitempty"`
	NoOverwrite       bool   `json:"no_overwrite,omitempty"`
}

// Response is returned after a successful extraction.
type Response struct {
	Destination string                   `json:"destination"`
	Format      string                   `json:"format"`
	Telemetry   *unarchive.TelemetryData `json:"telemetry"`
}

type handler struct {
	logger      *slog.Logger
	destination string
	hooks       []unarchive.TelemetryHook
}

// Handle extracts the archive of req on the local file system of the function.
func (h *handler) Handle(ctx context.Context, req Request) (*Response, error) {
	if req.Archive == "" {
		return nil, errors.New("archive is required")
	}

	dst := req.Destination
	if dst == "" {
		dst = h.destination
	}
	if dst == "" {
		dst = defaultDestination
	}

	archive, err := unarchive.FromPath(req.Archive)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open archive")
	}

	var td *unarchive.TelemetryData
	opts := []unarchive.ConfigOption{
		unarchive.WithDenySymlinks(req.DenySymlinks),
		unarchive.WithOverwrite(!req.NoOverwrite),
		unarchive.WithTelemetryHook(func(ctx context.Context, data *unarchive.TelemetryData) {
			td = data
			for _, hook := range h.hooks {
				hook(ctx, data)
			}
		}),
	}
	if h.logger != nil {
		opts = append(opts, unarchive.WithLogger(h.logger.With("archive", req.Archive)))
	}
	if req.MaxExtractionSize != nil {
		opts = append(opts, unarchive.WithMaxExtractionSize(*req.MaxExtractionSize))
	}
	if req.MaxFiles != nil {
		opts = append(opts, unarchive.WithMaxFiles(*req.MaxFiles))
	}

	if err := archive.Unarchive(ctx, dst, unarchive.NewConfig(opts...)); err != nil {
		return nil, errors.Wrapf(err, "cannot extract %s", req.Archive)
	}

	return &Response{
		Destination: dst,
		Format:      archive.Format().String(),
		Telemetry:   td,
	}, nil
}
