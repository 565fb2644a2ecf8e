// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package unarchive extracts tar, zip and gzip archives without the caller knowing
// the format in advance.
//
// The format is detected from the content of the archive, never from its name, when
// an [Archive] is created with [FromPath], [FromBytes] or [FromReader]. A gzip stream
// is inspected once more during extraction: if the decompressed payload is a tar
// archive it is extracted as such, otherwise it is decompressed into a single file.
//
//	archive, err := unarchive.FromPath("example.tar.gz")
//	if err != nil {
//		return err
//	}
//	return archive.Unarchive(ctx, "out", nil)
//
// Entries are written in archive order below the destination. Entry paths that
// resolve outside of the destination are rejected. Existing files are overwritten
// by default, see [WithOverwrite].
//
// Configuration is done using the [Config], which takes the logger, the telemetry
// hook, limits and the [Target] filesystem. Failures are returned as [*Error].
package unarchive
