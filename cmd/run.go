// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hashicorp/go-unarchive"
	"github.com/hashicorp/go-unarchive/telemetry/cwevents"
)

// CLI are the cli parameters for the unarchive binary
type CLI struct {
	Archives                 []string         `arg:"" name:"archive" help:"Path to archive. (\"-\" for STDIN)"`
	CloudWatchEvents         bool             `name:"cloudwatch-events" help:"Publish telemetry data as CloudWatch event."`
	Config                   kong.ConfigFlag  `short:"c" help:"Load default flag values from a TOML file."`
	CreateDestination        bool             `negatable:"" default:"true" help:"Create destination directory if it does not exist."`
	DenySymlinks             bool             `short:"D" help:"Deny symlink extraction."`
	Destination              string           `short:"d" default:"." help:"Output directory/file. Several archives are extracted into sub directories named after the archive."`
	DropFileAttributes       bool             `help:"Do not restore modification times."`
	DryRun                   bool             `short:"n" help:"Extract into memory and list the entries."`
	EventBus                 string           `help:"Event bus for --cloudwatch-events. (default event bus if empty)"`
	InsecureTraverseSymlinks bool             `short:"T" help:"[Dangerous!] Traverse symlinks to directories during extraction."`
	MaxExtractionSize        int64            `optional:"" default:"1073741824" help:"Maximum extraction size that allowed is (in bytes). (disable check: -1)"`
	MaxFiles                 int64            `optional:"" default:"1000" help:"Maximum files that are extracted before stop. (disable check: -1)"`
	MaxInputSize             int64            `optional:"" default:"1073741824" help:"Maximum input size that allowed is (in bytes). (disable check: -1)"`
	NoOverwrite              bool             `help:"Fail if a file already exists."`
	NoUntar                  bool             `help:"Decompress gzip streams without extracting a contained tar archive."`
	Parallel                 int              `short:"p" default:"4" help:"Number of archives extracted concurrently."`
	Telemetry                bool             `short:"M" help:"Print telemetry data to log after extraction."`
	Timeout                  time.Duration    `default:"60s" help:"Maximum time an extraction may take. (disable check: 0)"`
	Verbose                  bool             `short:"v" help:"Verbose logging."`
	Version                  kong.VersionFlag `short:"V" help:"Print release version information."`
}

// Run the entrypoint into unarchive as a cli tool
func Run(version, commit, date string) {
	var cli CLI
	kong.Parse(&cli,
		kong.Description("Extract tar, zip and gzip archives, the format is detected from the content."),
		kong.UsageOnError(),
		kong.Configuration(TOMLLoader),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	)

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose || cli.Telemetry {
		logLevel = slog.LevelInfo
	}
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	if err := run(context.Background(), &cli, logger, os.Stdin, os.Stdout); err != nil {
		logger.Error("extraction failed", "error", err)
		os.Exit(1)
	}
}

// run extracts all archives of cli, at most cli.Parallel at a time. The first
// failure cancels the extractions that are still running.
func run(ctx context.Context, cli *CLI, logger *slog.Logger, stdin io.Reader, stdout io.Writer) error {
	if len(cli.Archives) == 0 {
		return errors.New("no archive given")
	}
	if countStdin(cli.Archives) > 1 {
		return errors.New("STDIN can only be used once")
	}

	var hooks []unarchive.TelemetryHook
	if cli.CloudWatchEvents {
		h, err := cwevents.NewFromConfig(ctx, cwevents.WithEventBus(cli.EventBus), cwevents.WithLogger(logger))
		if err != nil {
			return errors.Wrap(err, "cannot set up telemetry publishing")
		}
		hooks = append(hooks, h.TelemetryHook())
	}

	var out sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	if cli.Parallel > 0 {
		eg.SetLimit(cli.Parallel)
	}

	for _, archivePath := range cli.Archives {
		archivePath := archivePath
		eg.Go(func() error {
			var target unarchive.Target = unarchive.NewTargetDisk()
			dst := destinationFor(cli.Destination, archivePath, len(cli.Archives) > 1)

			// a dry run lists the entries relative to the memory root
			var mem *unarchive.TargetMemory
			if cli.DryRun {
				mem = unarchive.NewTargetMemory()
				target = mem
				dst = destinationFor(".", archivePath, len(cli.Archives) > 1)
			}

			if err := extractOne(ctx, cli, logger, hooks, target, archivePath, dst, stdin); err != nil {
				return errors.Wrapf(err, "cannot extract %s", archivePath)
			}

			if mem != nil {
				out.Lock()
				defer out.Unlock()
				for _, p := range mem.Paths() {
					if _, err := fmt.Fprintln(stdout, p); err != nil {
						return errors.Wrap(err, "cannot list entries")
					}
				}
			}
			return nil
		})
	}

	return eg.Wait()
}

// extractOne opens and extracts a single archive.
func extractOne(ctx context.Context, cli *CLI, logger *slog.Logger, hooks []unarchive.TelemetryHook, target unarchive.Target, archivePath string, dst string, stdin io.Reader) error {
	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	archive, err := openArchive(archivePath, stdin)
	if err != nil {
		return err
	}
	logger.Info("detected archive", "archive", archivePath, "format", archive.Format().String())

	return archive.Unarchive(ctx, dst, newConfig(cli, logger, hooks, target, archivePath))
}

// openArchive creates the archive for path, "-" reads STDIN.
func openArchive(path string, stdin io.Reader) (*unarchive.Archive, error) {
	if path == "-" {
		return unarchive.FromReader(bufio.NewReader(stdin))
	}
	return unarchive.FromPath(path)
}

// newConfig converts the cli flags into an extraction config.
func newConfig(cli *CLI, logger *slog.Logger, hooks []unarchive.TelemetryHook, target unarchive.Target, archivePath string) *unarchive.Config {
	// setup telemetry hook
	telemetryHook := func(ctx context.Context, td *unarchive.TelemetryData) {
		if cli.Telemetry {
			logger.Info("extraction finished", "archive", archivePath, "telemetry", td)
		}
		for _, hook := range hooks {
			hook(ctx, td)
		}
	}

	return unarchive.NewConfig(
		unarchive.WithCreateDestination(cli.CreateDestination),
		unarchive.WithDenySymlinks(cli.DenySymlinks),
		unarchive.WithDropFileAttributes(cli.DropFileAttributes),
		unarchive.WithInsecureTraverseSymlinks(cli.InsecureTraverseSymlinks),
		unarchive.WithLogger(logger.With("archive", archivePath)),
		unarchive.WithMaxExtractionSize(cli.MaxExtractionSize),
		unarchive.WithMaxFiles(cli.MaxFiles),
		unarchive.WithMaxInputSize(cli.MaxInputSize),
		unarchive.WithNoUntarAfterDecompression(cli.NoUntar),
		unarchive.WithOverwrite(!cli.NoOverwrite),
		unarchive.WithTarget(target),
		unarchive.WithTelemetryHook(telemetryHook),
	)
}

// destinationFor returns where archivePath is extracted to. With several archives,
// every archive gets its own sub directory of dst.
func destinationFor(dst string, archivePath string, several bool) string {
	if !several {
		return dst
	}
	return filepath.Join(dst, archiveStem(archivePath))
}

// archiveStem returns the file name of path without archive extensions.
func archiveStem(path string) string {
	if path == "-" {
		return "stdin"
	}
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	for _, ext := range []string{".tar.gz", ".tgz", ".tar", ".zip", ".gz"} {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name + ".d"
}

// countStdin returns how often STDIN is given as archive.
func countStdin(archives []string) int {
	var n int
	for _, a := range archives {
		if a == "-" {
			n++
		}
	}
	return n
}
