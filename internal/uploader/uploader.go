// Package uploader implements the background upload daemon: an independent
// process that scans the cache directory for sidecars left by the
// filesystem process, PUTs the corresponding data file, and removes both
// on success. It has one job: drain sidecars until told to quit.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/s3fs-go/s3fs/internal/envelope"
	"github.com/s3fs-go/s3fs/internal/metrics"
	"github.com/s3fs-go/s3fs/internal/objectstore"
)

const scanInterval = 3 * time.Second

// Daemon scans dir for upload-eligible sidecars belonging to bucket and
// PUTs their data files to store.
type Daemon struct {
	Dir     string
	Bucket  string
	Store   objectstore.Client
	Metrics *metrics.Collector
	Log     *slog.Logger

	// Interval overrides the scan sleep; zero means scanInterval.
	Interval time.Duration
}

func (d *Daemon) log() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

func (d *Daemon) interval() time.Duration {
	if d.Interval > 0 {
		return d.Interval
	}
	return scanInterval
}

// quitPath returns the sentinel file's path.
func (d *Daemon) quitPath() string {
	return filepath.Join(d.Dir, ".quit")
}

// Run loops until the quit sentinel appears, or ctx is cancelled. Each
// iteration is one full scan-and-upload cycle followed by a sleep.
func (d *Daemon) Run(ctx context.Context) error {
	for {
		if d.sawQuit() {
			return nil
		}

		if err := d.scanOnce(ctx); err != nil {
			d.log().Warn("uploader scan failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.interval()):
		}
	}
}

func (d *Daemon) sawQuit() bool {
	path := d.quitPath()
	if _, err := os.Stat(path); err != nil {
		return false
	}
	_ = os.Remove(path)
	return true
}

// eligibleSidecar splits name on "," and reports whether it is an
// upload-eligible sidecar for d.Bucket.
func (d *Daemon) eligibleSidecar(name string) (slug string, ok bool) {
	fields := strings.Split(name, ",")
	if len(fields) != 3 || fields[2] != "meta" {
		return "", false
	}
	if fields[0] != d.Bucket {
		return "", false
	}
	return fields[1], true
}

// scanOnce enumerates the cache directory and processes every eligible
// sidecar once.
func (d *Daemon) scanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return fmt.Errorf("uploader: reading cache dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := d.eligibleSidecar(entry.Name()); !ok {
			continue
		}
		d.processSidecar(ctx, filepath.Join(d.Dir, entry.Name()))
	}
	return nil
}

// processSidecar handles one eligible sidecar: deserialise it, PUT the data
// file to the store, and remove both files on success. Transport failures
// leave both files in place for the next scan.
func (d *Daemon) processSidecar(ctx context.Context, metaPath string) {
	env, err := envelope.ReadSidecarFile(metaPath)
	if err != nil {
		d.log().Warn("uploader: unreadable sidecar, skipping", "path", metaPath, "error", err)
		d.Metrics.RecordUploadOutcome(metrics.OutcomeSkipped)
		return
	}
	if env.Fn == "" {
		d.log().Warn("uploader: sidecar missing fn, skipping", "path", metaPath)
		d.Metrics.RecordUploadOutcome(metrics.OutcomeSkipped)
		return
	}

	dataPath := strings.TrimSuffix(metaPath, ",meta")
	if _, err := os.Stat(dataPath); err != nil {
		d.log().Warn("uploader: sidecar has no data file, skipping", "key", env.Fn, "path", dataPath)
		d.Metrics.RecordUploadOutcome(metrics.OutcomeSkipped)
		return
	}

	headers := env.ToHeaders()
	if err := d.Store.PutFromFile(ctx, env.Fn, dataPath, headers); err != nil {
		d.log().Warn("uploader: PUT failed, will retry next cycle", "key", env.Fn, "error", err)
		d.Metrics.RecordUploadOutcome(metrics.OutcomeFailed)
		return
	}

	if err := os.Remove(metaPath); err != nil {
		d.log().Warn("uploader: removing sidecar after upload", "path", metaPath, "error", err)
	}
	if err := os.Remove(dataPath); err != nil {
		d.log().Warn("uploader: removing data file after upload", "path", dataPath, "error", err)
	}
	d.log().Debug("uploader: uploaded", "key", env.Fn)
	d.Metrics.RecordUploadOutcome(metrics.OutcomeUploaded)
}
