// Command s3fs mounts an S3 bucket as a FUSE filesystem. It has three
// roles, selected by the supervisor.RoleEnv environment variable: unset
// means "run as supervisor" (fork the other two and coordinate their
// shutdown); "fs" runs the foreground FUSE server; "uploader" runs the
// background upload daemon. All three share the same binary and the same
// positional arguments, re-exec'd with only the role variable changed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/s3fs-go/s3fs/internal/attrcache"
	"github.com/s3fs-go/s3fs/internal/cachestore"
	"github.com/s3fs-go/s3fs/internal/config"
	"github.com/s3fs-go/s3fs/internal/dircache"
	"github.com/s3fs-go/s3fs/internal/fsops"
	"github.com/s3fs-go/s3fs/internal/metrics"
	"github.com/s3fs-go/s3fs/internal/objectstore/s3"
	"github.com/s3fs-go/s3fs/internal/supervisor"
	"github.com/s3fs-go/s3fs/internal/uploader"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "s3fs: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		credentialPath string
		configPath     string
		metricsAddr    string
		verbose        bool
	)
	flag.StringVar(&credentialPath, "credentials", "", "path to the two-line access key file (default $HOME/.s3fs/.secret)")
	flag.StringVar(&configPath, "config", "", "path to the optional YAML mount-options file (default {cachedir}/s3fs.yaml)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled if empty)")
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
	flag.Parse()

	args := flag.Args()
	if len(args) != 3 {
		return fmt.Errorf("usage: s3fs [flags] <bucket> <mountpoint> <cachedir>")
	}
	bucket, mountpoint, cacheDir := args[0], args[1], args[2]

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	role := os.Getenv(supervisor.RoleEnv)
	switch role {
	case "":
		return runSupervisor(cacheDir, logger)
	case supervisor.RoleFS:
		return runFS(bucket, mountpoint, cacheDir, credentialPath, configPath, metricsAddr, logger)
	case supervisor.RoleUploader:
		return runUploader(bucket, cacheDir, credentialPath, configPath, metricsAddr, logger)
	default:
		return fmt.Errorf("unknown %s value %q", supervisor.RoleEnv, role)
	}
}

func runSupervisor(cacheDir string, logger *slog.Logger) error {
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sup := &supervisor.Supervisor{
		BinaryPath: os.Args[0],
		Args:       os.Args[1:],
		CacheDir:   cacheDir,
		Log:        logger,
	}
	return sup.Run(ctx)
}

// buildClient loads credentials and tuning config and constructs the S3
// client shared by both the fs and uploader roles.
func buildClient(ctx context.Context, bucket, credentialPath, configPath, cacheDir string, logger *slog.Logger) (*s3.Client, *config.File, error) {
	if credentialPath == "" {
		p, err := config.CredentialPath()
		if err != nil {
			return nil, nil, err
		}
		credentialPath = p
	}
	creds, err := config.LoadCredentials(credentialPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading credentials: %w", err)
	}

	if configPath == "" {
		configPath = config.DefaultPath(cacheDir)
	}
	file, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	s3cfg := s3.NewDefaultConfig()
	if file.S3.Region != "" {
		s3cfg.Region = file.S3.Region
	}
	if file.S3.Endpoint != "" {
		s3cfg.Endpoint = file.S3.Endpoint
	}
	s3cfg.ForcePathStyle = file.S3.ForcePathStyle
	if file.S3.MaxRetries > 0 {
		s3cfg.MaxRetries = file.S3.MaxRetries
	}
	if file.S3.RequestTimeout > 0 {
		s3cfg.RequestTimeout = file.S3.RequestTimeout
	}

	client, err := s3.New(ctx, bucket, creds.AccessKeyID, creds.SecretAccessKey, s3cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("constructing S3 client: %w", err)
	}
	return client, file, nil
}

func runFS(bucket, mountpoint, cacheDir, credentialPath, configPath, metricsAddr string, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	client, file, err := buildClient(ctx, bucket, credentialPath, configPath, cacheDir, logger)
	if err != nil {
		return err
	}
	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("bucket health check: %w", err)
	}

	var collector *metrics.Collector
	if metricsAddr != "" {
		collector = metrics.New()
		go func() {
			if err := collector.Serve(ctx, metricsAddr); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	root := &fsops.Root{
		Bucket:  bucket,
		Store:   client,
		Cache:   cachestore.New(cacheDir, bucket, client, logger),
		Attrs:   attrcache.New(),
		Dirs:    dircache.New(),
		Metrics: collector,
		Log:     logger,
		UID:     uint32(os.Getuid()),
		GID:     uint32(os.Getgid()),
	}

	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:     mountOptsFSName(file, bucket),
			Name:       "s3fs",
			AllowOther: false,
			Debug:      false,
			MaxWrite:   int(mountOptsIOSize(file)),
		},
		NullPermissions: !file.Mount.DefaultPermissions,
		SingleThreaded:  true,
	}
	if file.Mount.VolName != "" {
		opts.Options = append(opts.Options, "volname="+file.Mount.VolName)
	}

	server, err := fs.Mount(mountpoint, fsops.NewRoot(root), opts)
	if err != nil {
		return fmt.Errorf("mounting at %s: %w", mountpoint, err)
	}
	logger.Info("s3fs mounted", "bucket", bucket, "mountpoint", mountpoint)

	go func() {
		<-ctx.Done()
		logger.Info("s3fs unmounting", "mountpoint", mountpoint)
		_ = server.Unmount()
	}()

	server.Wait()
	return nil
}

func mountOptsFSName(file *config.File, bucket string) string {
	if file.Mount.FSName != "" {
		return file.Mount.FSName
	}
	return "s3fs:" + bucket
}

func mountOptsIOSize(file *config.File) uint32 {
	if file.Mount.IOSize > 0 {
		return file.Mount.IOSize
	}
	return 128 * 1024
}

// runUploader does not serve metrics itself: the -metrics-addr flag is
// passed through to both re-exec'd children by the supervisor, and only
// one process may bind a given address. The fs process's registry holds
// the dispatcher counters only; the uploader runs with a nil collector, so
// upload outcomes are neither recorded nor exported.
func runUploader(bucket, cacheDir, credentialPath, configPath, _ string, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, _, err := buildClient(ctx, bucket, credentialPath, configPath, cacheDir, logger)
	if err != nil {
		return err
	}

	daemon := &uploader.Daemon{
		Dir:    cacheDir,
		Bucket: bucket,
		Store:  client,
		Log:    logger,
	}
	return daemon.Run(ctx)
}
