package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/fieldmedia/constants"
	"github.com/joseph-ayodele/fieldmedia/internal/capture"
	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/normalize"
	"github.com/joseph-ayodele/fieldmedia/internal/queue"
	"github.com/joseph-ayodele/fieldmedia/internal/uploader"
)

const usage = `usage: uploadctl <command> [flags]

commands:
  add -business B -job J [-category C] [-description D] FILE...
  status
  list [-status pending|uploading|failed] [-job J]
  retry-failed
  clear-failed
  discard ID...
  run [-once]
  watch -business B -job J [-category C] [-existing] [-upload] DIR...
`

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	if len(os.Args) < 2 {
		printError("%s", usage)
		os.Exit(2)
	}
	_ = godotenv.Load()

	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateClient(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q, err := openQueue(ctx, cfg, logger)
	if err != nil {
		printError("Error: open queue: %v\n", err)
		os.Exit(1)
	}
	defer q.Close()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "add":
		err = add(ctx, q, cfg, logger, args)
	case "status":
		err = status(ctx, q)
	case "list":
		err = list(ctx, q, args)
	case "retry-failed":
		var n int
		if n, err = q.RetryFailed(ctx); err == nil {
			fmt.Printf("%d item(s) back to pending\n", n)
		}
	case "clear-failed":
		var n int
		if n, err = q.ClearFailed(ctx); err == nil {
			fmt.Printf("%d failed item(s) removed\n", n)
		}
	case "discard":
		for _, id := range args {
			if err = q.Remove(ctx, id); err != nil {
				break
			}
		}
	case "run":
		err = run(ctx, q, cfg, logger, args)
	case "watch":
		err = watch(ctx, q, cfg, logger, args)
	default:
		printError("%s", usage)
		os.Exit(2)
	}
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}

func openQueue(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*queue.Queue, error) {
	store, err := queue.OpenSQLite(ctx, cfg.Queue.Path)
	if err != nil {
		return nil, err
	}
	opts := []queue.Option{
		queue.WithLogger(logger),
		queue.WithLimits(queue.Limits{
			MaxItems:    cfg.Queue.MaxItems,
			MaxBytes:    cfg.Queue.MaxBytes,
			MaxAttempts: cfg.Queue.MaxAttempts,
			WarnRatio:   cfg.Queue.WarnRatio,
		}),
	}
	if cfg.Queue.PreviewDir != "" {
		previews, err := queue.NewFilePreviews(cfg.Queue.PreviewDir)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		opts = append(opts, queue.WithPreviews(previews))
	}
	return queue.Open(ctx, store, opts...)
}

func add(ctx context.Context, q *queue.Queue, cfg *common.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	business := fs.String("business", "", "business id (required)")
	job := fs.String("job", "", "job id (required)")
	category := fs.String("category", "", "media category")
	description := fs.String("description", "", "free-text description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *business == "" || *job == "" || fs.NArg() == 0 {
		return fmt.Errorf("add needs -business, -job and at least one file")
	}

	norm := normalize.New(normalize.NewCommandConverter(cfg.Normalizer.HeicConverter, cfg.Normalizer.CacheDir, logger), logger)
	target := captureTarget{business: *business, job: *job, category: *category, description: *description}
	for _, path := range fs.Args() {
		if err := enqueueFile(ctx, q, norm, logger, target, path); err != nil {
			return err
		}
	}
	return nil
}

type captureTarget struct {
	business, job, category, description string
}

// enqueueFile normalizes one local file and puts it on the upload queue.
func enqueueFile(ctx context.Context, q *queue.Queue, norm *normalize.Normalizer, logger *slog.Logger, target captureTarget, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)
	f, converted := norm.Normalize(ctx, normalize.File{
		Name:     name,
		MimeType: constants.MIMEForExt(filepath.Ext(name)),
		Data:     data,
	})
	if converted {
		logger.Info("converted to jpeg", "file", name, "as", f.Name)
	}

	res := q.Enqueue(ctx, queue.Item{
		ID:          uuid.New().String(),
		Content:     f.Data,
		MimeType:    f.MimeType,
		Filename:    f.Name,
		BusinessID:  target.business,
		JobID:       target.job,
		Category:    target.category,
		Description: target.description,
	})
	switch {
	case !res.Success:
		return fmt.Errorf("%s: %s", name, res.Error)
	case res.Warning != "":
		fmt.Printf("queued %s (queue %s)\n", name, res.Warning)
	default:
		fmt.Printf("queued %s\n", name)
	}
	return nil
}

func status(ctx context.Context, q *queue.Queue) error {
	s, err := q.Summary(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func list(ctx context.Context, q *queue.Queue, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	st := fs.String("status", "", "only items in this status")
	job := fs.String("job", "", "only items for this job")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		items []*queue.Item
		err   error
	)
	switch {
	case *st != "":
		items, err = q.ListByStatus(ctx, constants.UploadStatus(*st))
	case *job != "":
		items, err = q.ListByJob(ctx, *job)
	default:
		items, err = q.List(ctx)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tJOB\tSTATUS\tATTEMPTS\tBYTES\tLAST ERROR")
	for _, it := range items {
		if *job != "" && it.JobID != *job {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			it.ID, it.Filename, it.JobID, it.Status, it.Attempts, it.Size, it.LastError)
	}
	return w.Flush()
}

func newUploader(q *queue.Queue, cfg *common.Config, logger *slog.Logger) *uploader.Uploader {
	transport := uploader.NewHTTPTransport(cfg.Uploader.ServerURL, &http.Client{Timeout: cfg.Uploader.Timeout}, logger)
	return uploader.New(q, transport, logger,
		uploader.WithWorkers(cfg.Uploader.Workers),
		uploader.WithAttemptTimeout(cfg.Uploader.Timeout),
		uploader.WithPollInterval(cfg.Uploader.PollInterval),
		uploader.WithBackoff(cfg.Uploader.BackoffBase, cfg.Uploader.BackoffMax),
	)
}

func shutdownUploader(u *uploader.Uploader) {
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	u.Shutdown(sctx)
}

func run(ctx context.Context, q *queue.Queue, cfg *common.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	once := fs.Bool("once", false, "drain what is ready now and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u := newUploader(q, cfg, logger)
	defer shutdownUploader(u)

	if *once {
		n, err := u.RunOnce(ctx)
		fmt.Printf("%d attempt(s) made\n", n)
		return err
	}
	logger.Info("uploader running", "server", cfg.Uploader.ServerURL, "workers", cfg.Uploader.Workers)
	return u.Run(ctx)
}

// watch enqueues media as it appears in the given folders, optionally
// uploading in the same process.
func watch(ctx context.Context, q *queue.Queue, cfg *common.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	business := fs.String("business", "", "business id (required)")
	job := fs.String("job", "", "job id (required)")
	category := fs.String("category", "", "media category")
	existing := fs.Bool("existing", false, "also enqueue files already in the folders")
	upload := fs.Bool("upload", false, "run the uploader alongside the watch")
	debounce := fs.Duration("debounce", 2*time.Second, "quiet period before a written file is picked up")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *business == "" || *job == "" || fs.NArg() == 0 {
		return fmt.Errorf("watch needs -business, -job and at least one directory")
	}

	g, gctx := errgroup.WithContext(ctx)
	paths, err := capture.Watch(gctx, capture.WatchConfig{
		Roots:       fs.Args(),
		InitialScan: *existing,
		Debounce:    *debounce,
	}, logger)
	if err != nil {
		return err
	}

	if *upload {
		u := newUploader(q, cfg, logger)
		defer shutdownUploader(u)
		g.Go(func() error { return u.Run(gctx) })
	}

	norm := normalize.New(normalize.NewCommandConverter(cfg.Normalizer.HeicConverter, cfg.Normalizer.CacheDir, logger), logger)
	target := captureTarget{business: *business, job: *job, category: *category}
	g.Go(func() error {
		seen := map[string]struct{}{}
		for p := range paths {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			if err := enqueueFile(gctx, q, norm, logger, target, p); err != nil {
				// a full queue or unreadable file should not stop the watch
				logger.Warn("enqueue failed", "path", p, "error", err)
			}
		}
		return nil
	})

	logger.Info("watching", "dirs", fs.Args(), "upload", *upload)
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
