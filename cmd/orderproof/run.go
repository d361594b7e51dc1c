package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Veraticus/orderproof/internal/artifact"
	"github.com/Veraticus/orderproof/internal/browser"
	"github.com/Veraticus/orderproof/internal/classify"
	"github.com/Veraticus/orderproof/internal/cli"
	"github.com/Veraticus/orderproof/internal/common"
	"github.com/Veraticus/orderproof/internal/config"
	"github.com/Veraticus/orderproof/internal/ledger"
	"github.com/Veraticus/orderproof/internal/model"
	"github.com/Veraticus/orderproof/internal/pipeline"
	"github.com/Veraticus/orderproof/internal/publish"
	"github.com/Veraticus/orderproof/internal/sheets"
	"github.com/Veraticus/orderproof/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture, publish and record delivered orders",
		Long: `Open the order history in your browser profile and process every order
delivered to the configured location.

The browser starts on the configured start page; log in if needed and open
your orders. Processing begins once the order history URL is reached.

With --dry-run nothing leaves the machine: screenshots are still written to
the bills directory, uploads go to an in-memory store and the resulting
ledger is printed instead of written to the spreadsheet.`,
		RunE: runOrders,
	}

	cmd.Flags().Bool("dry-run", false, "capture screenshots but do not publish or write the ledger")
	cmd.Flags().String("location", "", "delivery location to match (overrides config)")
	cmd.Flags().Bool("headless", false, "run the browser without a window")
	cmd.Flags().Bool("no-journal", false, "do not record this run in the local journal")

	_ = viper.BindPFlag("location", cmd.Flags().Lookup("location"))
	_ = viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
	_ = viper.BindPFlag("journal.disabled", cmd.Flags().Lookup("no-journal"))

	return cmd
}

// backends are the remote-facing parts of a run.
type backends struct {
	store   publish.ObjectStore
	table   ledger.Table
	memory  *ledger.MemoryTable // set for dry runs
	closers []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Warn("Failed to close backend", "error", err)
		}
	}
}

// openBackends connects the artifact store and the ledger table.
func openBackends(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (*backends, error) {
	if dryRun {
		memory := ledger.NewMemoryTable()
		return &backends{store: publish.NewMemoryStore(), table: memory, memory: memory}, nil
	}

	b := &backends{}
	switch cfg.Publish.Backend {
	case config.BackendGCS:
		store, err := publish.NewGCSStore(ctx, cfg.Google, cfg.GCSConfig())
		if err != nil {
			return nil, err
		}
		b.store = store
		b.closers = append(b.closers, store.Close)
	default:
		store, err := publish.NewDriveStore(ctx, cfg.Google, cfg.Publish.DriveFolderID, logger)
		if err != nil {
			return nil, err
		}
		b.store = store
	}

	table, err := sheets.NewTable(ctx, cfg.SheetsConfig(), logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	logger.Info("Ledger spreadsheet ready", "url", table.URL())
	b.table = table

	return b, nil
}

// openJournal returns nil when the journal is disabled.
func openJournal(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	if cfg.Journal.Disabled {
		return nil, nil
	}
	journal, err := storage.NewSQLiteStorage(cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := journal.Migrate(ctx); err != nil {
		_ = journal.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return journal, nil
}

func runOrders(cmd *cobra.Command, _ []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	logger := slog.Default()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !dryRun {
		if err := cfg.ValidateRemote(); err != nil {
			return err
		}
	}

	handler := cli.NewInterruptHandler(os.Stderr)
	ctx := handler.HandleInterrupts(cmd.Context(), dryRun)

	fmt.Fprintln(os.Stdout, cli.FormatTitle(fmt.Sprintf("Collecting orders delivered to %q", cfg.Location)))
	if dryRun {
		fmt.Fprintln(os.Stdout, cli.FormatWarning("Dry run: nothing will be published or written to the ledger"))
	}

	remote, err := openBackends(ctx, cfg, dryRun, logger)
	if err != nil {
		return err
	}
	defer remote.Close()

	reconciler, err := ledger.Open(ctx, remote.table, cfg.UpdatePolicy(), logger)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Classifier: classify.NewLocation(cfg.Location),
		Publisher:  publish.NewPublisher(remote.store, cfg.RetryOptions(), logger),
		Reconciler: reconciler,
	}

	journal, err := openJournal(ctx, cfg)
	if err != nil {
		logger.Warn("Run journal unavailable; continuing without it", "error", err)
	}
	if journal != nil {
		defer func() { _ = journal.Close() }()
		deps.Journal = journal
	}

	session, err := browser.Open(ctx, cfg.SessionConfig(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close browser", "error", err)
		}
	}()

	navigator, err := browser.OpenNavigator(ctx, session, cfg.NavigatorConfig(), logger)
	if err != nil {
		return err
	}
	deps.Source = navigator

	capturer, err := artifact.NewCapturer(session, cfg.BillsDir, logger)
	if err != nil {
		return err
	}
	deps.Capturer = capturer

	progress := cli.NewProgress(os.Stderr)
	deps.Observer = progress

	p, err := pipeline.New(deps, logger)
	if err != nil {
		return err
	}

	summary, runErr := p.Run(ctx)
	progress.Finish()

	fmt.Fprintln(os.Stdout, cli.FormatSummary(summary))
	if remote.memory != nil {
		fmt.Fprintln(os.Stdout, cli.FormatLedger(remote.memory.Rows()))
	}

	return runResult(os.Stdout, summary, runErr, handler.WasInterrupted())
}

// runResult turns the end of a run into the command's error. An interrupted
// run always fails so that scripts do not mistake it for a complete one.
func runResult(w io.Writer, summary *model.RunSummary, runErr error, interrupted bool) error {
	if interrupted {
		if runErr == nil {
			runErr = context.Canceled
		}
		return common.NewUserError("Run interrupted; run again to process the remaining orders", runErr)
	}
	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}

	if summary.Failed() > 0 {
		fmt.Fprintln(w, cli.FormatWarning("Some orders failed; run again to retry them"))
	} else {
		fmt.Fprintln(w, cli.FormatSuccess("All matched orders are in the ledger"))
	}
	return nil
}
