package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gridprobe/gridprobe/internal/core"
)

var (
	batchProvider string
	batchModel    string
	batchLimit    int
	batchTimeout  time.Duration
	batchSave     bool
)

// batchOutcome is one row of the final report.
type batchOutcome struct {
	puzzleID string
	state    core.SessionState
	correct  bool
	scored   bool
	tokens   int
	detail   string
}

var batchCmd = &cobra.Command{
	Use:   "batch [puzzle-id...]",
	Short: "Analyze many puzzles against one provider and report accuracy",
	Long: `Run an analysis for every named puzzle (or the whole catalog when no ids
are given) and print a per-puzzle accuracy report.

Submission is concurrent; the per-provider slot width still serializes the
actual provider calls, so a batch is a queue, not a burst.`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchProvider, "provider", "", "provider id (required)")
	batchCmd.Flags().StringVar(&batchModel, "model", "", "model id (default: provider's configured model)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 4, "max sessions open at once")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 0, "per-puzzle provider call timeout")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "persist records to the configured store")
	_ = batchCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, logger, _, err := loadConfig()
	if err != nil {
		return err
	}
	application, err := newApp(cfg, logger, !batchSave)
	if err != nil {
		return err
	}
	defer application.close(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	puzzles := args
	if len(puzzles) == 0 {
		puzzles, err = application.catalog.List(ctx)
		if err != nil {
			return err
		}
	}
	if len(puzzles) == 0 {
		return fmt.Errorf("no puzzles found")
	}

	model := batchModel
	if model == "" {
		if pc, ok := cfg.Providers[batchProvider]; ok {
			model = pc.DefaultModel
		}
	}

	var (
		mu       sync.Mutex
		outcomes []batchOutcome
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(batchLimit)

	for _, puzzleID := range puzzles {
		puzzleID := puzzleID
		group.Go(func() error {
			outcome := analyzeOne(groupCtx, application, puzzleID, model)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			// A single failed puzzle never aborts the batch; only
			// cancellation does.
			return groupCtx.Err()
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	printBatchReport(outcomes)
	return nil
}

func analyzeOne(ctx context.Context, application *app, puzzleID, model string) batchOutcome {
	outcome := batchOutcome{puzzleID: puzzleID}

	sess, err := application.manager.Open(ctx, core.AnalysisRequest{
		PuzzleID:   puzzleID,
		ModelID:    model,
		ProviderID: batchProvider,
		Timeout:    batchTimeout,
	})
	if err != nil {
		outcome.state = core.StateError
		outcome.detail = err.Error()
		return outcome
	}

	events, err := application.manager.Subscribe(ctx, sess.ID())
	if err != nil {
		outcome.state = core.StateError
		outcome.detail = err.Error()
		return outcome
	}
	for ev := range events {
		if ev.Type.IsTerminal() {
			break
		}
	}
	if ctx.Err() != nil {
		_ = application.manager.Cancel(sess.ID())
	}

	record, err := application.manager.Result(sess.ID())
	if err != nil {
		outcome.state = core.StateError
		outcome.detail = err.Error()
		return outcome
	}
	outcome.state = record.State
	outcome.tokens = record.Usage.Total()
	if record.Validation != nil {
		outcome.scored = true
		outcome.correct = record.Validation.AllCorrect()
	} else if len(record.Warnings) > 0 {
		outcome.detail = record.Warnings[len(record.Warnings)-1]
	} else if record.ErrorMessage != "" {
		outcome.detail = record.ErrorMessage
	}
	return outcome
}

func printBatchReport(outcomes []batchOutcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PUZZLE\tSTATE\tRESULT\tTOKENS\tNOTE")

	var solved, scored int
	for _, o := range outcomes {
		result := "-"
		if o.scored {
			scored++
			if o.correct {
				solved++
				result = "correct"
			} else {
				result = "incorrect"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", o.puzzleID, o.state, result, o.tokens, o.detail)
	}
	_ = w.Flush()
	if scored > 0 {
		fmt.Printf("\nsolved %d/%d scored puzzles (%d total)\n", solved, scored, len(outcomes))
	}
}
