package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridprobe/gridprobe/internal/core"
)

var (
	analyzePuzzle      string
	analyzeProvider    string
	analyzeModel       string
	analyzeTemplate    string
	analyzeInstruction string
	analyzeEffort      string
	analyzeHideTruth   bool
	analyzeTimeout     time.Duration
	analyzeSave        bool
	analyzeJSON        bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one puzzle analysis and stream the output to the terminal",
	Long: `Send a single puzzle to a provider, stream the model's output as it
arrives, and score the predicted grids against the puzzle's ground truth.

Results stay in memory unless --save persists them to the configured store.`,
	Example: `  gridprobe analyze --puzzle 3ed85e70 --provider openai
  gridprobe analyze --puzzle 3ed85e70 --provider deepseek --model deepseek-reasoner --omit-ground-truth`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzePuzzle, "puzzle", "", "puzzle id (required)")
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "", "provider id (required)")
	analyzeCmd.Flags().StringVar(&analyzeModel, "model", "", "model id (default: provider's configured model)")
	analyzeCmd.Flags().StringVar(&analyzeTemplate, "template", "", "prompt template (explainer, solver)")
	analyzeCmd.Flags().StringVar(&analyzeInstruction, "instruction", "", "custom instruction replacing the template")
	analyzeCmd.Flags().StringVar(&analyzeEffort, "effort", "", "reasoning effort (low, medium, high)")
	analyzeCmd.Flags().BoolVar(&analyzeHideTruth, "omit-ground-truth", false, "hide expected test outputs from the provider")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0, "provider call timeout (default: provider config)")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "persist the record to the configured store")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the final record as JSON")
	_ = analyzeCmd.MarkFlagRequired("puzzle")
	_ = analyzeCmd.MarkFlagRequired("provider")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	cfg, logger, _, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := newApp(cfg, logger, !analyzeSave)
	if err != nil {
		return err
	}
	defer application.close(logger)

	model := analyzeModel
	if model == "" {
		if pc, ok := cfg.Providers[analyzeProvider]; ok {
			model = pc.DefaultModel
		}
	}

	req := core.AnalysisRequest{
		PuzzleID:   analyzePuzzle,
		ModelID:    model,
		ProviderID: analyzeProvider,
		Config: core.AnalysisConfig{
			PromptTemplateID:  analyzeTemplate,
			CustomInstruction: analyzeInstruction,
			ReasoningEffort:   core.ReasoningEffort(analyzeEffort),
			OmitGroundTruth:   analyzeHideTruth,
		},
		Timeout: analyzeTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := application.manager.Open(ctx, req)
	if err != nil {
		return err
	}

	events, err := application.manager.Subscribe(ctx, sess.ID())
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = application.manager.Cancel(sess.ID())
	}()

	for ev := range events {
		switch ev.Type {
		case core.EventStarted:
			fmt.Fprintf(os.Stderr, "analyzing %s with %s/%s\n", analyzePuzzle, analyzeProvider, model)
		case core.EventTextDelta:
			fmt.Print(ev.Delta)
		case core.EventReasoningDelta:
			// Reasoning goes to stderr so stdout stays pipeable.
			fmt.Fprint(os.Stderr, ev.Delta)
		}
		if ev.Type.IsTerminal() {
			fmt.Println()
			break
		}
	}

	record, err := application.manager.Result(sess.ID())
	if err != nil {
		return err
	}
	return printOutcome(record)
}

func printOutcome(record *core.AnalysisRecord) error {
	if analyzeJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(record)
	}

	switch record.State {
	case core.StateCompleted:
		fmt.Fprintf(os.Stderr, "tokens: %d in, %d out, %d reasoning\n",
			record.Usage.Input, record.Usage.Output, record.Usage.Reasoning)
		if record.Validation != nil {
			fmt.Fprintf(os.Stderr, "validation: %.0f%% (%s extraction)\n",
				record.Validation.Accuracy*100, record.Validation.Method)
			if !record.Validation.AllCorrect() {
				return fmt.Errorf("prediction incorrect")
			}
			return nil
		}
		for _, warning := range record.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", warning)
		}
		return fmt.Errorf("no prediction could be extracted")
	case core.StateCancelled:
		return context.Canceled
	default:
		return fmt.Errorf("%s: %s", record.ErrorCategory, record.ErrorMessage)
	}
}
