package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/insight-router/backend/internal/ida"
	"github.com/insight-router/backend/internal/llm"
	"github.com/insight-router/backend/pkg/config"
	appLogger "github.com/insight-router/backend/pkg/logger"
)

var (
	configFile  string
	backend     string
	concurrency int
	inputDir    string
	outputDir   string
	maxChars    int
)

var rootCmd = &cobra.Command{
	Use:           "ida",
	Short:         "Maintain insight/direction/action documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Regenerate IDA files from the general answering documents",
	Long: `Reads every .txt, .csv and .html file of the general data directory, asks the
selected model for Insights, Direction and Action sections and writes them to
<stem>_ida_<index>.txt in the IDA directory.`,
	Args: cobra.NoArgs,
	RunE: runExtract,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./config.yaml)")

	extractCmd.Flags().StringVar(&backend, "backend", string(llm.BackendOpenAI), "model backend: openai or llama")
	extractCmd.Flags().IntVar(&concurrency, "concurrency", 4, "files processed in parallel")
	extractCmd.Flags().StringVar(&inputDir, "input", "", "source directory (default: data.generalDir)")
	extractCmd.Flags().StringVar(&outputDir, "output", "", "destination directory (default: data.idaDir)")
	extractCmd.Flags().IntVar(&maxChars, "max-chars", 12000, "truncate sources longer than this many characters (0 disables)")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFrom(configFile)
	if err != nil {
		return err
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		return err
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateways, err := llm.NewGateways(ctx, cfg.LLM, nil, cfg.Memory.Window)
	if err != nil {
		return err
	}
	gw, err := gateways.Get(backend)
	if err != nil {
		return err
	}

	if inputDir == "" {
		inputDir = cfg.Data.GeneralDir
	}
	if outputDir == "" {
		outputDir = cfg.Data.IDADir
	}

	processor := ida.NewProcessor(gw, ida.Config{
		InputDir:      inputDir,
		OutputDir:     outputDir,
		Concurrency:   concurrency,
		MaxInputChars: maxChars,
	})

	results, err := processor.Run(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL %s: %v\n", r.Source, r.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok   %s -> %s\n", r.Source, r.Output)
	}

	if failed > 0 {
		appLogger.Warn("Some files were not extracted", zap.Int("failed", failed))
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
