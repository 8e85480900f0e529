package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storyforge/internal/config"
	"storyforge/internal/llm"
	"storyforge/internal/logging"
	"storyforge/internal/store"
	"storyforge/internal/workflow"
)

var (
	// Global flags
	configPath string
	verbose    bool
	noSave     bool

	// Request flags
	reqPrompt   string
	reqType     string
	reqLanguage string
	reqChild    string
	reqHero     string
	reqMoral    string
	reqWords    int
	reqFile     string

	// Batch flags
	batchInput       string
	batchConcurrency int

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "storyforge",
	Short: "storyforge - quality-screened story generation",
	Long: `storyforge turns a story request into a persisted, quality-screened
narrative: prompt validation, bounded regeneration with feedback, automated
quality scoring, and best-of-N selection.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one story request through the workflow",
	Long: `Runs a single request through the full pipeline: validation,
up to max_attempts generate+assess cycles, and best-attempt selection.
The terminal result is persisted and printed as JSON.

Example:
  storyforge generate --prompt "Mia and the lost star" --moral "kindness" --words 400`,
	RunE: runGenerate,
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run many requests concurrently from a JSONL file",
	Long: `Reads one JSON request per line and runs them through the workflow,
bounded by the configured concurrency limit. Results print as JSONL in
input order.`,
	RunE: runBatch,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Classify a prompt without generating",
	RunE:  runValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.DefaultConfig()
		fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "storyforge.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	for _, cmd := range []*cobra.Command{generateCmd, validateCmd} {
		cmd.Flags().StringVar(&reqPrompt, "prompt", "", "story prompt")
		cmd.Flags().StringVar(&reqType, "type", "child", "story type: child, hero, combined")
		cmd.Flags().StringVar(&reqLanguage, "language", "English", "story language")
		cmd.Flags().StringVar(&reqChild, "child", "", "child context (name, age, interests)")
		cmd.Flags().StringVar(&reqHero, "hero", "", "hero context")
		cmd.Flags().StringVar(&reqMoral, "moral", "", "moral theme")
		cmd.Flags().IntVar(&reqWords, "words", 0, "target word count")
		cmd.Flags().StringVar(&reqFile, "request", "", "read the request from a JSON file instead of flags")
	}
	generateCmd.Flags().BoolVar(&noSave, "no-save", false, "skip persisting the result")

	batchCmd.Flags().StringVar(&batchInput, "input", "", "JSONL file with one request per line")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "override max concurrent requests")
	_ = batchCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(generateCmd, batchCmd, validateCmd, versionCmd)
}

// loadConfig loads and validates configuration, then initializes the
// category file logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Logging.Dir, logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildEngine wires the workflow collaborators from config. It returns the
// blocklist too so callers can start the watcher.
func buildEngine(cfg *config.Config) (*workflow.Engine, *workflow.Blocklist, error) {
	validationClient, err := llm.NewClient(cfg, cfg.LLM.GetValidationModel())
	if err != nil {
		return nil, nil, err
	}
	generationClient, err := llm.NewClient(cfg, cfg.LLM.GetGenerationModel())
	if err != nil {
		return nil, nil, err
	}
	assessmentClient, err := llm.NewClient(cfg, cfg.LLM.GetAssessmentModel())
	if err != nil {
		return nil, nil, err
	}

	blocklist, err := workflow.LoadBlocklist(cfg.Safety.BlocklistPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load blocklist: %w", err)
	}

	engine := workflow.NewEngine(
		workflow.EngineConfig{
			QualityThreshold:  cfg.Workflow.QualityThreshold,
			MaxAttempts:       cfg.Workflow.MaxAttempts,
			ValidationTimeout: cfg.GetAttemptTimeout(),
			TotalTimeout:      cfg.GetTotalTimeout(),
		},
		workflow.NewPromptValidator(validationClient, blocklist),
		workflow.NewAttemptCoordinator(
			workflow.NewContentGenerator(generationClient),
			workflow.NewQualityAssessor(assessmentClient),
			cfg.GetAttemptTimeout(),
		),
		workflow.NewBestAttemptSelector(),
	)

	return engine, blocklist, nil
}

// requestFromFlags builds a request from flags or --request file.
func requestFromFlags() (workflow.Request, error) {
	if reqFile != "" {
		data, err := os.ReadFile(reqFile)
		if err != nil {
			return workflow.Request{}, fmt.Errorf("failed to read request file: %w", err)
		}
		var req workflow.Request
		if err := json.Unmarshal(data, &req); err != nil {
			return workflow.Request{}, fmt.Errorf("failed to parse request file: %w", err)
		}
		return req, nil
	}

	if reqPrompt == "" {
		return workflow.Request{}, fmt.Errorf("--prompt is required (or use --request)")
	}

	return workflow.Request{
		Prompt:       reqPrompt,
		Language:     reqLanguage,
		StoryType:    workflow.StoryType(reqType),
		ChildContext: reqChild,
		HeroContext:  reqHero,
		Moral:        reqMoral,
		TargetWords:  reqWords,
	}, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := requestFromFlags()
	if err != nil {
		return err
	}

	engine, blocklist, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if cfg.Safety.WatchBlocklist {
		go func() {
			if err := blocklist.Watch(ctx); err != nil {
				logger.Warn("blocklist watcher stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("running workflow",
		zap.String("story_type", string(req.StoryType)),
		zap.String("language", req.Language))

	result, err := engine.Run(ctx, req)
	if err != nil {
		return err
	}

	if !noSave {
		storyStore, err := store.NewStoryStore(cfg.Store.DatabasePath)
		if err != nil {
			return err
		}
		defer storyStore.Close()
		if err := storyStore.SaveResult(result); err != nil {
			return err
		}
		logger.Info("result persisted", zap.String("id", result.ID), zap.String("status", string(result.Status)))
	}

	return printJSON(result)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(batchInput)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	var reqs []workflow.Request
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if len(text) == 0 {
			continue
		}
		var req workflow.Request
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		reqs = append(reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	engine, blocklist, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if cfg.Safety.WatchBlocklist {
		go func() {
			if err := blocklist.Watch(ctx); err != nil {
				logger.Warn("blocklist watcher stopped", zap.Error(err))
			}
		}()
	}

	concurrency := cfg.Workflow.MaxConcurrentRequests
	if batchConcurrency > 0 {
		concurrency = batchConcurrency
	}

	logger.Info("running batch",
		zap.Int("requests", len(reqs)),
		zap.Int("concurrency", concurrency))

	runner := workflow.NewRunner(engine, concurrency)
	results := runner.Run(ctx, reqs)

	storyStore, err := store.NewStoryStore(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer storyStore.Close()

	enc := json.NewEncoder(os.Stdout)
	for _, result := range results {
		if result.ID != "" {
			if err := storyStore.SaveResult(result); err != nil {
				logger.Warn("failed to persist result", zap.String("id", result.ID), zap.Error(err))
			}
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req, err := requestFromFlags()
	if err != nil {
		return err
	}

	client, err := llm.NewClient(cfg, cfg.LLM.GetValidationModel())
	if err != nil {
		return err
	}
	blocklist, err := workflow.LoadBlocklist(cfg.Safety.BlocklistPath)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	validator := workflow.NewPromptValidator(client, blocklist)
	result, err := validator.Validate(ctx, req)
	if err != nil {
		return fmt.Errorf("validation unavailable: %w", err)
	}

	return printJSON(result)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
