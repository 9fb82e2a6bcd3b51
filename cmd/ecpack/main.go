// Command ecpack runs the EC package spreadsheet jobs on local files.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/JonMunkholm/ecpack/internal/config"
	"github.com/JonMunkholm/ecpack/internal/core"
	"github.com/JonMunkholm/ecpack/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	outDir       string
	templatePath string
	logLevel     string
	owner        string

	// Chunk flags
	chunkMode string
	unpacked  bool

	// Set up by the root command before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ecpack",
	Short: "Transform EC package registers (xlsx)",
	Long: `ecpack deduplicates and splits EC package registers into template
chunks, rewrites passport codes, and replaces passport codes with PINFL
values from a results workbook.

Configuration comes from the environment (and .env), as for the server.
Artifacts are written to --out.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Overload()

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if outDir != "" {
			loaded.Jobs.OutputDir = outDir
		}
		if templatePath != "" {
			loaded.Jobs.TemplatePath = templatePath
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		logging.SetupTo(os.Stderr, loaded.Logging.Level, loaded.Logging.Format)
		cfg = loaded
		return nil
	},
}

var chunkCmd = &cobra.Command{
	Use:   "chunk <register.xlsx>",
	Short: "Fix codes, deduplicate, and split a register into template chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunk,
}

var passportCmd = &cobra.Command{
	Use:   "passport <register.xlsx>",
	Short: "Apply the passport macro to a register",
	Args:  cobra.ExactArgs(1),
	RunE:  runPassport,
}

var pinflCmd = &cobra.Command{
	Use:   "pinfl <source.xlsx> <results.xlsx>",
	Short: "Replace passport codes with PINFL values",
	Long: `pinfl joins the source register with the PINFL results workbook
(passport in column I, PINFL in column J), writes the joined register, and
overwrites the replacement log.`,
	Args: cobra.ExactArgs(2),
	RunE: runPinfl,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outDir, "out", "o", "", "Output directory (default: JOBS_OUTPUT_DIR)")
	rootCmd.PersistentFlags().StringVar(&templatePath, "template", "", "Template workbook (default: JOBS_TEMPLATE_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&owner, "owner", "cli", "Owner name used in artifact names")

	chunkCmd.Flags().StringVarP(&chunkMode, "mode", "m", string(core.ModeChunk), "Chunk mode: chunk, chunk500, chunk250")
	chunkCmd.Flags().BoolVar(&unpacked, "unpacked", false, "Write chunk workbooks instead of one zip archive")

	rootCmd.AddCommand(chunkCmd, passportCmd, pinflCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// jobContext returns a context cancelled on SIGINT or SIGTERM and carrying
// the artifact owner.
func jobContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return core.ContextWithOwner(ctx, owner), cancel
}

func runChunk(cmd *cobra.Command, args []string) error {
	mode, err := core.ParseMode(chunkMode)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	svc, err := core.NewService(cfg, nil)
	if err != nil {
		return err
	}
	ctx, cancel := jobContext()
	defer cancel()

	res, err := svc.RunChunk(ctx, mode, filepath.Base(args[0]), data)
	if err != nil {
		return err
	}

	files := []core.NamedFile{res.Archive}
	if unpacked {
		files = res.Chunks
	}
	if err := writeArtifacts(cfg.Jobs.OutputDir, files...); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d rows, %d duplicates, %d codes fixed, %d chunks\n",
		res.Rows, res.Duplicates, res.CodesFixed, len(res.Files))
	return nil
}

func runPassport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	svc, err := core.NewService(cfg, nil)
	if err != nil {
		return err
	}
	ctx, cancel := jobContext()
	defer cancel()

	res, err := svc.RunPassport(ctx, filepath.Base(args[0]), data)
	if err != nil {
		return err
	}
	if err := writeArtifacts(cfg.Jobs.OutputDir, res.File); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d rows, %d rewritten\n", res.Rows, res.Rewritten)
	return nil
}

func runPinfl(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	results, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	svc, err := core.NewService(cfg, nil)
	if err != nil {
		return err
	}
	ctx, cancel := jobContext()
	defer cancel()

	out, err := svc.RunJoin(ctx, filepath.Base(args[0]), source, results)
	if err != nil {
		return err
	}
	if err := writeArtifacts(cfg.Jobs.OutputDir, out.File); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d rows, %d replaced, %d defaulted, %d not found\n",
		out.Rows, out.Replacements, out.Defaulted, out.Misses)
	return nil
}

// writeArtifacts writes files into dir, creating it if needed.
func writeArtifacts(dir string, files ...core.NamedFile) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
		slog.Info("artifact written", "path", path, "bytes", len(f.Data))
	}
	return nil
}
