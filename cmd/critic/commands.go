package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/critic/internal/bridge"
	"github.com/kingrea/critic/internal/config"
	"github.com/kingrea/critic/internal/document"
	"github.com/kingrea/critic/internal/history"
	"github.com/kingrea/critic/internal/logging"
	"github.com/kingrea/critic/internal/markup"
	"github.com/kingrea/critic/internal/pipeline"
	"github.com/kingrea/critic/internal/snapshot"
	"github.com/kingrea/critic/internal/tui"
)

// errInvalid signals a failed validation whose report was already printed.
var errInvalid = errors.New("pipeline validation failed")

// env is what every command needs once the project is resolved.
type env struct {
	cfg       *config.Config
	log       *logging.Logger
	validator *pipeline.Validator
	history   *history.History
}

func (e *env) Close() {
	if e != nil {
		_ = e.log.Close()
	}
}

type rootOptions struct {
	projectDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "critic",
		Short:         "Import, export and validate CriticMarkup tracked changes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.projectDir, "project", "", "project directory (defaults to the working directory)")

	root.AddCommand(
		newInitCmd(opts),
		newPreprocessCmd(),
		newImportCmd(),
		newExportCmd(),
		newResolveCmd(),
		newGenerateCmd(opts),
		newValidateCmd(opts),
		newServeCmd(opts),
		newDashboardCmd(opts),
		newPreviewCmd(),
	)
	return root
}

func (o *rootOptions) dir() (string, error) {
	if strings.TrimSpace(o.projectDir) != "" {
		return o.projectDir, nil
	}
	return os.Getwd()
}

func (o *rootOptions) load() (*env, error) {
	dir, err := o.dir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, err
	}
	logger, err := logging.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	hist, err := history.New(cfg.HistoryPath())
	if err != nil {
		logger.Close()
		return nil, err
	}
	validator := pipeline.NewValidator(
		pipeline.WithThresholds(cfg.Thresholds()),
		pipeline.WithLogger(logger.Zap()),
	)
	return &env{cfg: cfg, log: logger, validator: validator, history: hist}, nil
}

// readInput reads args[idx] as a file, or stdin when it is missing or "-".
func readInput(cmd *cobra.Command, args []string, idx int) (string, error) {
	if idx >= len(args) || args[idx] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[idx])
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the .critic directory and default config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := opts.dir()
			if err != nil {
				return err
			}
			if err := config.InitCriticDir(dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", config.CriticDir)
			return nil
		},
	}
}

func newPreprocessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preprocess [file]",
		Short: "Normalize raw model output for import",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, 0)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), markup.Preprocess(text))
			return nil
		},
	}
}

func newImportCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Parse marker text and print the document tree as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, 0)
			if err != nil {
				return err
			}
			var root *document.Node
			if raw {
				root = markup.Load(text)
			} else {
				root = markup.Import(text)
			}
			return writeJSON(cmd.OutOrStdout(), root)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "preprocess the input first")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		mode     string
		fromJSON bool
		opts     bridge.RenderOptions
	)
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Render marker text or a JSON tree as markup, or with changes resolved",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, 0)
			if err != nil {
				return err
			}
			var root *document.Node
			if fromJSON {
				if root, err = decodeTree(text); err != nil {
					return err
				}
			} else {
				root = markup.Load(text)
			}
			out, err := bridge.Render(root, bridge.ExportMode(strings.ToLower(mode)), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(bridge.ModeMarkup), "markup | accept | reject | before | after")
	cmd.Flags().BoolVar(&fromJSON, "json", false, "input is a JSON tree from `critic import`")
	cmd.Flags().BoolVar(&opts.Newlines, "newlines", false, "render line breaks as newlines")
	cmd.Flags().BoolVar(&opts.Cleanup, "cleanup", false, "collapse and trim <br> placeholders in the output")
	return cmd
}

func newResolveCmd() *cobra.Command {
	var (
		key      string
		decision string
		asText   bool
	)
	cmd := &cobra.Command{
		Use:   "resolve [file]",
		Short: "Accept or reject one change in a JSON tree from `critic import`",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := document.ParseDecision(decision)
			if err != nil {
				return err
			}
			text, err := readInput(cmd, args, 0)
			if err != nil {
				return err
			}
			root, err := decodeTree(text)
			if err != nil {
				return err
			}
			if err := bridge.ResolveChange(root, key, d); err != nil {
				return err
			}
			if asText {
				fmt.Fprintln(cmd.OutOrStdout(), markup.Export(root))
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), root)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "key of the diff node to resolve")
	cmd.Flags().StringVar(&decision, "decision", "accept", "accept | reject")
	cmd.Flags().BoolVar(&asText, "text", false, "print marker text instead of the updated tree")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

// decodeTree reads a JSON tree and checks its structure.
func decodeTree(data string) (*document.Node, error) {
	root := &document.Node{}
	if err := json.Unmarshal([]byte(data), root); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	document.Relink(root)
	if err := document.Check(root); err != nil {
		return nil, err
	}
	return root, nil
}

// pipelineInput resolves the run to inspect: a stored run ID or an
// original/edited file pair.
type pipelineInput struct {
	runID string
	save  bool
}

func (p *pipelineInput) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.runID, "run", "", "load a stored run instead of diffing two files")
	cmd.Flags().BoolVar(&p.save, "save", false, "store the stage snapshots under .critic/runs")
}

func (p *pipelineInput) resolve(e *env, args []string) (pipeline.Run, string, error) {
	store := snapshot.NewStore(e.cfg.RunsDir())
	if p.runID != "" {
		snaps, err := store.LoadRun(p.runID)
		if err != nil {
			return pipeline.Run{}, "", err
		}
		return pipeline.Run{Snapshots: snaps, Report: e.validator.Validate(snaps...)}, p.runID, nil
	}
	if len(args) != 2 {
		return pipeline.Run{}, "", fmt.Errorf("expected <original> <edited> or --run <id>")
	}
	original, err := os.ReadFile(args[0])
	if err != nil {
		return pipeline.Run{}, "", err
	}
	edited, err := os.ReadFile(args[1])
	if err != nil {
		return pipeline.Run{}, "", err
	}
	run := e.validator.Run(string(original), string(edited))
	runID := ""
	if p.save {
		if runID, err = store.Save(run.Snapshots); err != nil {
			return pipeline.Run{}, "", err
		}
		e.log.Zap().Info("run saved", zap.String("run", runID))
	}
	return run, runID, nil
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	input := &pipelineInput{}
	cmd := &cobra.Command{
		Use:   "generate <original> <edited>",
		Short: "Diff two files into CriticMarkup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			defer e.Close()
			run, runID, err := input.resolve(e, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), run.Markup())
			if runID != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "saved run %s\n", runID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&input.save, "save", false, "store the stage snapshots under .critic/runs")
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	input := &pipelineInput{}
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate [<original> <edited>]",
		Short: "Run the pipeline checks and print the report",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			defer e.Close()
			run, runID, err := input.resolve(e, args)
			if err != nil {
				return err
			}
			if err := e.history.Append(history.FromReport(run.Report, "cli", runID, time.Now())); err != nil {
				e.log.Zap().Warn("record history", zap.Error(err))
			}
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), run.Report); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), run.Report.Summary())
			}
			if !run.Report.Valid() {
				return errInvalid
			}
			return nil
		},
	}
	input.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the loopback HTTP bridge until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			settings, err := bridge.LoadSettings(e.cfg)
			if err != nil {
				return err
			}
			srv := bridge.NewServer(settings,
				bridge.WithLogger(e.log.Zap()),
				bridge.WithHistory(e.history),
			)
			if err := srv.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "critic bridge listening on %s\n", srv.BaseURL())
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newDashboardCmd(opts *rootOptions) *cobra.Command {
	input := &pipelineInput{}
	cmd := &cobra.Command{
		Use:   "dashboard [<original> <edited>]",
		Short: "Inspect a pipeline run interactively",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			defer e.Close()
			run, runID, err := input.resolve(e, args)
			if err != nil {
				return err
			}
			title := runID
			if title == "" && len(args) == 2 {
				title = args[1]
			}
			app := tui.NewApp(run, tui.WithHistory(e.history), tui.WithTitle(title))
			// Use alternate screen buffer (like vim does)
			p := tea.NewProgram(app, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	input.bind(cmd)
	return cmd
}

func newPreviewCmd() *cobra.Command {
	var (
		reject bool
		plain  bool
		width  int
	)
	cmd := &cobra.Command{
		Use:   "preview [file]",
		Short: "Render marker text with every change accepted (or rejected)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args, 0)
			if err != nil {
				return err
			}
			decision := document.Accept
			if reject {
				decision = document.Reject
			}
			var renderer tui.Renderer = tui.GlamourRenderer{}
			if plain {
				renderer = nil
			}
			out, err := tui.RenderPreview(text, decision, renderer, width)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "reject every change instead of accepting")
	cmd.Flags().BoolVar(&plain, "plain", false, "print markdown without terminal styling")
	cmd.Flags().IntVar(&width, "width", 80, "wrap width")
	return cmd
}
