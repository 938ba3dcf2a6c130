// Package main provides the CLI application for the buildwatch remote build
// watcher. It triggers CI builds on a provider (Codemagic or GitHub Actions)
// and follows them to a terminal outcome using the Cobra framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"buildwatch-agent/src/broker"
	_ "buildwatch-agent/src/codemagic"
	"buildwatch-agent/src/config"
	_ "buildwatch-agent/src/githubactions"
	"buildwatch-agent/src/logger"
	"buildwatch-agent/src/notify"
	"buildwatch-agent/src/provider"
	"buildwatch-agent/src/store"
	"buildwatch-agent/src/tui"
	"buildwatch-agent/src/watch"
)

// Exit codes. Exit 0 means the build is finished AND successful; everything
// else is a distinct nonzero code so scripts can tell outcomes apart.
const (
	exitOK          = 0
	exitBuildFailed = 1 // build reached a terminal status other than success
	exitConfig      = 2 // configuration or usage error
	exitTrigger     = 3 // trigger call failed, no build was started
	exitWatch       = 4 // watch aborted: timeout, cancellation, retries, not found
)

var (
	// Application configuration, loaded before any command runs.
	appConfig *config.Config

	providerName string
	noTUI        bool
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "buildwatch",
	Short: "Buildwatch - trigger remote CI builds and watch them to completion",
	Long: `Buildwatch triggers a build on a remote CI provider and polls its
status until the build reaches a terminal state.

Supported providers:
- codemagic: Codemagic builds (CODEMAGIC_API_TOKEN, CODEMAGIC_APP_ID)
- github:    GitHub Actions workflow dispatch (GITHUB_TOKEN, GITHUB_REPO)

Exit code 0 means the build finished successfully. Any other outcome
(failure, timeout, cancellation) exits nonzero.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		appConfig, err = config.LoadFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(exitConfig)
		}
		applyFlagOverrides(cmd)
	},
}

// applyFlagOverrides lets command-line flags win over environment config.
func applyFlagOverrides(cmd *cobra.Command) {
	if f := cmd.Flags().Lookup("interval"); f != nil && f.Changed {
		d, err := time.ParseDuration(f.Value.String())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --interval: %v\n", err)
			os.Exit(exitConfig)
		}
		appConfig.PollInterval = d
	}
	if f := cmd.Flags().Lookup("timeout"); f != nil && f.Changed {
		d, err := time.ParseDuration(f.Value.String())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --timeout: %v\n", err)
			os.Exit(exitConfig)
		}
		appConfig.WatchTimeout = d
	}
	if f := cmd.Flags().Lookup("retry-budget"); f != nil && f.Changed {
		var n int
		if _, err := fmt.Sscanf(f.Value.String(), "%d", &n); err != nil || n < 1 {
			fmt.Fprintln(os.Stderr, "Invalid --retry-budget: must be a positive integer")
			os.Exit(exitConfig)
		}
		appConfig.RetryBudget = n
	}
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger a build and watch it until it completes",
	Long: `Triggers a new build for the given workflow and branch, then polls
its status until it reaches a terminal state.

By default: Launches an interactive view showing live build status.
Use --no-tui for plain log output (useful in CI).

With --detach: Triggers the build, prints the build ID, and exits
immediately without watching. Use 'buildwatch watch <build-id>' later.

Example:
  buildwatch run --workflow ios-release --branch main
  buildwatch run --provider github --workflow ci.yml --branch feature/login --no-tui
  buildwatch run --workflow ios-release --branch main --detach`,
	Run: func(cmd *cobra.Command, args []string) {
		workflow, _ := cmd.Flags().GetString("workflow")
		branch, _ := cmd.Flags().GetString("branch")
		environment, _ := cmd.Flags().GetString("env")
		detach, _ := cmd.Flags().GetBool("detach")

		if workflow == "" || branch == "" {
			fmt.Fprintln(os.Stderr, "Both --workflow and --branch are required")
			os.Exit(exitConfig)
		}

		p := mustProvider()
		ctx, stop := signalContext()
		defer stop()

		req := provider.JobRequest{Workflow: workflow, Ref: branch, Environment: environment}
		handle, err := p.Trigger(ctx, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Trigger failed: %v\n", err)
			os.Exit(exitTrigger)
		}

		runStore := openStore(ctx)
		defer runStore.Close()

		run := &store.Run{
			ID:          uuid.NewString(),
			Provider:    p.Name(),
			Workflow:    workflow,
			Ref:         branch,
			Environment: environment,
			BuildID:     handle.ID,
			Status:      provider.StatusPending,
			StartedAt:   time.Now().UTC(),
		}
		if err := runStore.CreateRun(ctx, run); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record run: %v\n", err)
		}

		if detach {
			fmt.Printf("✅ Triggered build %s on %s\n", handle.ID, p.Name())
			fmt.Printf("   Workflow: %s\n", workflow)
			fmt.Printf("   Branch:   %s\n", branch)
			fmt.Println()
			fmt.Printf("💡 Watch it later with: buildwatch watch %s --provider %s\n", handle.ID, p.Name())
			return
		}

		info := tui.Info{Provider: p.Name(), Workflow: workflow, Ref: branch, BuildID: handle.ID}
		result, err := watchBuild(ctx, p, handle, info)
		finishRun(ctx, runStore, run, result)
		os.Exit(reportOutcome(handle, result, err))
	},
}

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [build-id]",
	Short: "Watch an already-triggered build until it completes",
	Long: `Attaches to an existing build by its provider build ID and polls
its status until it reaches a terminal state.

Example:
  buildwatch watch 6914b2b0e15f1234abcd0000
  buildwatch watch 18236540123 --provider github --no-tui`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		buildID := args[0]

		p := mustProvider()
		ctx, stop := signalContext()
		defer stop()

		handle := &provider.JobHandle{Provider: p.Name(), ID: buildID}
		info := tui.Info{Provider: p.Name(), BuildID: buildID}
		result, err := watchBuild(ctx, p, handle, info)
		os.Exit(reportOutcome(handle, result, err))
	},
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [build-id]",
	Short: "Query the current status of a build once",
	Long: `Polls the provider a single time and prints the current status of
the given build.

Example:
  buildwatch status 6914b2b0e15f1234abcd0000
  buildwatch status 18236540123 --provider github`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		buildID := args[0]

		p := mustProvider()
		ctx, stop := signalContext()
		defer stop()

		report, err := p.Poll(ctx, &provider.JobHandle{Provider: p.Name(), ID: buildID})
		if err != nil {
			if errors.Is(err, provider.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "Build %s not found on %s\n", buildID, p.Name())
				os.Exit(exitWatch)
			}
			fmt.Fprintf(os.Stderr, "Status query failed: %v\n", err)
			os.Exit(exitWatch)
		}

		fmt.Printf("Build %s: %s\n", buildID, report.Status)
		if report.Status.IsTerminal() {
			if report.Status == provider.StatusFinished && report.Success {
				fmt.Println("✅ Build succeeded")
				if report.URL != "" {
					fmt.Printf("   %s\n", report.URL)
				}
				return
			}
			fmt.Println("❌ Build did not succeed")
			if report.URL != "" {
				fmt.Printf("   %s\n", report.URL)
			}
			os.Exit(exitBuildFailed)
		}
	},
}

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the run history store",
	Long: `Lists recently recorded runs, newest first.

Run history persists between invocations only when DATABASE_URL is set
(Postgres). Without it, each process uses an in-memory store and history
will be empty.

Example:
  buildwatch history
  buildwatch history --limit 10`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, stop := signalContext()
		defer stop()

		runStore := openStore(ctx)
		defer runStore.Close()

		runs, err := runStore.ListRuns(ctx, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
			os.Exit(exitConfig)
		}

		if len(runs) == 0 {
			fmt.Println("⚠️  No runs recorded.")
			if appConfig.DatabaseURL == "" {
				fmt.Println()
				fmt.Println("💡 Set DATABASE_URL to persist run history between invocations.")
			}
			return
		}

		for _, r := range runs {
			line := fmt.Sprintf("%s  %-9s %-20s %-20s %s",
				r.StartedAt.Local().Format("2006-01-02 15:04"),
				r.Provider, r.Workflow, r.Ref, r.Status)
			if r.Status == provider.StatusFinished && r.Success {
				line += " ✅"
			} else if r.Status.IsTerminal() {
				line += " ❌"
			}
			fmt.Println(line)
			if r.URL != "" {
				fmt.Printf("    %s\n", r.URL)
			}
		}
	},
}

// mustProvider builds the selected provider or exits with a config error.
func mustProvider() provider.Provider {
	token, err := appConfig.TokenFor(providerName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(exitConfig)
	}
	p, err := provider.New(providerName, token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unknown provider %q (available: %v)\n", providerName, provider.Names())
		os.Exit(exitConfig)
	}
	return p
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore returns the Postgres-backed store when DATABASE_URL is set,
// otherwise an in-memory store that lives for this process only.
func openStore(ctx context.Context) store.Store {
	if appConfig.DatabaseURL == "" {
		return store.NewMemoryStore()
	}
	pg, err := store.NewPostgresStore(appConfig.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: falling back to in-memory store: %v\n", err)
		return store.NewMemoryStore()
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: falling back to in-memory store: %v\n", err)
		pg.Close()
		return store.NewMemoryStore()
	}
	return pg
}

// watchOptions assembles watch options from the loaded configuration.
func watchOptions() watch.Options {
	return watch.Options{
		Interval:    appConfig.PollInterval,
		Timeout:     appConfig.WatchTimeout,
		RetryBudget: appConfig.RetryBudget,
	}
}

// watchBuild follows the build to a terminal outcome, with the interactive
// view by default and plain log output under --no-tui.
func watchBuild(ctx context.Context, p provider.Provider, handle *provider.JobHandle, info tui.Info) (*provider.JobResult, error) {
	if noTUI {
		return watchConsole(ctx, p, handle)
	}
	return watchTUI(ctx, p, handle, info)
}

func watchConsole(ctx context.Context, p provider.Provider, handle *provider.JobHandle) (*provider.JobResult, error) {
	log := logger.NewConsoleLogger()
	log.Verbose = verbose

	opts := watchOptions()
	opts.OnPoll = func(pr watch.Progress) {
		if pr.Err != nil {
			log.Error("poll %d failed (%s elapsed): %v", pr.Attempt, pr.Elapsed.Round(time.Second), pr.Err)
			return
		}
		log.Info("poll %d: %s (%s elapsed)", pr.Attempt, pr.Status, pr.Elapsed.Round(time.Second))
	}

	log.Info("watching build %s on %s (interval %s, timeout %s)",
		handle.ID, p.Name(), opts.Interval, opts.Timeout)
	return watch.Watch(ctx, p, handle, opts)
}

func watchTUI(ctx context.Context, p provider.Provider, handle *provider.JobHandle, info tui.Info) (*provider.JobResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan tea.Msg, 16)
	opts := watchOptions()
	opts.OnPoll = func(pr watch.Progress) {
		// Drop updates rather than block the watch loop.
		select {
		case events <- tui.ProgressMsg(pr):
		default:
		}
	}

	go func() {
		result, err := watch.Watch(ctx, p, handle, opts)
		events <- tui.DoneMsg{Result: result, Err: err}
	}()

	return tui.RunWatch(info, events, cancel)
}

// finishRun records the terminal outcome in the store and publishes it to
// the outcomes topic. Watches that end without a result (timeout,
// cancellation) leave the run in its last recorded state.
func finishRun(ctx context.Context, runStore store.Store, run *store.Run, result *provider.JobResult) {
	if result == nil {
		return
	}

	if err := runStore.CompleteRun(ctx, run.ID, result.Status, result.Success, result.URL); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to record outcome: %v\n", err)
	}

	var b broker.Broker
	if len(appConfig.RedpandaBrokers) > 0 {
		rb, err := broker.NewRedpandaBroker(appConfig.RedpandaBrokers)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to connect broker: %v\n", err)
			return
		}
		b = rb
	} else {
		b = broker.NewInMemoryBroker()
	}
	defer b.Close()

	outcome := notify.Outcome{
		RunID:       run.ID,
		Provider:    run.Provider,
		Workflow:    run.Workflow,
		Ref:         run.Ref,
		Environment: run.Environment,
		BuildID:     run.BuildID,
		Status:      result.Status,
		Success:     result.Success,
		URL:         result.URL,
	}
	if err := notify.NewNotifier(b).Publish(ctx, outcome); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to publish outcome: %v\n", err)
	}
}

// reportOutcome prints the final state of the watch and returns the exit code.
func reportOutcome(handle *provider.JobHandle, result *provider.JobResult, err error) int {
	if err != nil {
		switch {
		case errors.Is(err, watch.ErrTimeout):
			fmt.Fprintf(os.Stderr, "⏱️  Watch timed out; build %s may still be running\n", handle.ID)
		case errors.Is(err, watch.ErrCancelled):
			fmt.Fprintf(os.Stderr, "Watch cancelled; build %s may still be running\n", handle.ID)
		case errors.Is(err, watch.ErrRetriesExhausted):
			fmt.Fprintf(os.Stderr, "Too many consecutive poll failures: %v\n", err)
		default:
			fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		}
		return exitWatch
	}

	if result.Status == provider.StatusFinished && result.Success {
		fmt.Printf("✅ Build %s finished successfully\n", handle.ID)
		if result.URL != "" {
			fmt.Printf("   %s\n", result.URL)
		}
		return exitOK
	}

	fmt.Printf("❌ Build %s ended with status %s\n", handle.ID, result.Status)
	if result.URL != "" {
		fmt.Printf("   %s\n", result.URL)
	}
	return exitBuildFailed
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&providerName, "provider", "p", "codemagic", "CI provider: codemagic or github")
	rootCmd.PersistentFlags().BoolVar(&noTUI, "no-tui", false, "Plain log output instead of the interactive view")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output (only with --no-tui)")

	for _, cmd := range []*cobra.Command{runCmd, watchCmd} {
		cmd.Flags().String("interval", "", "Poll interval (e.g. 30s, 2m); overrides POLL_INTERVAL")
		cmd.Flags().String("timeout", "", "Watch deadline (e.g. 90m); overrides WATCH_TIMEOUT")
		cmd.Flags().Int("retry-budget", 0, "Consecutive transient poll failures tolerated; overrides POLL_RETRY_BUDGET")
	}

	runCmd.Flags().StringP("workflow", "w", "", "Workflow to trigger (Codemagic workflow ID or GitHub workflow file)")
	runCmd.Flags().StringP("branch", "b", "", "Branch or git ref to build")
	runCmd.Flags().String("env", "", "Optional target environment label (e.g. staging)")
	runCmd.Flags().BoolP("detach", "d", false, "Trigger the build and exit without watching")

	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfig)
	}
}
