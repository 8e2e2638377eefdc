// Command doyaken provides the CLI entrypoint for the doyaken orchestrator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mitchellfyi/doyaken-cli-sub002/internal/audit"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/buildinfo"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/checkpoint"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/config"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/lock"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/repo"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/slug"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/status"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/task"
	"github.com/mitchellfyi/doyaken-cli-sub002/internal/tui"
)

const usageLine = "usage: doyaken <init|add|run|status|version>"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		emitUsage()
		return 2
	}

	switch args[0] {
	case "init":
		return runInit()
	case "add":
		return runAdd(args[1:])
	case "run":
		return runRun(args[1:])
	case "status":
		return runStatus(args[1:])
	case "version":
		fmt.Println(buildinfo.String())
		return 0
	default:
		emitUsage()
		return 2
	}
}

func runInit() int {
	cwd, err := os.Getwd()
	if err != nil {
		return fail(err)
	}
	if err := config.InitLayout(cwd); err != nil {
		return fail(err)
	}
	fmt.Println("init ok")
	return 0
}

func runAdd(args []string) int {
	flags := flag.NewFlagSet("add", flag.ContinueOnError)
	priority := flags.Int("p", 2, "priority class (1 highest, 4 lowest)")
	blockedBy := flags.String("blocked-by", "", "comma-separated blocking task ids")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: doyaken add [-p N] [-blocked-by ids] <title>")
		return 2
	}
	title := flags.Arg(0)

	env, err := newEnvironment()
	if err != nil {
		return fail(err)
	}

	slugText, err := slug.ForTaskID(title)
	if err != nil {
		return fail(err)
	}
	id, err := env.store.NextID(*priority, slugText)
	if err != nil {
		return fail(err)
	}

	record := task.Record{
		ID:   id,
		Meta: task.Meta{State: task.StateTodo, Priority: id.Priority},
		Body: "# " + title + "\n",
	}
	if blockers := splitList(*blockedBy); len(blockers) > 0 {
		for _, blocker := range blockers {
			if _, err := task.ParseID(blocker); err != nil {
				return fail(err)
			}
		}
		record.Meta.BlockedBy = blockers
		record.Meta.State = task.StateBlocked
	}

	if err := env.store.Create(record); err != nil {
		return fail(err)
	}
	if env.logger != nil {
		_ = env.logger.Log(audit.Entry{TaskID: id.String(), Event: audit.EventTaskCreate})
	}
	fmt.Println(id.String())
	return 0
}

func runRun(args []string) int {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	count := flags.Int("n", 1, "number of tasks to run")
	taskID := flags.String("task", "", "run a single named task")
	auto := flags.Bool("auto", false, "resume orphaned tasks without prompting")
	workerID := flags.String("worker", "", "override the worker identity")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	env, err := newEnvironment()
	if err != nil {
		return fail(err)
	}

	overrides := config.Overrides{WorkerID: *workerID}
	if *auto {
		autoResume := true
		overrides.AutoResume = &autoResume
	}
	cfg, err := config.Load(env.root, overrides, warnStderr)
	if err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := newSession(env, cfg)
	if err != nil {
		return fail(err)
	}

	if *taskID != "" {
		return session.runNamed(ctx, *taskID)
	}
	return session.runLoop(ctx, *count)
}

func runStatus(args []string) int {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	watch := flags.Bool("watch", false, "refresh interactively")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	env, err := newEnvironment()
	if err != nil {
		return fail(err)
	}
	if err := env.store.Sanity(); err != nil {
		return fail(err)
	}

	if *watch {
		if err := tui.Run(env.store, env.locks, env.checkpoints); err != nil {
			return fail(err)
		}
		return 0
	}

	summary, err := status.GetSummary(env.store, env.locks, env.checkpoints)
	if err != nil {
		return fail(err)
	}
	fmt.Println(summary.String())
	return 0
}

// environment bundles the stores rooted at the discovered project.
type environment struct {
	root        string
	store       task.Store
	locks       lock.Manager
	checkpoints checkpoint.Store
	logger      *audit.Logger
}

func newEnvironment() (environment, error) {
	root, err := repo.DiscoverRootFromCWD()
	if err != nil {
		return environment{}, err
	}
	// Stale threshold is refined per run once the manifest is loaded;
	// the default serves read-only commands.
	cfg := config.Defaults()

	store, err := task.NewStore(root)
	if err != nil {
		return environment{}, err
	}
	locks, err := lock.NewManager(root, cfg.Locks.StaleAfter())
	if err != nil {
		return environment{}, err
	}
	checkpoints, err := checkpoint.NewStore(root)
	if err != nil {
		return environment{}, err
	}
	logger, err := audit.NewLogger(root, os.Stderr)
	if err != nil {
		return environment{}, err
	}
	return environment{
		root:        root,
		store:       store,
		locks:       locks,
		checkpoints: checkpoints,
		logger:      logger,
	}, nil
}

func warnStderr(message string) {
	fmt.Fprintln(os.Stderr, "warning: "+message)
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, err.Error())
	if errors.Is(err, repo.ErrProjectNotFound) {
		return 2
	}
	return 1
}

func splitList(raw string) []string {
	var values []string
	for _, value := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func emitUsage() {
	fmt.Fprintln(os.Stderr, usageLine)
}
