package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	app "github.com/richvergo/subtract-sub005"
	"github.com/richvergo/subtract-sub005/internal/artifact"
	"github.com/richvergo/subtract-sub005/internal/client"
	"github.com/richvergo/subtract-sub005/internal/config"
	"github.com/richvergo/subtract-sub005/internal/engine"
	"github.com/richvergo/subtract-sub005/internal/events"
	"github.com/richvergo/subtract-sub005/internal/store"
	"github.com/richvergo/subtract-sub005/internal/target"
	"github.com/richvergo/subtract-sub005/pkg/api"
	"github.com/richvergo/subtract-sub005/pkg/log"
)

type (
	deps struct {
		out      io.Writer
		errOut   io.Writer
		provider func(remoteURL string) target.Provider
	}

	runOptions struct {
		vars        []string
		creds       []string
		headless    bool
		screenshots bool
		bucket      string
		remote      string
		runTimeout  int64
		logLevel    string
	}

	remoteOptions struct {
		server   string
		vars     []string
		workflow string
		timeout  time.Duration
	}
)

var (
	ErrBadVariable    = errors.New("variable must be name=value")
	ErrBadCredentials = errors.New("credentials must be ref=username:password")
	ErrRunFailed      = errors.New("run did not succeed")
	ErrNoServer       = errors.New("--server is required")
)

func defaultDeps() *deps {
	return &deps{
		out:    os.Stdout,
		errOut: os.Stderr,
		provider: func(remoteURL string) target.Provider {
			return target.NewChromeProvider(remoteURL)
		},
	}
}

func newRootCommand(d *deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "runctl",
		Short:         "Run and validate browser automation workflows",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(d.out)
	root.SetErr(d.errOut)
	root.AddCommand(
		newRunCommand(d), newValidateCommand(d),
		newTriggerCommand(d), newRunsCommand(d),
	)
	return root
}

func newRunCommand(d *deps) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow file and print its run result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runWorkflow(ctx, d, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.vars, "var", nil,
		"run variable as name=value; JSON values are decoded")
	f.StringArrayVar(&opts.creds, "cred", nil,
		"login credentials as ref=username:password")
	f.BoolVar(&opts.headless, "headless", true, "run the browser headless")
	f.BoolVar(&opts.screenshots, "screenshots", false,
		"capture a screenshot when a step fails")
	f.StringVar(&opts.bucket, "artifacts", config.DefaultArtifactBucketURL,
		"blob bucket URL for screenshots, e.g. file:///tmp/shots")
	f.StringVar(&opts.remote, "remote", "",
		"DevTools URL of a running browser")
	f.Int64Var(&opts.runTimeout, "timeout", 0,
		"run timeout in milliseconds")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	return cmd
}

func newValidateCommand(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Check a workflow file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := store.LoadWorkflowFile(args[0])
			if err != nil {
				return err
			}
			eng := engine.New(config.NewDefaultConfig(), engine.Dependencies{})
			if err := eng.ValidateRules(def); err != nil {
				return err
			}
			_, err = fmt.Fprintf(d.out, "workflow %s is valid (%d steps)\n",
				def.ID, def.StepCount())
			return err
		},
	}
}

func newTriggerCommand(d *deps) *cobra.Command {
	opts := &remoteOptions{}
	cmd := &cobra.Command{
		Use:   "trigger <workflow-id>",
		Short: "Run a stored workflow on a workflow-runner server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := opts.client()
			if err != nil {
				return err
			}
			vars, err := parseVariables(opts.vars)
			if err != nil {
				return err
			}
			res, err := cl.StartRun(cmd.Context(), api.WorkflowID(args[0]),
				api.RunConfig{Variables: vars},
			)
			if err != nil {
				return err
			}
			if err := printJSON(d.out, res); err != nil {
				return err
			}
			if !res.Succeeded() {
				return fmt.Errorf("%w: %s", ErrRunFailed, res.Status)
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil,
		"run variable as name=value; JSON values are decoded")
	return cmd
}

func newRunsCommand(d *deps) *cobra.Command {
	opts := &remoteOptions{}
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List runs on a workflow-runner server, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := opts.client()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				rec, err := cl.GetRun(cmd.Context(), api.RunID(args[0]))
				if err != nil {
					return err
				}
				return printJSON(d.out, rec)
			}
			recs, err := cl.ListRuns(cmd.Context(),
				api.WorkflowID(opts.workflow),
			)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				_, err := fmt.Fprintf(d.out, "%s\t%s\t%s\t%s\n",
					rec.RunID, rec.WorkflowID, rec.Status,
					rec.StartedAt.Format(time.RFC3339),
				)
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.workflow, "workflow", "",
		"only list runs of this workflow")
	return cmd
}

func (o *remoteOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.server, "server", os.Getenv("RUNNER_URL"),
		"base URL of the workflow-runner server")
	f.DurationVar(&o.timeout, "request-timeout", 5*time.Minute,
		"HTTP request timeout")
}

func (o *remoteOptions) client() (client.Client, error) {
	if o.server == "" {
		return nil, ErrNoServer
	}
	return client.NewHTTPClient(o.server, o.timeout)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func runWorkflow(
	ctx context.Context, d *deps, path string, opts *runOptions,
) error {
	slog.SetDefault(log.NewWithWriter(d.errOut, app.Name, "cli",
		app.Version, log.ParseLevel(opts.logLevel),
	))

	def, err := store.LoadWorkflowFile(path)
	if err != nil {
		return err
	}
	vars, err := parseVariables(opts.vars)
	if err != nil {
		return err
	}
	creds, err := parseCredentials(opts.creds)
	if err != nil {
		return err
	}

	runs, err := store.NewBadgerRunStore("")
	if err != nil {
		return err
	}
	defer func() { _ = runs.Close() }()

	artifacts, err := artifact.NewBlobStore(ctx, opts.bucket, "")
	if err != nil {
		return err
	}
	defer func() { _ = artifacts.Close() }()

	cfg := config.NewDefaultConfig()
	cfg.Headless = opts.headless

	eng := engine.New(cfg, engine.Dependencies{
		Workflows:   store.NewMemoryStore(def),
		Runs:        runs,
		Credentials: creds,
		Artifacts:   artifacts,
		Targets:     d.provider(opts.remote),
		Events:      progress(d.errOut),
	})

	run := api.RunConfig{Variables: vars}
	run.Settings.Headless = &opts.headless
	if opts.screenshots {
		run.Settings.ScreenshotOnError = &opts.screenshots
	}
	if opts.runTimeout > 0 {
		run.Settings.RunTimeout = &opts.runTimeout
	}

	res, err := eng.RunDefinition(ctx, def, run)
	if err != nil {
		return err
	}

	if err := printJSON(d.out, res); err != nil {
		return err
	}
	if !res.Succeeded() {
		return fmt.Errorf("%w: %s", ErrRunFailed, res.Status)
	}
	return nil
}

// progress reports each completed step on w as the run advances
func progress(w io.Writer) events.Publisher {
	return events.PublisherFunc(func(ev *api.RunEvent) {
		if ev.Type != api.EventTypeStepCompleted || ev.Step == nil {
			return
		}
		s := ev.Step
		line := fmt.Sprintf("%-12s %-8s %-8s %s",
			s.Kind, s.Status, s.Duration().Round(time.Millisecond), s.StepID,
		)
		if s.Error != "" {
			line += ": " + s.Error
		}
		_, _ = fmt.Fprintln(w, line)
	})
}

func parseVariables(pairs []string) (api.Args, error) {
	res := api.Args{}
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadVariable, p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		res[api.Name(name)] = v
	}
	return res, nil
}

func parseCredentials(pairs []string) (store.StaticCredentials, error) {
	res := store.StaticCredentials{}
	for _, p := range pairs {
		ref, secret, ok := strings.Cut(p, "=")
		user, pass, ok2 := strings.Cut(secret, ":")
		if !ok || !ok2 || ref == "" {
			return nil, fmt.Errorf("%w: %q", ErrBadCredentials, ref)
		}
		res[ref] = store.Credentials{Username: user, Password: pass}
	}
	return res, nil
}
