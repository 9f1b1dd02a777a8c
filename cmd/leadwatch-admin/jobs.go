package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/leadwatch/leadwatch/internal/bootstrap"
	"github.com/leadwatch/leadwatch/internal/domain/model"
)

type pairOptions struct {
	UserID    string
	ProductID string
	Timeout   time.Duration
}

type createJobOptions struct {
	pairOptions
	IntervalMinutes int
}

type jobIDOptions struct {
	JobID   string
	Timeout time.Duration
}

type listJobsOptions struct {
	UserID  string
	Timeout time.Duration
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func bindPair(fs *flag.FlagSet, opts *pairOptions) {
	fs.StringVar(&opts.UserID, "user", "", "User ID owning the product")
	fs.StringVar(&opts.ProductID, "product", "", "Product ID")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
}

func (o pairOptions) validate() error {
	if strings.TrimSpace(o.UserID) == "" {
		return errors.New("--user is required")
	}
	if strings.TrimSpace(o.ProductID) == "" {
		return errors.New("--product is required")
	}
	if o.Timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}
	return nil
}

func parsePairFlags(name string, args []string) (pairOptions, error) {
	fs := newFlagSet(name)
	opts := pairOptions{}
	bindPair(fs, &opts)
	if err := fs.Parse(args); err != nil {
		return pairOptions{}, err
	}
	if err := opts.validate(); err != nil {
		return pairOptions{}, err
	}
	return opts, nil
}

func parseCreateJobFlags(args []string) (createJobOptions, error) {
	fs := newFlagSet("create-job")
	opts := createJobOptions{}
	bindPair(fs, &opts.pairOptions)
	fs.IntVar(&opts.IntervalMinutes, "interval", 0, "Recurrence interval in minutes (0 uses the configured default)")
	if err := fs.Parse(args); err != nil {
		return createJobOptions{}, err
	}
	if err := opts.validate(); err != nil {
		return createJobOptions{}, err
	}
	if opts.IntervalMinutes < 0 || opts.IntervalMinutes > model.MaxIntervalMinutes {
		return createJobOptions{}, fmt.Errorf("--interval must be between 1 and %d minutes", model.MaxIntervalMinutes)
	}
	return opts, nil
}

func parseJobIDFlags(name string, args []string) (jobIDOptions, error) {
	fs := newFlagSet(name)
	opts := jobIDOptions{}
	fs.StringVar(&opts.JobID, "job", "", "Job ID")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return jobIDOptions{}, err
	}
	if strings.TrimSpace(opts.JobID) == "" {
		return jobIDOptions{}, errors.New("--job is required")
	}
	if opts.Timeout <= 0 {
		return jobIDOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func parseListJobsFlags(args []string) (listJobsOptions, error) {
	fs := newFlagSet("list-jobs")
	opts := listJobsOptions{}
	fs.StringVar(&opts.UserID, "user", "", "User ID")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return listJobsOptions{}, err
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return listJobsOptions{}, errors.New("--user is required")
	}
	if opts.Timeout <= 0 {
		return listJobsOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runCreateJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateJobFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		job, createErr := svc.Lifecycle.CreateJob(ctx, opts.UserID, opts.ProductID, model.JobTypeLeadDiscovery, opts.IntervalMinutes)
		if createErr != nil {
			return createErr
		}
		return printJobs(cmdCtx.Out, []*model.Job{job})
	})
}

func runStopJob(cmdCtx *commandContext, args []string) error {
	opts, err := parsePairFlags("stop-job", args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		stopped, stopErr := svc.Lifecycle.StopJob(ctx, opts.UserID, opts.ProductID)
		if stopErr != nil {
			return stopErr
		}
		if !stopped {
			return writeln(cmdCtx.Out, "no job to stop")
		}
		return writeln(cmdCtx.Out, "job stopped")
	})
}

func runJobStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parsePairFlags("job-status", args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		job, statusErr := svc.Lifecycle.GetJobStatus(ctx, opts.UserID, opts.ProductID)
		if statusErr != nil {
			return statusErr
		}
		if job == nil {
			return writeln(cmdCtx.Out, "no job")
		}
		return printJobs(cmdCtx.Out, []*model.Job{job})
	})
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseListJobsFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		jobs, listErr := svc.Jobs.ListByUser(ctx, opts.UserID)
		if listErr != nil {
			return fmt.Errorf("list jobs: %w", listErr)
		}
		return printJobs(cmdCtx.Out, jobs)
	})
}

func runReactivateJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobIDFlags("reactivate-job", args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		job, reErr := svc.Lifecycle.Reactivate(ctx, opts.JobID)
		if reErr != nil {
			return reErr
		}
		return printJobs(cmdCtx.Out, []*model.Job{job})
	})
}

func runRunNow(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobIDFlags("run-now", args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		res, runErr := svc.Scheduler.RunJobNow(ctx, opts.JobID)
		if runErr != nil {
			return runErr
		}
		if !res.Claimed {
			return writeln(cmdCtx.Out, "job is already being executed; nothing to do")
		}
		return writef(cmdCtx.Out, "job %s finished: %s\n", opts.JobID, res.Outcome)
	})
}

func runProcessJobs(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet("process-jobs")
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Maximum duration for the pass")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *timeout <= 0 {
		return errors.New("--timeout must be greater than zero")
	}
	return withServices(cmdCtx, *timeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		res, tickErr := svc.Scheduler.ProcessJobs(ctx)
		if tickErr != nil {
			return tickErr
		}
		return writef(cmdCtx.Out, "due=%d claimed=%d succeeded=%d transient=%d fatal=%d\n",
			res.Due, res.Claimed, res.Succeeded, res.Transient, res.Fatal)
	})
}

func printJobs(w io.Writer, jobs []*model.Job) error {
	if len(jobs) == 0 {
		return writeln(w, "no jobs")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "ID\tPRODUCT\tSTATUS\tINTERVAL\tNEXT RUN\tLAST RUN\tRUNS\tFAILURES\tERROR"); err != nil {
		return err
	}
	for _, j := range jobs {
		if j == nil {
			continue
		}
		if err := writef(tw, "%s\t%s\t%s\t%dm\t%s\t%s\t%d\t%d\t%s\n",
			j.ID,
			j.ProductID,
			j.Status,
			j.IntervalMinutes,
			j.NextRun.UTC().Format(time.RFC3339),
			formatOptionalTime(j.LastRun),
			j.RunCount,
			j.ConsecutiveFailures,
			formatOptionalString(j.ErrorMessage),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalString(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
