package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"jobrelay-engine/internal/config"
	"jobrelay-engine/internal/dedup"
	"jobrelay-engine/internal/domain"
	"jobrelay-engine/internal/httpapi"
	"jobrelay-engine/internal/pipeline"
	"jobrelay-engine/internal/scheduler"
	"jobrelay-engine/internal/secrets"
	"jobrelay-engine/internal/store"
)

// ── Pipeline ──

func RunAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer ac.Close()

	runner, err := ac.NewRunner(cmd.Bool("dry-run"))
	if err != nil {
		return err
	}
	run, err := runner.Run(ctx, domain.TriggerManual)
	if err != nil {
		return err
	}
	fmt.Printf("run %s %s: fetched=%d posted=%d skipped=%d failed=%d\n",
		run.ID, run.Status, run.Totals.Fetched, run.Totals.Posted, run.Totals.Skipped, run.Totals.Failed)
	if run.Status == domain.RunFailed {
		return fmt.Errorf("run failed: %s", run.Error)
	}
	return nil
}

func ServeAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer ac.Close()
	log := ac.Log

	runner, err := ac.NewRunner(false)
	if err != nil {
		return err
	}

	sched := scheduler.New(ac.Config.Pipeline.Schedule, ac.Config.Pipeline.RunOnStartup,
		func(ctx context.Context, trigger domain.RunTrigger) error {
			_, err := runner.Run(ctx, trigger)
			if errors.Is(err, pipeline.ErrRunLocked) {
				return fmt.Errorf("%w: %v", scheduler.ErrSkip, err)
			}
			return err
		}, log)

	// apiRuns must drain before the deferred Close releases the stores.
	var apiRuns sync.WaitGroup
	addr := fmt.Sprintf("127.0.0.1:%d", ac.Config.App.Port)
	srv := httpapi.NewServer(addr, httpapi.NewHandler(httpapi.Deps{
		Runner:     runner,
		Runs:       ac.Records,
		Hub:        ac.Hub,
		Log:        log,
		BaseCtx:    ctx,
		Background: &apiRuns,
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "err", err)
		}
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			log.Warn("scheduler did not drain before shutdown timeout")
		}
		select {
		case <-waitDone(&apiRuns):
		case <-shutdownCtx.Done():
			log.Warn("api runs did not drain before shutdown timeout")
		}
		return nil
	})
	return g.Wait()
}

// waitDone turns wg.Wait into a channel so it can race a deadline.
func waitDone(wg *sync.WaitGroup) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// ── Dedup ──

func DedupListAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer ac.Close()

	keys, err := ac.Dedup.List(ctx, cmd.String("prefix"))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPUBLISHED AT\tIDENTITY")
	for _, k := range keys {
		rec, err := ac.Dedup.Lookup(ctx, k)
		if err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\n", k)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", k, rec.PublishedAt.Format(time.RFC3339), rec.Identity)
	}
	return tw.Flush()
}

func DedupForgetAction(ctx context.Context, cmd *cli.Command) error {
	identity := cmd.String("identity")
	title, company := cmd.String("title"), cmd.String("company")
	if identity == "" && (title == "" || company == "") {
		return errors.New("pass --identity or both --title and --company")
	}

	ac, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer ac.Close()

	if identity != "" {
		ok, err := ac.Dedup.ForgetIdentity(ctx, identity)
		if err != nil {
			return err
		}
		fmt.Printf("%s removed=%t\n", dedup.IdentityKey(identity), ok)
	}
	if title != "" && company != "" {
		ok, err := ac.Dedup.ForgetFingerprint(ctx, title, company)
		if err != nil {
			return err
		}
		fmt.Printf("%s removed=%t\n", dedup.FingerprintKey(title, company), ok)
	}
	return nil
}

func DedupPurgeAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer ac.Close()

	kv, ok := ac.KV.(*dedup.SQLiteKV)
	if !ok {
		fmt.Println("redis expires keys itself; nothing to purge")
		return nil
	}
	n, err := kv.Purge(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("purged %d expired entries\n", n)
	return nil
}

// ── Jobs ──

func JobsListAction(ctx context.Context, cmd *cli.Command) error {
	opts := store.ListJobsOpts{Source: cmd.String("source"), Limit: int(cmd.Int("limit"))}
	if s := cmd.String("status"); s != "" {
		st, err := domain.ParseStatus(s)
		if err != nil {
			return err
		}
		opts.Status = st
	}

	ac, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer ac.Close()

	jobs, err := ac.Records.ListJobs(ctx, opts)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tSTATUS\tSOURCE\tTITLE\tUPDATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.Identity, j.Status, j.Source, j.Title, j.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func JobsShowAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer ac.Close()

	job, err := ac.Records.GetJob(ctx, cmd.String("identity"))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}

// ── Operator switches ──

func SourcesListAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := NewAppContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer ac.Close()

	switches, err := ac.Records.SourceSettings(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tCONFIG\tOPERATOR")
	for _, s := range ac.Config.Sites {
		op := "enabled"
		if on, ok := switches[s.Name]; ok && !on {
			op = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Kind, strconv.FormatBool(s.IsEnabled()), op)
	}
	return tw.Flush()
}

func SourcesToggleAction(enabled bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		name := strings.TrimSpace(cmd.Args().First())
		if name == "" {
			return errors.New("source name required")
		}
		ac, err := NewAppContext(ctx, cmd)
		if err != nil {
			return err
		}
		defer ac.Close()

		known := false
		for _, s := range ac.Config.Sites {
			known = known || s.Name == name
		}
		if !known {
			return fmt.Errorf("unknown source %q", name)
		}
		return ac.Records.SetSourceEnabled(ctx, name, enabled)
	}
}

func PauseAction(paused bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		ac, err := NewAppContext(ctx, cmd)
		if err != nil {
			return err
		}
		defer ac.Close()
		return ac.Records.SetSetting(ctx, store.SettingPaused, strconv.FormatBool(paused))
	}
}

// ── Config & secrets ──

func ConfigValidateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	_, v := config.NormalizeAndValidate(cfg)
	for _, w := range v.Warnings {
		fmt.Println("warning:", w)
	}
	for _, e := range v.Errors {
		fmt.Println("error:", e)
	}
	if !v.OK() {
		return fmt.Errorf("%s: %d error(s)", path, len(v.Errors))
	}
	fmt.Printf("%s: ok (%d sites)\n", path, len(cfg.Sites))
	return nil
}

// ConfigFmtAction rewrites the config file with defaults filled in and
// values normalized. Only the file itself is read: the sites overlay, env
// and keychain are left out so they are not baked into it. The previous
// file is kept as <path>.bak.
func ConfigFmtAction(ctx context.Context, cmd *cli.Command) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, _ = config.NormalizeAndValidate(cfg)
	if err := config.SaveAtomic(path, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Printf("%s: rewritten (previous copy at %s.bak)\n", path, path)
	return nil
}

func accountFor(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "telegram":
		return secrets.AccountTelegram, nil
	case "openai":
		return secrets.AccountOpenAI, nil
	default:
		return "", fmt.Errorf("unknown secret %q (want telegram or openai)", name)
	}
}

func SecretsSetAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return errors.New("usage: secrets set <telegram|openai> <value>")
	}
	account, err := accountFor(cmd.Args().Get(0))
	if err != nil {
		return err
	}
	return secrets.Set(account, cmd.Args().Get(1))
}

func SecretsDeleteAction(ctx context.Context, cmd *cli.Command) error {
	account, err := accountFor(cmd.Args().First())
	if err != nil {
		return err
	}
	return secrets.Delete(account)
}
