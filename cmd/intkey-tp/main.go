package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/txprocessor/internal/admin"
	"github.com/danmuck/txprocessor/internal/auth"
	"github.com/danmuck/txprocessor/internal/config"
	"github.com/danmuck/txprocessor/internal/families/intkey"
	"github.com/danmuck/txprocessor/internal/logging"
	"github.com/danmuck/txprocessor/internal/processor"
)

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "intkey-tp: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	file             config.File
	verifySignatures bool
	help             bool
}

// parseOptions loads --config, then applies any flags that were set.
func parseOptions(args []string, stderr io.Writer) (options, error) {
	var (
		opts       options
		configPath string
		endpoint   string
		workers    int
		queueLimit int
		batch      int
		reconnect  bool
		adminAddr  string
		adminToken string
		logLevel   string
	)
	fs := pflag.NewFlagSet("intkey-tp", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&configPath, "config", "c", "", "path to config.toml")
	fs.StringVarP(&endpoint, "connect", "C", "", "validator endpoint, e.g. tcp://localhost:4004")
	fs.IntVar(&workers, "workers", 0, "concurrent transaction workers")
	fs.IntVar(&queueLimit, "queue-limit", 0, "max queued process requests (0 = unbounded)")
	fs.IntVar(&batch, "max-state-batch", 0, "max addresses per state request (0 = unlimited)")
	fs.BoolVar(&reconnect, "reconnect", false, "reconnect after connection loss")
	fs.StringVar(&adminAddr, "admin-addr", "", "admin HTTP listen address")
	fs.StringVar(&adminToken, "admin-token", "", "bearer token required by admin introspection routes")
	fs.StringVar(&logLevel, "log-level", "", "log level: trace|debug|info|warn|error")
	fs.BoolVar(&opts.verifySignatures, "verify-signatures", false, "check transaction signatures before applying")
	fs.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.help {
		fmt.Fprintf(stderr, "Usage: intkey-tp [flags]\n\n%s", fs.FlagUsages())
		return opts, nil
	}
	if rest := fs.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	file, err := config.Load(configPath)
	if err != nil {
		return options{}, err
	}
	if fs.Changed("connect") {
		file.Processor.Endpoint = endpoint
	}
	if fs.Changed("workers") {
		file.Processor.Workers = workers
	}
	if fs.Changed("queue-limit") {
		file.Processor.QueueLimit = queueLimit
	}
	if fs.Changed("max-state-batch") {
		file.Processor.MaxStateBatch = batch
	}
	if fs.Changed("reconnect") {
		file.Processor.Reconnect = reconnect
	}
	if fs.Changed("admin-addr") {
		file.AdminAddr = adminAddr
	}
	if fs.Changed("admin-token") {
		file.AdminToken = adminToken
	}
	if fs.Changed("log-level") {
		file.LogLevel = logLevel
	}
	if err := config.Validate(file); err != nil {
		return options{}, err
	}
	opts.file = file
	return opts, nil
}

func run(args []string, stderr io.Writer) error {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.help {
		return nil
	}

	logging.ConfigureRuntime()
	if opts.file.LogLevel != "" && os.Getenv(logging.EnvLogLevel) == "" {
		logging.SetLevel(opts.file.LogLevel)
	}

	proc, err := processor.New(opts.file.Processor)
	if err != nil {
		return err
	}
	if err := proc.AddHandler(intkey.New(intkey.Options{VerifySignatures: opts.verifySignatures})); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return proc.Start(gctx)
	})
	if addr := opts.file.AdminAddr; addr != "" {
		g.Go(func() error {
			var adminOpts []admin.Option
			if token := opts.file.AdminToken; token != "" {
				adminOpts = append(adminOpts, admin.WithAuth(auth.StaticToken{Token: token}))
			}
			return admin.New(addr, proc, adminOpts...).Run(gctx)
		})
	}

	log.Info().
		Str("endpoint", opts.file.Processor.Endpoint).
		Str("family", intkey.FamilyName).
		Str("admin_addr", opts.file.AdminAddr).
		Msg("intkey-tp starting")
	return g.Wait()
}
