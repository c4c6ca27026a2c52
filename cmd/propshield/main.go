package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/auth"
	"github.com/dharsanguruparan/propshield/internal/backend"
	"github.com/dharsanguruparan/propshield/internal/config"
	"github.com/dharsanguruparan/propshield/internal/intake"
	"github.com/dharsanguruparan/propshield/internal/logger"
	"github.com/dharsanguruparan/propshield/internal/model"
	"github.com/dharsanguruparan/propshield/internal/queue"
	"github.com/dharsanguruparan/propshield/internal/session"
)

var (
	composeFile string
	logLevel    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "propshield: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propshield",
		Short: "Property document verification client",
		Long: `propshield signs you in, uploads property documents for verification and
follows their progress. The dev subcommands drive the local docker-compose stack.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level for diagnostics on stderr (default warn)")
	cmd.AddCommand(
		newSignUpCmd(),
		newLoginCmd(),
		newLoginProviderCmd(),
		newLogoutCmd(),
		newWhoAmICmd(),
		newUploadCmd(),
		newStatusCmd(),
		newFilesCmd(),
		newURLCmd(),
		newDevCmd(),
	)
	return cmd
}

// app is everything a client command needs. It is built per invocation.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	backend *backend.Backend
	auth    *auth.Service
	session *session.Provider
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := logLevel
	if level == "" {
		level = os.Getenv("PROPSHIELD_LOG_LEVEL")
	}
	log, err := logger.NewConsole(level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	b, err := backend.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	authSvc := auth.New(b.Profiles, b.Activity, auth.OptionsFromConfig(cfg), log)
	store := session.NewStore(ctx, cfg.SessionPlatform, session.StoreOptions{
		Dir:           cfg.SessionDir,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		TTL:           cfg.SessionTTL,
	}, log)
	provider := session.NewProvider(authSvc, store, cfg.CallbackURL(), log)
	provider.Restore(ctx)
	return &app{cfg: cfg, log: log, backend: b, auth: authSvc, session: provider}, nil
}

func (a *app) close() {
	a.backend.Close()
	_ = a.log.Sync()
}

// user returns the signed-in profile or explains how to sign in.
func (a *app) user(ctx context.Context) (*model.Profile, error) {
	if to, ok := a.session.Redirect(session.RouteHome); ok && to == session.RouteLogin {
		return nil, errors.New("not signed in, run `propshield login` first")
	}
	user, _, err := a.session.Current(ctx)
	if errors.Is(err, auth.ErrSessionExpired) {
		return nil, errors.New("session expired, run `propshield login` again")
	}
	return user, err
}

// orchestrator builds an intake orchestrator that hands committed
// verifications to the worker queue. The returned func closes the queue
// client.
func (a *app) orchestrator() (*intake.Orchestrator, func()) {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	o := intake.New(a.backend, a.log,
		intake.WithDispatcher(queue.NewDispatcher(client)),
		intake.WithLimits(a.cfg.MaxFiles, a.cfg.MaxFileSize),
	)
	return o, func() { _ = client.Close() }
}

// withApp runs fn with a connected app.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args, a)
	}
}
