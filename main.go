package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/client"
	"github.com/smartsearch/corporate-agent/internal/config"
	"github.com/smartsearch/corporate-agent/internal/render"
	"github.com/smartsearch/corporate-agent/internal/server"
	"github.com/smartsearch/corporate-agent/internal/tracing"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

var (
	envFile string

	askServer  string
	askUser    string
	askSession string
	askTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "corporate-agent",
	Short:         "Answer questions about company data with text or charts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and print the rendered answer",
	Long: `Ask one question and print the rendered answer.

Without --server the pipeline runs in process using the environment
configuration; with --server the question is sent to a running server.

Examples:
  corporate-agent ask "Who is our biggest customer by total revenue?"
  corporate-agent ask --server http://localhost:8080 --session s-1 "Show monthly revenue for Q1 2024"
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load when present")

	askCmd.Flags().StringVar(&askServer, "server", "", "Base URL of a running server (in-process when empty)")
	askCmd.Flags().StringVar(&askUser, "user", "cli", "User id of the session")
	askCmd.Flags().StringVar(&askSession, "session", "", "Session id (a new one when empty)")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 0, "Timeout for the answer (derived from the stage timeouts when zero)")

	rootCmd.AddCommand(serveCmd, askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		logx.Init()
		return nil, err
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Env(), FilePath: cfg.LogFile})
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdownTracing := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.EnableCloudTrace,
		Endpoint:    cfg.OTLPEndpoint,
		Environment: cfg.Env().String(),
	})

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.service, cfg.Port, server.WithRequestTimeout(cfg.AnswerBudget()))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logx.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Warn().Err(err).Msg("HTTP server shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logx.Warn().Err(err).Msg("Tracer shutdown")
	}
	return nil
}

// withAskTimeout applies --timeout, or fallback when the flag is zero.
func withAskTimeout(ctx context.Context, fallback time.Duration) (context.Context, context.CancelFunc) {
	d := askTimeout
	if d <= 0 {
		d = fallback
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	sessionID := askSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var view render.View
	if askServer != "" {
		logx.Init()
		// the server bounds the run itself
		ctx, cancel := withAskTimeout(cmd.Context(), 0)
		defer cancel()

		key := model.SessionKey{AppName: "corporate_agent", UserID: askUser, SessionID: sessionID}
		c := client.New(askServer)
		if err := c.EnsureSession(ctx, key); err != nil {
			return err
		}
		answer, err := c.Ask(ctx, key, question)
		if err != nil {
			return err
		}
		view = answer.View()
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := withAskTimeout(cmd.Context(), cfg.AnswerBudget())
		defer cancel()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		key := a.service.Sessions().Key("", askUser, sessionID)
		out, err := a.service.Ask(ctx, key, question)
		if err != nil {
			return err
		}
		wire, err := out.Presentation.Wire()
		if err != nil {
			return err
		}
		view = render.Render(wire)
	}

	fmt.Fprint(cmd.OutOrStdout(), view.Text())
	fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", sessionID)
	return nil
}
