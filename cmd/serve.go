package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/api"
	"github.com/sells-group/analytics-studio/internal/scheduler"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the studio HTTP API and scheduled plays",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initStudio(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		reg := env.Service.Registry()
		sched := scheduler.New(ctx, env.Service)
		if err := sched.Register(cfg.Schedule, func(id string) bool {
			_, err := reg.Get(id)
			return err == nil
		}); err != nil {
			return eris.Wrap(err, "register schedule")
		}
		if sched.Len() > 0 {
			sched.Start()
			defer sched.Stop()
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewRouter(env.Service, api.Options{
				CORSOrigins: cfg.Server.CORSOrigins,
				JWTSecret:   cfg.Server.JWTSecret,
				Views:       initTableau(),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Int("scheduled_plays", sched.Len()),
			zap.Bool("auth", cfg.Server.JWTSecret != ""),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
