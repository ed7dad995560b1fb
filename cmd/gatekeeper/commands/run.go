package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/audit"
	"github.com/MEKXH/gatekeeper/internal/channel"
	"github.com/MEKXH/gatekeeper/internal/channel/discord"
	"github.com/MEKXH/gatekeeper/internal/command"
	"github.com/MEKXH/gatekeeper/internal/config"
	"github.com/MEKXH/gatekeeper/internal/gateway"
	"github.com/MEKXH/gatekeeper/internal/metrics"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the Gatekeeper bot",
		RunE:  runServer,
	}

	return cmd
}

// server holds the wired components of a running bot.
type server struct {
	journal  *approval.Journal
	metrics  *metrics.RuntimeMetrics
	workflow *approval.Workflow
	discord  *discord.Channel
	channels *channel.Manager
	gateway  *gateway.Server
}

func buildServer(cfg *config.Config, workspacePath string) *server {
	recorder := metrics.NewRuntimeMetrics(workspacePath)
	journal := approval.NewJournal(workspacePath)

	registry := command.NewDefaultRegistry()
	dc := discord.New(cfg.Discord, registry, command.Env{
		Config:        cfg.Guild,
		Metrics:       recorder,
		WorkspacePath: workspacePath,
	})

	wf := approval.NewWorkflow(cfg.ApprovalSettings(), dc, dc)
	wf.SetJournal(journal)
	wf.SetAuditWriter(audit.NewWriter(workspacePath))
	wf.SetRuntimeMetrics(recorder)
	dc.SetWorkflow(wf)

	mgr := channel.NewManager()
	mgr.Register(dc)

	s := &server{
		journal:  journal,
		metrics:  recorder,
		workflow: wf,
		discord:  dc,
		channels: mgr,
	}
	if cfg.Gateway.Enabled {
		s.gateway = gateway.New(cfg.Gateway, gateway.Deps{Approvals: journal, Metrics: recorder})
	}
	return s
}

func warnMissingGuildSettings(g config.GuildConfig) {
	for _, slot := range g.Missing() {
		slog.Warn("guild setting missing, commands using it will refuse to run",
			"setting", slot.String(),
			"env", slot.EnvName(),
		)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspacePath, err := cfg.WorkspacePathChecked()
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}
	warnMissingGuildSettings(cfg.Guild)

	srv := buildServer(cfg, workspacePath)
	defer srv.workflow.Close()

	if err := srv.channels.StartAll(ctx); err != nil {
		return err
	}
	if n, err := srv.workflow.RecoverInterrupted(ctx); err != nil {
		slog.Warn("approval recovery failed", "error", err)
	} else if n > 0 {
		fmt.Printf("Marked %d approval request(s) from the previous run as interrupted.\n", n)
	}

	errCh := make(chan error, 1)
	if srv.gateway != nil {
		go func() {
			if err := srv.gateway.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("gateway server failed: %w", err)
			}
		}()
		fmt.Printf("Gatekeeper running. Gateway: http://%s\nPress Ctrl+C to stop.\n", srv.gateway.Addr())
	} else {
		fmt.Println("Gatekeeper running. Press Ctrl+C to stop.")
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("server component failed", "error", runErr)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	slog.Info("shutting down", "pending_approvals", len(srv.workflow.Pending()))
	srv.channels.StopAll(shutdownCtx)
	if srv.gateway != nil {
		if err := srv.gateway.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("gateway shutdown failed", "error", err)
		}
	}

	return runErr
}
