package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sessamekesh/snowplowderby-client/internal/config"
	"github.com/sessamekesh/snowplowderby-client/internal/logging"
	"github.com/sessamekesh/snowplowderby-client/pkg/message/command"
	"github.com/sessamekesh/snowplowderby-client/pkg/metrics"
	"github.com/sessamekesh/snowplowderby-client/pkg/session"
	"github.com/sessamekesh/snowplowderby-client/pkg/transport"
	"github.com/sessamekesh/snowplowderby-client/pkg/world"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type playFlags struct {
	username string
	class    int
	dx, dy   float32
}

func spectateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "spectate",
		Short: "Connect and mirror the arena without joining",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(flags, nil)
		},
	}
}

func playCmd(flags *rootFlags) *cobra.Command {
	pf := &playFlags{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Connect, join as a player and steer with a fixed input vector",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(flags, pf)
		},
	}
	cmd.Flags().StringVar(&pf.username, "username", "", "Player name (default SNOWPLOW_USERNAME)")
	cmd.Flags().IntVar(&pf.class, "class", -1, "Player class selector (default SNOWPLOW_PLAYER_CLASS)")
	cmd.Flags().Float32Var(&pf.dx, "dx", 0, "Horizontal input")
	cmd.Flags().Float32Var(&pf.dy, "dy", 0, "Vertical input")
	return cmd
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return nil, err
	}
	if flags.endpoint != "" {
		cfg.Endpoint = flags.endpoint
	}
	if flags.transport != "" {
		cfg.Transport = flags.transport
	}
	if flags.logFile != "" {
		cfg.LogFile = flags.logFile
	}
	if flags.metricsAddr != "" {
		cfg.MetricsAddr = flags.metricsAddr
	}
	if flags.insecure {
		cfg.InsecureSkipVerify = true
	}
	return cfg, nil
}

func createDialer(cfg *config.Config, logger *zap.Logger) (transport.Dialer, error) {
	kind, err := transport.ParseKind(cfg.Transport)
	if err != nil {
		return nil, err
	}

	switch kind {
	case transport.Kind_WebTransport:
		return transport.CreateWebtransportDialer(transport.WebtransportDialerParams{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Logger:             logger,
		}), nil
	default:
		return transport.CreateWebsocketDialer(transport.WebsocketDialerParams{
			Logger: logger,
		}), nil
	}
}

func logListener(logger *zap.Logger) session.Listener {
	return session.ListenerFuncs{
		Handshake: func(version string, walls []world.Wall, players []world.Player) {
			logger.Info("Joined arena", zap.String("serverVersion", version), zap.Int("walls", len(walls)), zap.Int("players", len(players)))
		},
		PlayerJoined: func(p world.Player) {
			logger.Info("Player joined", zap.Uint16("playerId", p.Id), zap.String("username", p.Username))
		},
		PlayerRemoved: func(id uint16, reason session.RemovalReason) {
			logger.Info("Player removed", zap.Uint16("playerId", id), zap.Stringer("reason", reason))
		},
		LocalPlayerReady: func(p world.Player) {
			logger.Info("Now playing", zap.Uint16("playerId", p.Id), zap.Float32("x", p.X), zap.Float32("y", p.Y))
		},
		ScoreboardChanged: func(board []world.Player) {
			if n := len(board); n > 0 {
				leader := board[n-1]
				logger.Info("Scoreboard updated", zap.String("leader", leader.Username), zap.Uint16("kills", leader.Kills))
			}
		},
	}
}

func runClient(flags *rootFlags, play *playFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.New(logging.Options{
		Development: cfg.Development,
		File:        cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	dialer, err := createDialer(cfg, logger)
	if err != nil {
		return err
	}

	var player *command.BecomePlayerRequest
	if play != nil {
		player = &command.BecomePlayerRequest{
			Username:    cfg.Username,
			PlayerClass: cfg.PlayerClass,
		}
		if play.username != "" {
			player.Username = play.username
		}
		if play.class >= 0 {
			player.PlayerClass = play.class
		}
	}

	registry := prometheus.NewRegistry()
	s := session.CreateSession(session.Params{
		Endpoint:      cfg.Endpoint,
		Dialer:        dialer,
		Player:        player,
		InputInterval: cfg.InputInterval,
		Logger:        logger,
		Listener:      logListener(logger),
		Metrics:       metrics.New(metrics.WithRegistry(registry)),
	})

	shutdownCtx, shutdownRelease := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer shutdownRelease()

	wg := sync.WaitGroup{}

	if cfg.MetricsAddr != "" {
		server := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: statusRouter(s, registry),
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Starting status server", zap.String("addr", cfg.MetricsAddr))
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Unexpected status server close!", zap.Error(err))
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-shutdownCtx.Done():
			case <-s.Done():
			}
			ctx, release := context.WithTimeout(context.Background(), 5*time.Second)
			defer release()
			if err := server.Shutdown(ctx); err != nil {
				logger.Error("Failed to gracefully shut down status server", zap.Error(err))
			}
		}()
	}

	if play != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			steer(shutdownCtx, s, play, logger)
		}()
	}

	runErr := s.Run(shutdownCtx)
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("session ended: %w", runErr)
	}
	logger.Info("Session closed")
	return nil
}

func steer(ctx context.Context, s *session.Session, play *playFlags, logger *zap.Logger) {
	t := s.InitialTransition()
	if t == nil {
		return
	}

	id, err := t.Wait(ctx)
	if err != nil {
		logger.Error("Could not join as a player", zap.Error(err))
		s.Close()
		return
	}

	logger.Info("Joined as player", zap.Uint16("playerId", id))
	if err := s.SetInput(ctx, play.dx, play.dy); err != nil {
		logger.Warn("Failed to set input", zap.Error(err))
	}
}
