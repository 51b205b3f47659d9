package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/orbit/internal/config"
	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/gateway"
	"github.com/dohr-michael/orbit/internal/heartbeat"
	"github.com/dohr-michael/orbit/internal/remote"
	"github.com/dohr-michael/orbit/internal/render"
	"github.com/dohr-michael/orbit/internal/storage"
)

// staleAfter is how old a heartbeat can get before status reports it stale.
const staleAfter = 2 * time.Minute

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve a database to other devices over HTTP and WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.BoolFlag{
				Name:  "journal",
				Usage: "Append every served change to $ORBIT_PATH/journal",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Database DSN to serve (memory://, sqlite://, postgres://)",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	setupLogging(cmd, slog.LevelInfo)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}
	dsn := cfg.Gateway.DSN
	if cmd.IsSet("db") {
		dsn = cmd.String("db")
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	db, err := remote.OpenDB(ctx, dsn, remote.NewFeed(bus))
	if err != nil {
		return fmt.Errorf("open database %q: %w", dsn, err)
	}
	defer db.Close()

	if cmd.Bool("journal") {
		el, err := storage.NewEventLogger(journalDir(), bus, events.EventRemoteChange)
		if err != nil {
			return err
		}
		defer el.Close()
	}

	addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	server := gateway.NewServer(db, bus, addr)

	hb := heartbeat.NewWriter(config.HeartbeatPath(), addr, heartbeat.WithProbe(server.Clients))
	if err := hb.Start(); err != nil {
		slog.Warn("heartbeat disabled", "error", err)
	}
	defer hb.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	slog.Info("serving", "addr", addr, "db", dsn)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type statusView struct {
	Status  heartbeat.Status `json:"status" yaml:"status"`
	PID     int              `json:"pid,omitempty" yaml:"pid,omitempty"`
	Addr    string           `json:"addr,omitempty" yaml:"addr,omitempty"`
	Uptime  string           `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Clients int              `json:"clients" yaml:"clients"`
	LastAge string           `json:"last_beat_age,omitempty" yaml:"last_beat_age,omitempty"`
}

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether `orbit serve` is running",
		Action: func(_ context.Context, cmd *cli.Command) error {
			format, err := render.ParseFormat(cmd.String("output"))
			if err != nil {
				return err
			}
			status, hb, err := heartbeat.Check(config.HeartbeatPath(), staleAfter)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			v := statusView{Status: status}
			var text string
			switch status {
			case heartbeat.StatusAlive:
				v.PID, v.Addr, v.Uptime, v.Clients = hb.PID, hb.Addr, hb.Uptime, hb.Clients
				text = render.SuccessStyle.Render("Server: ALIVE") +
					fmt.Sprintf(" (PID %d on %s, uptime %s, %d clients)", hb.PID, hb.Addr, hb.Uptime, hb.Clients)
			case heartbeat.StatusStale:
				v.PID, v.Addr = hb.PID, hb.Addr
				v.LastAge = time.Since(hb.Timestamp).Truncate(time.Second).String()
				text = render.PendingStyle.Render("Server: STALE") +
					fmt.Sprintf(" (PID %d, last heartbeat %s ago)", hb.PID, v.LastAge)
			case heartbeat.StatusDead:
				text = render.MutedStyle.Render("Server: NOT RUNNING")
			}
			return render.Write(os.Stdout, format, v, text)
		},
	}
}
