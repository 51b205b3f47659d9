package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/orbit/internal/config"
	"github.com/dohr-michael/orbit/internal/events"
	"github.com/dohr-michael/orbit/internal/render"
	"github.com/dohr-michael/orbit/internal/scheduler"
	"github.com/dohr-michael/orbit/internal/storage"
)

// NewWatchCommand returns the watch subcommand.
func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stay connected: stream realtime changes and resync on a schedule (SIGHUP reloads config)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "resync", Usage: "Run a full resync immediately"},
			&cli.BoolFlag{Name: "journal", Usage: "Append every event to $ORBIT_PATH/journal"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := openApp(ctx, cmd, slog.LevelInfo)
			if err != nil {
				return err
			}
			defer a.Close()
			return runWatch(ctx, cmd, a)
		},
	}
}

func journalDir() string {
	return filepath.Join(config.OrbitPath(), "journal")
}

// resyncLoop owns the scheduler so a config reload can replace it.
type resyncLoop struct {
	ctx   context.Context
	a     *app
	mu    sync.Mutex
	sched *scheduler.Scheduler
	spec  string
}

func (r *resyncLoop) apply(cfg config.SyncConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec := cfg.Resync
	if cfg.Disabled {
		spec = ""
	}
	if spec == r.spec && (r.sched != nil) == (spec != "") {
		return nil
	}
	if r.sched != nil {
		r.sched.Stop()
		r.sched = nil
	}
	r.spec = spec
	if spec == "" {
		slog.Info("periodic resync disabled")
		return nil
	}
	s, err := scheduler.New(scheduler.Config{
		Store:  r.a.store,
		Bus:    r.a.bus,
		Spec:   spec,
		Logger: slog.Default().With("component", "scheduler"),
	})
	if err != nil {
		return err
	}
	s.Start(r.ctx)
	r.sched = s
	return nil
}

func (r *resyncLoop) trigger(reason string) {
	r.mu.Lock()
	s := r.sched
	r.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.Trigger(r.ctx, reason); err != nil {
		slog.Warn("resync failed", "trigger", reason, "error", err)
	}
}

func (r *resyncLoop) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sched != nil {
		r.sched.Stop()
		r.sched = nil
	}
}

func runWatch(ctx context.Context, cmd *cli.Command, a *app) error {
	snap, err := a.requireSession()
	if err != nil {
		return err
	}

	if cmd.Bool("journal") {
		el, err := storage.NewEventLogger(journalDir(), a.bus)
		if err != nil {
			return err
		}
		defer el.Close()
	}

	loop := &resyncLoop{ctx: ctx, a: a}
	if err := loop.apply(a.cfg.Sync); err != nil {
		return err
	}
	defer loop.stop()

	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), a.cfg)
	reloader.OnReload(func(cfg *config.Config) {
		if err := loop.apply(cfg.Sync); err != nil {
			slog.Warn("keeping previous resync schedule", "error", err)
		}
	})
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go reloader.Watch(ctx, hup)

	ch, unsub := a.bus.SubscribeChan(256,
		events.EventSessionChanged,
		events.EventMutation,
		events.EventRealtime,
		events.EventChatMessage,
		events.EventIntelResult,
		events.EventResync,
		events.EventLLMCall,
	)
	defer unsub()

	if cmd.Bool("resync") {
		go loop.trigger("manual")
	}

	if a.format == render.FormatTable {
		name := "?"
		if snap.Profile != nil {
			name = snap.Profile.Username
		}
		fmt.Fprintf(a.out, "%s watching as %s (%d tasks, %d drops)\n",
			render.TitleStyle.Render("orbit"), name, len(snap.Tasks), len(snap.IntelDrops))
	}
	enc := json.NewEncoder(a.out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if a.format != render.FormatTable {
				if err := enc.Encode(e); err != nil {
					return fmt.Errorf("encode event: %w", err)
				}
				continue
			}
			if line := describeEvent(e); line != "" {
				fmt.Fprintln(a.out, render.MutedStyle.Render(e.Timestamp.Format("15:04:05"))+" "+line)
			}
		}
	}
}

// describeEvent renders a bus event as one line, or "" for events not worth
// printing.
func describeEvent(e events.Event) string {
	switch e.Type {
	case events.EventSessionChanged:
		p, ok := events.ExtractPayload[events.SessionPayload](e)
		if !ok {
			return ""
		}
		if !p.Authenticated {
			return render.PendingStyle.Render("signed out")
		}
		return "signed in as " + render.AuthorStyle.Render("@"+p.Username)
	case events.EventMutation:
		p, ok := events.GetMutationPayload(e)
		if !ok || p.State == "pending" {
			return ""
		}
		line := fmt.Sprintf("%s %s %s", p.Kind, render.ShortKey(p.Target), p.State)
		if p.Error != "" {
			return render.ErrorStyle.Render(line + ": " + p.Error)
		}
		return render.SuccessStyle.Render(line)
	case events.EventRealtime:
		p, ok := events.ExtractPayload[events.RealtimePayload](e)
		if !ok {
			return ""
		}
		return fmt.Sprintf("%s %s %s", render.AuthorStyle.Render(p.Table), p.Kind, render.ShortKey(p.RecordID))
	case events.EventChatMessage:
		p, ok := events.ExtractPayload[events.ChatMessagePayload](e)
		if !ok {
			return ""
		}
		if p.Urgent {
			return render.UrgentStyle.Render("!! " + p.Text)
		}
		return fmt.Sprintf("%s: %s", p.Role, p.Text)
	case events.EventIntelResult:
		p, ok := events.ExtractPayload[events.IntelResultPayload](e)
		if !ok {
			return ""
		}
		if p.Error != "" {
			return render.ErrorStyle.Render(fmt.Sprintf("intel %q failed: %s", p.Query, p.Error))
		}
		return fmt.Sprintf("intel %q ready (%d bullets)", p.Query, p.Bullets)
	case events.EventResync:
		p, ok := events.ExtractPayload[events.ResyncPayload](e)
		if !ok {
			return ""
		}
		if p.Error != "" {
			return render.ErrorStyle.Render(fmt.Sprintf("resync (%s) failed: %s", p.Trigger, p.Error))
		}
		return fmt.Sprintf("resync (%s) in %s", p.Trigger, p.Duration)
	case events.EventLLMCall:
		p, ok := events.GetLLMCallPayload(e)
		if !ok || p.Phase != "response" {
			return ""
		}
		return render.MutedStyle.Render(fmt.Sprintf("model %s %s (%d in / %d out)", p.Model, p.Duration, p.TokensInput, p.TokensOutput))
	}
	return ""
}
