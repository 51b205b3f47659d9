package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/render"
	"github.com/dohr-michael/orbit/internal/store"
)

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "password",
			Usage:   "Password (prompted when omitted)",
			Sources: cli.EnvVars("ORBIT_PASSWORD"),
		},
	}
}

// readPassword prompts on the terminal without echo, or reads one line when
// stdin is not a terminal.
func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func password(cmd *cli.Command) (string, error) {
	if p := cmd.String("password"); p != "" {
		return p, nil
	}
	return readPassword("Password: ")
}

type profileView struct {
	ID             string `json:"id" yaml:"id"`
	Username       string `json:"username" yaml:"username"`
	Admin          bool   `json:"is_admin" yaml:"is_admin"`
	TasksCompleted int    `json:"tasks_completed" yaml:"tasks_completed"`
	TasksForfeited int    `json:"tasks_forfeited" yaml:"tasks_forfeited"`
	StreakDays     int    `json:"streak_days" yaml:"streak_days"`
}

func printProfile(a *app, p *domain.UserProfile) error {
	var v *profileView
	if p != nil {
		v = &profileView{
			ID:             p.ID,
			Username:       p.Username,
			Admin:          p.IsAdmin,
			TasksCompleted: p.Stats.TasksCompleted,
			TasksForfeited: p.Stats.TasksForfeited,
			StreakDays:     p.Stats.StreakDays,
		}
	}
	return a.print(v, render.Profile(p))
}

func authResult(a *app, res store.AuthResult) error {
	if !res.Success {
		return errors.New(res.Error)
	}
	return printProfile(a, a.store.Snapshot().Profile)
}

// NewLoginCommand returns the login subcommand.
func NewLoginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Sign in and keep the session for later commands",
		ArgsUsage: "<email>",
		Flags:     credentialFlags(),
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			email := cmd.Args().First()
			if email == "" {
				return fmt.Errorf("usage: orbit login <email>")
			}
			pw, err := password(cmd)
			if err != nil {
				return err
			}
			return authResult(a, a.store.Login(ctx, email, pw))
		}),
	}
}

// NewRegisterCommand returns the register subcommand.
func NewRegisterCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Create an account and sign in",
		ArgsUsage: "<email>",
		Flags: append(credentialFlags(), &cli.StringFlag{
			Name:    "username",
			Aliases: []string{"u"},
			Usage:   "Display name (defaults to the email's local part)",
		}),
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			email := cmd.Args().First()
			if email == "" {
				return fmt.Errorf("usage: orbit register <email>")
			}
			username := cmd.String("username")
			if username == "" {
				username, _, _ = strings.Cut(email, "@")
			}
			pw, err := password(cmd)
			if err != nil {
				return err
			}
			return authResult(a, a.store.Register(ctx, email, pw, username))
		}),
	}
}

// NewLogoutCommand returns the logout subcommand.
func NewLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and forget the cached session",
		Action: withApp(func(ctx context.Context, _ *cli.Command, a *app) error {
			a.store.Logout(ctx)
			return a.print(map[string]bool{"authenticated": false}, render.MutedStyle.Render("Signed out."))
		}),
	}
}

// NewWhoamiCommand returns the whoami subcommand.
func NewWhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in profile",
		Action: withApp(func(_ context.Context, _ *cli.Command, a *app) error {
			snap, err := a.requireSession()
			if err != nil {
				return err
			}
			return printProfile(a, snap.Profile)
		}),
	}
}
