package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/orbit/internal/domain"
	"github.com/dohr-michael/orbit/internal/render"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Manage your tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pending", Usage: "Only tasks not completed"},
				},
				Action: withApp(runTasksList),
			},
			{
				Name:      "add",
				Usage:     "Create a task (difficulty is inferred when omitted)",
				ArgsUsage: "<title>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Usage: "Quick, Grind or Cooked", Value: string(domain.DefaultCategory)},
					&cli.StringFlag{Name: "difficulty", Usage: "Easy, Medium or Hard"},
				},
				Action: withApp(runTasksAdd),
			},
			{
				Name:      "toggle",
				Usage:     "Flip a task between done and not done",
				ArgsUsage: "<key>",
				Action:    withApp(runTasksToggle),
			},
			{
				Name:      "forfeit",
				Usage:     "Give up on a task",
				ArgsUsage: "<key>",
				Action:    withApp(runTasksForfeit),
			},
			{
				Name:      "delete",
				Usage:     "Delete a task without counting it (admins only)",
				ArgsUsage: "<key>",
				Action:    withApp(runTasksDelete),
			},
		},
		DefaultCommand: "list",
	}
}

func runTasksList(_ context.Context, cmd *cli.Command, a *app) error {
	snap, err := a.requireSession()
	if err != nil {
		return err
	}
	tasks := snap.Tasks
	if cmd.Bool("pending") {
		open := tasks[:0:0]
		for _, t := range tasks {
			if !t.Completed {
				open = append(open, t)
			}
		}
		tasks = open
	}
	return a.print(taskViews(tasks), render.Tasks(tasks))
}

func runTasksAdd(ctx context.Context, cmd *cli.Command, a *app) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	title := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("usage: orbit tasks add <title>")
	}
	in := domain.TaskInput{Title: title}
	c, err := domain.ParseCategory(cmd.String("category"))
	if err != nil {
		return err
	}
	in.Category = c
	if s := cmd.String("difficulty"); s != "" {
		d, err := domain.ParseDifficulty(s)
		if err != nil {
			return err
		}
		in.Difficulty = d
	}

	if err := a.store.CreateTask(ctx, in); err != nil {
		return err
	}
	return runTasksList(ctx, cmd, a)
}

// taskArg resolves the <key> argument against the current tasks.
func taskArg(cmd *cli.Command, a *app) (domain.Task, error) {
	snap, err := a.requireSession()
	if err != nil {
		return domain.Task{}, err
	}
	key, err := resolveKey(cmd.Args().First(), taskKeys(snap.Tasks))
	if err != nil {
		return domain.Task{}, fmt.Errorf("task: %w", err)
	}
	t, _ := snap.Task(key)
	return t, nil
}

func runTasksToggle(ctx context.Context, cmd *cli.Command, a *app) error {
	t, err := taskArg(cmd, a)
	if err != nil {
		return err
	}
	if err := a.store.ToggleTask(ctx, t.Key(), t.Completed); err != nil {
		return err
	}
	return runTasksList(ctx, cmd, a)
}

func runTasksForfeit(ctx context.Context, cmd *cli.Command, a *app) error {
	t, err := taskArg(cmd, a)
	if err != nil {
		return err
	}
	if err := a.store.ForfeitTask(ctx, t.Key()); err != nil {
		return err
	}
	return runTasksList(ctx, cmd, a)
}

func runTasksDelete(ctx context.Context, cmd *cli.Command, a *app) error {
	t, err := taskArg(cmd, a)
	if err != nil {
		return err
	}
	if err := a.store.DeleteTask(ctx, t.Key()); err != nil {
		return err
	}
	return runTasksList(ctx, cmd, a)
}
