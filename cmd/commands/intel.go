package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/orbit/internal/render"
)

// NewIntelCommand returns the intel subcommand.
func NewIntelCommand() *cli.Command {
	return &cli.Command{
		Name:  "intel",
		Usage: "Research topics and share intel drops",
		Commands: []*cli.Command{
			{
				Name:      "query",
				Usage:     "Research a topic",
				ArgsUsage: "<topic>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "deep", Usage: "Also write a long-form essay"},
					&cli.BoolFlag{Name: "save", Usage: "Save the result as a drop"},
					&cli.BoolFlag{Name: "private", Usage: "With --save, keep the drop private"},
				},
				Action: withApp(runIntelQuery),
			},
			{
				Name:      "publish",
				Usage:     "Publish a hand-written public drop (content from --content or stdin)",
				ArgsUsage: "<title>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "content", Usage: "Drop body"},
					&cli.StringSliceFlag{Name: "tag", Usage: "Related concept (repeatable)"},
				},
				Action: withApp(runIntelPublish),
			},
			{
				Name:      "import",
				Usage:     "Publish every markdown file matching a glob as a drop",
				ArgsUsage: "<glob>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "tag", Usage: "Related concept added to every drop"},
					&cli.BoolFlag{Name: "dry-run", Usage: "List what would be published"},
				},
				Action: withApp(runIntelImport),
			},
			{
				Name:   "list",
				Usage:  "List drops visible to you",
				Action: withApp(runIntelList),
			},
			{
				Name:      "show",
				Usage:     "Show a drop",
				ArgsUsage: "<id>",
				Action:    withApp(runIntelShow),
			},
			{
				Name:      "delete",
				Usage:     "Delete a drop you authored",
				ArgsUsage: "<id>",
				Action:    withApp(runIntelDelete),
			},
		},
		DefaultCommand: "list",
	}
}

func runIntelQuery(ctx context.Context, cmd *cli.Command, a *app) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("usage: orbit intel query <topic>")
	}
	res, err := a.store.ExecuteIntelQuery(ctx, query, cmd.Bool("deep"))
	if err != nil {
		return err
	}
	if err := a.print(res, render.IntelResult(query, res, render.DefaultWidth)); err != nil {
		return err
	}
	if !cmd.Bool("save") {
		return nil
	}
	if err := a.store.SaveIntelDrop(ctx, query, cmd.Bool("private")); err != nil {
		return err
	}
	if a.format == render.FormatTable {
		fmt.Fprintln(a.out, render.SuccessStyle.Render("Drop saved."))
	}
	return nil
}

func runIntelPublish(ctx context.Context, cmd *cli.Command, a *app) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	title := strings.Join(cmd.Args().Slice(), " ")
	content := cmd.String("content")
	if content == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read content: %w", err)
		}
		content = string(b)
	}
	if err := a.store.PublishManualDrop(ctx, title, content, cmd.StringSlice("tag")); err != nil {
		return err
	}
	return runIntelList(ctx, cmd, a)
}

// manualDrop is a markdown file turned into a drop.
type manualDrop struct {
	Path    string   `json:"path" yaml:"path"`
	Title   string   `json:"title" yaml:"title"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Content string   `json:"-" yaml:"-"`
}

type frontMatter struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

// parseManualDrop reads an optional YAML front matter block (title, tags),
// then takes the title from the first "# " heading, else the file name.
func parseManualDrop(path string, data []byte) (manualDrop, error) {
	d := manualDrop{Path: path}
	body := data

	if rest, ok := bytes.CutPrefix(data, []byte("---\n")); ok {
		head, tail, found := bytes.Cut(rest, []byte("\n---"))
		if !found {
			return d, fmt.Errorf("%s: unterminated front matter", path)
		}
		var fm frontMatter
		if err := yaml.Unmarshal(head, &fm); err != nil {
			return d, fmt.Errorf("%s: front matter: %w", path, err)
		}
		d.Title = fm.Title
		d.Tags = fm.Tags
		body = bytes.TrimPrefix(tail, []byte("\n"))
	}

	text := strings.TrimSpace(string(body))
	if d.Title == "" {
		if first, rest, _ := strings.Cut(text, "\n"); strings.HasPrefix(first, "# ") {
			d.Title = strings.TrimSpace(strings.TrimPrefix(first, "# "))
			text = strings.TrimSpace(rest)
		}
	}
	if d.Title == "" {
		d.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	d.Content = text
	if d.Content == "" {
		return d, fmt.Errorf("%s: empty content", path)
	}
	return d, nil
}

func runIntelImport(ctx context.Context, cmd *cli.Command, a *app) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	pattern := cmd.Args().First()
	if pattern == "" {
		return fmt.Errorf("usage: orbit intel import <glob>")
	}
	paths, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files match %q", pattern)
	}

	extra := cmd.StringSlice("tag")
	var (
		published []manualDrop
		errs      []error
	)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", p, err))
			continue
		}
		d, err := parseManualDrop(p, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		d.Tags = append(d.Tags, extra...)
		if !cmd.Bool("dry-run") {
			if err := a.store.PublishManualDrop(ctx, d.Title, d.Content, d.Tags); err != nil {
				errs = append(errs, fmt.Errorf("publish %s: %w", p, err))
				continue
			}
		}
		published = append(published, d)
	}

	lines := make([]string, 0, len(published))
	for _, d := range published {
		lines = append(lines, fmt.Sprintf("%s  %s", render.SuccessStyle.Render(d.Title), render.MutedStyle.Render(d.Path)))
	}
	if err := a.print(published, strings.Join(lines, "\n")); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func runIntelList(ctx context.Context, _ *cli.Command, a *app) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	if err := a.store.FetchIntelDrops(ctx); err != nil {
		return err
	}
	drops := a.store.Snapshot().IntelDrops
	views := make([]dropView, 0, len(drops))
	for _, d := range drops {
		views = append(views, newDropView(d, false))
	}
	return a.print(views, render.Drops(drops))
}

func runIntelShow(_ context.Context, cmd *cli.Command, a *app) error {
	snap, err := a.requireSession()
	if err != nil {
		return err
	}
	id, err := resolveKey(cmd.Args().First(), dropKeys(snap.IntelDrops))
	if err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	d, _ := snap.Drop(id)
	return a.print(newDropView(d, true), render.Drop(d, render.DefaultWidth))
}

func runIntelDelete(ctx context.Context, cmd *cli.Command, a *app) error {
	snap, err := a.requireSession()
	if err != nil {
		return err
	}
	id, err := resolveKey(cmd.Args().First(), dropKeys(snap.IntelDrops))
	if err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	if err := a.store.DeleteIntelDrop(ctx, id); err != nil {
		return err
	}
	return runIntelList(ctx, cmd, a)
}
