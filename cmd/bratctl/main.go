// Command bratctl ingests brat annotation directories into snapshots and
// inspects stored snapshots.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	charmlog "github.com/charmbracelet/log"

	"github.com/dgallion1/bratgest/internal/annotation"
	"github.com/dgallion1/bratgest/internal/config"
	"github.com/dgallion1/bratgest/internal/dataset"
	"github.com/dgallion1/bratgest/internal/render"
	"github.com/dgallion1/bratgest/internal/store"
)

// Globals are flags shared by every command. Unset flags fall back to the
// environment (see internal/config).
type Globals struct {
	EnvFile  string `name:"env-file" help:"Dotenv file to load before reading the environment" default:".env"`
	Driver   string `help:"Snapshot store driver (fs, memory, s3, sqlite, postgres)" env:"STORE_DRIVER"`
	FSRoot   string `name:"fs-root" help:"Root directory for the fs driver"`
	LogLevel string `name:"log-level" help:"debug, info, warn or error" default:"info"`
}

// CLI defines the command-line interface for bratctl.
type CLI struct {
	Globals

	Ingest    IngestCmd    `cmd:"" help:"Read every .txt/.ann pair in a directory and save a snapshot"`
	List      ListCmd      `cmd:"" help:"List documents in a snapshot"`
	Show      ShowCmd      `cmd:"" help:"Show a document or one of its records"`
	Report    ReportCmd    `cmd:"" help:"Print a dataset report"`
	HTML      HTMLCmd      `cmd:"" name:"html" help:"Render a document as HTML"`
	Snapshots SnapshotsCmd `cmd:"" help:"List stored snapshots"`
}

// app carries what every command needs.
type app struct {
	ctx   context.Context
	cfg   config.Config
	store store.Store
	log   *slog.Logger
	out   io.Writer
}

func newApp(ctx context.Context, g Globals, out io.Writer) (*app, error) {
	if err := config.LoadDotenv(g.EnvFile); err != nil {
		return nil, err
	}
	cfg := config.Load()
	if g.Driver != "" {
		cfg.StoreDriver = g.Driver
	}
	if g.FSRoot != "" {
		cfg.StoreFSRoot = g.FSRoot
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}

	level, err := charmlog.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "bratctl",
	})

	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return &app{ctx: ctx, cfg: cfg, store: st, log: slog.New(handler), out: out}, nil
}

// load restores a snapshot into a fresh dataset.
func (a *app) load(name string) (*dataset.Dataset, error) {
	ds := dataset.New(dataset.WithLogger(a.log))
	if _, err := ds.Load(a.ctx, a.store, name); err != nil {
		return nil, err
	}
	return ds, nil
}

// IngestCmd reads a directory of pairs and saves it.
type IngestCmd struct {
	Dir      string `arg:"" help:"Directory holding .txt and .ann files" type:"existingdir"`
	Snapshot string `short:"s" help:"Snapshot name" default:"default"`
}

func (c *IngestCmd) Run(a *app) error {
	pairs, err := dataset.Discover(c.Dir)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no .txt files in %s", c.Dir)
	}
	ds := dataset.New(dataset.WithLogger(a.log))
	if err := ds.ReadAll(pairs); err != nil {
		return err
	}
	info, err := ds.Save(a.ctx, a.store, c.Snapshot)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %d documents to %s (%s)\n", info.Documents, c.Snapshot, info.Checksum[:12])
	return nil
}

// ListCmd prints the documents of a snapshot.
type ListCmd struct {
	Snapshot string `arg:"" help:"Snapshot name"`
}

func (c *ListCmd) Run(a *app) error {
	ds, err := a.load(c.Snapshot)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tENTITIES\tRELATIONS")
	for _, key := range ds.Keys() {
		doc, _ := ds.Get(key)
		fmt.Fprintf(tw, "%s\t%d\t%d\n", key, len(doc.Records().Entities()), len(doc.Records().Relations()))
	}
	return tw.Flush()
}

// ShowCmd prints one document, or one record when a tag is given.
type ShowCmd struct {
	Snapshot string `arg:"" help:"Snapshot name"`
	Key      string `arg:"" help:"Document key"`
	Tag      string `arg:"" optional:"" help:"Record tag"`
}

func (c *ShowCmd) Run(a *app) error {
	ds, err := a.load(c.Snapshot)
	if err != nil {
		return err
	}
	doc, err := ds.Get(c.Key)
	if err != nil {
		return err
	}
	if c.Tag != "" {
		rec, err := doc.Get(c.Tag)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, formatRecord(rec))
		if rel, ok := rec.(*annotation.Relation); ok {
			for i, arg := range []annotation.Record{rel.Arg1(), rel.Arg2()} {
				if arg != nil {
					fmt.Fprintf(a.out, "  Arg%d: %s\n", i+1, formatRecord(arg))
				}
			}
		}
		return nil
	}
	fmt.Fprintf(a.out, "%s\n\n", doc.Text())
	for _, rec := range doc.Records().Records() {
		fmt.Fprintln(a.out, formatRecord(rec))
	}
	return nil
}

func formatRecord(r annotation.Record) string {
	switch v := r.(type) {
	case *annotation.Entity:
		return fmt.Sprintf("%s\t%s %d %d\t%s", v.Tag(), v.Label(), v.Start(), v.End(), v.Text())
	case *annotation.Relation:
		return fmt.Sprintf("%s\t%s Arg1:%s Arg2:%s", v.Tag(), v.Label(), v.Arg1Tag(), v.Arg2Tag())
	default:
		return r.Tag()
	}
}

// ReportCmd prints the Markdown report, or HTML with --html.
type ReportCmd struct {
	Snapshot string `arg:"" help:"Snapshot name"`
	HTML     bool   `name:"html" help:"Render as HTML"`
}

func (c *ReportCmd) Run(a *app) error {
	ds, err := a.load(c.Snapshot)
	if err != nil {
		return err
	}
	md := render.DatasetReport(ds)
	if c.HTML {
		return render.ReportHTML(a.out, md)
	}
	_, err = io.WriteString(a.out, md)
	return err
}

// HTMLCmd renders one document.
type HTMLCmd struct {
	Snapshot string `arg:"" help:"Snapshot name"`
	Key      string `arg:"" help:"Document key"`
}

func (c *HTMLCmd) Run(a *app) error {
	ds, err := a.load(c.Snapshot)
	if err != nil {
		return err
	}
	doc, err := ds.Get(c.Key)
	if err != nil {
		return err
	}
	return render.DocumentHTML(a.out, c.Key, doc)
}

// SnapshotsCmd lists stored snapshots.
type SnapshotsCmd struct{}

func (c *SnapshotsCmd) Run(a *app) error {
	snaps, err := dataset.ListSnapshots(a.ctx, a.store)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDOCUMENTS\tBYTES\tMODIFIED")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Name, s.Documents, s.Info.Size, s.Info.LastModified.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("bratctl"),
		kong.Description("Ingest and inspect brat annotation snapshots"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cli.Globals, stdout)
	if err != nil {
		return err
	}
	defer a.store.Close()
	return kctx.Run(a)
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "bratctl:", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
