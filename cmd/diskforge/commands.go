package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/melih/diskforge/internal/adapters/console"
	"github.com/melih/diskforge/internal/app"
	"github.com/melih/diskforge/internal/config"
	"github.com/melih/diskforge/internal/core/domain"
	"github.com/melih/diskforge/internal/core/services/build"
)

// errReported marks failures the console has already shown.
var errReported = errors.New("build failed")

// CLI is the command line of diskforge.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" type:"path"`
	Debug   bool             `short:"d" help:"Enable debug logging"`
	Version kong.VersionFlag `help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build a disk image from a bootc container image"`
	History HistoryCmd `cmd:"" help:"List recorded builds"`
	Cancel  CancelCmd  `cmd:"" help:"Cancel a running build and forget it"`
	Serve   ServeCmd   `cmd:"" help:"Serve the HTTP API"`
}

// Loads the configuration and installs the default logger.
func (c *CLI) setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return config.Config{}, nil, err
	}
	level := cfg.Level()
	if c.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func (c *CLI) open() (*app.App, error) {
	cfg, logger, err := c.setup()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger)
}

// BuildCmd builds one disk image in the foreground.
type BuildCmd struct {
	Image  string `arg:"" help:"Container image to convert, e.g. quay.io/centos-bootc/centos-bootc"`
	Tag    string `short:"t" help:"Image tag" default:"latest"`
	Type   string `short:"T" help:"Disk image type (qcow2, ami, raw, iso)" default:"qcow2" enum:"qcow2,ami,raw,iso"`
	Arch   string `short:"a" help:"Target architecture" default:"amd64"`
	Folder string `short:"o" help:"Output folder" type:"path" default:"."`
	Engine string `short:"e" help:"Container engine ID" default:"default"`
	Yes    bool   `short:"y" help:"Overwrite an existing artifact without asking"`

	BlueprintRepo string `name:"blueprint-repo" help:"Git repository holding a build blueprint"`
	BlueprintRef  string `name:"blueprint-ref" help:"Branch or tag of the blueprint repository"`
	BlueprintPath string `name:"blueprint-path" help:"Blueprint path inside the repository" default:"config.toml"`
}

func (b *BuildCmd) Run(root *CLI) error {
	a, err := root.open()
	if err != nil {
		return err
	}
	defer a.Close()

	req := domain.BuildRequest{
		Name:     b.Image,
		Tag:      b.Tag,
		Type:     domain.ImageType(b.Type),
		EngineID: b.Engine,
		Folder:   b.Folder,
		Arch:     b.Arch,
	}
	if b.BlueprintRepo != "" {
		req.Blueprint = &domain.Blueprint{Repo: b.BlueprintRepo, Ref: b.BlueprintRef, Path: b.BlueprintPath}
	}

	// An interrupt cancels the build, prompt included; the service removes
	// the builder container.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	con := console.New(os.Stdin, os.Stdout, b.Yes)
	res, err := a.Service.Build(ctx, req, build.Feedback{Notifier: con, Progress: con})
	if err != nil {
		var buildErr *domain.BuildError
		if errors.As(err, &buildErr) {
			return errReported
		}
		return err
	}
	if res.Cancelled {
		con.Warn("Build cancelled.")
	}
	return nil
}

// HistoryCmd prints the build history as a table.
type HistoryCmd struct{}

func (h *HistoryCmd) Run(root *CLI) error {
	a, err := root.open()
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.History.List(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tIMAGE\tTYPE\tSTATUS\tCREATED\tARTIFACT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.ImageRef(), r.Type, r.Status, r.CreatedAt.Local().Format(time.DateTime), r.ArtifactPath)
	}
	return w.Flush()
}

// CancelCmd stops a build run by another process. Removing the builder
// container ends that build's wait; with its record gone the build ends
// silently.
type CancelCmd struct {
	ID string `arg:"" help:"Build ID"`
}

func (c *CancelCmd) Run(root *CLI) error {
	a, err := root.open()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	rec, err := a.History.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := a.History.Remove(ctx, rec.ID); err != nil {
		return err
	}
	if rec.ContainerName != "" && !rec.Status.Terminal() {
		if err := a.Runtime.RemoveContainerAndVolumes(ctx, rec.EngineID, rec.ContainerName); err != nil {
			return err
		}
	}
	fmt.Printf("Build %s cancelled.\n", rec.ID)
	return nil
}

// ServeCmd runs the HTTP API until interrupted.
type ServeCmd struct {
	Listen string `short:"l" help:"Listen address, overrides the configuration"`
}

func (s *ServeCmd) Run(root *CLI) error {
	cfg, logger, err := root.setup()
	if err != nil {
		return err
	}
	if s.Listen != "" {
		cfg.Listen = s.Listen
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}
