// Package main runs the pixelvault media library server: it assembles
// the service plane (database service, auth cache, task supervisor)
// behind the registry, then serves the HTTP front.
/*
 * Copyright (c) 2024, Pixelvault Authors. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/pixelvault/pixelvault/auth"
	"github.com/pixelvault/pixelvault/authn"
	"github.com/pixelvault/pixelvault/cmn"
	"github.com/pixelvault/pixelvault/config"
	"github.com/pixelvault/pixelvault/db"
	"github.com/pixelvault/pixelvault/httpapi"
	"github.com/pixelvault/pixelvault/media/stub"
	"github.com/pixelvault/pixelvault/registry"
	"github.com/pixelvault/pixelvault/tasks"
)

var build = "dev" // set by the linker

func main() {
	app := cli.NewApp()
	app.Name = "pixelvault"
	app.Usage = "self-hosted media library server"
	app.Version = build
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to the server configuration file",
			Value: "/etc/pixelvault/config.toml",
		},
	}
	app.Action = func(c *cli.Context) error {
		return run(c.String("config"))
	}
	app.Commands = []cli.Command{
		{
			Name:  "add-library",
			Usage: "register a library subtree for a group",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "path", Usage: "absolute directory beneath media_srcdir"},
				cli.StringFlag{Name: "user", Usage: "owning user"},
				cli.StringFlag{Name: "group", Usage: "owning group"},
			},
			Action: func(c *cli.Context) error {
				return addLibrary(c.GlobalString("config"), c.String("path"), c.String("user"), c.String("group"))
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	log := cmn.Component("server")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := db.OpenMySQL(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer backend.Close()

	authBackend, proxy, err := buildAuthn(cfg)
	if err != nil {
		return err
	}

	cache := auth.NewCache(authBackend, backend, cfg.GroupRegex)
	dbsvc := db.NewService(backend, cache)
	supervisor := tasks.NewSupervisor()

	// Startup-only registry population; frozen before serving.
	reg := registry.New()
	registry.Register(reg, registry.Tasks, registry.NewInbox[tasks.Request, tasks.Response]())
	reg.Freeze()
	tasksIn, ok := registry.Lookup[registry.Inbox[tasks.Request, tasks.Response]](reg, registry.Tasks)
	cmn.AssertMsg(ok, "tasks inbox not registered")
	go registry.Serve(tasksIn, supervisor.Handle)

	api := httpapi.NewServer(cfg, cache, dbsvc, tasksIn, authBackend, proxy, stub.Processor{}, stub.Thumbnailer{})

	srv := &http.Server{Addr: cfg.HTTP.Socket, Handler: api}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Infof("listening on %s", cfg.HTTP.Socket)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// addLibrary registers a new library row. Libraries are created
// explicitly and never destroyed by the core, so creation lives here
// rather than behind an API operation.
func addLibrary(configPath, path, user, group string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(path) {
		return cmn.NewMalformed("library path %q must be absolute", path)
	}
	if cfg.MediaSrcDir != "" && !strings.HasPrefix(path, cfg.MediaSrcDir+string(filepath.Separator)) && path != cfg.MediaSrcDir {
		return cmn.NewMalformed("library path %q is outside media_srcdir %q", path, cfg.MediaSrcDir)
	}
	if cfg.GroupRegex != nil && !cfg.GroupRegex.MatchString(group) {
		return cmn.NewMalformed("group name %q is not valid", group)
	}

	ctx := context.Background()
	backend, err := db.OpenMySQL(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer backend.Close()

	id, err := backend.AddLibrary(ctx, &db.Library{
		Path:       path,
		OwnerUser:  user,
		OwnerGroup: db.Group(group),
		Mtime:      time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("library %d registered at %s\n", id, path)
	return nil
}

// buildAuthn selects the configured authentication backend. The proxy
// handle is returned separately because the CN check needs the raw
// request, which the auth.Backend interface deliberately does not see.
func buildAuthn(cfg *config.Config) (auth.Backend, *authn.ProxyHeader, error) {
	switch cfg.Authn.Kind {
	case "toml_file":
		backend, err := authn.NewTOMLFile(cfg.Authn.UsersFile)
		return backend, nil, err
	case "proxy_header":
		groups, err := authn.NewTOMLGroups(cfg.Authz.GroupsFile)
		if err != nil {
			return nil, nil, err
		}
		proxy := authn.NewProxyHeader(cfg.Authn.ProxyHeaderName, cfg.Authn.ProxyCommonName, groups)
		return proxy, proxy, nil
	default:
		return nil, nil, cmn.NewMalformed("authn.kind %q", cfg.Authn.Kind)
	}
}
