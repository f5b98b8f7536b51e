package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/astromechza/event-list-sync/pkg/config"
	"github.com/astromechza/event-list-sync/pkg/eventstore"
	"github.com/astromechza/event-list-sync/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	configVar := flag.String("config", "", "optional yaml config file")
	addrVar := flag.String("addr", "", "the address to listen on (overrides config)")
	databaseVar := flag.String("database", "", "the sqlite database file (overrides config)")
	peerVar := flag.String("peer", "", "base url of another store server to replicate with (added to config peers)")
	dumpVar := flag.Bool("dump", false, "dump the document and its history svg to the temp dir on shutdown")
	flag.Parse()

	conf, err := config.Load(*configVar)
	if err != nil {
		return err
	}
	if *addrVar != "" {
		conf.Server.Listen = *addrVar
	}
	if *databaseVar != "" {
		conf.Server.Database = *databaseVar
	}
	if *peerVar != "" {
		conf.Server.Peers = append(conf.Server.Peers, *peerVar)
	}
	if err := conf.SetupLogging(); err != nil {
		return err
	}
	peers := make([]*url.URL, 0, len(conf.Server.Peers))
	for _, raw := range conf.Server.Peers {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("invalid peer url %q", raw)
		}
		peers = append(peers, u)
	}

	slog.Info("Opening database", "path", conf.Server.Database)
	snapshots, err := eventstore.OpenSnapshots(conf.Server.Database)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seed func(context.Context) (*eventstore.Collection, error)
	if len(peers) > 0 {
		seed = func(ctx context.Context) (*eventstore.Collection, error) {
			return eventstore.FetchCollection(ctx, peers[0])
		}
	}
	collection, err := snapshots.LoadOrCreate(ctx, seed)
	if err != nil {
		return err
	}

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		snapshots.BackupContinuously(ctx, collection, conf.Server.BackupInterval)
	}()

	for _, peer := range peers {
		wg.Add(1)
		go func(peer *url.URL) {
			defer wg.Done()
			eventstore.Replicate(ctx, collection, peer, conf.Server.SyncInterval)
		}(peer)
	}

	httpServer := &http.Server{Addr: conf.Server.Listen, Handler: eventstore.NewServer(collection).Router()}

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", conf.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
			cancel()
		}
	}()

	exit := make(chan os.Signal, 1) // buffered so the notifier is never blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		slog.Info("Signal caught", "sig", sig)
	case <-ctx.Done():
	}
	cancel()
	_ = httpServer.Close()

	wg.Wait()

	if changed, err := snapshots.Backup(context.Background(), collection); err != nil {
		slog.Error("failed final backup", "err", err)
	} else if changed {
		slog.Info("backed up on shutdown", "heads", collection.Heads())
	}

	if *dumpVar {
		dump(collection)
	}
	return nil
}

func dump(collection *eventstore.Collection) {
	doc, err := collection.Fork()
	if err != nil {
		slog.Error("failed to fork", "err", err)
		return
	}
	tf := filepath.Join(os.TempDir(), doc.ActorID()+".automerge")
	if err := os.WriteFile(tf, doc.Save(), 0o600); err != nil {
		slog.Error("failed to dump", "err", err)
	} else {
		slog.Info("dumped", "path", tf)
	}
	if svgPath, err := viz.RenderToTemp(doc, []interface{}{"events"}); err != nil {
		slog.Error("failed to render", "err", err)
	} else {
		slog.Info("rendered", "path", "file://"+svgPath)
	}
}
