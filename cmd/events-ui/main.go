package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/astromechza/event-list-sync/pkg/config"
	"github.com/astromechza/event-list-sync/pkg/controller"
	"github.com/astromechza/event-list-sync/pkg/model"
	"github.com/astromechza/event-list-sync/pkg/store"
	"github.com/astromechza/event-list-sync/pkg/ui"
	"github.com/astromechza/event-list-sync/pkg/view"
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
	storeVar := flag.String("store", "", "the base url of the events store (overrides config)")
	flag.Parse()

	conf, err := config.Load(*configVar)
	if err != nil {
		return err
	}
	if *addrVar != "" {
		conf.UI.Listen = *addrVar
	}
	if *storeVar != "" {
		conf.UI.StoreURL = *storeVar
	}
	if err := conf.SetupLogging(); err != nil {
		return err
	}

	client, err := store.New(conf.UI.StoreURL, store.WithTimeout(conf.UI.RequestTimeout))
	if err != nil {
		return err
	}
	c := controller.New(client, model.New(), view.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A failed initial load is shown as a notice in the page and can be retried from there.
	if err := c.Load(ctx); err != nil {
		slog.Error("initial load failed", "err", err)
	}

	if conf.UI.RefreshCron != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(conf.UI.RefreshCron, func() {
			if err := c.Load(ctx); err != nil {
				slog.Error("scheduled reload failed", "err", err)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule reload: %w", err)
		}
		scheduler.Start()
		defer func() {
			<-scheduler.Stop().Done()
		}()
		slog.Info("scheduled reload", "schedule", conf.UI.RefreshCron)
	}

	uiServer := ui.NewServer(c)
	httpServer := &http.Server{Addr: conf.UI.Listen, Handler: uiServer.Router()}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", conf.UI.Listen, "store", conf.UI.StoreURL)
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down", "err", err)
	}
	uiServer.Close()
	wg.Wait()
	return nil
}
