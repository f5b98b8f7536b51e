package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/automerge/automerge-go"

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
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	svgVar := flag.Bool("svg", false, "render the change history to an svg in the temp dir")
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the file to read or the url of a store server")
	}
	doc, err := loadDoc(flag.Arg(0))
	if err != nil {
		return err
	}
	slog.Info("loaded heads", "heads", doc.Heads())

	records, err := eventstore.ListDoc(doc)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	for _, r := range records {
		slog.Info("event", "id", r.ID, "name", r.EventName, "start", r.StartDate, "end", r.EndDate)
	}

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	for i, change := range changes {
		slog.Info("change", "i", fmt.Sprintf("%4d", i), "hash", change.Hash(), "actor", change.ActorID(), "seq", change.ActorSeq(), "message", change.Message(), "dep", change.Dependencies())
	}

	if *svgVar {
		path, err := viz.RenderToTemp(doc, []interface{}{"events"})
		if err != nil {
			return fmt.Errorf("failed to render history: %w", err)
		}
		slog.Info("wrote history", "path", path)
	}
	return nil
}

func loadDoc(arg string) (*automerge.Doc, error) {
	if u, err := url.Parse(arg); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		c, err := eventstore.FetchCollection(context.Background(), u)
		if err != nil {
			return nil, err
		}
		return c.Fork()
	}
	f, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()
	buff, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	doc, err := automerge.Load(buff)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	return doc, nil
}
