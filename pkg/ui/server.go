// Package ui exposes the controller as a plain HTML front-end. Every affordance in the rendered table is a form post
// handled here; answers redirect back to the page so the browser never resubmits.
package ui

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/astromechza/event-list-sync/pkg/controller"
	"github.com/astromechza/event-list-sync/pkg/event"
	"github.com/astromechza/event-list-sync/pkg/httplog"
)

type Server struct {
	controller *controller.Controller

	// ctx ends the live connections, which http.Server.Shutdown does not track once hijacked.
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	conns  sync.WaitGroup
}

func NewServer(c *controller.Controller) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{controller: c, ctx: ctx, cancel: cancel}
}

// Close ends every live connection and waits for their loops to return.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.conns.Wait()
}

// track registers a live connection. It reports false once the server is closed.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns.Add(1)
	return true
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(httplog.Middleware)

	r.Methods(http.MethodGet).Path("/").HandlerFunc(s.page)
	r.Methods(http.MethodGet).Path("/table").HandlerFunc(s.table)
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(s.health)
	r.Methods(http.MethodGet).Path("/live").HandlerFunc(s.live)

	r.Methods(http.MethodPost).Path("/drafts").HandlerFunc(s.addDraft)
	r.Methods(http.MethodPost).Path("/drafts/{key}/confirm").HandlerFunc(s.confirmDraft)
	r.Methods(http.MethodPost).Path("/drafts/{key}/discard").HandlerFunc(s.discardDraft)

	r.Methods(http.MethodPost).Path("/events/{id}/edit").HandlerFunc(s.startEdit)
	r.Methods(http.MethodPost).Path("/events/{id}/cancel").HandlerFunc(s.cancelEdit)
	r.Methods(http.MethodPost).Path("/events/{id}/save").HandlerFunc(s.saveEdit)
	r.Methods(http.MethodPost).Path("/events/{id}/delete").HandlerFunc(s.deleteEvent)

	r.Methods(http.MethodPost).Path("/notice/dismiss").HandlerFunc(s.dismissNotice)
	r.Methods(http.MethodPost).Path("/reload").HandlerFunc(s.reload)
	return r
}

func (s *Server) health(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = writer.Write([]byte("OK"))
}

func (s *Server) page(writer http.ResponseWriter, _ *http.Request) {
	var buff bytes.Buffer
	if err := s.controller.WritePage(&buff); err != nil {
		slog.Error("failed to render page", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = writer.Write(buff.Bytes())
}

func (s *Server) table(writer http.ResponseWriter, _ *http.Request) {
	var buff bytes.Buffer
	if err := s.controller.WriteTable(&buff); err != nil {
		slog.Error("failed to render table", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = writer.Write(buff.Bytes())
}

func (s *Server) addDraft(writer http.ResponseWriter, request *http.Request) {
	s.controller.AddDraft()
	redirect(writer, request)
}

func (s *Server) confirmDraft(writer http.ResponseWriter, request *http.Request) {
	if err := request.ParseForm(); err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	input := event.Draft{
		Name:      request.PostForm.Get("eventName"),
		StartDate: event.Date(request.PostForm.Get("startDate")),
		EndDate:   event.Date(request.PostForm.Get("endDate")),
	}
	_, err := s.controller.ConfirmDraft(storeContext(request), mux.Vars(request)["key"], input)
	s.respond(writer, request, err)
}

func (s *Server) discardDraft(writer http.ResponseWriter, request *http.Request) {
	s.respond(writer, request, s.controller.DiscardDraft(mux.Vars(request)["key"]))
}

func (s *Server) startEdit(writer http.ResponseWriter, request *http.Request) {
	s.respond(writer, request, s.controller.StartEdit(pathId(request)))
}

func (s *Server) cancelEdit(writer http.ResponseWriter, request *http.Request) {
	s.respond(writer, request, s.controller.CancelEdit(pathId(request)))
}

func (s *Server) saveEdit(writer http.ResponseWriter, request *http.Request) {
	if err := request.ParseForm(); err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	input := event.Edit{
		Name:      request.PostForm.Get("eventName"),
		StartDate: event.Date(request.PostForm.Get("startDate")),
		EndDate:   event.Date(request.PostForm.Get("endDate")),
	}
	s.respond(writer, request, s.controller.SaveEdit(storeContext(request), pathId(request), input))
}

func (s *Server) deleteEvent(writer http.ResponseWriter, request *http.Request) {
	s.respond(writer, request, s.controller.Delete(storeContext(request), pathId(request)))
}

// reload fetches the whole collection again and re-renders every row.
func (s *Server) reload(writer http.ResponseWriter, request *http.Request) {
	if err := s.controller.Load(storeContext(request)); err != nil {
		slog.Error("reload failed", "err", err)
	}
	redirect(writer, request)
}

func (s *Server) dismissNotice(writer http.ResponseWriter, request *http.Request) {
	s.controller.DismissNotice()
	redirect(writer, request)
}

// respond redirects back to the page. Validation, store and busy errors are already shown as notices in the view so
// only unknown keys are answered differently.
func (s *Server) respond(writer http.ResponseWriter, request *http.Request, err error) {
	switch {
	case errors.Is(err, controller.ErrUnknownRecord), errors.Is(err, controller.ErrUnknownDraft):
		http.Error(writer, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, controller.ErrBusy):
		slog.Info("rejected re-entrant request", "url", request.URL)
	case err != nil:
		slog.Debug("action failed", "url", request.URL, "err", err)
	}
	redirect(writer, request)
}

func redirect(writer http.ResponseWriter, request *http.Request) {
	http.Redirect(writer, request, "/", http.StatusSeeOther)
}

func pathId(request *http.Request) event.ID {
	return event.ID(mux.Vars(request)["id"])
}

// storeContext detaches the store call from the request. A browser that navigates away must not abort a call whose
// result still has to be applied to the model and the view.
func storeContext(request *http.Request) context.Context {
	return context.WithoutCancel(request.Context())
}
