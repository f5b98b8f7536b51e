package eventstore

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/astromechza/event-list-sync/pkg/httplog"
	"github.com/astromechza/event-list-sync/pkg/viz"
)

const defaultSyncInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Server struct {
	collection   *Collection
	syncInterval time.Duration
}

func NewServer(c *Collection) *Server {
	return &Server{collection: c, syncInterval: defaultSyncInterval}
}

// Router serves the events collection:
//
//	GET    /events
//	POST   /events
//	GET    /events/{id}
//	PATCH  /events/{id}
//	DELETE /events/{id}
//
// Replicas connect to GET /sync and GET /snapshot returns the whole document.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(httplog.Middleware)

	r.Methods(http.MethodGet).Path("/health").HandlerFunc(s.health)
	r.Methods(http.MethodGet).Path("/events").HandlerFunc(s.listEvents)
	r.Methods(http.MethodPost).Path("/events").HandlerFunc(s.createEvent)
	r.Methods(http.MethodGet).Path("/events/{id}").HandlerFunc(s.getEvent)
	r.Methods(http.MethodPatch).Path("/events/{id}").HandlerFunc(s.patchEvent)
	r.Methods(http.MethodDelete).Path("/events/{id}").HandlerFunc(s.deleteEvent)
	r.Methods(http.MethodGet).Path("/snapshot").HandlerFunc(s.snapshot)
	r.Methods(http.MethodGet).Path("/sync").HandlerFunc(s.sync)
	r.Methods(http.MethodGet).Path("/debug/history.svg").HandlerFunc(s.history)
	return r
}

func (s *Server) health(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = writer.Write([]byte("OK"))
}

func (s *Server) listEvents(writer http.ResponseWriter, _ *http.Request) {
	records, err := s.collection.List()
	if err != nil {
		slog.Error("failed to list events", "err", err)
		writeError(writer, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(writer, http.StatusOK, records)
}

func (s *Server) createEvent(writer http.ResponseWriter, request *http.Request) {
	var inputs Fields
	if err := json.NewDecoder(request.Body).Decode(&inputs); err != nil {
		slog.Error("failed to decode body", "err", err)
		writeError(writer, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := s.collection.Create(inputs)
	if err != nil {
		s.writeCollectionError(writer, err)
		return
	}
	slog.Info("created event", "id", record.ID)
	writeJSON(writer, http.StatusCreated, record)
}

func (s *Server) getEvent(writer http.ResponseWriter, request *http.Request) {
	id, ok := pathId(writer, request)
	if !ok {
		return
	}
	record, err := s.collection.Get(id)
	if err != nil {
		s.writeCollectionError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, record)
}

func (s *Server) patchEvent(writer http.ResponseWriter, request *http.Request) {
	id, ok := pathId(writer, request)
	if !ok {
		return
	}
	var inputs Patch
	if err := json.NewDecoder(request.Body).Decode(&inputs); err != nil {
		slog.Error("failed to decode body", "err", err)
		writeError(writer, http.StatusBadRequest, "invalid request body")
		return
	}
	record, err := s.collection.Update(id, inputs)
	if err != nil {
		s.writeCollectionError(writer, err)
		return
	}
	slog.Info("updated event", "id", record.ID)
	writeJSON(writer, http.StatusOK, record)
}

func (s *Server) deleteEvent(writer http.ResponseWriter, request *http.Request) {
	id, ok := pathId(writer, request)
	if !ok {
		return
	}
	if err := s.collection.Delete(id); err != nil {
		s.writeCollectionError(writer, err)
		return
	}
	slog.Info("deleted event", "id", id)
	writeJSON(writer, http.StatusOK, map[string]interface{}{})
}

func (s *Server) snapshot(writer http.ResponseWriter, _ *http.Request) {
	fork, err := s.collection.Fork()
	if err != nil {
		slog.Error("failed to fork", "err", err)
		writeError(writer, http.StatusInternalServerError, "internal error")
		return
	}
	writer.Header().Set("Content-Type", "application/octet-stream")
	if _, err := writer.Write(fork.Save()); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}

func (s *Server) sync(writer http.ResponseWriter, request *http.Request) {
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()
	Sync(request.Context(), conn, s.collection.NewPeer(), s.syncInterval)
}

func (s *Server) history(writer http.ResponseWriter, _ *http.Request) {
	fork, err := s.collection.Fork()
	if err != nil {
		slog.Error("failed to fork", "err", err)
		writeError(writer, http.StatusInternalServerError, "internal error")
		return
	}
	writer.Header().Set("Content-Type", "image/svg+xml")
	if err := viz.RenderHistory(fork, []interface{}{eventsKey}, writer); err != nil {
		slog.Error("failed to render history", "err", err)
	}
}

func (s *Server) writeCollectionError(writer http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(writer, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNameRequired):
		writeError(writer, http.StatusBadRequest, err.Error())
	default:
		slog.Error("collection operation failed", "err", err)
		writeError(writer, http.StatusInternalServerError, "internal error")
	}
}

func pathId(writer http.ResponseWriter, request *http.Request) (int64, bool) {
	raw := mux.Vars(request)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// An id we could never have assigned cannot exist.
		writeError(writer, http.StatusNotFound, ErrNotFound.Error())
		return 0, false
	}
	return id, true
}

func writeJSON(writer http.ResponseWriter, status int, v interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		slog.Error("failed to write", "err", err)
	}
}

func writeError(writer http.ResponseWriter, status int, msg string) {
	writeJSON(writer, status, map[string]string{"error": msg})
}
