package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"nurscan/Packages/rfid/models"
	"nurscan/pkg/domain"
	"nurscan/pkg/storage"
	"nurscan/pkg/view"
)

type Toggler interface {
	Toggle()
}

// Board read side of the scan session
type Board interface {
	State() view.State
	Tags() []models.Tag
	Tag(row int) (models.Tag, bool)
	Lookup(epc string) (models.Tag, bool)
	Subscribe() (<-chan view.Change, func())
}

type Archive interface {
	Session(id string) (domain.ScanSession, error)
	Sessions() ([]domain.ScanSession, error)
}

type Handler struct {
	scanner  Toggler
	board    Board
	archive  Archive
	gatherer prometheus.Gatherer
}

func NewRouter(scanner Toggler, board Board, archive Archive, gatherer prometheus.Gatherer) http.Handler {
	h := &Handler{scanner: scanner, board: board, archive: archive, gatherer: gatherer}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/inventory", func(r chi.Router) {
		r.Get("/", h.inventoryState)
		r.Post("/toggle", h.toggle)
	})

	r.Route("/tags", func(r chi.Router) {
		r.Get("/", h.listTags)
		r.Get("/{row}", h.tagByRow)
		r.Get("/epc/{epc}", h.tagByEPC)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.listSessions)
		r.Get("/{id}", h.session)
	})

	r.Get("/ws", h.stream)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// toggle is fire and forget, the new state shows up on /inventory and /ws
func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	h.scanner.Toggle()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) inventoryState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.board.State())
}

func (h *Handler) listTags(w http.ResponseWriter, r *http.Request) {
	tags := h.board.Tags()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(tags),
		"tags":  tags,
	})
}

func (h *Handler) tagByRow(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "row must be a number")
		return
	}

	tag, ok := h.board.Tag(row)
	if !ok {
		writeError(w, http.StatusNotFound, "no tag at row "+strconv.Itoa(row))
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

func (h *Handler) tagByEPC(w http.ResponseWriter, r *http.Request) {
	epc := chi.URLParam(r, "epc")
	tag, ok := h.board.Lookup(epc)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown epc "+epc)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.archive.Sessions()
	if err != nil {
		log.Err(err).Msg("failed to list sessions")
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.archive.Session(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown session "+id)
		return
	}
	if err != nil {
		log.Err(err).Str("session", id).Msg("failed to get session")
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
