package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/navikt/myrooms/internal/logging"
	"github.com/navikt/myrooms/internal/models"
	"github.com/navikt/myrooms/internal/repository"
	"github.com/navikt/myrooms/internal/roomapi"
	"github.com/navikt/myrooms/internal/utils"
)

// PageTitle is the title of the room list page
const PageTitle = "나의 방"

// A page load mounts its own view. Requests from the page name the view with
// the header (htmx) or the query parameter (EventSource and beacons).
const (
	ViewIDHeader = "X-View-ID"
	ViewIDParam  = "view"
)

// Messages shown in the join-room modal
const (
	msgRoomIDRequired = "방 번호를 입력해 주세요."
	msgEnterFailed    = "방에 입장하지 못했습니다. 방 번호와 비밀번호를 확인해 주세요."
)

// Handler manages web UI requests
type Handler struct {
	views      ViewServicer
	templates  *template.Template
	sseManager *SSEManager
	staticDir  string
	logger     *zap.SugaredLogger
}

// ModalView is the view model of the join-room modal
type ModalView struct {
	Open   bool
	RoomID string
	Error  string
}

// PageView is the view model of the full page
type PageView struct {
	ViewID      string
	Title       string
	Rows        []models.RoomRow
	UpdatedAt   time.Time
	Modal       ModalView
	CurrentYear int
}

// NewHandler creates a new web UI handler
func NewHandler(views ViewServicer, sseManager *SSEManager, logger *zap.SugaredLogger, templatesDir, staticDir string) (*Handler, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"formatTime": formatTime,
	}).ParseGlob(filepath.Join(templatesDir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	if sseManager == nil {
		sseManager = NewSSEManager(logger)
	}

	return &Handler{
		views:      views,
		templates:  tmpl,
		sseManager: sseManager,
		staticDir:  staticDir,
		logger:     logger,
	}, nil
}

// formatTime is a template helper function to format time
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("15:04:05")
}

// SetupRoutes registers web UI routes on the given router
func (h *Handler) SetupRoutes(r chi.Router) {
	fileServer := http.FileServer(http.Dir(h.staticDir))
	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/my-rooms", http.StatusFound)
		})
		r.Get("/my-rooms", h.handleMyRooms)
		r.Get("/partial/rooms", h.HandlePartialRoomList)
		r.Post("/my-rooms/modal/open", h.handleOpenModal)
		r.Post("/my-rooms/modal/cancel", h.handleCancelModal)
		r.Post("/my-rooms/enter", h.handleEnterRoom)
		r.Post("/my-rooms/unmount", h.handleUnmount)

		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
				AllowedHeaders:   []string{"Content-Type", "Last-Event-ID"},
				AllowCredentials: false,
				MaxAge:           300,
			}))
			r.Get("/events", h.handleEvents)
			r.Options("/events", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		})
	})
}

// viewKey identifies a mounted view: the browser session plus the page's view ID.
// A view ID is only valid together with the session cookie it was issued to.
func viewKey(sessionID, viewID string) string {
	return sessionID + ":" + viewID
}

// requestViewKey returns the view named by the request, answering 400 when it is missing
func requestViewKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID, _ := SessionIDFromContext(r.Context())

	raw := r.Header.Get(ViewIDHeader)
	if raw == "" {
		raw = r.URL.Query().Get(ViewIDParam)
	}
	viewID, err := uuid.Parse(raw)
	if sessionID == "" || err != nil {
		http.Error(w, "Missing or invalid view ID", http.StatusBadRequest)
		return "", false
	}
	return viewKey(sessionID, viewID.String()), true
}

// handleMyRooms mounts a fresh room list view for this page load and renders the page
func (h *Handler) handleMyRooms(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := SessionIDFromContext(r.Context())
	viewID := uuid.NewString()
	key := viewKey(sessionID, viewID)

	// The stream must exist before the first fetch can land
	h.sseManager.ResetStream(key)

	state, err := h.views.Mount(r.Context(), key, roomapi.CredentialsFromRequest(r))
	if err != nil {
		h.sseManager.RemoveStream(key)
		h.logger.Errorf("Error mounting room list for view %s: %v", utils.SanitizeLogString(key), err)
		http.Error(w, "Failed to load rooms", http.StatusInternalServerError)
		return
	}

	viewModel := PageView{
		ViewID:      viewID,
		Title:       PageTitle,
		Rows:        state.Rows(),
		UpdatedAt:   state.UpdatedAt,
		Modal:       ModalView{Open: state.ModalOpen()},
		CurrentYear: time.Now().Year(),
	}
	h.render(w, "layout.html", viewModel)
}

// HandlePartialRoomList renders just the room list for HTMX updates
func (h *Handler) HandlePartialRoomList(w http.ResponseWriter, r *http.Request) {
	key, ok := requestViewKey(w, r)
	if !ok {
		return
	}

	state, err := h.views.State(r.Context(), key)
	if err != nil {
		h.handleStateError(w, key, err)
		return
	}

	h.render(w, "room_list", PageView{Rows: state.Rows(), UpdatedAt: state.UpdatedAt})
}

// handleOpenModal opens the join-room modal. The list is not refetched.
func (h *Handler) handleOpenModal(w http.ResponseWriter, r *http.Request) {
	key, ok := requestViewKey(w, r)
	if !ok {
		return
	}

	if err := h.views.OpenModal(r.Context(), key, roomapi.CredentialsFromRequest(r)); err != nil {
		h.handleStateError(w, key, err)
		return
	}

	h.render(w, "enter_room_modal", ModalView{Open: true})
}

// handleCancelModal closes the modal without joining; the list is refetched
func (h *Handler) handleCancelModal(w http.ResponseWriter, r *http.Request) {
	key, ok := requestViewKey(w, r)
	if !ok {
		return
	}

	err := h.views.CloseModal(r.Context(), key, roomapi.CredentialsFromRequest(r), models.ModalEventCancel)
	if err != nil {
		h.handleStateError(w, key, err)
		return
	}

	h.render(w, "enter_room_modal", ModalView{})
}

// handleEnterRoom submits the join-room form. On success the modal closes
// and the list is refetched; on failure the modal stays open with an error.
func (h *Handler) handleEnterRoom(w http.ResponseWriter, r *http.Request) {
	key, ok := requestViewKey(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	req := roomapi.EnterRoomRequest{
		RoomID:   strings.TrimSpace(r.PostForm.Get("roomId")),
		Password: r.PostForm.Get("password"),
	}
	if req.RoomID == "" {
		h.render(w, "enter_room_modal", ModalView{Open: true, Error: msgRoomIDRequired})
		return
	}

	err := h.views.EnterRoom(r.Context(), key, roomapi.CredentialsFromRequest(r), req)
	if errors.Is(err, repository.ErrNotFound) {
		h.handleStateError(w, key, err)
		return
	}
	if err != nil {
		h.render(w, "enter_room_modal", ModalView{Open: true, RoomID: req.RoomID, Error: msgEnterFailed})
		return
	}

	h.render(w, "enter_room_modal", ModalView{})
}

// handleEvents streams view updates of the session
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	key, ok := requestViewKey(w, r)
	if !ok {
		return
	}

	if !h.sseManager.HasStream(key) {
		// Another instance may have mounted the view
		if _, err := h.views.State(r.Context(), key); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				http.Error(w, "No room list for this view", http.StatusNotFound)
				return
			}
			h.logger.Errorf("Error loading view %s for SSE: %v", utils.SanitizeLogString(key), err)
			http.Error(w, "Failed to load view", http.StatusInternalServerError)
			return
		}
	}

	h.sseManager.ServeSession(w, r, key)
}

// handleUnmount discards the view of a page that is going away
func (h *Handler) handleUnmount(w http.ResponseWriter, r *http.Request) {
	key, ok := requestViewKey(w, r)
	if !ok {
		return
	}

	if err := h.views.Unmount(r.Context(), key); err != nil {
		h.logger.Errorf("Error unmounting view %s: %v", utils.SanitizeLogString(key), err)
		http.Error(w, "Failed to unmount view", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStateError answers requests for views that are gone by sending
// the browser back to the page, which mounts a fresh view
func (h *Handler) handleStateError(w http.ResponseWriter, key string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		w.Header().Set("HX-Redirect", "/my-rooms")
		w.WriteHeader(http.StatusOK)
		return
	}

	h.logger.Errorf("Error handling room list for view %s: %v", utils.SanitizeLogString(key), err)
	http.Error(w, "Failed to get room data", http.StatusInternalServerError)
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Errorf("Error rendering template %s: %v", name, err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// NotifyViewUpdate sends an update notification to the page showing a view.
// This should be called whenever a view's room list changes.
func (h *Handler) NotifyViewUpdate(key string) {
	h.sseManager.NotifyViewUpdate(key)
}

// NotifyViewUnmount closes the event stream of an unmounted view
func (h *Handler) NotifyViewUnmount(key string) {
	h.sseManager.RemoveStream(key)
}

// Shutdown gracefully shuts down the web handler and its SSE manager
func (h *Handler) Shutdown() {
	h.sseManager.Shutdown()
}
