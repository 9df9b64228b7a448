// Package service holds the room list views and their lifecycle
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/navikt/myrooms/internal/logging"
	"github.com/navikt/myrooms/internal/metrics"
	"github.com/navikt/myrooms/internal/models"
	"github.com/navikt/myrooms/internal/repository"
	"github.com/navikt/myrooms/internal/roomapi"
	"github.com/navikt/myrooms/internal/utils"
)

// RoomAPI is the part of the room API client used by the views
type RoomAPI interface {
	GetUserEnteredRoom(ctx context.Context, creds roomapi.Credentials) (*roomapi.RoomsResponse, error)
	EnterRoom(ctx context.Context, creds roomapi.Credentials, req roomapi.EnterRoomRequest) error
}

// ViewUpdateCallback is called with the session ID after a fetch replaced its room list
type ViewUpdateCallback func(sessionID string)

// ViewService keeps the mounted room list views of this instance, keyed by view key
// (browser session plus the page's view ID)
type ViewService struct {
	repo    repository.Repository
	api     RoomAPI
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics

	mu    sync.Mutex
	views map[string]*RoomListView

	callbacksMu      sync.RWMutex
	updateCallbacks  []ViewUpdateCallback
	unmountCallbacks []ViewUpdateCallback
}

// NewViewService creates a new ViewService
func NewViewService(repo repository.Repository, api RoomAPI, logger *zap.SugaredLogger, m *metrics.Metrics) *ViewService {
	if logger == nil {
		logger = logging.Nop()
	}
	if m == nil {
		m = metrics.New()
	}

	return &ViewService{
		repo:    repo,
		api:     api,
		logger:  logger,
		metrics: m,
		views:   make(map[string]*RoomListView),
	}
}

// RegisterUpdateCallback registers a callback to be called when a view's room list changes
func (s *ViewService) RegisterUpdateCallback(callback ViewUpdateCallback) {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	s.updateCallbacks = append(s.updateCallbacks, callback)
}

// RegisterUnmountCallback registers a callback to be called when a view is unmounted or expires
func (s *ViewService) RegisterUnmountCallback(callback ViewUpdateCallback) {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	s.unmountCallbacks = append(s.unmountCallbacks, callback)
}

// notifyUpdate calls all registered update callbacks
func (s *ViewService) notifyUpdate(sessionID string) {
	s.callbacksMu.RLock()
	callbacks := make([]ViewUpdateCallback, len(s.updateCallbacks))
	copy(callbacks, s.updateCallbacks)
	s.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		callback(sessionID)
	}
}

func (s *ViewService) notifyUnmount(sessionID string) {
	s.callbacksMu.RLock()
	callbacks := make([]ViewUpdateCallback, len(s.unmountCallbacks))
	copy(callbacks, s.unmountCallbacks)
	s.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		callback(sessionID)
	}
}

// Mount mounts a fresh view for the session and starts its first fetch.
// A session that already has a view is remounted: the old view is unmounted
// first, so a page reload starts from an empty list like a new page would.
// The returned state is what the page renders before the fetch lands.
func (s *ViewService) Mount(ctx context.Context, sessionID string, creds roomapi.Credentials) (*models.ViewState, error) {
	view := newRoomListView(s, sessionID, creds)

	s.mu.Lock()
	old := s.views[sessionID]
	s.views[sessionID] = view
	s.mu.Unlock()
	s.metrics.ViewMounted()

	if old != nil {
		if err := old.unmount(ctx); err != nil {
			s.logger.Warnf("Error unmounting previous view of session %s: %v", utils.SanitizeLogString(sessionID), err)
		}
		s.metrics.ViewUnmounted()
	}

	if err := view.mount(ctx); err != nil {
		if !errors.Is(err, errViewUnmounted) {
			s.forget(view)
			return nil, err
		}
		// A concurrent mount of the same session replaced this view
	} else {
		s.logger.Infof("Mounted room list view for session %s", utils.SanitizeLogString(sessionID))
	}

	return s.repo.GetViewState(ctx, sessionID)
}

// forget drops a view from the registry if it is still the registered one
func (s *ViewService) forget(view *RoomListView) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views[view.sessionID] != view {
		return false
	}
	delete(s.views, view.sessionID)
	s.metrics.ViewUnmounted()
	return true
}

// attach returns the local view of a session, switching it to the caller's
// credentials. A session whose state exists in the repository but has no view
// on this instance (after a restart, or when served by another replica) gets a
// view attached without resetting its state.
func (s *ViewService) attach(ctx context.Context, sessionID string, creds roomapi.Credentials) (*RoomListView, error) {
	s.mu.Lock()
	view, ok := s.views[sessionID]
	s.mu.Unlock()
	if ok {
		view.setCredentials(creds)
		return view, nil
	}

	if _, err := s.repo.GetViewState(ctx, sessionID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.views[sessionID]; ok {
		existing.setCredentials(creds)
		return existing, nil
	}
	view = newRoomListView(s, sessionID, creds)
	view.mounted = true
	s.views[sessionID] = view
	s.metrics.ViewMounted()
	return view, nil
}

// View returns the local view of a session, if any
func (s *ViewService) View(sessionID string) (*RoomListView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.views[sessionID]
	return view, ok
}

// OpenModal opens the join-room modal of a session
func (s *ViewService) OpenModal(ctx context.Context, sessionID string, creds roomapi.Credentials) error {
	view, err := s.attach(ctx, sessionID, creds)
	if err != nil {
		return err
	}
	return view.OpenModal(ctx)
}

// CloseModal closes the join-room modal of a session with save or cancel
func (s *ViewService) CloseModal(ctx context.Context, sessionID string, creds roomapi.Credentials, event models.ModalEvent) error {
	view, err := s.attach(ctx, sessionID, creds)
	if err != nil {
		return err
	}
	return view.CloseModal(ctx, event)
}

// EnterRoom submits the join-room form. On success the modal closes with save
// and the list is refetched. On failure the modal stays open and the error is returned.
func (s *ViewService) EnterRoom(ctx context.Context, sessionID string, creds roomapi.Credentials, req roomapi.EnterRoomRequest) error {
	view, err := s.attach(ctx, sessionID, creds)
	if err != nil {
		return err
	}

	if err := s.api.EnterRoom(ctx, creds, req); err != nil {
		s.logger.Warnf("Error entering room %s for session %s: %v",
			utils.SanitizeLogString(req.RoomID), utils.SanitizeLogString(sessionID), err)
		return fmt.Errorf("failed to enter room: %w", err)
	}

	return view.completeJoin(ctx)
}

// State returns the stored state of a session and marks the session active
func (s *ViewService) State(ctx context.Context, sessionID string) (*models.ViewState, error) {
	state, err := s.repo.GetViewState(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Touch(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warnf("Error touching session %s: %v", utils.SanitizeLogString(sessionID), err)
	}
	return state, nil
}

// Rows returns the rendered rows of a session
func (s *ViewService) Rows(ctx context.Context, sessionID string) ([]models.RoomRow, error) {
	state, err := s.State(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return state.Rows(), nil
}

// Unmount unmounts the view of a session and discards its state
func (s *ViewService) Unmount(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	view, ok := s.views[sessionID]
	delete(s.views, sessionID)
	s.mu.Unlock()

	if !ok {
		err := s.repo.DeleteSession(ctx, sessionID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	s.metrics.ViewUnmounted()
	err := view.unmount(ctx)
	s.notifyUnmount(sessionID)
	return err
}

// SweepExpired stops local views whose session state has expired and returns how many were stopped
func (s *ViewService) SweepExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	views := make([]*RoomListView, 0, len(s.views))
	for _, view := range s.views {
		views = append(views, view)
	}
	s.mu.Unlock()

	// Only views whose state was stored before the listing can be expired
	mounted := views[:0]
	for _, view := range views {
		if view.isMounted() {
			mounted = append(mounted, view)
		}
	}
	views = mounted

	if len(views) == 0 {
		return 0, nil
	}

	ids, err := s.repo.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	live := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		live[id] = struct{}{}
	}

	swept := 0
	for _, view := range views {
		if _, ok := live[view.sessionID]; ok {
			continue
		}

		view.stop()
		if !s.forget(view) {
			continue
		}
		swept++
		s.notifyUnmount(view.sessionID)
		s.logger.Infof("Unmounted expired view of session %s", utils.SanitizeLogString(view.sessionID))
	}

	return swept, nil
}

// Shutdown stops all local views, cancelling in-flight fetches. Stored state is
// kept so sessions survive a restart when the store is shared.
func (s *ViewService) Shutdown() {
	s.mu.Lock()
	views := s.views
	s.views = make(map[string]*RoomListView)
	s.mu.Unlock()

	for _, view := range views {
		view.stop()
		s.metrics.ViewUnmounted()
	}
}
