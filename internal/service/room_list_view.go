package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/navikt/myrooms/internal/metrics"
	"github.com/navikt/myrooms/internal/models"
	"github.com/navikt/myrooms/internal/repository"
	"github.com/navikt/myrooms/internal/roomapi"
	"github.com/navikt/myrooms/internal/utils"
)

// errViewUnmounted is returned when an operation reaches a view after it was unmounted
var errViewUnmounted = errors.New("view unmounted")

// RoomListView is the room list of one browser session. It owns the room list
// and the join-room modal state, and refetches the list on mount and every
// time an open modal is closed.
type RoomListView struct {
	sessionID string
	api       RoomAPI
	repo      repository.Repository
	logger    *zap.SugaredLogger
	metrics   *metrics.Metrics
	onUpdate  func(sessionID string)

	// ctx is cancelled when the view stops; in-flight fetches use it
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	creds     roomapi.Credentials // from the latest request that reached the view
	started   uint64              // sequence number of the most recently started fetch
	applied   uint64              // sequence number of the fetch whose result is stored
	mounted   bool                // state exists in the repository
	unmounted bool
}

func newRoomListView(s *ViewService, sessionID string, creds roomapi.Credentials) *RoomListView {
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomListView{
		sessionID: sessionID,
		creds:     creds,
		api:       s.api,
		repo:      s.repo,
		logger:    s.logger,
		metrics:   s.metrics,
		onUpdate:  s.notifyUpdate,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SessionID returns the session this view belongs to
func (v *RoomListView) SessionID() string {
	return v.sessionID
}

// mount stores fresh state and starts the initial fetch
func (v *RoomListView) mount(ctx context.Context) error {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return errViewUnmounted
	}
	err := v.repo.CreateSession(ctx, models.NewViewState(v.sessionID, time.Now()))
	v.mounted = err == nil
	v.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to mount view: %w", err)
	}

	v.fetchRooms()
	return nil
}

// setCredentials replaces the credentials used by later fetches
func (v *RoomListView) setCredentials(creds roomapi.Credentials) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.creds = creds
}

// isMounted reports whether the view has stored its state and is still live
func (v *RoomListView) isMounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted && !v.unmounted
}

// OpenModal opens the join-room modal. It never fetches.
func (v *RoomListView) OpenModal(ctx context.Context) error {
	_, err := v.transition(ctx, models.ModalEventOpen)
	return err
}

// CloseModal closes the modal through save or cancel. Closing an open modal
// starts exactly one fetch; closing an already closed modal does nothing.
func (v *RoomListView) CloseModal(ctx context.Context, event models.ModalEvent) error {
	if event == models.ModalEventOpen {
		return fmt.Errorf("%s is not a closing event", event)
	}
	_, err := v.transition(ctx, event)
	return err
}

// transition applies a modal event and reports whether the state changed
func (v *RoomListView) transition(ctx context.Context, event models.ModalEvent) (bool, error) {
	previous, err := v.repo.SwapModalState(ctx, v.sessionID, event.TargetState())
	if err != nil {
		return false, fmt.Errorf("failed to %s modal: %w", event, err)
	}

	next, ok := previous.Next(event)
	if !ok {
		return false, nil
	}
	v.metrics.RecordModalTransition(event.String())

	if models.TriggersRefetch(previous, next) {
		v.fetchRooms()
	}
	return true, nil
}

// completeJoin closes the modal after a successful join. The list is refetched
// even when the modal was already closed, since membership changed.
func (v *RoomListView) completeJoin(ctx context.Context) error {
	changed, err := v.transition(ctx, models.ModalEventSave)
	if err != nil {
		return err
	}
	if !changed {
		v.fetchRooms()
	}
	return nil
}

// fetchRooms loads the room list in the background. The caller never waits:
// pages render whatever state is stored until the update callback fires.
func (v *RoomListView) fetchRooms() {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return
	}
	v.started++
	seq := v.started
	creds := v.creds
	v.wg.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.wg.Done()

		start := time.Now()
		resp, err := v.api.GetUserEnteredRoom(v.ctx, creds)
		if err != nil {
			if v.ctx.Err() != nil {
				v.metrics.RecordFetch(metrics.FetchDiscarded, time.Since(start))
				return
			}
			// The previous list stays on screen
			v.logger.Errorf("Error fetching rooms for session %s: %v", utils.SanitizeLogString(v.sessionID), err)
			v.metrics.RecordFetch(metrics.FetchFailure, time.Since(start))
			return
		}

		if v.apply(seq, resp.Data, time.Since(start)) {
			v.onUpdate(v.sessionID)
		}
	}()
}

// apply stores a fetch result unless the view is gone or a newer fetch already landed
func (v *RoomListView) apply(seq uint64, rooms []models.RoomSummary, elapsed time.Duration) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.unmounted || seq < v.applied {
		v.metrics.RecordFetch(metrics.FetchDiscarded, elapsed)
		return false
	}

	if err := v.repo.ReplaceRooms(v.ctx, v.sessionID, rooms); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			v.logger.Infof("Session %s expired before its rooms arrived", utils.SanitizeLogString(v.sessionID))
			v.metrics.RecordFetch(metrics.FetchDiscarded, elapsed)
			return false
		}
		v.logger.Errorf("Error storing rooms for session %s: %v", utils.SanitizeLogString(v.sessionID), err)
		v.metrics.RecordFetch(metrics.FetchFailure, elapsed)
		return false
	}

	v.applied = seq
	v.metrics.RecordFetch(metrics.FetchSuccess, elapsed)
	v.logger.Debugf("Stored %d rooms for session %s", len(rooms), utils.SanitizeLogString(v.sessionID))
	return true
}

// Rows returns the rendered rows of the stored room list
func (v *RoomListView) Rows(ctx context.Context) ([]models.RoomRow, error) {
	state, err := v.repo.GetViewState(ctx, v.sessionID)
	if err != nil {
		return nil, err
	}
	return state.Rows(), nil
}

// Wait blocks until all fetches started so far have finished
func (v *RoomListView) Wait() {
	v.wg.Wait()
}

// stop cancels in-flight fetches and prevents new ones. State is kept.
func (v *RoomListView) stop() {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return
	}
	v.unmounted = true
	v.mu.Unlock()

	v.cancel()
	v.wg.Wait()
}

// unmount stops the view and discards its state
func (v *RoomListView) unmount(ctx context.Context) error {
	v.stop()

	if err := v.repo.DeleteSession(ctx, v.sessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}
