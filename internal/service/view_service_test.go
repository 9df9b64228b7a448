package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/navikt/myrooms/internal/metrics"
	"github.com/navikt/myrooms/internal/models"
	"github.com/navikt/myrooms/internal/repository"
	"github.com/navikt/myrooms/internal/repository/memory"
	"github.com/navikt/myrooms/internal/roomapi"
	"github.com/navikt/myrooms/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testCreds = roomapi.Credentials{AccessToken: "token"}

	studyRoom  = models.RoomSummary{RoomID: "1", Title: "Study", IsAdmin: true, UserName: "A"}
	aiRoom     = models.RoomSummary{RoomID: "2", Title: "인공지능", IsAdmin: false, UserName: "이도연"}
	springRoom = models.RoomSummary{RoomID: "3", Title: "스프링", IsAdmin: false, UserName: "이승건"}
)

func waitForView(t *testing.T, svc *service.ViewService, sessionID string) {
	t.Helper()
	view, ok := svc.View(sessionID)
	require.True(t, ok, "view should be mounted")
	view.Wait()
}

func TestMount_RendersFetchedRooms(t *testing.T) {
	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, testCreds).Return(roomsResponse(studyRoom, aiRoom, springRoom), nil)

	svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
	updates := newUpdateRecorder()
	svc.RegisterUpdateCallback(updates.OnUpdate)
	ctx := context.Background()

	state, err := svc.Mount(ctx, "session1", testCreds)
	require.NoError(t, err)
	assert.Equal(t, "session1", state.SessionID)
	assert.Equal(t, models.ModalClosed, state.Modal)

	waitForView(t, svc, "session1")

	rows, err := svc.Rows(ctx, "session1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Server order and keys are preserved
	assert.Equal(t, []string{"1", "2", "3"}, []string{rows[0].Key, rows[1].Key, rows[2].Key})
	assert.Equal(t, "본인", rows[0].Manager)
	assert.Equal(t, "이도연", rows[1].Manager)
	assert.Equal(t, "이승건", rows[2].Manager)

	assert.Equal(t, 1, updates.Count())
	assert.Equal(t, "session1", <-updates.ch)
	api.AssertNumberOfCalls(t, "GetUserEnteredRoom", 1)
}

func TestMount_SingleAdminRoom(t *testing.T) {
	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(roomsResponse(studyRoom), nil)

	svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
	ctx := context.Background()

	_, err := svc.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	waitForView(t, svc, "s")

	rows, err := svc.Rows(ctx, "s")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.RoomRow{Key: "1", ID: "1", Name: "Study", Manager: "본인"}, rows[0])
}

func TestModal_OpenDoesNotFetchAndCloseFetchesOnce(t *testing.T) {
	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(roomsResponse(studyRoom), nil)

	svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
	ctx := context.Background()

	_, err := svc.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	waitForView(t, svc, "s")
	api.AssertNumberOfCalls(t, "GetUserEnteredRoom", 1)

	t.Run("OpenDoesNotFetch", func(t *testing.T) {
		require.NoError(t, svc.OpenModal(ctx, "s", testCreds))
		waitForView(t, svc, "s")

		state, err := svc.State(ctx, "s")
		require.NoError(t, err)
		assert.True(t, state.ModalOpen())
		api.AssertNumberOfCalls(t, "GetUserEnteredRoom", 1)

		// Opening twice is a no-op
		require.NoError(t, svc.OpenModal(ctx, "s", testCreds))
		waitForView(t, svc, "s")
		api.AssertNumberOfCalls(t, "GetUserEnteredRoom", 1)
	})

	t.Run("CancelFetchesOnce", func(t *testing.T) {
		require.NoError(t, svc.CloseModal(ctx, "s", testCreds, models.ModalEventCancel))
		waitForView(t, svc, "s")

		state, err := svc.State(ctx, "s")
		require.NoError(t, err)
		assert.False(t, state.ModalOpen())
		api.AssertNumberOfCalls(t, "GetUserEnteredRoom", 2)
	})

	t.Run("ClosingClosedModalDoesNotFetch", func(t *testing.T) {
		require.NoError(t, svc.CloseModal(ctx, "s", testCreds, models.ModalEventCancel))
		require.NoError(t, svc.CloseModal(ctx, "s", testCreds, models.ModalEventSave))
		waitForView(t, svc, "s")
		api.AssertNumberOfCalls(t, "GetUserEnteredRoom", 2)
	})

	t.Run("SaveFetchesOnce", func(t *testing.T) {
		require.NoError(t, svc.OpenModal(ctx, "s", testCreds))
		require.NoError(t, svc.CloseModal(ctx, "s", testCreds, models.ModalEventSave))
		waitForView(t, svc, "s")
		api.AssertNumberOfCalls(t, "GetUserEnteredRoom", 3)
	})

	t.Run("OpenIsNotAClosingEvent", func(t *testing.T) {
		assert.Error(t, svc.CloseModal(ctx, "s", testCreds, models.ModalEventOpen))
	})
}

func TestFetchFailure_KeepsPreviousRooms(t *testing.T) {
	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(roomsResponse(studyRoom, aiRoom), nil).Once()
	api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(nil, errors.New("network down")).Once()

	m := metrics.New()
	svc := service.NewViewService(memory.NewRepository(0), api, nil, m)
	updates := newUpdateRecorder()
	svc.RegisterUpdateCallback(updates.OnUpdate)
	ctx := context.Background()

	_, err := svc.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	waitForView(t, svc, "s")

	before, err := svc.Rows(ctx, "s")
	require.NoError(t, err)
	require.Len(t, before, 2)

	require.NoError(t, svc.OpenModal(ctx, "s", testCreds))
	assert.NotPanics(t, func() {
		require.NoError(t, svc.CloseModal(ctx, "s", testCreds, models.ModalEventCancel))
		waitForView(t, svc, "s")
	})

	after, err := svc.Rows(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, updates.Count(), "a failed fetch does not notify")
	api.AssertExpectations(t)
}

func TestFetchFailure_FirstFetchLeavesEmptyList(t *testing.T) {
	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(nil, &roomapi.StatusError{StatusCode: 502})

	svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
	ctx := context.Background()

	_, err := svc.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	waitForView(t, svc, "s")

	rows, err := svc.Rows(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFetchInFlightWhenModalOpens(t *testing.T) {
	api := newGatedRoomAPI()
	svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
	ctx := context.Background()

	_, err := svc.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	first := <-api.started

	// Opening the modal does not cancel the mount fetch
	require.NoError(t, svc.OpenModal(ctx, "s", testCreds))
	api.release(first, fetchResult{rooms: []models.RoomSummary{studyRoom}})
	waitForView(t, svc, "s")

	state, err := svc.State(ctx, "s")
	require.NoError(t, err)
	assert.True(t, state.ModalOpen())
	assert.Len(t, state.Rooms, 1)
}

func TestStaleFetchDoesNotOverwriteNewerResult(t *testing.T) {
	api := newGatedRoomAPI()
	svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
	updates := newUpdateRecorder()
	svc.RegisterUpdateCallback(updates.OnUpdate)
	ctx := context.Background()

	_, err := svc.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	first := <-api.started

	require.NoError(t, svc.OpenModal(ctx, "s", testCreds))
	require.NoError(t, svc.CloseModal(ctx, "s", testCreds, models.ModalEventCancel))
	second := <-api.started

	// The newer fetch lands first
	api.release(second, fetchResult{rooms: []models.RoomSummary{aiRoom, springRoom}})
	select {
	case <-updates.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the newer fetch")
	}

	api.release(first, fetchResult{rooms: []models.RoomSummary{studyRoom}})
	waitForView(t, svc, "s")

	rows, err := svc.Rows(ctx, "s")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0].ID)
	assert.Equal(t, 1, updates.Count())
}

func TestUnmount_CancelsInFlightFetch(t *testing.T) {
	api := newGatedRoomAPI()
	repo := memory.NewRepository(0)
	svc := service.NewViewService(repo, api, nil, nil)
	updates := newUpdateRecorder()
	svc.RegisterUpdateCallback(updates.OnUpdate)
	unmounted := newUpdateRecorder()
	svc.RegisterUnmountCallback(unmounted.OnUpdate)
	ctx := context.Background()

	_, err := svc.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	idx := <-api.started

	require.NoError(t, svc.Unmount(ctx, "s"))

	select {
	case cancelled := <-api.cancelled:
		assert.Equal(t, idx, cancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight fetch was not cancelled")
	}

	_, err = repo.GetViewState(ctx, "s")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 0, updates.Count())

	_, ok := svc.View("s")
	assert.False(t, ok)
	assert.Equal(t, 1, unmounted.Count())

	// Unmounting twice is fine
	assert.NoError(t, svc.Unmount(ctx, "s"))
}

func TestRemount_StartsFromEmptyList(t *testing.T) {
	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(roomsResponse(studyRoom), nil).Once()
	api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

	svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
	ctx := context.Background()

	_, err := svc.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	waitForView(t, svc, "s")
	require.NoError(t, svc.OpenModal(ctx, "s", testCreds))

	state, err := svc.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	assert.Empty(t, state.Rooms)
	assert.False(t, state.ModalOpen())

	waitForView(t, svc, "s")
	rows, err := svc.Rows(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, rows, "failed fetch after remount keeps the fresh empty list")
	api.AssertExpectations(t)
}

func TestEnterRoom(t *testing.T) {
	enter := roomapi.EnterRoomRequest{RoomID: "3", Password: "pw"}

	t.Run("SuccessClosesModalAndRefetches", func(t *testing.T) {
		api := new(MockRoomAPI)
		api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(roomsResponse(studyRoom), nil).Once()
		api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(roomsResponse(studyRoom, springRoom), nil).Once()
		api.On("EnterRoom", mock.Anything, testCreds, enter).Return(nil)

		svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
		ctx := context.Background()

		_, err := svc.Mount(ctx, "s", testCreds)
		require.NoError(t, err)
		waitForView(t, svc, "s")
		require.NoError(t, svc.OpenModal(ctx, "s", testCreds))

		require.NoError(t, svc.EnterRoom(ctx, "s", testCreds, enter))
		waitForView(t, svc, "s")

		state, err := svc.State(ctx, "s")
		require.NoError(t, err)
		assert.False(t, state.ModalOpen())
		assert.Len(t, state.Rooms, 2)
		api.AssertExpectations(t)
	})

	t.Run("FailureKeepsModalOpen", func(t *testing.T) {
		api := new(MockRoomAPI)
		api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(roomsResponse(studyRoom), nil)
		api.On("EnterRoom", mock.Anything, testCreds, enter).Return(&roomapi.StatusError{StatusCode: 403, Body: "wrong password"})

		svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
		ctx := context.Background()

		_, err := svc.Mount(ctx, "s", testCreds)
		require.NoError(t, err)
		waitForView(t, svc, "s")
		require.NoError(t, svc.OpenModal(ctx, "s", testCreds))

		err = svc.EnterRoom(ctx, "s", testCreds, enter)
		require.Error(t, err)
		assert.ErrorIs(t, err, roomapi.ErrUnexpectedStatus)
		waitForView(t, svc, "s")

		state, err := svc.State(ctx, "s")
		require.NoError(t, err)
		assert.True(t, state.ModalOpen())
		api.AssertNumberOfCalls(t, "GetUserEnteredRoom", 1)
	})
}

func TestOperationsOnUnknownSession(t *testing.T) {
	svc := service.NewViewService(memory.NewRepository(0), new(MockRoomAPI), nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.OpenModal(ctx, "nobody", testCreds), repository.ErrNotFound)
	assert.ErrorIs(t, svc.CloseModal(ctx, "nobody", testCreds, models.ModalEventCancel), repository.ErrNotFound)

	_, err := svc.State(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAttach_SharedStoreAfterRestart(t *testing.T) {
	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(roomsResponse(studyRoom), nil)

	repo := memory.NewRepository(0)
	ctx := context.Background()

	first := service.NewViewService(repo, api, nil, nil)
	_, err := first.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	waitForView(t, first, "s")
	first.Shutdown()

	// A new instance picks up the stored state without resetting it
	second := service.NewViewService(repo, api, nil, nil)
	require.NoError(t, second.OpenModal(ctx, "s", testCreds))

	state, err := second.State(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, state.Rooms, 1)
	assert.True(t, state.ModalOpen())

	require.NoError(t, second.CloseModal(ctx, "s", testCreds, models.ModalEventCancel))
	waitForView(t, second, "s")
	api.AssertNumberOfCalls(t, "GetUserEnteredRoom", 2)
}

func TestSweepExpired(t *testing.T) {
	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(roomsResponse(), nil)

	repo := memory.NewRepository(0)
	svc := service.NewViewService(repo, api, nil, nil)
	unmounted := newUpdateRecorder()
	svc.RegisterUnmountCallback(unmounted.OnUpdate)
	ctx := context.Background()

	for _, id := range []string{"kept", "expired"} {
		_, err := svc.Mount(ctx, id, testCreds)
		require.NoError(t, err)
		waitForView(t, svc, id)
	}

	// Simulate expiry in the store
	require.NoError(t, repo.DeleteSession(ctx, "expired"))

	swept, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	_, ok := svc.View("expired")
	assert.False(t, ok)
	_, ok = svc.View("kept")
	assert.True(t, ok)
	assert.Equal(t, "expired", <-unmounted.ch)
	assert.Equal(t, 1, unmounted.Count())
}

func TestJanitor(t *testing.T) {
	svc := service.NewViewService(memory.NewRepository(0), new(MockRoomAPI), nil, nil)

	t.Run("InvalidSchedule", func(t *testing.T) {
		janitor := service.NewJanitor(svc, "every now and then")
		assert.Error(t, janitor.Start())
	})

	t.Run("StartAndStop", func(t *testing.T) {
		janitor := service.NewJanitor(svc, "@every 1h")
		require.NoError(t, janitor.Start())
		assert.NotPanics(t, janitor.RunOnce)
		janitor.Stop()
	})
}

func TestRefetchUsesCallersCurrentCredentials(t *testing.T) {
	mountCreds := roomapi.Credentials{AccessToken: "expired"}
	freshCreds := roomapi.Credentials{AccessToken: "fresh"}
	enter := roomapi.EnterRoomRequest{RoomID: "3"}

	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, mountCreds).Return(roomsResponse(studyRoom), nil).Once()
	api.On("GetUserEnteredRoom", mock.Anything, freshCreds).Return(roomsResponse(studyRoom, springRoom), nil).Once()
	api.On("EnterRoom", mock.Anything, freshCreds, enter).Return(nil)

	svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
	ctx := context.Background()

	_, err := svc.Mount(ctx, "s", mountCreds)
	require.NoError(t, err)
	waitForView(t, svc, "s")

	// The access token was refreshed between mount and join
	require.NoError(t, svc.OpenModal(ctx, "s", freshCreds))
	require.NoError(t, svc.EnterRoom(ctx, "s", freshCreds, enter))
	waitForView(t, svc, "s")

	rows, err := svc.Rows(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	api.AssertExpectations(t)
}

func TestEnterRoom_ClosedModalStillRefetches(t *testing.T) {
	enter := roomapi.EnterRoomRequest{RoomID: "3"}

	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, testCreds).Return(roomsResponse(studyRoom), nil).Once()
	api.On("GetUserEnteredRoom", mock.Anything, testCreds).Return(roomsResponse(studyRoom, springRoom), nil).Once()
	api.On("EnterRoom", mock.Anything, testCreds, enter).Return(nil)

	svc := service.NewViewService(memory.NewRepository(0), api, nil, nil)
	ctx := context.Background()

	_, err := svc.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	waitForView(t, svc, "s")

	// A replayed form post reaches a view whose modal is already closed
	require.NoError(t, svc.EnterRoom(ctx, "s", testCreds, enter))
	waitForView(t, svc, "s")

	state, err := svc.State(ctx, "s")
	require.NoError(t, err)
	assert.False(t, state.ModalOpen())
	assert.Len(t, state.Rooms, 2)
	api.AssertExpectations(t)
}

func TestSweepExpired_KeepsAttachedViews(t *testing.T) {
	api := new(MockRoomAPI)
	api.On("GetUserEnteredRoom", mock.Anything, mock.Anything).Return(roomsResponse(), nil)

	repo := memory.NewRepository(0)
	ctx := context.Background()

	first := service.NewViewService(repo, api, nil, nil)
	_, err := first.Mount(ctx, "s", testCreds)
	require.NoError(t, err)
	waitForView(t, first, "s")
	first.Shutdown()

	second := service.NewViewService(repo, api, nil, nil)
	require.NoError(t, second.OpenModal(ctx, "s", testCreds))

	swept, err := second.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	require.NoError(t, repo.DeleteSession(ctx, "s"))
	swept, err = second.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
}
