package service_test

import (
	"context"
	"sync"

	"github.com/navikt/myrooms/internal/models"
	"github.com/navikt/myrooms/internal/roomapi"
	"github.com/stretchr/testify/mock"
)

// MockRoomAPI is a testify mock of the room API client
type MockRoomAPI struct {
	mock.Mock
}

func (m *MockRoomAPI) GetUserEnteredRoom(ctx context.Context, creds roomapi.Credentials) (*roomapi.RoomsResponse, error) {
	args := m.Called(ctx, creds)
	resp, _ := args.Get(0).(*roomapi.RoomsResponse)
	return resp, args.Error(1)
}

func (m *MockRoomAPI) EnterRoom(ctx context.Context, creds roomapi.Credentials, req roomapi.EnterRoomRequest) error {
	args := m.Called(ctx, creds, req)
	return args.Error(0)
}

func roomsResponse(rooms ...models.RoomSummary) *roomapi.RoomsResponse {
	if rooms == nil {
		rooms = []models.RoomSummary{}
	}
	return &roomapi.RoomsResponse{StatusCode: 200, Data: rooms}
}

type fetchResult struct {
	rooms []models.RoomSummary
	err   error
}

// gatedRoomAPI blocks every fetch until the test releases it or the context ends
type gatedRoomAPI struct {
	mu        sync.Mutex
	calls     []chan fetchResult
	started   chan int
	cancelled chan int
}

func newGatedRoomAPI() *gatedRoomAPI {
	return &gatedRoomAPI{
		started:   make(chan int, 16),
		cancelled: make(chan int, 16),
	}
}

func (g *gatedRoomAPI) GetUserEnteredRoom(ctx context.Context, creds roomapi.Credentials) (*roomapi.RoomsResponse, error) {
	g.mu.Lock()
	idx := len(g.calls)
	ch := make(chan fetchResult, 1)
	g.calls = append(g.calls, ch)
	g.mu.Unlock()

	g.started <- idx

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return roomsResponse(res.rooms...), nil
	case <-ctx.Done():
		g.cancelled <- idx
		return nil, ctx.Err()
	}
}

func (g *gatedRoomAPI) EnterRoom(ctx context.Context, creds roomapi.Credentials, req roomapi.EnterRoomRequest) error {
	return nil
}

func (g *gatedRoomAPI) release(idx int, res fetchResult) {
	g.mu.Lock()
	ch := g.calls[idx]
	g.mu.Unlock()
	ch <- res
}

// updateRecorder collects update callbacks
type updateRecorder struct {
	mu      sync.Mutex
	updates []string
	ch      chan string
}

func newUpdateRecorder() *updateRecorder {
	return &updateRecorder{ch: make(chan string, 16)}
}

func (u *updateRecorder) OnUpdate(sessionID string) {
	u.mu.Lock()
	u.updates = append(u.updates, sessionID)
	u.mu.Unlock()
	u.ch <- sessionID
}

func (u *updateRecorder) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.updates)
}
