package internal

import (
	"context"

	"github.com/shongo-go/connector/src/types"
)

type fakeParticipants struct {
	list     []*types.RoomParticipant
	modified []*types.RoomParticipant
}

func (f *fakeParticipants) ListRoomParticipants(ctx context.Context, roomID string) ([]*types.RoomParticipant, error) {
	return f.list, nil
}

func (f *fakeParticipants) GetRoomParticipant(ctx context.Context, roomID, participantID string) (*types.RoomParticipant, error) {
	return nil, types.NotFound("participant", participantID)
}

func (f *fakeParticipants) DialRoomParticipant(ctx context.Context, roomID string, alias types.Alias) (string, error) {
	return "", types.Unsupported("dial")
}

func (f *fakeParticipants) DisconnectRoomParticipant(ctx context.Context, roomID, participantID string) error {
	return nil
}

func (f *fakeParticipants) ModifyRoomParticipant(ctx context.Context, p *types.RoomParticipant) error {
	f.modified = append(f.modified, p)
	return nil
}

func (f *fakeParticipants) ModifyRoomParticipants(ctx context.Context, p *types.RoomParticipant) error {
	return ModifyAllParticipants(ctx, f, p)
}

func (f *fakeParticipants) GetRoomParticipantSnapshots(ctx context.Context, roomID string, ids []string) (map[string]*types.MediaData, error) {
	return nil, types.Unsupported("snapshots")
}

type fakeRooms struct {
	created *types.Room
	deleted []string
}

func (f *fakeRooms) ListRooms(ctx context.Context) ([]types.RoomSummary, error) { return nil, nil }

func (f *fakeRooms) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	return nil, types.NotFound("room", roomID)
}

func (f *fakeRooms) CreateRoom(ctx context.Context, room *types.Room) (string, error) {
	f.created = room
	return "new", nil
}

func (f *fakeRooms) ModifyRoom(ctx context.Context, room *types.Room) (string, error) {
	return room.ID, nil
}

func (f *fakeRooms) DeleteRoom(ctx context.Context, roomID string) error {
	f.deleted = append(f.deleted, roomID)
	return nil
}
