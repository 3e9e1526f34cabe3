package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/toshiishere/network-programming/internal/models"
	"github.com/toshiishere/network-programming/internal/protocol"
)

// CreateRoom stores r and returns its id.
func (c *Client) CreateRoom(ctx context.Context, r models.Room) (int, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return -1, fmt.Errorf("failed to marshal room: %w", err)
	}
	resp, err := c.call(ctx, protocol.Request{Action: protocol.ActionCreate, Type: protocol.TypeRoom, Data: data})
	if err != nil {
		return -1, err
	}
	if resp.ID == nil {
		return -1, errors.New("create room: reply has no id")
	}
	return *resp.ID, nil
}

func (c *Client) GetRoomByName(ctx context.Context, name string) (models.Room, error) {
	var r models.Room
	resp, err := c.call(ctx, protocol.Request{Action: protocol.ActionQuery, Type: protocol.TypeRoom, Name: name})
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(resp.Data, &r); err != nil {
		return r, fmt.Errorf("failed to decode room: %w", err)
	}
	return r, nil
}

// ListRooms returns every room with the given visibility. An empty result is not an error.
func (c *Client) ListRooms(ctx context.Context, vis models.Visibility) ([]models.Room, error) {
	resp, err := c.call(ctx, protocol.Request{
		Action:     protocol.ActionSearch,
		Type:       protocol.TypeRoom,
		Visibility: string(vis),
	})
	if err != nil {
		if Reason(err) == protocol.ReasonNoRooms {
			return []models.Room{}, nil
		}
		return nil, err
	}
	var rooms []models.Room
	if err := json.Unmarshal(resp.Data, &rooms); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}
	return rooms, nil
}

// UpdateRoom applies p to the stored room.
func (c *Client) UpdateRoom(ctx context.Context, p models.RoomPatch) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal room patch: %w", err)
	}
	_, err = c.call(ctx, protocol.Request{Action: protocol.ActionUpdate, Type: protocol.TypeRoom, Data: data})
	return err
}

func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	_, err := c.call(ctx, protocol.Request{Action: protocol.ActionDelete, Type: protocol.TypeRoom, Name: name})
	return err
}
