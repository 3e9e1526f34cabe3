package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/toshiishere/network-programming/internal/models"
	"github.com/toshiishere/network-programming/internal/protocol"
)

// CreateUser stores u and returns its id.
func (c *Client) CreateUser(ctx context.Context, u models.User) (int, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return -1, fmt.Errorf("failed to marshal user: %w", err)
	}
	resp, err := c.call(ctx, protocol.Request{Action: protocol.ActionCreate, Type: protocol.TypeUser, Data: data})
	if err != nil {
		return -1, err
	}
	if resp.ID == nil {
		return -1, errors.New("create user: reply has no id")
	}
	return *resp.ID, nil
}

func (c *Client) GetUserByName(ctx context.Context, name string) (models.User, error) {
	return c.queryUser(ctx, protocol.Request{Action: protocol.ActionQuery, Type: protocol.TypeUser, Name: name})
}

func (c *Client) queryUser(ctx context.Context, req protocol.Request) (models.User, error) {
	var u models.User
	resp, err := c.call(ctx, req)
	if err != nil {
		return u, err
	}
	if err := json.Unmarshal(resp.Data, &u); err != nil {
		return u, fmt.Errorf("failed to decode user: %w", err)
	}
	return u, nil
}

// UpdateUser applies p to the stored user.
func (c *Client) UpdateUser(ctx context.Context, p models.UserPatch) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal user patch: %w", err)
	}
	_, err = c.call(ctx, protocol.Request{Action: protocol.ActionUpdate, Type: protocol.TypeUser, Data: data})
	return err
}
