package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/toshiishere/network-programming/internal/models"
	"github.com/toshiishere/network-programming/internal/protocol"
)

// CreateGameLog appends g to the data store's game log.
func (c *Client) CreateGameLog(ctx context.Context, g models.GameLog) (int, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return -1, fmt.Errorf("failed to marshal game log: %w", err)
	}
	resp, err := c.call(ctx, protocol.Request{Action: protocol.ActionCreate, Type: protocol.TypeGameLog, Data: data})
	if err != nil {
		return -1, err
	}
	if resp.ID == nil {
		return -1, errors.New("create gamelog: reply has no id")
	}
	return *resp.ID, nil
}
