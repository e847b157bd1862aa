package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// ProjectChannel is the pub/sub channel for one project's message events.
func ProjectChannel(projectID string) string {
	return fmt.Sprintf("project:%s", projectID)
}

// OperatorChannel carries client-authored message events across all projects
// so the operator dashboard gets notified without a per-project subscription.
const OperatorChannel = "operators"
