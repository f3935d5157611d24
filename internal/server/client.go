package server

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/andrei-cloud/anet"

	"github.com/andrei-cloud/emv_studio/internal/calculator"
)

// Client sends calculator requests to a running Server.
type Client struct {
	send  func(*[]byte) ([]byte, error)
	close func()
}

// Dial prepares a pooled connection to addr. Connections are opened lazily.
func Dial(addr string, timeout time.Duration) *Client {
	factory := func(addr string) (anet.PoolItem, error) {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return nil, err
		}

		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			conn.Close()

			return nil, err
		}

		return conn, nil
	}

	pool := anet.NewPool(1, factory, addr, nil)
	broker := anet.NewBroker([]anet.Pool{pool}, 1, nil, nil)
	go broker.Start()

	return &Client{
		send: broker.Send,
		close: func() {
			broker.Close()
			pool.Close()
		},
	}
}

// Execute runs one input remotely.
func (c *Client) Execute(in calculator.Input) (calculator.Result, error) {
	var res calculator.Result
	if err := c.roundTrip(in, &res); err != nil {
		return calculator.Result{}, err
	}

	return res, nil
}

// ExecuteBatch runs inputs remotely as one batch.
func (c *Client) ExecuteBatch(inputs []calculator.Input) ([]calculator.Result, error) {
	var res []calculator.Result
	if err := c.roundTrip(inputs, &res); err != nil {
		return nil, err
	}

	return res, nil
}

func (c *Client) roundTrip(req, resp any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	raw, err := c.send(&payload)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	if err := json.Unmarshal(raw, resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// Close stops the broker and releases the pool.
func (c *Client) Close() {
	c.close()
}
