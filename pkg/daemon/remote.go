package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/launcher"
	"github.com/gorilla/websocket"
)

// RemoteClient implements Client by calling the daemon's HTTP API over a
// Unix socket.
type RemoteClient struct {
	httpClient *http.Client
	socketPath string
}

// baseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const baseURL = "http://unix"

// NewRemoteClient creates a client for the daemon listening on socketPath.
func NewRemoteClient(socketPath string) *RemoteClient {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &RemoteClient{
		// Updates can run for a long time; callers bound requests with ctx.
		httpClient: &http.Client{Transport: transport},
		socketPath: socketPath,
	}
}

// Invoke posts the operation to the daemon.
func (c *RemoteClient) Invoke(ctx context.Context, command string, params launcher.Params, result interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/invoke/"+command, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return sparuserrors.Cancelled(ctx.Err())
		}
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if result == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return sparuserrors.JSON("daemon response", err)
		}
		return nil
	case http.StatusUnprocessableEntity:
		var tagged struct {
			Kind    sparuserrors.Kind `json:"kind"`
			Message string            `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&tagged); err != nil {
			return sparuserrors.JSON("daemon error", err)
		}
		return sparuserrors.New(tagged.Kind, tagged.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", launcher.ErrUnknownCommand, command)
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
}

// StreamEvents subscribes to the daemon's websocket event stream.
func (c *RemoteClient) StreamEvents(ctx context.Context) (<-chan events.Event, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socketPath)
		},
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, "ws://unix/api/events", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}

	ch := make(chan events.Event, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	go func() {
		defer close(ch)
		defer close(done)
		for {
			var ev events.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
