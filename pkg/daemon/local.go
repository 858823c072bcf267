package daemon

import (
	"context"
	"encoding/json"

	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/launcher"
)

// LocalClient implements Client by calling the launcher directly.
// Results go through the same JSON encoding as the socket API.
type LocalClient struct {
	launcher *launcher.Launcher
	bus      *events.Bus
	owned    bool
}

// NewLocalClient wraps a launcher whose emitter is bus. When owned is
// set, Close also closes the launcher.
func NewLocalClient(l *launcher.Launcher, bus *events.Bus, owned bool) *LocalClient {
	return &LocalClient{launcher: l, bus: bus, owned: owned}
}

// Invoke runs the operation in-process.
func (c *LocalClient) Invoke(ctx context.Context, command string, params launcher.Params, result interface{}) error {
	out, err := c.launcher.Invoke(ctx, command, params)
	if err != nil {
		return err
	}
	return roundTrip(out, result)
}

func roundTrip(out, result interface{}) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}

// StreamEvents subscribes to the in-process bus.
func (c *LocalClient) StreamEvents(ctx context.Context) (<-chan events.Event, error) {
	sub := c.bus.Subscribe()
	out := make(chan events.Event, 16)
	go func() {
		defer close(out)
		defer c.bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// IsRunning returns false since this is the in-process fallback.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close releases the launcher if the client owns it.
func (c *LocalClient) Close() error {
	if c.owned {
		return c.launcher.Close(context.Background())
	}
	return nil
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
