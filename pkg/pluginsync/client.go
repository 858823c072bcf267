// Package pluginsync reconciles the local plugin directory with the event
// stream of the control plane.
package pluginsync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/events"
	"github.com/Ludea/Sparus/pkg/pluginhost"
	"github.com/Ludea/Sparus/pkg/sparusrpc"
	"github.com/Ludea/Sparus/version"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VersionReader reads the version a plugin reports about itself.
type VersionReader interface {
	Version(ctx context.Context, dir, plugin string) (string, error)
}

// Options configures a Client.
type Options struct {
	// LauncherName is announced as the repository name.
	LauncherName string
	// LauncherURL is the control plane address.
	LauncherURL string
	// PluginsURL is the base URL artifacts are fetched from.
	PluginsURL string
	// PluginsDir holds <name>/<name>.wasm artifacts.
	PluginsDir string
	// Conn overrides dialing LauncherURL.
	Conn grpc.ClientConnInterface
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Emitter receives a notification per applied event.
	Emitter events.Emitter
	// Concurrency bounds parallel get-version calls during inventory.
	Concurrency int
}

// Notification is the payload emitted on events.Plugins.
type Notification struct {
	Plugin    string `json:"plugin"`
	EventType string `json:"event_type"`
	Error     string `json:"error,omitempty"`
}

// Client runs plugin sync sessions.
type Client struct {
	opts     Options
	versions VersionReader
	logger   *logrus.Entry
}

// New creates a client. versions is usually a *pluginhost.Host.
func New(opts Options, versions VersionReader) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Discard
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Client{
		opts:     opts,
		versions: versions,
		logger:   logging.NewLogger("pluginsync"),
	}
}

// ArtifactPath returns where a plugin's artifact is stored.
func (c *Client) ArtifactPath(plugin string) string {
	return pluginhost.ArtifactPath(filepath.Join(c.opts.PluginsDir, plugin), plugin)
}

// Inventory maps every plugin on disk whose get-version succeeds to the
// version it reports. Failing plugins are left out.
func (c *Client) Inventory(ctx context.Context) (map[string]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.opts.PluginsDir, "*", "*"+pluginhost.ArtifactExt))
	if err != nil {
		return nil, sparuserrors.IO("scan plugins", c.opts.PluginsDir, err)
	}
	sort.Strings(matches)

	var (
		mu        sync.Mutex
		inventory = make(map[string]string, len(matches))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for _, match := range matches {
		dir := filepath.Dir(match)
		name := strings.TrimSuffix(filepath.Base(match), pluginhost.ArtifactExt)
		g.Go(func() error {
			v, err := c.versions.Version(gctx, dir, name)
			if err != nil {
				c.logger.WithError(err).WithField("plugin", name).Debug("Skipping plugin without a version")
				return nil
			}
			mu.Lock()
			inventory[name] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inventory, nil
}

// Run advertises the inventory and applies streamed events in order until
// the server ends the stream. Failing to reach the control plane is not an
// error; an error status after the stream started is.
func (c *Client) Run(ctx context.Context) error {
	inventory, err := c.Inventory(ctx)
	if err != nil {
		return err
	}

	conn := c.opts.Conn
	if conn == nil {
		cc, err := sparusrpc.Dial(c.opts.LauncherURL)
		if err != nil {
			c.logger.WithError(err).Warn("Plugin sync disabled: cannot dial control plane")
			return nil
		}
		defer cc.Close()
		conn = cc
	}

	c.logger.WithFields(logrus.Fields{
		"launcher": c.opts.LauncherName,
		"plugins":  len(inventory),
	}).Info("Starting plugin sync")

	stream, err := sparusrpc.NewLucleClient(conn).Sparus(ctx, &sparusrpc.Plugins{
		RepositoryName: c.opts.LauncherName,
		ListPlugin:     inventory,
	})
	if err != nil {
		c.logger.WithError(err).Warn("Plugin sync skipped: control plane unreachable")
		return nil
	}

	received := 0
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			c.logger.WithField("events", received).Info("Plugin sync finished")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if received == 0 && status.Code(err) == codes.Unavailable {
				c.logger.WithError(err).Warn("Plugin sync skipped: control plane unreachable")
				return nil
			}
			return sparuserrors.Status(err)
		}
		received++

		if err := c.Apply(ctx, ev); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"plugin": ev.Plugin,
				"event":  ev.EventType.String(),
			}).Warn("Plugin event failed")
		}
	}
}

// Apply performs one plugin event. Unknown event types are ignored.
func (c *Client) Apply(ctx context.Context, ev *sparusrpc.PluginEvent) error {
	if !ev.EventType.Known() {
		c.logger.WithField("event", ev.EventType.String()).Debug("Ignoring unknown plugin event")
		return nil
	}
	if err := pluginhost.ValidName(ev.Plugin); err != nil {
		c.notify(ev, err)
		return err
	}

	var err error
	switch ev.EventType {
	case sparusrpc.EventInstall, sparusrpc.EventUpdate:
		err = c.fetch(ctx, ev.Plugin)
	case sparusrpc.EventDelete:
		err = c.remove(ev.Plugin)
	}
	if err == nil {
		c.logger.WithFields(logrus.Fields{
			"plugin": ev.Plugin,
			"event":  ev.EventType.String(),
		}).Info("Applied plugin event")
	}
	c.notify(ev, err)
	return err
}

func (c *Client) notify(ev *sparusrpc.PluginEvent, err error) {
	n := Notification{Plugin: ev.Plugin, EventType: ev.EventType.String()}
	if err != nil {
		n.Error = err.Error()
	}
	c.opts.Emitter.Emit(events.Plugins, n)
}

// fetch downloads an artifact next to its destination and renames it into
// place, so readers never observe a partial file.
func (c *Client) fetch(ctx context.Context, plugin string) error {
	src := strings.TrimRight(c.opts.PluginsURL, "/") + "/plugins/" + url.PathEscape(plugin)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return sparuserrors.HTTP(src, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return sparuserrors.HTTP(src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return sparuserrors.HTTPStatus(src, resp.StatusCode)
	}

	dest := c.ArtifactPath(plugin)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return sparuserrors.IO("create plugin directory", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+plugin+"-*.part")
	if err != nil {
		return sparuserrors.IO("create", dir, err)
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		if copyErr != nil {
			return sparuserrors.HTTP(src, copyErr)
		}
		return sparuserrors.IO("write", tmp.Name(), closeErr)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return sparuserrors.IO("rename", dest, err)
	}

	c.logger.WithFields(logrus.Fields{
		"plugin": plugin,
		"bytes":  n,
	}).Debug("Fetched plugin artifact")
	return nil
}

func (c *Client) remove(plugin string) error {
	path := c.ArtifactPath(plugin)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return sparuserrors.IO("remove", path, err)
	}
	// Drop the plugin directory once it is empty.
	os.Remove(filepath.Dir(path))
	return nil
}
