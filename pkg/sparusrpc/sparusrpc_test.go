package sparusrpc

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestPluginsWireLayout(t *testing.T) {
	m := &Plugins{RepositoryName: "kataster", ListPlugin: map[string]string{"b": "2", "a": "1"}}
	b, err := m.Marshal()
	require.NoError(t, err)

	want := []byte{0x0a, 0x08}
	want = append(want, "kataster"...)
	want = append(want, 0x12, 0x06, 0x0a, 0x01, 'a', 0x12, 0x01, '1')
	want = append(want, 0x12, 0x06, 0x0a, 0x01, 'b', 0x12, 0x01, '2')
	assert.Equal(t, want, b)

	var decoded Plugins
	require.NoError(t, decoded.Unmarshal(b))
	assert.Equal(t, *m, decoded)
}

func TestPluginEventSkipsUnknownFields(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, "hello")
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 77)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 2)

	var ev PluginEvent
	require.NoError(t, ev.Unmarshal(b))
	assert.Equal(t, PluginEvent{Plugin: "hello", EventType: EventDelete}, ev)

	// Install is the zero value and is omitted on the wire.
	out, err := (&PluginEvent{Plugin: "x", EventType: EventInstall}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x01, 'x'}, out)

	assert.Error(t, ev.Unmarshal([]byte{0x0a, 0x05, 'h'}))
}

func TestEventType(t *testing.T) {
	assert.True(t, EventUpdate.Known())
	assert.False(t, EventType(7).Known())
	assert.Equal(t, "delete", EventDelete.String())
	assert.Equal(t, "unknown(7)", EventType(7).String())
}

func TestTarget(t *testing.T) {
	cases := []struct {
		in     string
		target string
		secure bool
	}{
		{"http://127.0.0.1:8112", "127.0.0.1:8112", false},
		{"https://cms.example.com", "cms.example.com:443", true},
		{"https://cms.example.com:9443", "cms.example.com:9443", true},
		{"localhost:8112", "localhost:8112", false},
	}
	for _, tc := range cases {
		target, secure, err := Target(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.target, target)
		assert.Equal(t, tc.secure, secure)
	}

	_, _, err := Target("ftp://host")
	assert.Error(t, err)
	_, _, err = Target("")
	assert.Error(t, err)
}

type scriptedServer struct {
	UnimplementedLucleServer
	got    chan *Plugins
	events []*PluginEvent
}

func (s *scriptedServer) Sparus(in *Plugins, stream SparusStreamServer) error {
	s.got <- in
	for _, ev := range s.events {
		if err := stream.Send(ev); err != nil {
			return err
		}
	}
	return nil
}

func TestStreamOverBufconn(t *testing.T) {
	listener := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ForceServerCodec(Codec{}))
	impl := &scriptedServer{
		got: make(chan *Plugins, 1),
		events: []*PluginEvent{
			{Plugin: "hello", EventType: EventInstall},
			{Plugin: "hello", EventType: EventDelete},
		},
	}
	RegisterLucleServer(srv, impl)
	go srv.Serve(listener)
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	stream, err := NewLucleClient(conn).Sparus(context.Background(), &Plugins{
		RepositoryName: "kataster",
		ListPlugin:     map[string]string{"world": "0.1.0"},
	})
	require.NoError(t, err)

	var got []PluginEvent
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, *ev)
	}
	assert.Equal(t, []PluginEvent{
		{Plugin: "hello", EventType: EventInstall},
		{Plugin: "hello", EventType: EventDelete},
	}, got)

	req := <-impl.got
	assert.Equal(t, "kataster", req.RepositoryName)
	assert.Equal(t, map[string]string{"world": "0.1.0"}, req.ListPlugin)
}
