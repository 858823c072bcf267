package sparusrpc

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Target converts a launcher URL (http://host:port or https://host:port)
// into a dial target and reports whether TLS is required. A bare host:port
// is accepted as plaintext.
func Target(launcherURL string) (string, bool, error) {
	if !strings.Contains(launcherURL, "://") {
		if launcherURL == "" {
			return "", false, fmt.Errorf("empty launcher url")
		}
		return launcherURL, false, nil
	}
	u, err := url.Parse(launcherURL)
	if err != nil {
		return "", false, fmt.Errorf("invalid launcher url %q: %w", launcherURL, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("launcher url %q has no host", launcherURL)
	}
	switch u.Scheme {
	case "http", "grpc":
		return u.Host, false, nil
	case "https", "grpcs":
		host := u.Host
		if u.Port() == "" {
			host += ":443"
		}
		return host, true, nil
	}
	return "", false, fmt.Errorf("unsupported launcher url scheme %q", u.Scheme)
}

// Dial creates a client connection to the control plane. The connection is
// established lazily on the first call.
func Dial(launcherURL string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	target, secure, err := Target(launcherURL)
	if err != nil {
		return nil, err
	}
	creds := insecure.NewCredentials()
	if secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts...)
	return grpc.NewClient(target, opts...)
}
