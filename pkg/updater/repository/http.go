package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/version"
	"github.com/sirupsen/logrus"
)

// HTTPRepository reads a repository published over HTTP(S).
type HTTPRepository struct {
	documents
	base   *url.URL
	auth   Auth
	client *http.Client
	logger *logrus.Entry
}

// NewHTTP creates a remote repository. A nil client uses http.DefaultClient.
func NewHTTP(rawURL string, auth Auth, client *http.Client) (*HTTPRepository, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, sparuserrors.Repository("open", rawURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, sparuserrors.Repository("open", rawURL, fmt.Errorf("unsupported scheme %q", base.Scheme))
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if client == nil {
		client = http.DefaultClient
	}
	r := &HTTPRepository{
		base:   base,
		auth:   auth,
		client: client,
		logger: logging.NewLogger("repository"),
	}
	r.documents = documents{url: base.Redacted(), get: r.document}
	return r, nil
}

func (r *HTTPRepository) resolve(name string) string {
	return r.base.ResolveReference(&url.URL{Path: name}).String()
}

func (r *HTTPRepository) request(ctx context.Context, name string, offset int64) (*http.Response, error) {
	target := r.resolve(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, sparuserrors.Repository("get "+name, r.url, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if r.auth.Enabled() {
		req.SetBasicAuth(r.auth.Username, r.auth.Password)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	r.logger.WithFields(logrus.Fields{"name": name, "offset": offset}).Debug("Repository request")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, sparuserrors.Repository("get "+name, r.url, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, sparuserrors.Repository("get "+name, r.url, fmt.Errorf("unexpected status %s", resp.Status)).
			WithDetail("status", resp.StatusCode)
	}
	return resp, nil
}

func (r *HTTPRepository) document(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := r.request(ctx, name, 0)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// PackageData streams package data from offset. Servers that ignore the
// Range header are handled by skipping the prefix.
func (r *HTTPRepository) PackageData(ctx context.Context, name string, offset int64) (io.ReadCloser, error) {
	resp, err := r.request(ctx, name, offset)
	if err != nil {
		return nil, err
	}
	if offset > 0 && resp.StatusCode == http.StatusOK {
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			resp.Body.Close()
			return nil, sparuserrors.Repository("get "+name, r.url, err)
		}
	}
	return resp.Body, nil
}
