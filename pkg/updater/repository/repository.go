// Package repository reads package repositories over HTTP(S) or from a
// local directory.
package repository

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/pkg/updater/metadata"
)

// Auth holds optional basic credentials.
type Auth struct {
	Username string
	Password string
}

// Enabled reports whether both credentials are present.
func (a Auth) Enabled() bool {
	return a.Username != "" && a.Password != ""
}

// NewAuth pairs optional credentials; a missing half disables auth.
func NewAuth(username, password string) Auth {
	a := Auth{Username: username, Password: password}
	if !a.Enabled() {
		return Auth{}
	}
	return a
}

// Repository is a read-only package repository.
type Repository interface {
	// URL identifies the repository in logs and errors.
	URL() string
	Current(ctx context.Context) (*metadata.Current, error)
	Versions(ctx context.Context) (*metadata.Versions, error)
	Packages(ctx context.Context) (*metadata.Packages, error)
	PackageMetadata(ctx context.Context, name string) (*metadata.PackageMetadata, error)
	// PackageData streams package data starting at offset.
	PackageData(ctx context.Context, name string, offset int64) (io.ReadCloser, error)
}

// Open picks an implementation from the URL: http and https are remote,
// file:// and plain paths are local.
func Open(rawURL string, auth Auth) (Repository, error) {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return NewHTTP(rawURL, auth, nil)
	}
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, sparuserrors.Repository("open", rawURL, err)
		}
		return NewFile(u.Path)
	}
	if strings.Contains(rawURL, "://") {
		return nil, sparuserrors.New(sparuserrors.KindRepository, "unsupported repository url").
			WithDetail("url", rawURL)
	}
	return NewFile(rawURL)
}

func decodeDocument(r io.Reader, name, repoURL string, v interface{}) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return sparuserrors.JSON("repository document "+name, err).WithDetail("url", repoURL)
	}
	return nil
}

func loadCurrent(ctx context.Context, get func(context.Context, string) (io.ReadCloser, error), repoURL string) (*metadata.Current, error) {
	var cur metadata.Current
	if err := loadDocument(ctx, get, metadata.CurrentFile, repoURL, &cur); err != nil {
		return nil, err
	}
	return &cur, nil
}

func loadDocument(ctx context.Context, get func(context.Context, string) (io.ReadCloser, error), name, repoURL string, v interface{}) error {
	body, err := get(ctx, name)
	if err != nil {
		return err
	}
	defer body.Close()
	return decodeDocument(body, name, repoURL, v)
}

// documents implements the document accessors on top of a getter.
type documents struct {
	url string
	get func(context.Context, string) (io.ReadCloser, error)
}

func (d documents) URL() string { return d.url }

func (d documents) Current(ctx context.Context) (*metadata.Current, error) {
	return loadCurrent(ctx, d.get, d.url)
}

func (d documents) Versions(ctx context.Context) (*metadata.Versions, error) {
	var v metadata.Versions
	if err := loadDocument(ctx, d.get, metadata.VersionsFile, d.url, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (d documents) Packages(ctx context.Context) (*metadata.Packages, error) {
	var p metadata.Packages
	if err := loadDocument(ctx, d.get, metadata.PackagesFile, d.url, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (d documents) PackageMetadata(ctx context.Context, name string) (*metadata.PackageMetadata, error) {
	var m metadata.PackageMetadata
	if err := loadDocument(ctx, d.get, name+metadata.MetadataExt, d.url, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
