// Package fetcher downloads registry bulk files over HTTP and FTP.
package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote registry files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes
	// written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// auto dispatches per URL scheme to an HTTP or FTP fetcher.
type auto struct {
	http Fetcher
	ftp  Fetcher
}

// NewAuto returns a Fetcher that routes http/https URLs to an HTTPFetcher
// and ftp URLs to an FTPFetcher.
func NewAuto(httpOpts HTTPOptions, ftpOpts FTPOptions) Fetcher {
	return &auto{http: NewHTTPFetcher(httpOpts), ftp: NewFTPFetcher(ftpOpts)}
}

func (a *auto) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %s", rawURL)
	}
	switch u.Scheme {
	case "http", "https":
		return a.http, nil
	case "ftp":
		return a.ftp, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

func (a *auto) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	f, err := a.pick(url)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, url)
}

func (a *auto) DownloadToFile(ctx context.Context, url string, path string) (int64, error) {
	f, err := a.pick(url)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, url, path)
}
