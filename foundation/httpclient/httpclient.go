// Package httpclient provides basic http functions
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// FetchErrorKind classifies the ways a feed fetch can fail
type FetchErrorKind int

const (
	Timeout FetchErrorKind = iota
	HttpStatus
	NetworkError
)

// String - Stringer interface for FetchErrorKind
func (k FetchErrorKind) String() string {
	switch k {
	case Timeout:
		return "Timeout"
	case HttpStatus:
		return "HttpStatus"
	case NetworkError:
		return "NetworkError"
	}
	return "Unknown"
}

// FetchError describes a failed fetch from a remote endpoint.
// StatusCode is only populated when Kind is HttpStatus
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	URL        string
	Err        error
}

func (f *FetchError) Error() string {
	if f.Kind == HttpStatus {
		return fmt.Sprintf("fetch from %s failed: http status %d", ObfuscateURL(f.URL), f.StatusCode)
	}
	return fmt.Sprintf("fetch from %s failed: %s: %v", ObfuscateURL(f.URL), f.Kind, f.Err)
}

func (f *FetchError) Unwrap() error {
	return f.Err
}

// FetchBytes pulls bytes from url with a single GET request bounded by timeout.
// No retries are performed here.
// Errors are returned as *FetchError so callers can distinguish timeouts,
// http status failures and network problems
func FetchBytes(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: NetworkError, URL: url, Err: err}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &FetchError{Kind: Timeout, URL: url, Err: err}
		}
		return nil, &FetchError{Kind: NetworkError, URL: url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: HttpStatus, StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &FetchError{Kind: Timeout, URL: url, Err: err}
		}
		return nil, &FetchError{Kind: NetworkError, URL: url, Err: err}
	}
	return body, nil
}

// ObfuscateURL masks the apikey query parameter in rawURL so urls can be logged
// without leaking credentials
func ObfuscateURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("apikey") {
		q.Set("apikey", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// RemoteFileInfo contains information about a file available on a remote web server
type RemoteFileInfo struct {
	ETag                  string
	LastModifiedTimestamp int64
	Path                  string
}

// GetRemoteFileInfo retrieves ETag and last modified timestamp from url using a HEAD request
func GetRemoteFileInfo(url string) (RemoteFileInfo, error) {
	resp, err := http.Head(url)
	if err != nil {
		return RemoteFileInfo{}, err
	}
	return getRemoteFileInfo(url, resp), nil
}

func getRemoteFileInfo(url string, resp *http.Response) RemoteFileInfo {
	result := RemoteFileInfo{
		Path: url,
	}
	result.ETag = resp.Header.Get("ETag")

	lastModifiedString := resp.Header.Get("Last-Modified")

	if len(lastModifiedString) > 0 {
		parsedTime, err := time.Parse(time.RFC1123, lastModifiedString)
		if err == nil {
			result.LastModifiedTimestamp = parsedTime.Unix()
		}
	}
	return result
}

// IsDifferent compares against a previously seen etag and last modified timestamp,
// preferring the etag when the server provides one
func (df *RemoteFileInfo) IsDifferent(etag string, lastModifiedTimestamp int64) bool {
	if len(df.ETag) > 0 {
		return df.ETag != etag
	}
	return df.LastModifiedTimestamp != lastModifiedTimestamp
}

// DownloadedFile contains information about a file that has been downloaded to the local file system
type DownloadedFile struct {
	RemoteFileInfo RemoteFileInfo
	LocalFilePath  string
	Size           int64
	DownloadedAt   time.Time
}

// DownloadRemoteFile retrieves a file from a url to a local file destination.
// On success returns information about the file in DownloadedFile
func DownloadRemoteFile(destinationFileName string, url string) (*DownloadedFile, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	out, err := os.Create(destinationFileName)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = out.Close()
	}()
	bytesWritten, err := io.Copy(out, resp.Body)
	if err != nil {
		return nil, err
	}
	remoteFileInfo := getRemoteFileInfo(url, resp)

	result := DownloadedFile{
		RemoteFileInfo: remoteFileInfo,
		LocalFilePath:  destinationFileName,
		Size:           bytesWritten,
		DownloadedAt:   time.Now(),
	}
	return &result, err
}
