/*
Copyright 2024 The ENCODE DCC Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package portal is the authenticated JSON-over-HTTPS client against the
// metadata portal: search, get, upload-credential lookup, and ETag-guarded
// PATCH. It never raises across component boundaries -- failures come back
// as plain errors for the caller (the coordinator) to record on the job bag.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrETagMismatch is returned by Patch when the server's current ETag no
// longer matches the one the caller captured when the job was created.
var ErrETagMismatch = errors.New("etag does not match")

// UploadCredentials mirrors the portal's @@upload view payload.
type UploadCredentials struct {
	UploadURL  string `json:"upload_url"`
	Expiration string `json:"expiration"`
}

// Client is the authenticated portal client. One Client is safe to share
// across worker goroutines; it keeps no per-job state.
type Client struct {
	BaseURL string

	dialer DialerWithRetry
	http   http.Client

	username string
	password string
}

// NewClient builds a Client configured the way the teacher's boskos client
// configures its dialer: basic auth, three retries with a ten second pause,
// and a transport mirroring http.DefaultTransport except for the retrying
// dial functions.
func NewClient(baseURL, username, password string) *Client {
	c := &Client{
		BaseURL:  baseURL,
		username: username,
		password: password,
	}
	c.dialer.RetryCount = 3
	c.dialer.RetrySleep = 10 * time.Second
	c.dialer.Timeout = 30 * time.Second
	c.dialer.KeepAlive = 30 * time.Second
	c.http.Transport = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		Dial:                  c.dialer.Dial,
		DialContext:           c.dialer.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, rawPath string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(rawPath)
	if err != nil {
		return nil, err
	}
	full := u.ResolveReference(ref)
	req, err := http.NewRequestWithContext(ctx, method, full.String(), body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Search issues /search/?type=<type>&<query>&limit=all and returns the
// @graph entries. On any HTTP-level error it logs and returns an error --
// callers decide whether that is fatal (see jobsource.Fetch).
func (c *Client) Search(ctx context.Context, itemType, query string) ([]json.RawMessage, error) {
	path := fmt.Sprintf("/search/?type=%s&%s&limit=all&datastore=database", itemType, query)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logrus.WithError(err).Warn("portal search request failed")
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %s: status %s", path, resp.Status)
	}
	var payload struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Graph, nil
}

// GetEdit fetches <id>?frame=edit&datastore=database and returns the raw
// JSON body alongside the server's ETag response header.
func (c *Client) GetEdit(ctx context.Context, id string) (json.RawMessage, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, id+"?frame=edit&datastore=database", nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("%s %s\n%s", resp.Status, req.URL, body)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("ETag"), nil
}

// GetObject fetches <id>?frame=object&format=json&datastore=database,
// used by the platform resolver and fastq analyzer to read a single file's
// platform/derived_from/read_name_details without the edit-view overhead.
func (c *Client) GetObject(ctx context.Context, id string) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, id+"?frame=object&format=json&datastore=database", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %s\n%s", resp.Status, req.URL, body)
	}
	return io.ReadAll(resp.Body)
}

// GetUploadCredentials fetches <id>@@upload?datastore=database.
func (c *Client) GetUploadCredentials(ctx context.Context, id string) (*UploadCredentials, error) {
	req, err := c.newRequest(ctx, http.MethodGet, id+"@@upload?datastore=database", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %s\n%s", resp.Status, req.URL, body)
	}
	var payload struct {
		Graph []struct {
			UploadCredentials UploadCredentials `json:"upload_credentials"`
		} `json:"@graph"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.Graph) == 0 {
		return nil, fmt.Errorf("no upload credentials for %s", id)
	}
	return &payload.Graph[0].UploadCredentials, nil
}

// Patch sends the PATCH with If-Match: etag. It re-reads the current ETag
// first; a mismatch returns ErrETagMismatch along with both observed
// ETags, without attempting the write -- this is the sole authority for
// the ETag discipline invariant.
func (c *Client) Patch(ctx context.Context, id string, etag string, data map[string]interface{}) error {
	currentBody, currentEtag, err := c.GetEdit(ctx, id)
	if err != nil {
		return fmt.Errorf("lookup etag before patch: %w", err)
	}
	if currentEtag != etag {
		var current struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(currentBody, &current)
		return fmt.Errorf("%w: original etag was %s, current etag is %s (status now %q)",
			ErrETagMismatch, etag, currentEtag, current.Status)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPatch, id, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("If-Match", etag)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusPreconditionFailed {
		return ErrETagMismatch
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("patch %s: %s\n%s", id, resp.Status, body)
	}
	return nil
}

// DialerWithRetry is a composite net.Dialer that retries connection
// attempts, grounded on the teacher's boskos/client.DialerWithRetry.
type DialerWithRetry struct {
	net.Dialer

	RetryCount uint
	RetrySleep time.Duration
}

// Dial connects to the address on the named network.
func (d *DialerWithRetry) Dial(network, address string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, address)
}

// DialContext connects to the address using the provided context, retrying
// on dial errors that look transient.
func (d *DialerWithRetry) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	count := d.RetryCount + 1
	var i uint
	for {
		conn, err := d.Dialer.DialContext(ctx, network, address)
		if err != nil {
			if isDialErrorRetriable(err) && i < count-1 {
				select {
				case <-time.After(d.RetrySleep):
					i++
					continue
				case <-ctx.Done():
					return nil, err
				}
			}
			return nil, err
		}
		return conn, nil
	}
}

func isDialErrorRetriable(err error) bool {
	opErr, isOpErr := err.(*net.OpError)
	if !isOpErr {
		return false
	}
	if opErr.Timeout() || opErr.Temporary() {
		return true
	}
	sysErr, isSysErr := opErr.Err.(*os.SyscallError)
	if !isSysErr {
		return false
	}
	switch sysErr.Err {
	case syscall.ECONNREFUSED, syscall.ECONNRESET:
		return true
	}
	return false
}
