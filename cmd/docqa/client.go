// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/sigil-dev/docqa/internal/rag"
	"github.com/sigil-dev/docqa/internal/server"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

const defaultGatewayAddr = "127.0.0.1:8000"

// defaultHTTPClient is the package-level HTTP client used by gateway commands.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// streamHTTPClient has no overall timeout: answers and uploads can run for
// minutes. Requests are bounded by their context instead.
var streamHTTPClient = &http.Client{}

// gatewayClient provides HTTP access to a running docqa gateway.
type gatewayClient struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
}

// newGatewayClient creates a client targeting the given host:port address.
// A full URL is accepted as well.
func newGatewayClient(addr string) *gatewayClient {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &gatewayClient{
		baseURL: strings.TrimRight(base, "/"),
		http:    defaultHTTPClient,
		stream:  streamHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *gatewayClient) getJSON(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return dqerr.Errorf(dqerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	return c.doJSON(c.http, req, http.StatusOK, dest)
}

// postJSON sends body as JSON and decodes a response with the expected
// status into dest. dest may be nil.
func (c *gatewayClient) postJSON(ctx context.Context, path string, body any, want int, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return dqerr.Errorf(dqerr.CodeCLIRequestFailure, "encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return dqerr.Errorf(dqerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(c.stream, req, want, dest)
}

// upload sends a PDF to the gateway, which indexes it and opens a session.
func (c *gatewayClient) upload(ctx context.Context, name string, data []byte) (*server.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return nil, dqerr.Errorf(dqerr.CodeCLIRequestFailure, "building upload: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, dqerr.Errorf(dqerr.CodeCLIRequestFailure, "building upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, dqerr.Errorf(dqerr.CodeCLIRequestFailure, "building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/documents", &buf)
	if err != nil {
		return nil, dqerr.Errorf(dqerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out server.UploadResponse
	if err := c.doJSON(c.stream, req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// streamChat posts a question to the SSE endpoint and delivers each event to
// fn in arrival order. It returns when the stream ends, fn returns an error,
// or ctx is cancelled.
func (c *gatewayClient) streamChat(ctx context.Context, in server.ChatStreamRequest, fn func(rag.Event) error) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return dqerr.Errorf(dqerr.CodeCLIRequestFailure, "encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return dqerr.Errorf(dqerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return requestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return readSSE(resp.Body, fn)
}

func (c *gatewayClient) doJSON(client *http.Client, req *http.Request, want int, dest any) error {
	resp, err := client.Do(req)
	if err != nil {
		return requestError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		return statusError(resp)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return dqerr.Errorf(dqerr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// readSSE parses "event:" and "data:" frames separated by blank lines. The
// data line carries the full JSON event, so the event name is informational.
func readSSE(r io.Reader, fn func(rag.Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data strings.Builder
	flush := func() error {
		if data.Len() == 0 {
			return nil
		}
		var ev rag.Event
		err := json.Unmarshal([]byte(data.String()), &ev)
		data.Reset()
		if err != nil {
			return dqerr.Errorf(dqerr.CodeCLIResponseInvalid, "invalid stream event: %w", err)
		}
		return fn(ev)
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return dqerr.Errorf(dqerr.CodeCLIResponseInvalid, "reading stream: %w", err)
	}
	return flush()
}

func requestError(err error) error {
	if isDialError(err) {
		return dqerr.Errorf(dqerr.CodeCLIGatewayNotRunning, "gateway is not running (connection refused)")
	}
	return dqerr.Errorf(dqerr.CodeCLIRequestFailure, "request failed: %w", err)
}

// statusError reports a non-success response using the gateway's error
// message when one is present.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Detail != "":
			msg = payload.Detail
		case payload.Error != "":
			msg = payload.Error
		}
	}
	return dqerr.New(dqerr.CodeCLIRequestFailure,
		fmt.Sprintf("gateway returned status %d: %s", resp.StatusCode, msg),
		dqerr.Field("status", resp.StatusCode))
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
