package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrConverterUnavailable is returned when Gotenberg answers with a 5xx or cannot be reached.
var ErrConverterUnavailable = errors.New("report: pdf converter unavailable")

// PageSettings are the Chromium print options sent with every conversion.
// Sizes are in inches, as Gotenberg expects.
type PageSettings struct {
	PaperWidth   string
	PaperHeight  string
	MarginTop    string
	MarginBottom string
	MarginLeft   string
	MarginRight  string
}

// A4 is the layout used for quotes and invoices.
var A4 = PageSettings{
	PaperWidth:   "8.27",
	PaperHeight:  "11.7",
	MarginTop:    "0.6",
	MarginBottom: "0.6",
	MarginLeft:   "0.5",
	MarginRight:  "0.5",
}

// ClientOption customises the Gotenberg client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithPage overrides the default A4 layout.
func WithPage(page PageSettings) ClientOption {
	return func(c *Client) { c.page = page }
}

// Client converts HTML documents through the Gotenberg Chromium route.
type Client struct {
	endpoint string
	http     *http.Client
	page     PageSettings
}

// NewClient builds a client for the Gotenberg instance at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		page:     A4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping checks that Gotenberg reports itself healthy.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConverterUnavailable, err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrConverterUnavailable, resp.StatusCode)
	}
	return nil
}

// RenderHTML converts a standalone HTML page into a PDF. Chromium needs the
// entry file to be named index.html.
func (c *Client) RenderHTML(ctx context.Context, html []byte) ([]byte, error) {
	body, contentType, err := c.form(html)
	if err != nil {
		return nil, fmt.Errorf("report: build form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConverterUnavailable, err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrConverterUnavailable, resp.StatusCode, snippet(resp.Body))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("report: conversion rejected with status %d: %s", resp.StatusCode, snippet(resp.Body))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) form(html []byte) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(html); err != nil {
		return nil, "", err
	}
	fields := [][2]string{
		{"printBackground", "true"},
		{"paperWidth", c.page.PaperWidth},
		{"paperHeight", c.page.PaperHeight},
		{"marginTop", c.page.MarginTop},
		{"marginBottom", c.page.MarginBottom},
		{"marginLeft", c.page.MarginLeft},
		{"marginRight", c.page.MarginRight},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

func snippet(r io.Reader) string {
	msg, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(msg))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
