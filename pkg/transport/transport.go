package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// ContentType selects the wire encoding of a request body.
type ContentType string

const (
	ContentTypeJSON ContentType = "json"
	ContentTypeXML  ContentType = "xml"
)

// maxResponseSize is the maximum allowed response body size (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Request is a single POST to a remote endpoint.
type Request struct {
	URL           string
	Body          []byte
	ContentType   ContentType
	UseClientCert bool
	// Timeout overrides the client timeout for this call when > 0.
	Timeout time.Duration
}

// Poster delivers one request and returns the raw response body. It fails
// with *TransportError on network errors and non-2xx statuses.
type Poster interface {
	Post(ctx context.Context, req Request) ([]byte, error)
}

// Config holds HTTPTransport settings.
type Config struct {
	Timeout time.Duration
	Cert    CertConfig
	Debug   bool
}

// HTTPTransport is the net/http implementation of Poster.
type HTTPTransport struct {
	httpClient *http.Client
	certClient *http.Client
	debug      bool
}

// NewHTTPTransport builds the transport. When certificate material is
// configured a second client presenting it is prepared for secapi calls.
func NewHTTPTransport(cfg Config) (*HTTPTransport, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	t := &HTTPTransport{
		httpClient: &http.Client{Timeout: timeout},
		debug:      cfg.Debug || os.Getenv("ENV") == "development",
	}

	if cfg.Cert.Configured() {
		cert, err := LoadClientCertificate(cfg.Cert)
		if err != nil {
			return nil, err
		}
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.TLSClientConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		t.certClient = &http.Client{Timeout: timeout, Transport: base}
	}

	return t, nil
}

// HasClientCertificate reports whether mutual TLS requests can be served.
func (t *HTTPTransport) HasClientCertificate() bool {
	return t.certClient != nil
}

// Post implements Poster.
func (t *HTTPTransport) Post(ctx context.Context, r Request) ([]byte, error) {
	client := t.httpClient
	if r.UseClientCert {
		if t.certClient == nil {
			return nil, &TransportError{URL: r.URL, Err: ErrNoClientCertificate}
		}
		client = t.certClient
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	if t.debug {
		log.Debug().
			Str("endpoint", r.URL).
			Str("request", sanitizeForLog(r.Body, r.ContentType)).
			Msg("[WECHAT] Outgoing request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, &TransportError{URL: r.URL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", mimeType(r.ContentType))

	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: r.URL, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{URL: r.URL, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if t.debug {
		log.Debug().
			Str("endpoint", r.URL).
			Int("status_code", resp.StatusCode).
			Str("response", sanitizeForLog(respBody, r.ContentType)).
			Msg("[WECHAT] Incoming response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			URL:        r.URL,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			Err:        fmt.Errorf("unexpected HTTP status %d", resp.StatusCode),
		}
	}

	return respBody, nil
}

func mimeType(ct ContentType) string {
	if ct == ContentTypeXML {
		return "text/xml; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}
