package transport

import (
	"errors"
	"fmt"
)

// ErrNoClientCertificate is returned when a request asks for mutual TLS but
// the transport was built without certificate material.
var ErrNoClientCertificate = errors.New("client certificate not configured")

// TransportError reports a failure to deliver a request or a non-2xx HTTP
// status. It is never used for business-level failures carried in a 200 body.
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s returned HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transport: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
