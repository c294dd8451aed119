package result

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// ErrTooManyRedirects is returned by a prober when a redirect chain exceeds
// its hop limit or revisits a URL.
var ErrTooManyRedirects = errors.New("too many redirects")

// ClassifyStatus classifies a final HTTP status reached without following
// any redirects.
func ClassifyStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Ok(status)
	case status >= 300 && status < 400:
		return Redirect(status, "")
	case status == http.StatusNotFound || status == http.StatusGone:
		return Broken(status)
	default:
		return OtherStatus(status)
	}
}

// ClassifyError maps a transport-level probe failure to an Outcome.
func ClassifyError(err error) Outcome {
	if err == nil {
		return Other("unknown error")
	}
	if errors.Is(err, ErrTooManyRedirects) {
		return Other(ErrTooManyRedirects.Error())
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return DNSError(dnsErr.Err)
	}

	if isTimeout(err) {
		return Timeout()
	}

	if detail, ok := tlsFailure(err); ok {
		return TLSError(detail)
	}

	if errors.Is(err, context.Canceled) {
		return Other("probe cancelled")
	}

	return Other(innermost(err))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func tlsFailure(err error) (string, bool) {
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return verifyErr.Err.Error(), true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return unknownAuthority.Error(), true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return hostnameErr.Error(), true
	}
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &invalidErr) {
		return invalidErr.Error(), true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return recordErr.Error(), true
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return alertErr.Error(), true
	}

	// Some TLS failures only surface as text from the handshake.
	msg := err.Error()
	if strings.Contains(msg, "x509:") || strings.Contains(msg, "tls:") {
		return innermost(err), true
	}
	return "", false
}

// innermost strips the url.Error wrapper so messages do not repeat the URL.
func innermost(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}
