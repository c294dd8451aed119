package result

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{200, KindOk},
		{204, KindOk},
		{299, KindOk},
		{301, KindRedirect},
		{308, KindRedirect},
		{404, KindBroken},
		{410, KindBroken},
		{400, KindOther},
		{401, KindOther},
		{403, KindOther},
		{429, KindOther},
		{500, KindOther},
		{503, KindOther},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			got := ClassifyStatus(tt.status)
			if got.Kind != tt.want {
				t.Errorf("ClassifyStatus(%d).Kind = %q, want %q", tt.status, got.Kind, tt.want)
			}
			if got.StatusCode != tt.status {
				t.Errorf("ClassifyStatus(%d).StatusCode = %d", tt.status, got.StatusCode)
			}
		})
	}
}

func wrapURL(err error) error {
	return &url.Error{Op: "Head", URL: "https://example.test/page", Err: err}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		want       Kind
		wantDetail string
	}{
		{
			name:       "dns not found",
			err:        wrapURL(&net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}),
			want:       KindDNSError,
			wantDetail: "no such host",
		},
		{
			name: "dns timeout counts as timeout",
			err:  wrapURL(&net.DNSError{Err: "i/o timeout", Name: "slow.test", IsTimeout: true}),
			want: KindTimeout,
		},
		{
			name: "deadline exceeded",
			err:  wrapURL(context.DeadlineExceeded),
			want: KindTimeout,
		},
		{
			name: "wrapped deadline",
			err:  fmt.Errorf("probe: %w", context.DeadlineExceeded),
			want: KindTimeout,
		},
		{
			name:       "certificate verification",
			err:        wrapURL(&tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}),
			want:       KindTLSError,
			wantDetail: "x509: certificate signed by unknown authority",
		},
		{
			name: "bare unknown authority",
			err:  wrapURL(x509.UnknownAuthorityError{}),
			want: KindTLSError,
		},
		{
			name: "record header",
			err:  wrapURL(tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"}),
			want: KindTLSError,
		},
		{
			name:       "too many redirects",
			err:        fmt.Errorf("follow: %w", ErrTooManyRedirects),
			want:       KindOther,
			wantDetail: "too many redirects",
		},
		{
			name:       "connection refused",
			err:        wrapURL(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")}),
			want:       KindOther,
			wantDetail: "dial tcp: connect: connection refused",
		},
		{
			name:       "cancelled",
			err:        wrapURL(context.Canceled),
			want:       KindOther,
			wantDetail: "probe cancelled",
		},
		{
			name:       "nil",
			err:        nil,
			want:       KindOther,
			wantDetail: "unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got.Kind != tt.want {
				t.Fatalf("ClassifyError(%v).Kind = %q, want %q", tt.err, got.Kind, tt.want)
			}
			if tt.wantDetail != "" && got.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", got.Detail, tt.wantDetail)
			}
			if got.StatusCode != 0 {
				t.Errorf("transport failure carries status %d", got.StatusCode)
			}
		})
	}
}

func TestClassifyErrorDetailOmitsURL(t *testing.T) {
	got := ClassifyError(wrapURL(errors.New("EOF")))
	if strings.Contains(got.Detail, "example.test") {
		t.Errorf("Detail %q repeats the URL", got.Detail)
	}
}
