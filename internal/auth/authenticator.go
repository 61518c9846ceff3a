package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/antoniostano/audiohook-bridge/internal/observability"
)

const (
	APIKeyHeader         = "X-API-KEY"
	SignatureHeader      = "Signature"
	SignatureInputHeader = "Signature-Input"

	componentRequestTarget   = "@request-target"
	componentAuthority       = "@authority"
	componentSignatureParams = "@signature-params"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidAPIKey      = fmt.Errorf("%w: api key mismatch", ErrUnauthorized)
	ErrMissingSignature   = fmt.Errorf("%w: signature headers missing", ErrUnauthorized)
	ErrMalformedSignature = fmt.Errorf("%w: signature headers malformed", ErrUnauthorized)
	ErrMissingComponent   = fmt.Errorf("%w: signed component missing from request", ErrUnauthorized)
	ErrSignatureMismatch  = fmt.Errorf("%w: signature mismatch", ErrUnauthorized)
)

var (
	signaturePattern      = regexp.MustCompile(`sig1=:(.*?):`)
	signatureInputPattern = regexp.MustCompile(`sig1=\((.*?)\);(.*)`)
)

// Authenticator gates inbound upgrade requests with an API key and, when a
// client secret is configured, an HMAC-SHA256 request signature.
type Authenticator struct {
	apiKey []byte
	secret []byte
}

// NewAuthenticator decodes clientSecret from base64. An empty secret turns
// signature checking off.
func NewAuthenticator(apiKey, clientSecret string) (*Authenticator, error) {
	a := &Authenticator{apiKey: []byte(apiKey)}
	if s := strings.TrimSpace(clientSecret); s != "" {
		secret, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode client secret: %w", err)
		}
		a.secret = secret
	}
	return a, nil
}

// Verify checks r without side effects, so repeated calls agree.
func (a *Authenticator) Verify(r *http.Request) error {
	got := []byte(r.Header.Get(APIKeyHeader))
	if subtle.ConstantTimeCompare(got, a.apiKey) != 1 {
		return ErrInvalidAPIKey
	}
	if len(a.secret) == 0 {
		return nil
	}

	sigHeader := r.Header.Get(SignatureHeader)
	inputHeader := r.Header.Get(SignatureInputHeader)
	if sigHeader == "" || inputHeader == "" {
		return ErrMissingSignature
	}
	m := signaturePattern.FindStringSubmatch(sigHeader)
	if m == nil {
		return ErrMalformedSignature
	}
	received := m[1]

	components, params, err := parseSignatureInput(inputHeader)
	if err != nil {
		return err
	}
	base, err := signatureBase(r, components, params)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(computeSignature(a.secret, base)), []byte(received)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Middleware rejects unauthenticated requests with 401. Requests for
// bypassPath skip every check.
func (a *Authenticator) Middleware(bypassPath string, metrics *observability.Metrics, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == bypassPath {
				next.ServeHTTP(w, r)
				return
			}
			if err := a.Verify(r); err != nil {
				cause := Cause(err)
				metrics.AuthRejected(cause)
				log.Warn("request authentication failed",
					zap.String("cause", cause),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte("Unauthorized\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Cause maps a verification error to a short label.
func Cause(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAPIKey):
		return "api_key"
	case errors.Is(err, ErrMissingSignature):
		return "signature_missing"
	case errors.Is(err, ErrMalformedSignature):
		return "signature_malformed"
	case errors.Is(err, ErrMissingComponent):
		return "component_missing"
	case errors.Is(err, ErrSignatureMismatch):
		return "signature_mismatch"
	default:
		return "other"
	}
}

// parseSignatureInput returns the raw component list as signed and the
// trailing parameters.
func parseSignatureInput(header string) (string, string, error) {
	m := signatureInputPattern.FindStringSubmatch(header)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", "", ErrMalformedSignature
	}
	return m[1], m[2], nil
}

func componentNames(raw string) []string {
	parts := strings.Split(raw, " ")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		names = append(names, strings.Trim(strings.TrimSpace(p), `"`))
	}
	return names
}

// signatureBase builds the canonical text that gets signed: one
// `"name": value` line per component followed by the signature params line.
func signatureBase(r *http.Request, components, params string) (string, error) {
	var lines []string
	for _, name := range componentNames(components) {
		value, ok := componentValue(r, name)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrMissingComponent, name)
		}
		lines = append(lines, `"`+strings.ToLower(name)+`": `+value)
	}
	lines = append(lines, `"`+componentSignatureParams+`": (`+components+`);`+params)
	return strings.Join(lines, "\n"), nil
}

func componentValue(r *http.Request, name string) (string, bool) {
	switch strings.ToLower(name) {
	case componentRequestTarget:
		return r.URL.RequestURI(), true
	case componentAuthority, "host":
		return r.Host, r.Host != ""
	case "":
		return "", false
	}
	values, ok := r.Header[http.CanonicalHeaderKey(name)]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func computeSignature(secret []byte, base string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Sign sets Signature and Signature-Input on r for the given components, the
// same way a conforming telephony client would. secret is base64 encoded.
func Sign(r *http.Request, clientSecret string, components []string, params string) error {
	secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(clientSecret))
	if err != nil {
		return fmt.Errorf("decode client secret: %w", err)
	}
	quoted := make([]string, 0, len(components))
	for _, c := range components {
		quoted = append(quoted, `"`+c+`"`)
	}
	raw := strings.Join(quoted, " ")
	base, err := signatureBase(r, raw, params)
	if err != nil {
		return err
	}
	r.Header.Set(SignatureInputHeader, fmt.Sprintf("sig1=(%s);%s", raw, params))
	r.Header.Set(SignatureHeader, fmt.Sprintf("sig1=:%s:", computeSignature(secret, base)))
	return nil
}
