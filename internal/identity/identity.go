// Package identity verifies customer ID tokens issued by Firebase
// Authentication (Google sign-in).
package identity

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

// DefaultCertsURL serves the x509 certificates that sign Firebase ID tokens.
const DefaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const (
	issuerPrefix    = "https://securetoken.google.com/"
	defaultCacheTTL = time.Hour

	// minRefreshInterval bounds certificate fetches triggered by tokens,
	// whatever kid they carry.
	minRefreshInterval = time.Minute
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid identity token")

// Identity is the verified subject of an ID token.
type Identity struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

// Verifier verifies customer ID tokens.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Identity, error)
}

type claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// GoogleVerifier verifies RS256 Firebase ID tokens against Google's published
// certificates, caching them for the advertised max-age.
type GoogleVerifier struct {
	projectID string
	certsURL  string
	client    *http.Client
	now       func() time.Time

	fetch     singleflight.Group
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expires   time.Time
	lastFetch time.Time
}

var _ Verifier = (*GoogleVerifier)(nil)

// Options configures a GoogleVerifier.
type Options struct {
	ProjectID string
	// CertsURL overrides DefaultCertsURL.
	CertsURL string
	// Transport is wrapped with OpenTelemetry instrumentation.
	Transport http.RoundTripper
}

// NewGoogleVerifier creates a verifier for the given Firebase project.
func NewGoogleVerifier(opts Options) (*GoogleVerifier, error) {
	if opts.ProjectID == "" {
		return nil, errors.New("project id required")
	}
	if opts.CertsURL == "" {
		opts.CertsURL = DefaultCertsURL
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	return &GoogleVerifier{
		projectID: opts.ProjectID,
		certsURL:  opts.CertsURL,
		client: &http.Client{
			Transport: otelhttp.NewTransport(opts.Transport),
			Timeout:   10 * time.Second,
		},
		now: time.Now,
	}, nil
}

// Verify checks the signature, audience, issuer and lifetime of raw.
func (v *GoogleVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if c.Subject == "" || len(c.Subject) > 128 {
		return nil, errors.Wrap(ErrInvalidToken, "bad subject")
	}
	return &Identity{UID: c.Subject, Email: c.Email, Name: c.Name, Picture: c.Picture}, nil
}

// key returns the public key for kid. The cache is refreshed when it expired
// or does not know kid, at most once per minRefreshInterval; concurrent
// callers share a single fetch.
func (v *GoogleVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	now := v.now()
	v.mu.RLock()
	k, ok := v.keys[kid]
	fresh := now.Before(v.expires)
	throttled := now.Sub(v.lastFetch) < minRefreshInterval
	v.mu.RUnlock()

	if ok && (fresh || throttled) {
		return k, nil
	}
	if throttled {
		return nil, errors.Errorf("unknown kid %q", kid)
	}

	_, err, _ := v.fetch.Do("certs", func() (any, error) {
		return nil, v.refresh(ctx)
	})

	v.mu.RLock()
	k, ok = v.keys[kid]
	v.mu.RUnlock()
	if ok {
		// Stale keys still verify while Google is unreachable.
		return k, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, errors.Errorf("unknown kid %q", kid)
}

func (v *GoogleVerifier) refresh(ctx context.Context) (rerr error) {
	defer func() {
		if rerr != nil {
			v.mu.Lock()
			v.lastFetch = v.now()
			v.mu.Unlock()
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, http.NoBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetch certs")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("fetch certs: status %d", resp.StatusCode)
	}

	keys := make(map[string]*rsa.PublicKey)
	err = jx.Decode(resp.Body, 4096).Obj(func(d *jx.Decoder, kid string) error {
		certPEM, err := d.Str()
		if err != nil {
			return err
		}
		key, err := parseCert(certPEM)
		if err != nil {
			return errors.Wrapf(err, "cert %q", kid)
		}
		keys[kid] = key
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "decode certs")
	}

	v.mu.Lock()
	v.keys = keys
	v.lastFetch = v.now()
	v.expires = v.lastFetch.Add(maxAge(resp.Header.Get("Cache-Control")))
	v.mu.Unlock()
	return nil
}

func parseCert(certPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse certificate")
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA key")
	}
	return key, nil
}

// maxAge extracts max-age from a Cache-Control header.
func maxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		v, ok := strings.CutPrefix(strings.TrimSpace(part), "max-age=")
		if !ok {
			continue
		}
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultCacheTTL
}
