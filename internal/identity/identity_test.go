package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProject = "angkor-mart"

type certServer struct {
	key     *rsa.PrivateKey
	kid     string
	fetches atomic.Int32
	url     string
}

func newCertServer(t *testing.T) *certServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken.system.gserviceaccount.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	cs := &certServer{key: key, kid: "kid-1"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cs.fetches.Add(1)
		var e jx.Encoder
		e.Obj(func(e *jx.Encoder) {
			e.Field(cs.kid, func(e *jx.Encoder) { e.Str(string(certPEM)) })
		})
		w.Header().Set("Cache-Control", "public, max-age=3600, must-revalidate")
		_, _ = w.Write(e.Bytes())
	}))
	t.Cleanup(srv.Close)
	cs.url = srv.URL
	return cs
}

func (cs *certServer) sign(t *testing.T, kid string, mutate func(c *claims)) string {
	t.Helper()
	now := time.Now()
	c := claims{
		Email:   "dara@example.com",
		Name:    "Sok Dara",
		Picture: "https://example.com/dara.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-123",
			Issuer:    issuerPrefix + testProject,
			Audience:  jwt.ClaimStrings{testProject},
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	if mutate != nil {
		mutate(&c)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(cs.key)
	require.NoError(t, err)
	return raw
}

func newTestVerifier(t *testing.T, cs *certServer) *GoogleVerifier {
	t.Helper()
	v, err := NewGoogleVerifier(Options{ProjectID: testProject, CertsURL: cs.url})
	require.NoError(t, err)
	return v
}

func TestGoogleVerifier_Verify(t *testing.T) {
	cs := newCertServer(t)
	v := newTestVerifier(t, cs)

	id, err := v.Verify(context.Background(), cs.sign(t, cs.kid, nil))
	require.NoError(t, err)
	assert.Equal(t, &Identity{
		UID:     "uid-123",
		Email:   "dara@example.com",
		Name:    "Sok Dara",
		Picture: "https://example.com/dara.png",
	}, id)
}

func TestGoogleVerifier_Rejects(t *testing.T) {
	cs := newCertServer(t)
	v := newTestVerifier(t, cs)

	tests := []struct {
		name string
		raw  func() string
	}{
		{name: "wrong audience", raw: func() string {
			return cs.sign(t, cs.kid, func(c *claims) { c.Audience = jwt.ClaimStrings{"other-project"} })
		}},
		{name: "wrong issuer", raw: func() string {
			return cs.sign(t, cs.kid, func(c *claims) { c.Issuer = "https://accounts.google.com" })
		}},
		{name: "expired", raw: func() string {
			return cs.sign(t, cs.kid, func(c *claims) {
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
			})
		}},
		{name: "issued in the future", raw: func() string {
			return cs.sign(t, cs.kid, func(c *claims) {
				c.IssuedAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
			})
		}},
		{name: "empty subject", raw: func() string {
			return cs.sign(t, cs.kid, func(c *claims) { c.Subject = "" })
		}},
		{name: "unknown kid", raw: func() string { return cs.sign(t, "kid-unknown", nil) }},
		{name: "hmac token", raw: func() string {
			raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).
				SignedString([]byte("secret"))
			require.NoError(t, err)
			return raw
		}},
		{name: "garbage", raw: func() string { return "abc.def.ghi" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.raw())
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestGoogleVerifier_CachesCerts(t *testing.T) {
	cs := newCertServer(t)
	v := newTestVerifier(t, cs)
	raw := cs.sign(t, cs.kid, nil)

	for range 5 {
		_, err := v.Verify(context.Background(), raw)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, cs.fetches.Load())

	// After max-age the certificates are fetched again.
	v.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, _ = v.Verify(context.Background(), raw)
	assert.EqualValues(t, 2, cs.fetches.Load())
}

func TestGoogleVerifier_UnknownKidThrottled(t *testing.T) {
	cs := newCertServer(t)
	v := newTestVerifier(t, cs)

	_, err := v.Verify(context.Background(), cs.sign(t, cs.kid, nil))
	require.NoError(t, err)
	require.EqualValues(t, 1, cs.fetches.Load())

	for i := range 50 {
		_, err := v.Verify(context.Background(), cs.sign(t, "junk-"+strconv.Itoa(i), nil))
		require.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.EqualValues(t, 1, cs.fetches.Load(), "fresh cache must not be refetched for unknown kids")

	// Once the interval passed, an unknown kid may trigger one refetch.
	base := time.Now()
	v.now = func() time.Time { return base.Add(minRefreshInterval + time.Second) }
	for range 10 {
		_, err := v.Verify(context.Background(), cs.sign(t, "rotated", nil))
		require.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.EqualValues(t, 2, cs.fetches.Load())

	// Known keys keep verifying throughout.
	_, err = v.Verify(context.Background(), cs.sign(t, cs.kid, nil))
	require.NoError(t, err)
}

func TestGoogleVerifier_ConcurrentRefreshShared(t *testing.T) {
	cs := newCertServer(t)
	v := newTestVerifier(t, cs)
	raw := cs.sign(t, cs.kid, nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), raw)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, cs.fetches.Load(), int32(2))
}

func TestMaxAge(t *testing.T) {
	assert.Equal(t, 19*time.Minute, maxAge("public, max-age=1140, must-revalidate, no-transform"))
	assert.Equal(t, defaultCacheTTL, maxAge("no-cache"))
	assert.Equal(t, defaultCacheTTL, maxAge("max-age=abc"))
	assert.Equal(t, defaultCacheTTL, maxAge(""))
}

func TestNewGoogleVerifier_RequiresProject(t *testing.T) {
	_, err := NewGoogleVerifier(Options{})
	require.Error(t, err)
}
