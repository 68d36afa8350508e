package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causeway-labs/causeway/internal/crypto"
	"github.com/causeway-labs/causeway/internal/domain"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func callerEcho(t *testing.T) (http.Handler, *domain.Address) {
	t.Helper()
	var got domain.Address
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CallerFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return next, &got
}

func signedRequest(t *testing.T, s *crypto.Signer, method, path string, ts int64) *http.Request {
	t.Helper()
	sig, err := s.SignMessage(CallerMessage(method, path, ts))
	require.NoError(t, err)

	r := httptest.NewRequest(method, path, nil)
	r.Header.Set(HeaderCallerAddress, s.Address().Hex())
	r.Header.Set(HeaderCallerTimestamp, strconv.FormatInt(ts, 10))
	r.Header.Set(HeaderCallerSignature, sig)
	return r
}

func TestCallerAuthVerify(t *testing.T) {
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)

	t.Run("valid signature resolves the caller", func(t *testing.T) {
		next, got := callerEcho(t)
		h := CallerAuth(true)(next)

		r := signedRequest(t, signer, http.MethodPost, "/api/clauses", time.Now().Unix())
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, domain.SameAddress(*got, signer.Address().Hex()))
	})

	t.Run("no caller header passes through unauthenticated", func(t *testing.T) {
		next, got := callerEcho(t)
		h := CallerAuth(true)(next)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, *got)
	})

	t.Run("missing signature headers rejected", func(t *testing.T) {
		next, _ := callerEcho(t)
		h := CallerAuth(true)(next)

		r := httptest.NewRequest(http.MethodPost, "/api/clauses", nil)
		r.Header.Set(HeaderCallerAddress, signer.Address().Hex())
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("stale timestamp rejected", func(t *testing.T) {
		next, _ := callerEcho(t)
		h := CallerAuth(true)(next)

		r := signedRequest(t, signer, http.MethodPost, "/api/clauses", time.Now().Add(-time.Hour).Unix())
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("signature over a different path rejected", func(t *testing.T) {
		next, _ := callerEcho(t)
		h := CallerAuth(true)(next)

		ts := time.Now().Unix()
		sig, err := signer.SignMessage(CallerMessage(http.MethodPost, "/api/transfers", ts))
		require.NoError(t, err)

		r := httptest.NewRequest(http.MethodPost, "/api/clauses", nil)
		r.Header.Set(HeaderCallerAddress, signer.Address().Hex())
		r.Header.Set(HeaderCallerTimestamp, strconv.FormatInt(ts, 10))
		r.Header.Set(HeaderCallerSignature, sig)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("address mismatch rejected", func(t *testing.T) {
		next, _ := callerEcho(t)
		h := CallerAuth(true)(next)

		r := signedRequest(t, signer, http.MethodPost, "/api/clauses", time.Now().Unix())
		r.Header.Set(HeaderCallerAddress, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed address rejected", func(t *testing.T) {
		next, _ := callerEcho(t)
		h := CallerAuth(true)(next)

		r := httptest.NewRequest(http.MethodPost, "/api/clauses", nil)
		r.Header.Set(HeaderCallerAddress, "not-an-address")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCallerAuthTrusted(t *testing.T) {
	// verify=false trusts the declared address (development only).
	next, got := callerEcho(t)
	h := CallerAuth(false)(next)

	r := httptest.NewRequest(http.MethodPost, "/api/clauses", nil)
	r.Header.Set(HeaderCallerAddress, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, domain.SameAddress(*got, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"))
}

func TestCallerMessage(t *testing.T) {
	msg := CallerMessage(http.MethodPost, "/api/clauses", 1700000000)
	assert.Equal(t, fmt.Sprintf("POST\n/api/clauses\n%d", 1700000000), string(msg))
}
