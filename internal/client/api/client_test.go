package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akarpov91/chainanchor/internal/common"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(srv.URL)
	require.NoError(t, err)
	return c
}

func TestRequestChallenge_OK(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/challenge", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "0xAbC", body["address"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"challenge": map[string]string{"message": "sign me", "requestId": "req-1"},
		})
	}))

	ch, err := c.RequestChallenge(t.Context(), "0xAbC", 1, "did:pkh:eip155:1:0xAbC")
	require.NoError(t, err)
	require.Equal(t, "sign me", ch.Message)
	require.Equal(t, "req-1", ch.RequestID)
}

func TestRequestChallenge_BackendFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "verifier down"})
	}))

	_, err := c.RequestChallenge(t.Context(), "0xAbC", 1, "did")
	require.ErrorIs(t, err, common.ErrChallengeRequestFailed)
	require.Contains(t, err.Error(), "verifier down")
}

func TestVerify_ErrorCodes(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"challenge_expired", common.ErrChallengeExpired},
		{"challenge_reused", common.ErrChallengeReused},
		{"unknown_challenge", common.ErrRequestIDMismatch},
		{"verification_failed", common.ErrVerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "nope", "code": tt.code})
			}))

			_, err := c.Verify(t.Context(), &VerifyRequest{RequestID: "r"})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerify_SetsCookieAndRestoresSession(t *testing.T) {
	verified := time.Now().UTC().Truncate(time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/verify", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: common.SessionCookieName, Value: "tok", Path: "/"})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session": SessionInfo{Address: "0xAbC", ChainID: 1, DID: "did:pkh:eip155:1:0xAbC", VerifiedAt: verified},
		})
	})
	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(common.SessionCookieName)
		if err != nil || ck.Value != "tok" {
			_ = json.NewEncoder(w).Encode(map[string]any{"session": nil})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"session": SessionInfo{Address: "0xAbC", ChainID: 1, DID: "did:pkh:eip155:1:0xAbC", VerifiedAt: verified},
		})
	})
	c := newTestClient(t, mux)

	// before verification there is no session
	s, err := c.Session(t.Context())
	require.NoError(t, err)
	require.Nil(t, s)

	_, err = c.Verify(t.Context(), &VerifyRequest{RequestID: "r"})
	require.NoError(t, err)

	// the jar carries the cookie to the session endpoint
	s, err = c.Session(t.Context())
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, "0xAbC", s.Address)
	require.Equal(t, verified, s.VerifiedAt)
}

func TestUploadFetch(t *testing.T) {
	store := map[string][]byte{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/storage", func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		store["cid-1"] = raw
		_ = json.NewEncoder(w).Encode(uploadResponse{ContentID: "cid-1", GatewayURL: "http://gw/ipfs/cid-1"})
	})
	mux.HandleFunc("GET /api/storage/{cid}", func(w http.ResponseWriter, r *http.Request) {
		blob, ok := store[r.PathValue("cid")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(blob)
	})
	c := newTestClient(t, mux)

	cid, gw, err := c.Upload(t.Context(), []byte("hello"), "profile.json")
	require.NoError(t, err)
	require.Equal(t, "cid-1", cid)
	require.Equal(t, "http://gw/ipfs/cid-1", gw)

	got, err := c.Fetch(t.Context(), "cid-1")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestUpload_Failure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInsufficientStorage)
	}))

	_, _, err := c.Upload(t.Context(), []byte("x"), "")
	require.ErrorIs(t, err, common.ErrUploadFailed)
}
