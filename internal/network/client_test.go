package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"GoMangaParsers/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

// testSettings は、テストが待たされないように間隔を短くした設定を返します。
func testSettings() config.NetworkSettings {
	return config.NetworkSettings{
		UserAgent:               "GoMangaParsers-Test/1.0",
		DefaultHeaders:          map[string]string{"Accept-Language": "en"},
		PerDomainIntervalMillis: map[string]int{"127.0.0.1": 1},
		RetryCount:              2,
		RetryWaitMillis:         1,
	}
}

func TestClient_CookieIntegration(t *testing.T) {
	// 1. Arrange (準備) - ダミーサーバーの構築
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("gwt")
		if err != nil || cookie.Value != "session-token" {
			http.Error(w, "Cookie 'gwt' not found", http.StatusBadRequest)
			return
		}
		assert.Equal(t, "GoMangaParsers-Test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "en", r.Header.Get("Accept-Language"))
		w.Write([]byte("Success"))
	}))
	defer server.Close()

	// 2. Arrange (準備) - テスト対象クライアントの作成
	client, err := NewClient(testSettings(), nil)
	require.NoError(t, err)
	require.NoError(t, client.SetCookie(server.URL, &http.Cookie{Name: "gwt", Value: "session-token", Path: "/"}))

	// 3. Act (実行)
	body, err := client.Get(context.Background(), server.URL+"/list")

	// 4. Assert (検証)
	require.NoError(t, err)
	assert.Equal(t, "Success", body)

	var names []string
	for _, c := range client.Cookies(server.URL) {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "gwt")
}

func TestClient_Get_DecodesDeclaredCharset(t *testing.T) {
	encoded, err := japanese.ShiftJIS.NewEncoder().String("<p>こんにちは</p>")
	require.NoError(t, err)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=Shift_JIS")
		w.Write([]byte(encoded))
	}))
	defer server.Close()
	client, err := NewClient(testSettings(), nil)
	require.NoError(t, err)

	body, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "<p>こんにちは</p>", body)
}

func TestClient_Get_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()
	client, err := NewClient(testSettings(), nil)
	require.NoError(t, err)

	body, err := client.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_Get_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()
	client, err := NewClient(testSettings(), nil)
	require.NoError(t, err)

	_, err = client.Get(context.Background(), server.URL+"/missing")

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.False(t, httpErr.IsRetryable())
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_Get_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late"))
	}))
	defer server.Close()
	client, err := NewClient(testSettings(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Get(ctx, server.URL)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPError_IsRetryable(t *testing.T) {
	assert.True(t, (&HTTPError{StatusCode: http.StatusInternalServerError}).IsRetryable())
	assert.True(t, (&HTTPError{StatusCode: http.StatusTooManyRequests}).IsRetryable())
	assert.False(t, (&HTTPError{StatusCode: http.StatusForbidden}).IsRetryable())
}
