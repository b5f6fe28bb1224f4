package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/domain"
	"chatstream/internal/testutil/fakeapi"
)

func newTestLoader(t *testing.T, baseURL string) *HTTPLoader {
	t.Helper()
	l, err := NewHTTPLoader(nil, apiConfig(baseURL), StaticTokenSource("tok"), "user_1", discardLogger())
	require.NoError(t, err)
	return l
}

func TestLoadConversation(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	srv.AddChat(&domain.Conversation{ID: "c-1", Title: "Docs", Messages: []domain.Message{
		{ID: "m-1", ChatID: "c-1", Role: domain.RoleUser, Content: "hi", CreatedAt: created},
		{ID: "m-2", ChatID: "c-1", Role: domain.RoleAssistant, Content: "hello", Citations: []domain.Citation{{Title: "Guide", Page: 3}}},
	}})

	conv, err := newTestLoader(t, srv.URL).LoadConversation(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", conv.ID)
	assert.Equal(t, "Docs", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.True(t, conv.Messages[0].CreatedAt.Equal(created))
	assert.Equal(t, 3, conv.Messages[1].Citations[0].Page)
}

func TestLoadConversation_NotFound(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()

	_, err := newTestLoader(t, srv.URL).LoadConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodeChatNotFound, domain.ErrorCodeOf(err))
}

func TestLoadConversation_SendsCredentials(t *testing.T) {
	var gotAuth, gotToken, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotToken = r.URL.Query().Get("token")
		gotUser = r.URL.Query().Get("clerk_id")
		_, _ = w.Write([]byte(`{"data":{"id":"c-1","messages":[]}}`))
	}))
	defer srv.Close()

	_, err := newTestLoader(t, srv.URL).LoadConversation(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "tok", gotToken)
	assert.Equal(t, "user_1", gotUser)
}

func TestLoadConversation_BadEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		target error
	}{
		{"not json", `<html>`, domain.ErrMalformedPayload},
		{"null data", `{"data":null}`, domain.ErrNotFound},
		{"missing data", `{}`, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestLoader(t, srv.URL).LoadConversation(context.Background(), "c-1")
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestLoadConversation_FillsMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"messages":[{"id":"m-1","role":"user","content":"x"}]}}`))
	}))
	defer srv.Close()

	conv, err := newTestLoader(t, srv.URL).LoadConversation(context.Background(), "c-9")
	require.NoError(t, err)
	assert.Equal(t, "c-9", conv.ID)
}

func TestLoadConversation_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	api := apiConfig(srv.URL)
	api.RequestTimeout = 30 * time.Millisecond
	l, err := NewHTTPLoader(nil, api, nil, "", discardLogger())
	require.NoError(t, err)

	_, err = l.LoadConversation(context.Background(), "c-1")
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestLoadConversation_EmptyChatID(t *testing.T) {
	_, err := newTestLoader(t, "http://127.0.0.1:1").LoadConversation(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
