package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
	"chatstream/internal/testutil/fakeapi"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func apiConfig(baseURL string) config.APIConfig {
	api := config.Defaults().API
	api.BaseURL = baseURL
	return api
}

func newTestTransport(t *testing.T, srv *fakeapi.Server, guard config.TransportConfig) *HTTPTransport {
	t.Helper()
	tr, err := NewHTTPTransport(nil, apiConfig(srv.URL), guard, discardLogger())
	require.NoError(t, err)
	return tr
}

func streamReq() domain.StreamRequest {
	return domain.StreamRequest{ProjectID: "p-1", ChatID: "c-1", UserID: "user_1", Token: "tok", Content: "héllo"}
}

func TestOpen_StreamsBody(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.Script("c-1", fakeapi.Script{Frames: []fakeapi.Frame{
		fakeapi.StatusFrame("thinking"),
		fakeapi.TokenFrame("Hi"),
	}})

	body, err := newTestTransport(t, srv, config.TransportConfig{}).Open(context.Background(), streamReq())
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "event: status\n")
	assert.Contains(t, string(data), `data: {"content":"Hi"}`)
}

func TestOpen_SendsIdentity(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.Script("c-1", fakeapi.Script{Frames: []fakeapi.Frame{fakeapi.TokenFrame("x")}})

	body, err := newTestTransport(t, srv, config.TransportConfig{}).Open(context.Background(), streamReq())
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, body)
	body.Close()

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	got := reqs[0]
	assert.Equal(t, "p-1", got.ProjectID)
	assert.Equal(t, "c-1", got.ChatID)
	assert.Equal(t, "héllo", got.Content)
	assert.Equal(t, "tok", got.Query["token"])
	assert.Equal(t, "user_1", got.Query["clerk_id"])
	assert.Equal(t, "Bearer tok", got.Authorization)
	_, err = uuid.Parse(got.RequestID)
	assert.NoError(t, err, "request id should be a uuid")
}

func TestOpen_CustomQueryParams(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.Script("c-1", fakeapi.Script{Frames: []fakeapi.Frame{fakeapi.TokenFrame("x")}})

	api := apiConfig(srv.URL)
	api.TokenParam = "access_token"
	api.UserParam = "uid"
	tr, err := NewHTTPTransport(nil, api, config.TransportConfig{}, discardLogger())
	require.NoError(t, err)

	body, err := tr.Open(context.Background(), streamReq())
	require.NoError(t, err)
	body.Close()

	q := srv.Requests()[0].Query
	assert.Equal(t, "tok", q["access_token"])
	assert.Equal(t, "user_1", q["uid"])
	assert.NotContains(t, q, "token")
}

func TestOpen_StatusErrors(t *testing.T) {
	tests := []struct {
		status int
		target error
		code   domain.ErrorCode
	}{
		{500, domain.ErrUnexpectedStatus, domain.CodeUnexpectedStatus},
		{502, domain.ErrUnexpectedStatus, domain.CodeUnexpectedStatus},
		{401, domain.ErrAuthInvalid, domain.CodeAuthInvalid},
		{404, domain.ErrNotFound, domain.CodeChatNotFound},
		{429, domain.ErrRateLimit, domain.CodeRateLimit},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			srv := fakeapi.New()
			defer srv.Close()
			srv.Script("c-1", fakeapi.Script{Status: tt.status})

			body, err := newTestTransport(t, srv, config.TransportConfig{}).Open(context.Background(), streamReq())
			assert.Nil(t, body)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.code, domain.ErrorCodeOf(err))
			assert.Contains(t, domain.UserMessage(err), "API Error: ")
		})
	}
}

func TestOpen_UserMessageCarriesStatus(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.Script("c-1", fakeapi.Script{Status: 503})

	_, err := newTestTransport(t, srv, config.TransportConfig{}).Open(context.Background(), streamReq())
	assert.Equal(t, "API Error: 503", domain.UserMessage(err))
}

func TestOpen_EmptyBody(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.Script("c-1", fakeapi.Script{Empty: true})

	_, err := newTestTransport(t, srv, config.TransportConfig{}).Open(context.Background(), streamReq())
	assert.ErrorIs(t, err, domain.ErrNoResponseBody)
	assert.Equal(t, "no response body", domain.UserMessage(err))
}

func TestOpen_RequiresIDs(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()

	req := streamReq()
	req.ProjectID = ""
	_, err := newTestTransport(t, srv, config.TransportConfig{}).Open(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, srv.Requests())
}

func TestOpen_CancelAbortsRead(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.Script("c-1", fakeapi.Script{Frames: []fakeapi.Frame{fakeapi.TokenFrame("a")}, Hold: true})

	ctx, cancel := context.WithCancel(context.Background())
	body, err := newTestTransport(t, srv, config.TransportConfig{}).Open(ctx, streamReq())
	require.NoError(t, err)
	defer body.Close()

	buf := make([]byte, 256)
	n, err := body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "token")

	readErr := make(chan error, 1)
	go func() {
		_, err := body.Read(buf)
		readErr <- err
	}()
	cancel()

	select {
	case err := <-readErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read not aborted by cancel")
	}
	select {
	case <-srv.ClientGone():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe disconnect")
	}
}

func TestOpen_CircuitOpensAfterServerErrors(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.Script("c-1", fakeapi.Script{Status: 500})

	tr := newTestTransport(t, srv, config.TransportConfig{CircuitBreaker: config.CircuitBreakerConfig{
		Enabled:     true,
		MaxFailures: 2,
		Timeout:     time.Minute,
	}})

	for i := 0; i < 2; i++ {
		_, err := tr.Open(context.Background(), streamReq())
		assert.ErrorIs(t, err, domain.ErrUnexpectedStatus)
	}
	assert.Equal(t, gobreaker.StateOpen, tr.State())

	_, err := tr.Open(context.Background(), streamReq())
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.True(t, domain.IsRetryableError(err))
	assert.Len(t, srv.Requests(), 2, "open circuit must not reach the server")
}

func TestOpen_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.Script("c-1", fakeapi.Script{Status: 404})

	tr := newTestTransport(t, srv, config.TransportConfig{CircuitBreaker: config.CircuitBreakerConfig{
		Enabled:     true,
		MaxFailures: 1,
		Timeout:     time.Minute,
	}})

	for i := 0; i < 3; i++ {
		_, err := tr.Open(context.Background(), streamReq())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, tr.State())
}

func TestOpen_RateLimited(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.Script("c-1", fakeapi.Script{Frames: []fakeapi.Frame{fakeapi.TokenFrame("x")}})

	tr := newTestTransport(t, srv, config.TransportConfig{RateLimit: config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 0.01,
		Burst:             1,
	}})

	body, err := tr.Open(context.Background(), streamReq())
	require.NoError(t, err)
	body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Open(ctx, streamReq())
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Len(t, srv.Requests(), 1)
}

func TestNewHTTPTransport_BadBaseURL(t *testing.T) {
	_, err := NewHTTPTransport(nil, apiConfig("not a url"), config.TransportConfig{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTripsBreaker(t *testing.T) {
	assert.False(t, tripsBreaker(nil))
	assert.False(t, tripsBreaker(context.Canceled))
	assert.False(t, tripsBreaker(statusError(opOpen, 401)))
	assert.True(t, tripsBreaker(statusError(opOpen, 500)))
	assert.True(t, tripsBreaker(errors.New("connection refused")))
}

func TestStaticTokenSource(t *testing.T) {
	tok, err := StaticTokenSource("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = StaticTokenSource("").Token(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestNewHTTPClientHasNoOverallTimeout(t *testing.T) {
	c := NewHTTPClient(config.APIConfig{})
	assert.Zero(t, c.Timeout)
}
