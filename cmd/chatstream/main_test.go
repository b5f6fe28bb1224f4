package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstream/internal/domain"
	"chatstream/internal/infra/config"
	"chatstream/internal/testutil/fakeapi"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	code := execute(root, args)
	return cliResult{code: code, stdout: out.String(), stderr: errOut.String()}
}

func fakeConfig(t *testing.T, srv *fakeapi.Server) (cfgPath, cachePath string) {
	t.Helper()
	clearAuthEnv(t)
	cachePath = filepath.Join(t.TempDir(), "cache.db")
	cfgPath = writeTestConfig(t, strings.Join([]string{
		"api:",
		"  base_url: " + srv.URL,
		"  project_id: p-1",
		"auth:",
		"  user_id: user_1",
		"  token: tok",
		"cache:",
		"  enabled: true",
		"  path: " + cachePath,
		"logger:",
		"  output: discard",
		"",
	}, "\n"))
	return cfgPath, cachePath
}

func TestSendThenOfflineHistory(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.AddChat(&domain.Conversation{ID: "c-1", Title: "Docs", Messages: []domain.Message{
		{ID: "m-1", ChatID: "c-1", Role: domain.RoleUser, Content: "earlier question"},
	}})
	srv.Script("c-1", fakeapi.Script{Frames: []fakeapi.Frame{
		fakeapi.StatusFrame("thinking"),
		fakeapi.TokenFrame("Hel"),
		fakeapi.TokenFrame("lo"),
		fakeapi.DoneFrame(
			domain.Message{ID: "u-1", ChatID: "c-1", Role: domain.RoleUser, Content: "hi"},
			domain.Message{ID: "a-1", ChatID: "c-1", Role: domain.RoleAssistant, Content: "Hello"},
		),
	}})
	cfgPath, _ := fakeConfig(t, srv)

	res := runCLI(t, "", "--config", cfgPath, "send", "c-1", "hi")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "Hello\n", res.stdout)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hi", reqs[0].Content)
	assert.Equal(t, "p-1", reqs[0].ProjectID)

	srv.Close()
	res = runCLI(t, "", "--config", cfgPath, "history", "--offline", "c-1")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "earlier question")
	assert.Contains(t, res.stdout, "hi")
	assert.Contains(t, res.stdout, "Hello")
}

func TestSend_ReadsStdin(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.AddChat(&domain.Conversation{ID: "c-1"})
	srv.Script("c-1", fakeapi.Script{Frames: []fakeapi.Frame{
		fakeapi.DoneFrame(
			domain.Message{ID: "u-1", ChatID: "c-1", Role: domain.RoleUser, Content: "from stdin"},
			domain.Message{ID: "a-1", ChatID: "c-1", Role: domain.RoleAssistant, Content: "ok"},
		),
	}})
	cfgPath, _ := fakeConfig(t, srv)

	res := runCLI(t, "from stdin\n", "--config", cfgPath, "send", "c-1", "-")
	require.Equal(t, 0, res.code, res.stderr)
	require.Len(t, srv.Requests(), 1)
	assert.Equal(t, "from stdin", srv.Requests()[0].Content)
}

func TestSend_FailureReportedOnce(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	srv.AddChat(&domain.Conversation{ID: "c-1"})
	srv.Script("c-1", fakeapi.Script{Status: 500})
	cfgPath, _ := fakeConfig(t, srv)

	res := runCLI(t, "", "--config", cfgPath, "send", "c-1", "hi")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, 1, strings.Count(res.stderr, "Error:"), res.stderr)
	assert.Empty(t, res.stdout)
}

func TestHistory_UnknownChat(t *testing.T) {
	srv := fakeapi.New()
	defer srv.Close()
	cfgPath, _ := fakeConfig(t, srv)

	res := runCLI(t, "", "--config", cfgPath, "history", "missing")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Chat Not Found")
}

func TestEncryptToken(t *testing.T) {
	t.Setenv("CHATSTREAM_CONFIG_KEY", "passphrase")

	res := runCLI(t, "secret-token\n", "encrypt-token")
	require.Equal(t, 0, res.code, res.stderr)

	value := strings.TrimSpace(res.stdout)
	require.True(t, strings.HasPrefix(value, "enc:"), value)
	plain, err := config.DecryptValue(strings.TrimPrefix(value, "enc:"), "passphrase")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", plain)
}

func TestEncryptToken_RequiresKey(t *testing.T) {
	t.Setenv("CHATSTREAM_CONFIG_KEY", "")

	res := runCLI(t, "secret-token\n", "encrypt-token")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "CHATSTREAM_CONFIG_KEY")
}

func TestMessageArg(t *testing.T) {
	got, err := messageArg([]string{"hello"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = messageArg(nil, strings.NewReader("  piped  \n"))
	require.NoError(t, err)
	assert.Equal(t, "piped", got)

	_, err = messageArg([]string{"-"}, strings.NewReader("   "))
	assert.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	res := runCLI(t, "", "bogus")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "unknown command")
}
