package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"

	"cmdai/config"
	"cmdai/model"
	"cmdai/provider"
	"cmdai/storage"
)

type testEnv struct {
	dir        string
	configPath string
}

func newTestEnv(t *testing.T, ollamaURL string) *testEnv {
	t.Helper()
	keyring.MockInit()

	dir := t.TempDir()
	t.Setenv("CMDAI_DATA_DIR", dir)
	t.Setenv("CMDAI_OLLAMA_HOST", ollamaURL)
	t.Setenv("CMDAI_DEFAULT_MODEL", "")
	t.Setenv("CMDAI_DEBUG", "")
	for _, v := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(v, "")
	}

	return &testEnv{dir: dir, configPath: filepath.Join(dir, "config.yaml")}
}

// run executes the CLI and returns stdout and the exit code.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, int) {
	t.Helper()

	var out, errOut bytes.Buffer
	code := 0

	app := newApp()
	app.Reader = strings.NewReader(stdin)
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(_ context.Context, _ *cli.Command, err error) {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			code = exitErr.ExitCode()
			fmt.Fprintln(&errOut, exitErr.Error())
		}
	}

	argv := append([]string{"cmdai", "--config", e.configPath}, args...)
	if err := app.Run(context.Background(), argv); err != nil && code == 0 {
		code = 1
	}
	if code != 0 {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), code
}

func (e *testEnv) saveConversation(t *testing.T, title, user, reply string) *model.Conversation {
	t.Helper()
	store, err := storage.NewConversationStorage(filepath.Join(e.dir, "conversations"))
	require.NoError(t, err)

	conv := model.NewConversation("llama3")
	conv.Title = title
	conv.AddMessage(model.NewUserMessage(user))
	conv.AddMessage(model.NewAssistantMessage(reply, "llama3"))
	require.NoError(t, store.Save(conv))
	return conv
}

func ollamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"llama3:latest","model":"llama3:latest"},{"name":"mistral","model":"mistral"}]}`)
		case "/api/chat":
			var req struct {
				Model  string `json:"model"`
				Stream *bool  `json:"stream"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.Header().Set("Content-Type", "application/x-ndjson")
			if req.Model == "missing" {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":"model 'missing' not found"}`)
				return
			}
			if req.Stream != nil && !*req.Stream {
				fmt.Fprintln(w, `{"model":"llama2","message":{"role":"assistant","content":"whole reply"},"done":true}`)
				return
			}
			fmt.Fprintln(w, `{"message":{"role":"assistant","content":"streamed "},"done":false}`)
			fmt.Fprintln(w, `{"message":{"role":"assistant","content":"reply"},"done":false}`)
			fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestModelsCommand(t *testing.T) {
	e := newTestEnv(t, ollamaServer(t).URL)

	out, code := e.run(t, "", "models")

	assert.Equal(t, 0, code)
	assert.Equal(t, "llama3:latest\nmistral\n", out)
}

func TestModelsCommandFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	e := newTestEnv(t, srv.URL)

	out, code := e.run(t, "", "models")

	assert.Equal(t, 0, code)
	assert.Equal(t, strings.Join(provider.OllamaFallbackModels, "\n")+"\n", out)
}

func TestAskStreams(t *testing.T) {
	e := newTestEnv(t, ollamaServer(t).URL)

	out, code := e.run(t, "", "ask", "what", "is", "go?")

	assert.Equal(t, 0, code)
	assert.Equal(t, "streamed reply\n", out)
}

func TestAskNoStream(t *testing.T) {
	e := newTestEnv(t, ollamaServer(t).URL)

	out, code := e.run(t, "", "ask", "--no-stream", "hello")

	assert.Equal(t, 0, code)
	assert.Equal(t, "whole reply\n", out)
}

func TestAskFailures(t *testing.T) {
	tests := []struct {
		name  string
		model string
		code  int
	}{
		{"unconfigured namespace", "openai/gpt-4o", 2},
		{"unknown model", "missing", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t, ollamaServer(t).URL)

			_, code := e.run(t, "", "ask", "--model", tt.model, "hello")

			assert.Equal(t, tt.code, code)
		})
	}
}

func TestAskRequiresPrompt(t *testing.T) {
	e := newTestEnv(t, ollamaServer(t).URL)

	_, code := e.run(t, "", "ask")

	assert.Equal(t, 1, code)
}

func TestConversationsCommand(t *testing.T) {
	e := newTestEnv(t, "")
	conv := e.saveConversation(t, "Goroutines", "explain goroutines", "lightweight threads")

	out, code := e.run(t, "", "conversations")

	assert.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "TITLE")
	assert.Contains(t, lines[1], conv.ID)
	assert.Contains(t, lines[1], "Goroutines")
	assert.Contains(t, lines[1], "llama3")
}

func TestConversationsCommandEmpty(t *testing.T) {
	e := newTestEnv(t, "")

	out, code := e.run(t, "", "conversations")

	assert.Equal(t, 0, code)
	assert.Equal(t, "No saved conversations in "+filepath.Join(e.dir, "conversations")+"\n", out)
}

func TestSearchCommand(t *testing.T) {
	e := newTestEnv(t, "")
	conv := e.saveConversation(t, "Channels", "how do channels work", "They pass values between goroutines")

	out, code := e.run(t, "", "search", "--rebuild", "GOROUTINES")

	assert.Equal(t, 0, code)
	assert.Contains(t, out, conv.ID)
	assert.Contains(t, out, "Channels (#1, assistant)")
	assert.Contains(t, out, "They pass values between goroutines")

	out, code = e.run(t, "", "search", "nothing-like-this")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "No messages match")
}

func TestExportCommand(t *testing.T) {
	e := newTestEnv(t, "")
	conv := e.saveConversation(t, "Export me", "hi", "hello")
	dest := filepath.Join(e.dir, "out", "conv.json")

	out, code := e.run(t, "", "export", "--out", dest, conv.ID)

	assert.Equal(t, 0, code)
	assert.Equal(t, dest+"\n", out)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var exported model.Conversation
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.Equal(t, conv.ID, exported.ID)
	assert.Len(t, exported.Messages, 2)

	_, code = e.run(t, "", "export", "--out", dest, "no-such-id")
	assert.Equal(t, 1, code)
}

func TestKeyCommands(t *testing.T) {
	e := newTestEnv(t, "")

	out, code := e.run(t, "", "key", "set", "openai", "sk-test")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Stored openai API key")

	cfg, err := config.Load(e.configPath)
	require.NoError(t, err)
	assert.True(t, cfg.HasAPIKey(config.ProviderOpenAI))
	assert.Equal(t, "keyring", cfg.KeySource(config.ProviderOpenAI))

	_, code = e.run(t, "", "key", "delete", "openai")
	assert.Equal(t, 0, code)

	cfg, err = config.Load(e.configPath)
	require.NoError(t, err)
	assert.False(t, cfg.HasAPIKey(config.ProviderOpenAI))
}

func TestKeySetFromStdin(t *testing.T) {
	e := newTestEnv(t, "")

	_, code := e.run(t, "sk-ant-from-stdin\n", "key", "set", "anthropic")
	assert.Equal(t, 0, code)

	stored, err := config.GetStoredKey(config.ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-from-stdin", stored)
}

func TestKeySetRejectsUnknownProvider(t *testing.T) {
	e := newTestEnv(t, "")

	_, code := e.run(t, "", "key", "set", "ollama", "abc")

	assert.Equal(t, 1, code)
}
