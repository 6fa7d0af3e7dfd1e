package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/josephgoksu/ProbeWing/internal/backend"
	"github.com/josephgoksu/ProbeWing/internal/config"
	"github.com/josephgoksu/ProbeWing/internal/llm"
	"github.com/josephgoksu/ProbeWing/internal/memory"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(id, text string) llm.Backend {
	return llm.BackendFunc{Name: id, Fn: func(context.Context, []*schema.Message, llm.Options) (string, error) {
		return text, nil
	}}
}

// fakeRegistry is a strict default that refuses and a relaxed backend that
// answers everything.
func fakeRegistry(context.Context, *config.Config) (*backend.Registry, error) {
	return backend.NewRegistry(
		backend.Entry{Descriptor: backend.Descriptor{ID: "strict", Name: "Strict", Default: true}, Client: reply("strict", "I'm sorry, I can't help with that.")},
		backend.Entry{Descriptor: backend.Descriptor{ID: "relaxed", Name: "Relaxed", Relaxed: true}, Client: reply("relaxed", "tightened vector")},
	)
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// setupTest isolates a command run: fresh viper, empty working directory,
// fake backends and an in-memory store.
func setupTest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_DATA_HOME", "")

	viper.Reset()
	bindFlags()
	resetConfig()
	resetFlags(rootCmd)

	origFs, origRegistry, origEmbedder, origMemory, origInterrupts := appFs, buildRegistry, newEmbedder, memoryPath, interrupts
	appFs = afero.NewMemMapFs()
	buildRegistry = fakeRegistry
	memoryPath = func() string { return ":memory:" }
	interrupts = func() (<-chan os.Signal, func()) { return make(chan os.Signal), func() {} }
	t.Cleanup(func() {
		appFs, buildRegistry, newEmbedder, memoryPath, interrupts = origFs, origRegistry, origEmbedder, origMemory, origInterrupts
		rootCmd.SetIn(nil)
		viper.Reset()
		resetConfig()
	})
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCmd(t *testing.T) {
	setupTest(t)

	out, _, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "ProbeWing runs heuristic probes against a target")
	assert.Equal(t, "ProbeWing - client-side security assessment with self-refining findings", rootCmd.Short)
	assert.Contains(t, out, "Usage:")
	for _, name := range []string{"scan", "chat", "serve", "backends", "memory", "init", "crashes", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestVersion(t *testing.T) {
	setupTest(t)

	assert.Equal(t, "0.1.0", GetVersion())
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "probewing version 0.1.0\n", out)
}

func TestInvalidConfigFails(t *testing.T) {
	dir := setupTest(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("evolve:\n  max_cycles: 0\n"), 0o600))

	_, _, err := execute(t, "--config", path, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestBackends(t *testing.T) {
	setupTest(t)

	out, _, err := execute(t, "backends")
	require.NoError(t, err)
	assert.Contains(t, out, "strict")
	assert.Contains(t, out, "relaxed")
	assert.NotContains(t, out, "no relaxed backend")

	out, _, err = execute(t, "backends", "--json")
	require.NoError(t, err)
	var descs []backend.Descriptor
	require.NoError(t, json.Unmarshal([]byte(out), &descs))
	require.Len(t, descs, 2)
	assert.True(t, descs[0].Default)
	assert.True(t, descs[1].Relaxed)
}

func TestBackendsWithoutRelaxed(t *testing.T) {
	setupTest(t)
	buildRegistry = func(context.Context, *config.Config) (*backend.Registry, error) {
		return backend.NewRegistry(backend.Entry{Descriptor: backend.Descriptor{ID: "only"}, Client: reply("only", "ok")})
	}

	out, _, err := execute(t, "backends")
	require.NoError(t, err)
	assert.Contains(t, out, "no relaxed backend configured")
}

func TestScanJSON(t *testing.T) {
	setupTest(t)

	out, _, err := execute(t, "scan", "--target", "http://app.example/login", "--max-cycles", "2", "--json")
	require.NoError(t, err)

	var run struct {
		Findings []struct {
			Name   string `json:"name"`
			Cycle  int    `json:"cycle"`
			Vector string `json:"vector"`
		} `json:"findings"`
		Cycles []struct {
			Cycle int `json:"cycle"`
		} `json:"cycles"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	require.NotEmpty(t, run.Findings)
	require.NotEmpty(t, run.Cycles)
	assert.LessOrEqual(t, len(run.Cycles), 2)
	assert.Equal(t, 1, run.Cycles[0].Cycle)
}

func TestScanText(t *testing.T) {
	setupTest(t)

	out, stderr, err := execute(t, "scan", "--target", "http://app.example", "--max-cycles", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Severity")
	assert.Contains(t, stderr, "[cycle 1]")
}

func TestScanMissingDump(t *testing.T) {
	setupTest(t)

	_, _, err := execute(t, "scan", "--target", "http://app.example", "--dump", "/nope.txt")
	require.Error(t, err)
}

func TestScanBackendError(t *testing.T) {
	setupTest(t)
	buildRegistry = func(context.Context, *config.Config) (*backend.Registry, error) {
		return nil, errors.New("no keys")
	}

	_, _, err := execute(t, "scan", "--target", "http://app.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backends: no keys")
}

func TestChatSwitchesOnRefusal(t *testing.T) {
	setupTest(t)
	rootCmd.SetIn(strings.NewReader("hello there\n/switches\n/backend\n/bogus\n/exit\nnever sent\n"))

	out, _, err := execute(t, "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "strict → relaxed (Model refused to continue)")
	assert.Contains(t, out, "tightened vector")
	assert.Contains(t, out, "relaxed\n")
	assert.Contains(t, out, "unknown command /bogus")
	assert.NotContains(t, out, "never sent")
}

func TestChatNoSwitch(t *testing.T) {
	setupTest(t)
	rootCmd.SetIn(strings.NewReader("hello\n/history\n"))

	out, _, err := execute(t, "chat", "--no-switch")
	require.NoError(t, err)
	assert.NotContains(t, out, "switch strict")
	assert.Contains(t, out, "automatic switching is off")
	assert.Contains(t, out, "hello")
}

func TestChatRefusalNotice(t *testing.T) {
	refusal := "I'm sorry, I can't help with that."
	tests := []struct {
		name    string
		entries []backend.Entry
		want    string
		reject  string
	}{
		{
			name: "no relaxed backend",
			entries: []backend.Entry{
				{Descriptor: backend.Descriptor{ID: "strict", Default: true}, Client: reply("strict", refusal)},
			},
			want:   "no relaxed backend could take over",
			reject: "automatic switching is off",
		},
		{
			name: "relaxed backend refuses too",
			entries: []backend.Entry{
				{Descriptor: backend.Descriptor{ID: "strict", Default: true}, Client: reply("strict", refusal)},
				{Descriptor: backend.Descriptor{ID: "relaxed", Relaxed: true}, Client: reply("relaxed", refusal)},
			},
			want:   "relaxed backend refused as well",
			reject: "no relaxed backend could take over",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTest(t)
			buildRegistry = func(context.Context, *config.Config) (*backend.Registry, error) {
				return backend.NewRegistry(tt.entries...)
			}
			rootCmd.SetIn(strings.NewReader("hello\n"))

			out, _, err := execute(t, "chat")
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
			assert.NotContains(t, out, tt.reject)
		})
	}
}

func TestChatUnknownBackend(t *testing.T) {
	setupTest(t)
	rootCmd.SetIn(strings.NewReader(""))

	_, _, err := execute(t, "chat", "--backend", "missing")
	require.Error(t, err)
}

func TestMemorySearch(t *testing.T) {
	dir := setupTest(t)
	memDir := filepath.Join(dir, "mem")
	memoryPath = func() string { return memDir }

	store, err := memory.NewSQLiteStore(memDir)
	require.NoError(t, err)
	_, err = store.Store(context.Background(), "reflected xss on the login form", nil, []string{memory.TagFinding})
	require.NoError(t, err)
	_, err = store.Store(context.Background(), "switched from strict to relaxed", nil, []string{memory.TagAudit, memory.TagSwitched})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, _, err := execute(t, "memory", "search", "--json", "--tag", memory.TagAudit)
	require.NoError(t, err)
	var entries []memory.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Content, "switched")

	out, _, err = execute(t, "memory", "search", "xss")
	require.NoError(t, err)
	assert.Contains(t, out, "reflected xss")

	out, _, err = execute(t, "memory", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "entries: 2")
}

func TestMemorySearchEmptyJSON(t *testing.T) {
	setupTest(t)

	out, _, err := execute(t, "memory", "search", "--json", "nothing")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestInitWritesStarter(t *testing.T) {
	setupTest(t)
	path := filepath.Join(config.LocalDir, config.FileName+".yaml")

	out, _, err := execute(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	ok, err := afero.Exists(appFs, path)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = execute(t, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, _, err = execute(t, "init", "--force")
	require.NoError(t, err)
}

func TestServeAPI(t *testing.T) {
	setupTest(t)
	InitConfig()
	cfg, err := GetConfig()
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv, err := newServer(a)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodPost, "/api/scan", strings.NewReader(`{"target": "http://app.example", "maxCycles": 1}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var run struct {
		Findings []json.RawMessage `json:"findings"`
		Cycles   []json.RawMessage `json:"cycles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.NotEmpty(t, run.Findings)
	assert.Len(t, run.Cycles, 1)

	req = httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backend":"strict"`)
}

func TestCrashes(t *testing.T) {
	dir := setupTest(t)

	out, _, err := execute(t, "crashes")
	require.NoError(t, err)
	assert.Contains(t, out, "No crash logs.")

	logDir := filepath.Join(dir, config.LocalDir, "crash_logs")
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "crash_20250101_000000.000.log"), []byte("old"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "crash_20250102_000000.000.log"), []byte("PROBEWING CRASH LOG\n"), 0o600))

	out, _, err = execute(t, "crashes")
	require.NoError(t, err)
	assert.Equal(t, "crash_20250101_000000.000.log\ncrash_20250102_000000.000.log\n", out)

	out, _, err = execute(t, "crashes", "--last")
	require.NoError(t, err)
	assert.Equal(t, "PROBEWING CRASH LOG\n", out)
}

func TestRefinementConfig(t *testing.T) {
	setupTest(t)
	InitConfig()
	cfg, err := GetConfig()
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	interactive := a.chatConfig("", true)
	require.Positive(t, interactive.ContextLimit)
	require.Nil(t, interactive.ExploitIntent, "sessions default to chat.IsExploitIntent")

	cc := a.refinementConfig()
	require.NotNil(t, cc.ExploitIntent)
	assert.Zero(t, cc.ContextLimit, "no recall for generated prompts")
	assert.False(t, cc.ExploitIntent("how would I bypass the login form?"))
	assert.NotNil(t, cc.Memory, "audit records are still written")
	assert.Equal(t, cfg.Chat.AutoSwitch, cc.AutoSwitch)
}
