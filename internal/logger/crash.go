package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const (
	// CrashLogDir is the directory for crash logs relative to .probewing
	CrashLogDir = "crash_logs"

	// MaxCrashLogs is the maximum number of crash logs to keep
	MaxCrashLogs = 10
)

// crashState is what a crash log reports about the moment before the panic.
type crashState struct {
	mu          sync.RWMutex
	fs          afero.Fs
	basePath    string
	version     string
	command     string
	target      string
	lastBackend string
	lastInput   string
}

var state = &crashState{fs: afero.NewOsFs()}

// exit is replaced in tests.
var exit = os.Exit

// SetBasePath sets the directory crash_logs/ is created under.
func SetBasePath(path string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.basePath = path
}

// SetVersion records the binary version.
func SetVersion(version string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.version = version
}

// SetCommand records the command line being executed.
func SetCommand(cmd string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.command = cmd
}

// SetTarget records the target under assessment.
func SetTarget(target string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.target = target
}

// SetLastBackend records the backend that handled the latest call.
func SetLastBackend(id string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.lastBackend = id
}

// SetLastInput records the latest operator input.
func SetLastInput(input string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.lastInput = truncateForLog(strings.TrimSpace(input), 2000)
}

func truncateForLog(value string, maxRunes int) string {
	r := []rune(value)
	if len(r) <= maxRunes {
		return value
	}
	return string(r[:maxRunes]) + "... [truncated]"
}

// CrashLog is one crash report.
type CrashLog struct {
	Timestamp   time.Time
	Version     string
	Command     string
	Target      string
	LastBackend string
	PanicValue  string
	StackTrace  string
	LastInput   string
	GoVersion   string
	OS          string
	Arch        string
}

// HandlePanic recovers a panic, writes a crash log and exits with status 1.
// Usage: defer logger.HandlePanic()
func HandlePanic() {
	r := recover()
	if r == nil {
		return
	}
	report(os.Stderr, r)
	exit(1)
}

func report(w io.Writer, panicValue any) {
	log := newCrashLog(panicValue)
	path, err := writeCrashLog(log)
	if err != nil {
		fmt.Fprintf(w, "\n[CRASH] Failed to write crash log: %v\n", err)
		fmt.Fprintf(w, "[CRASH] Panic: %v\n%s\n", panicValue, log.StackTrace)
		return
	}

	fmt.Fprintf(w, "\nProbeWing stopped after an unexpected error.\n\n")
	fmt.Fprintf(w, "A crash log has been saved to:\n  %s\n\n", path)
	fmt.Fprintf(w, "It may contain the last input and target; review it before sharing.\n")
}

func newCrashLog(panicValue any) CrashLog {
	state.mu.RLock()
	defer state.mu.RUnlock()

	return CrashLog{
		Timestamp:   time.Now(),
		Version:     state.version,
		Command:     state.command,
		Target:      state.target,
		LastBackend: state.lastBackend,
		PanicValue:  fmt.Sprintf("%v", panicValue),
		StackTrace:  string(debug.Stack()),
		LastInput:   state.lastInput,
		GoVersion:   runtime.Version(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
	}
}

// writeCrashLog stores log and prunes old ones. It returns the file path.
func writeCrashLog(log CrashLog) (string, error) {
	fs, dir := crashFs(), crashLogDir()
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create crash log dir: %w", err)
	}

	path := crashLogPath(log.Timestamp)
	if err := afero.WriteFile(fs, path, []byte(formatCrashLog(log)), 0600); err != nil {
		return "", fmt.Errorf("write crash log: %w", err)
	}

	if err := pruneCrashLogs(fs, dir); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to clean old crash logs: %v\n", err)
	}
	return path, nil
}

func crashFs() afero.Fs {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.fs
}

func crashLogDir() string {
	state.mu.RLock()
	basePath := state.basePath
	state.mu.RUnlock()

	if basePath == "" {
		basePath = ".probewing"
	}
	return filepath.Join(basePath, CrashLogDir)
}

func crashLogPath(t time.Time) string {
	filename := fmt.Sprintf("crash_%s.log", t.Format("20060102_150405.000"))
	return filepath.Join(crashLogDir(), filename)
}

func formatCrashLog(log CrashLog) string {
	var sb strings.Builder
	rule := strings.Repeat("=", 80)
	section := func(title, body string) {
		if body == "" {
			return
		}
		sb.WriteString("\n" + strings.Repeat("-", 80) + "\n")
		sb.WriteString(title + "\n")
		sb.WriteString(strings.Repeat("-", 80) + "\n")
		sb.WriteString(strings.TrimRight(body, "\n") + "\n")
	}

	sb.WriteString(rule + "\nPROBEWING CRASH LOG\n" + rule + "\n\n")
	fmt.Fprintf(&sb, "Timestamp: %s\n", log.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Version:   %s\n", log.Version)
	fmt.Fprintf(&sb, "Command:   %s\n", log.Command)
	if log.Target != "" {
		fmt.Fprintf(&sb, "Target:    %s\n", log.Target)
	}
	if log.LastBackend != "" {
		fmt.Fprintf(&sb, "Backend:   %s\n", log.LastBackend)
	}
	fmt.Fprintf(&sb, "Go:        %s\n", log.GoVersion)
	fmt.Fprintf(&sb, "OS/Arch:   %s/%s\n", log.OS, log.Arch)

	section("PANIC VALUE", log.PanicValue)
	section("STACK TRACE", log.StackTrace)
	section("LAST OPERATOR INPUT", log.LastInput)

	sb.WriteString("\n" + rule + "\nEND OF CRASH LOG\n" + rule + "\n")
	return sb.String()
}

// pruneCrashLogs keeps the MaxCrashLogs newest logs in dir.
func pruneCrashLogs(fs afero.Fs, dir string) error {
	names, err := crashLogNames(fs, dir)
	if err != nil || len(names) <= MaxCrashLogs {
		return err
	}
	for _, name := range names[:len(names)-MaxCrashLogs] {
		if err := fs.Remove(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("remove old crash log %s: %w", name, err)
		}
	}
	return nil
}

// crashLogNames returns crash log file names, oldest first.
func crashLogNames(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "crash_") && strings.HasSuffix(e.Name(), ".log") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListCrashLogs returns the paths of all crash logs, oldest first.
func ListCrashLogs() ([]string, error) {
	dir := crashLogDir()
	names, err := crashLogNames(crashFs(), dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// ReadCrashLog reads a crash log file.
func ReadCrashLog(path string) (string, error) {
	content, err := afero.ReadFile(crashFs(), path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
