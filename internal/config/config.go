package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond
	// maxValidPort is the highest TCP/UDP port number (2^16 - 1).
	// Port 0 is valid and means "OS auto-assign".
	maxValidPort = 65535
	// maxUserAgentBytes bounds the user_agent override; real UA strings
	// stay well under this.
	maxUserAgentBytes = 1024
)

// defaultConfigDirFn is a test seam; tests override it to simulate
// directory-resolution failures in validateConfigPath.
var defaultConfigDirFn = defaultConfigDir
var userHomeDirFn = os.UserHomeDir
var windowsEnvTokenPattern = regexp.MustCompile(`%[A-Za-z_][A-Za-z0-9_]*%`)
var posixEnvTokenPattern = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*\}|\$[A-Za-z_][A-Za-z0-9_]*`)
var yamlUnmarshalConfigMetadataFn = func(raw []byte, out *map[string]any) error {
	return yaml.Unmarshal(raw, out)
}
var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// Config is GemDesk boot configuration. Runtime-mutable state (theme,
// always-on-top, hotkey bindings) lives in the settings store instead;
// this file only holds what must be known before any window exists.
type Config struct {
	// LogLevel controls slog verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// DisableGlobalHotkeys skips OS-level shortcut registration entirely.
	// Useful on desktops where global shortcut grabs are unreliable;
	// application-scope shortcuts keep working.
	DisableGlobalHotkeys bool `yaml:"disable_global_hotkeys" json:"disable_global_hotkeys"`
	// StartHidden starts the shell minimized to the tray instead of
	// showing the main window.
	StartHidden bool `yaml:"start_hidden" json:"start_hidden"`
	// ProxyPort is the port for the local embedding proxy. 0 (default)
	// lets the OS assign an available port, which is recommended to avoid
	// port conflicts.
	ProxyPort int `yaml:"proxy_port" json:"proxy_port"`
	// HubPort is the port for the window hub listener that auxiliary
	// window processes connect to. 0 (default) auto-assigns.
	HubPort int `yaml:"hub_port" json:"hub_port"`
	// UserAgent overrides the User-Agent header the embedding proxy sends
	// upstream. Empty means "forward the webview's own UA".
	UserAgent string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	// LocalHosts lists extra host or host:port values treated as the
	// shell's own content (dev servers). Loopback and file origins are
	// always treated as own content and need not be listed.
	LocalHosts []string `yaml:"local_hosts,omitempty" json:"local_hosts,omitempty"`
	// DataDir overrides the directory holding the settings database.
	// Empty string means "the config file's directory".
	DataDir string `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`
}

// allowedLogLevels is the set of permitted log_level values.
var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultConfig returns default values.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		LocalHosts: []string{},
	}
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
// The temp-dir fallback is not a stable persistence location and may vary
// between sessions depending on environment configuration.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			// Keep config path resolvable even in restricted environments.
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "gemdesk", "config.yaml")
}

// ResolveDataDir returns the directory for mutable application data (the
// settings database). cfg.DataDir wins when set; otherwise the config
// file's own directory is used.
func ResolveDataDir(cfg Config) string {
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	return filepath.Dir(DefaultPath())
}

// Load reads the config file. If the file does not exist, defaults are
// returned. Invalid field values are logged and reset to defaults;
// unparsable YAML returns defaults plus the parse error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}

	rawMap, metadataErr := parseRawConfigMetadata(raw)
	if metadataErr != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config metadata", "error", metadataErr)
	} else {
		// Warn about deprecated fields that are silently ignored by yaml.Unmarshal.
		warnDeprecatedFields(rawMap)
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// AllowedLogLevels returns the permitted log_level values for UI display.
// The result is sorted alphabetically for consistent ordering.
func AllowedLogLevels() []string {
	levels := make([]string, 0, len(allowedLogLevels))
	for l := range allowedLogLevels {
		levels = append(levels, l)
	}
	sort.Strings(levels)
	return levels
}

// ParseLogLevel maps a config log_level string to a slog.Level.
// Unknown values map to Info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Clone returns a deep copy of cfg.
// Use this when sharing config snapshots across goroutines or package boundaries.
func Clone(src Config) Config {
	dst := src
	dst.LocalHosts = cloneStringSlice(src.LocalHosts)
	return dst
}

func cloneStringSlice(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// Save validates cfg, fills defaults, and atomically writes to path.
// Returns the normalized config that was actually written to disk.
// Uses the same validation rules as Load.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	// Atomic write: temp file + rename in same directory ensures
	// same-filesystem rename and prevents partial writes on crash.
	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and enforces that config writes stay
// inside the default config directory when that directory is resolvable.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}

	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}

	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func pathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
// Used by both Load and Save to ensure consistent normalization.
// Field-level problems are non-fatal: the offending value is logged and
// reset so a hand-edited file never prevents startup.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()
	if isZeroConfig(*cfg) {
		*cfg = defaults
		return nil
	}

	normalizeLogLevel(cfg, defaults.LogLevel)
	validatePort(&cfg.ProxyPort, "proxy_port")
	validatePort(&cfg.HubPort, "hub_port")
	normalizeUserAgent(cfg)
	sanitizeLocalHosts(cfg)
	validateDataDir(cfg)
	return nil
}

// normalizeLogLevel resets unknown log_level values to the default with a
// warning. Matching is case-insensitive.
func normalizeLogLevel(cfg *Config, fallback string) {
	level := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if level == "" {
		cfg.LogLevel = fallback
		return
	}
	if _, ok := allowedLogLevels[level]; !ok {
		slog.Warn("[WARN-CONFIG] log_level not recognized, falling back", "configured", cfg.LogLevel, "fallback", fallback)
		cfg.LogLevel = fallback
		return
	}
	cfg.LogLevel = level
}

// validatePort checks that the port is within the valid TCP range
// (0-65535). Port 0 means "let the OS auto-assign an available port".
// Invalid values are logged and reset to 0 (auto-assign) to keep the
// application startable even with a misconfigured config file.
func validatePort(port *int, field string) {
	if *port < 0 || *port > maxValidPort {
		slog.Warn("[WARN-CONFIG] "+field+" out of valid range (0-65535), falling back to 0 (auto-assign)",
			"configured", *port, "max", maxValidPort)
		*port = 0
	}
}

// normalizeUserAgent trims the UA override, strips control characters, and
// clears oversized values (non-fatal).
func normalizeUserAgent(cfg *Config) {
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		cfg.UserAgent = ""
		return
	}
	ua = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, ua)
	if len(ua) > maxUserAgentBytes {
		slog.Warn("[WARN-CONFIG] user_agent exceeds size limit, ignoring", "bytes", len(ua), "limit", maxUserAgentBytes)
		cfg.UserAgent = ""
		return
	}
	cfg.UserAgent = ua
}

// sanitizeLocalHosts validates and normalizes local_hosts entries in place.
// Entries must be bare host or host:port values; anything carrying a scheme
// or path is dropped with a warning. Hosts are lowercased; duplicates keep
// the first occurrence.
func sanitizeLocalHosts(cfg *Config) {
	if len(cfg.LocalHosts) == 0 {
		cfg.LocalHosts = []string{}
		return
	}
	seen := make(map[string]struct{}, len(cfg.LocalHosts))
	filtered := make([]string, 0, len(cfg.LocalHosts))
	for i, entry := range cfg.LocalHosts {
		host := strings.ToLower(strings.TrimSpace(entry))
		if host == "" {
			slog.Debug("[DEBUG-CONFIG] local_hosts: dropped empty entry", "index", i)
			continue
		}
		if strings.Contains(host, "://") || strings.ContainsAny(host, "/\\ ") {
			slog.Warn("[WARN-CONFIG] local_hosts entry must be host or host:port, skipping", "entry", entry)
			continue
		}
		if _, dup := seen[host]; dup {
			slog.Warn("[WARN-CONFIG] local_hosts duplicate entry, keeping first", "entry", host)
			continue
		}
		seen[host] = struct{}{}
		filtered = append(filtered, host)
	}
	cfg.LocalHosts = filtered
}

// validateDataDir normalizes DataDir in place.
// Expands ~ prefix to the user's home directory, applies filepath.Clean,
// and clears non-absolute paths with a warning log (non-fatal).
func validateDataDir(cfg *Config) {
	dir := strings.TrimSpace(cfg.DataDir)
	if dir == "" {
		cfg.DataDir = ""
		return
	}
	// Expand ~ prefix to user home directory.
	if strings.HasPrefix(dir, "~") {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] data_dir: failed to expand ~, ignoring",
				"path", dir, "error", err)
			cfg.DataDir = ""
			return
		}
		dir = filepath.Join(home, dir[1:])
	}
	// Expand environment variables for parity with shell-style path inputs.
	dir = expandDataDirEnv(dir)
	dir = filepath.Clean(dir)
	if !filepath.IsAbs(dir) {
		slog.Warn("[WARN-CONFIG] data_dir is not an absolute path, ignoring", "path", dir)
		cfg.DataDir = ""
		return
	}
	cfg.DataDir = dir
}

func expandDataDirEnv(dir string) string {
	if dir == "" {
		return ""
	}
	// Expand Windows-style %VAR% tokens on all platforms for portability.
	expanded := windowsEnvTokenPattern.ReplaceAllStringFunc(dir, func(token string) string {
		key := token[1 : len(token)-1]
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		return token
	})
	// Skip POSIX-style $VAR expansion on Windows: '$' is a valid character
	// in Windows file paths (e.g. C:\Users\foo$bar) and should not be
	// interpreted as an environment variable reference.
	if runtime.GOOS == "windows" {
		return expanded
	}
	expanded = posixEnvTokenPattern.ReplaceAllStringFunc(expanded, func(token string) string {
		key := strings.TrimPrefix(token, "$")
		key = strings.TrimPrefix(key, "{")
		key = strings.TrimSuffix(key, "}")
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		return token
	})
	return expanded
}

// parseRawConfigMetadata unmarshals raw YAML into a generic map used only
// for deprecated-field detection.
func parseRawConfigMetadata(raw []byte) (map[string]any, error) {
	var rawMap map[string]any
	if err := yamlUnmarshalConfigMetadataFn(raw, &rawMap); err != nil {
		return nil, err
	}
	return rawMap, nil
}

func warnDeprecatedFields(rawMap map[string]any) {
	if _, has := rawMap["global_hotkey"]; has {
		slog.Warn("[WARN-CONFIG] deprecated field ignored: global_hotkey moved to the settings store (hotkey.<id>.accelerator)")
	}
	if _, has := rawMap["theme"]; has {
		slog.Warn("[WARN-CONFIG] deprecated field ignored: theme moved to the settings store")
	}
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	// reflect.DeepEqual guards against field-addition drift that manual checks miss.
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
