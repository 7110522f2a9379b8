package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/harrisonrobin/larkalarm/pkg/alarm"
	"github.com/harrisonrobin/larkalarm/pkg/auth"
	"github.com/harrisonrobin/larkalarm/pkg/lark"
)

const (
	xdgAppName = "larkalarm"
	configName = "config"
	configType = "yaml"
	envPrefix  = "LARKALARM"

	// HomeEnv overrides the configuration directory.
	HomeEnv = "LARKALARM_HOME"
)

// Keys.
const (
	KeyAlertOffset     = "alert_offset"
	KeyAlertNoDeadline = "alert_no_deadline"
	KeyWorkHoursOnly   = "work_hours_only"
	KeyBridgeURL       = "bridge_url"
	KeyLarkBaseURL     = "lark_base_url"
	KeyListenAddr      = "listen_addr"
	KeyStateDir        = "state_dir"
	KeyBrowser         = "browser"
	KeyCDPURL          = "cdp_url"
	KeyChromePath      = "chrome_path"
	KeyExtensionID     = "extension_id"
	KeyLocale          = "locale"
	KeyCalendar        = "calendar"
	KeyLogLevel        = "log_level"
)

// Browser backends.
const (
	BrowserBridge = "bridge"
	BrowserCDP    = "cdp"
)

const (
	defaultAlertOffset = 15
	defaultListenAddr  = "127.0.0.1:7878"
)

var ErrInvalidValue = errors.New("invalid config value")

type kind int

const (
	kindString kind = iota
	kindInt
	kindBool
)

var keyKinds = map[string]kind{
	KeyAlertOffset:     kindInt,
	KeyAlertNoDeadline: kindBool,
	KeyWorkHoursOnly:   kindBool,
	KeyBridgeURL:       kindString,
	KeyLarkBaseURL:     kindString,
	KeyListenAddr:      kindString,
	KeyStateDir:        kindString,
	KeyBrowser:         kindString,
	KeyCDPURL:          kindString,
	KeyChromePath:      kindString,
	KeyExtensionID:     kindString,
	KeyLocale:          kindString,
	KeyCalendar:        kindString,
	KeyLogLevel:        kindString,
}

type Config struct {
	AlertOffset     int    `mapstructure:"alert_offset" json:"alert_offset"`
	AlertNoDeadline bool   `mapstructure:"alert_no_deadline" json:"alert_no_deadline"`
	WorkHoursOnly   bool   `mapstructure:"work_hours_only" json:"work_hours_only"`
	BridgeURL       string `mapstructure:"bridge_url" json:"bridge_url"`
	LarkBaseURL     string `mapstructure:"lark_base_url" json:"lark_base_url"`
	ListenAddr      string `mapstructure:"listen_addr" json:"listen_addr"`
	StateDir        string `mapstructure:"state_dir" json:"state_dir"`
	Browser         string `mapstructure:"browser" json:"browser"`
	CDPURL          string `mapstructure:"cdp_url" json:"cdp_url"`
	ChromePath      string `mapstructure:"chrome_path" json:"chrome_path"`
	ExtensionID     string `mapstructure:"extension_id" json:"extension_id"`
	Locale          string `mapstructure:"locale" json:"locale"`
	Calendar        string `mapstructure:"calendar" json:"calendar"`
	LogLevel        string `mapstructure:"log_level" json:"log_level"`
}

// Settings are the user-facing alarm preferences.
type Settings struct {
	AlertOffset     int  `json:"alert_offset"`
	AlertNoDeadline bool `json:"alert_no_deadline"`
	WorkHoursOnly   bool `json:"work_hours_only"`
}

func (c Config) Settings() Settings {
	return Settings{
		AlertOffset:     c.AlertOffset,
		AlertNoDeadline: c.AlertNoDeadline,
		WorkHoursOnly:   c.WorkHoursOnly,
	}
}

// AlarmSettings converts the preferences for the evaluator.
func (s Settings) AlarmSettings() alarm.Settings {
	return alarm.Settings{
		Offset:          time.Duration(s.AlertOffset) * time.Minute,
		AlertNoDeadline: s.AlertNoDeadline,
		WorkHoursOnly:   s.WorkHoursOnly,
	}
}

func (s Settings) Validate() error {
	if s.AlertOffset <= 0 {
		return fmt.Errorf("%w: alert_offset must be a positive number of minutes", ErrInvalidValue)
	}
	return nil
}

// Dir returns the configuration directory, ~/.config/larkalarm unless
// LARKALARM_HOME is set.
func Dir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

// GetConfigPath returns the default config file location.
func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName+"."+configType), nil
}

// Manager owns the config file and the current parsed values.
type Manager struct {
	v      *viper.Viper
	path   string
	logger *log.Logger

	mu  sync.RWMutex
	cur Config
}

// Load reads the config at path, or the default location when path is
// empty. A missing file is created with defaults.
func Load(path string, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.Default()
	}
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setDefaults(v, filepath.Dir(path))

	m := &Manager{v: v, path: path, logger: logger}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		logger.Info("created default config", "path", path)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault(KeyAlertOffset, defaultAlertOffset)
	v.SetDefault(KeyAlertNoDeadline, false)
	v.SetDefault(KeyWorkHoursOnly, false)
	v.SetDefault(KeyBridgeURL, auth.DefaultBridgeURL)
	v.SetDefault(KeyLarkBaseURL, lark.DefaultBaseURL)
	v.SetDefault(KeyListenAddr, defaultListenAddr)
	v.SetDefault(KeyStateDir, filepath.Join(dir, "state"))
	v.SetDefault(KeyBrowser, BrowserBridge)
	v.SetDefault(KeyCDPURL, "")
	v.SetDefault(KeyChromePath, "")
	v.SetDefault(KeyExtensionID, "")
	v.SetDefault(KeyLocale, "")
	v.SetDefault(KeyCalendar, "")
	v.SetDefault(KeyLogLevel, "info")
}

func (m *Manager) reload() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.AlertOffset <= 0 {
		cfg.AlertOffset = defaultAlertOffset
	}
	m.mu.Lock()
	m.cur = cfg
	m.mu.Unlock()
	return nil
}

func (m *Manager) Path() string {
	return m.path
}

// Current returns a snapshot of the configuration.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// Keys lists the settable keys in order.
func Keys() []string {
	keys := make([]string, 0, len(keyKinds))
	for k := range keyKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set parses value for key and writes it to the config file.
func (m *Manager) Set(key, value string) error {
	k, ok := keyKinds[key]
	if !ok {
		return fmt.Errorf("%w: unknown key %q", ErrInvalidValue, key)
	}
	var parsed any
	switch k {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", ErrInvalidValue, key)
		}
		parsed = n
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be true or false", ErrInvalidValue, key)
		}
		parsed = b
	default:
		parsed = value
	}
	if n, ok := parsed.(int); ok && key == KeyAlertOffset {
		if err := (Settings{AlertOffset: n}).Validate(); err != nil {
			return err
		}
	}
	if key == KeyBrowser && value != BrowserBridge && value != BrowserCDP {
		return fmt.Errorf("%w: browser must be %q or %q", ErrInvalidValue, BrowserBridge, BrowserCDP)
	}
	return m.write(map[string]any{key: parsed})
}

// SaveSettings validates and persists the alarm preferences.
func (m *Manager) SaveSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return m.write(map[string]any{
		KeyAlertOffset:     s.AlertOffset,
		KeyAlertNoDeadline: s.AlertNoDeadline,
		KeyWorkHoursOnly:   s.WorkHoursOnly,
	})
}

// write updates the file through a scratch viper so values written here
// never shadow later edits made to the file by hand.
func (m *Manager) write(values map[string]any) error {
	fv := viper.New()
	fv.SetConfigFile(m.path)
	fv.SetConfigType(configType)
	if err := fv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", m.path, err)
	}
	for k, v := range values {
		fv.Set(k, v)
	}
	if err := fv.WriteConfigAs(m.path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to re-read config: %w", err)
	}
	return m.reload()
}

// Watch reloads the configuration whenever the file changes and calls
// onChange with the new values.
func (m *Manager) Watch(onChange func(Config)) {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if err := m.reload(); err != nil {
			m.logger.Warn("config reload failed", "err", err)
			return
		}
		m.logger.Info("config reloaded", "file", e.Name)
		if onChange != nil {
			onChange(m.Current())
		}
	})
	m.v.WatchConfig()
}
