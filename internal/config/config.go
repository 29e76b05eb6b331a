package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/go-viper/mapstructure/v2"
	tomlparser "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidConfig marks every decoding and validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

const (
	// AppName is the directory name used under the XDG config and runtime dirs.
	AppName = "onionbell"

	// EnvPrefix is the prefix of environment overrides (ONIONBELL_SOUND, ...).
	EnvPrefix = "ONIONBELL_"

	DefaultVolume = 1.0
)

// QueryStrategy selects how window attributes are fetched from Hyprland.
type QueryStrategy string

const (
	// QuerySocket talks to the Hyprland request socket directly.
	QuerySocket QueryStrategy = "socket"
	// QueryHyprctl shells out to the hyprctl binary.
	QueryHyprctl QueryStrategy = "hyprctl"
)

// Player placeholders substituted by the sound dispatcher.
const (
	PlaceholderPath          = "{path}"
	PlaceholderVolume        = "{volume}"
	PlaceholderVolumePercent = "{volume_percent}"
)

// Config is the top-level configuration document.
type Config struct {
	// Sound is played when no rule matches. Empty means silence.
	Sound    string
	Volume   float64
	Rules    []RuleConfig
	Player   []string
	Query    QueryStrategy
	Debounce time.Duration

	// Path is the file the configuration was read from, empty for defaults.
	Path string
}

// RuleConfig is a single declarative rule. Unset predicates match anything.
type RuleConfig struct {
	Name       string   `koanf:"name"`
	Sound      string   `koanf:"sound"`
	Volume     *float64 `koanf:"volume"`
	Workspace  any      `koanf:"workspace"`
	Floating   *bool    `koanf:"floating"`
	ClassRegex string   `koanf:"class_regex"`
	TitleRegex string   `koanf:"title_regex"`
	XWayland   *bool    `koanf:"xwayland"`
}

// WorkspaceSelector matches a workspace either by numeric id or by name.
type WorkspaceSelector struct {
	ID   *int
	Name string
}

func (w WorkspaceSelector) String() string {
	if w.ID != nil {
		return fmt.Sprintf("%d", *w.ID)
	}
	return fmt.Sprintf("%q", w.Name)
}

// rawConfig mirrors the on-disk layout; "rule" is accepted as an alias of "rules".
type rawConfig struct {
	Sound    string        `koanf:"sound"`
	Volume   float64       `koanf:"volume"`
	Rules    []RuleConfig  `koanf:"rules"`
	Rule     []RuleConfig  `koanf:"rule"`
	Player   []string      `koanf:"player"`
	Query    string        `koanf:"query"`
	Debounce time.Duration `koanf:"debounce"`
}

// envKeys lists the scalar keys that may be overridden from the environment.
var envKeys = map[string]struct{}{
	"sound":    {},
	"volume":   {},
	"query":    {},
	"debounce": {},
}

// Loader reads configuration from defaults, a file and the environment, in
// increasing order of precedence.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader returns a loader with an empty koanf instance.
func NewLoader() *Loader {
	return &Loader{k: koanf.New(".")}
}

// DefaultPath returns the first existing config file under the XDG config
// search path, or the preferred location when none exists yet.
func DefaultPath() string {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		if path, err := xdg.SearchConfigFile(filepath.Join(AppName, name)); err == nil {
			return path
		}
	}
	return filepath.Join(xdg.ConfigHome, AppName, "config.toml")
}

// Load reads and validates a configuration file. A missing file yields an
// error marked with ErrConfigNotFound.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Load reads and validates the configuration at path. An empty path loads
// defaults and environment overrides only.
func (l *Loader) Load(path string) (*Config, error) {
	l.k = koanf.New(".")

	if err := l.k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.Mark(errors.Wrapf(err, "read config %s", path), ErrConfigNotFound)
			}
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := l.k.Load(file.Provider(path), parser); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "decode config %s", path), ErrInvalidConfig)
		}
	}

	envOpt := env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envTransform,
	}
	if err := l.k.Load(env.Provider(".", envOpt), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load env vars")
	}

	var raw rawConfig
	if err := l.k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{
		Tag:           "koanf",
		DecoderConfig: decoderConfig(&raw),
	}); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode config"), ErrInvalidConfig)
	}

	cfg := &Config{
		Sound:    expandHome(raw.Sound),
		Volume:   raw.Volume,
		Rules:    append(append([]RuleConfig(nil), raw.Rules...), raw.Rule...),
		Player:   raw.Player,
		Query:    QueryStrategy(strings.ToLower(strings.TrimSpace(raw.Query))),
		Debounce: raw.Debounce,
		Path:     path,
	}
	for i := range cfg.Rules {
		cfg.Rules[i].Sound = expandHome(cfg.Rules[i].Sound)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Mark(err, ErrInvalidConfig)
	}
	return cfg, nil
}

// Marshal serializes the effective configuration of the last Load as TOML.
func (l *Loader) Marshal() ([]byte, error) {
	data, err := l.k.Marshal(tomlparser.Parser())
	if err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	return data, nil
}

// Default returns the configuration used when no file exists: silence for
// every bell.
func Default() *Config {
	return &Config{Volume: DefaultVolume, Query: QuerySocket}
}

func defaultsMap() map[string]any {
	return map[string]any{
		"volume":   DefaultVolume,
		"query":    string(QuerySocket),
		"debounce": "0s",
	}
}

func decoderConfig(result any) *mapstructure.DecoderConfig {
	return &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.DecodeHookFuncValue(fieldsHook),
		),
		Result:           result,
		TagName:          "koanf",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	}
}

// fieldsHook lets "player" be written as a single shell-like string.
func fieldsHook(from, to reflect.Value) (any, error) {
	if from.Kind() != reflect.String || to.Type() != reflect.TypeOf([]string(nil)) {
		return from.Interface(), nil
	}
	return strings.Fields(from.String()), nil
}

// envTransform maps ONIONBELL_VOLUME to "volume"; unknown variables are skipped.
func envTransform(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if _, ok := envKeys[key]; !ok {
		return "", nil
	}
	return key, value
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", "":
		return tomlparser.Parser(), nil
	case ".yaml", ".yml":
		return YAMLParser(), nil
	default:
		return nil, errors.Mark(errors.Newf("unsupported config format %q", filepath.Ext(path)), ErrInvalidConfig)
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// Validate performs sanity checks that make a configuration unusable.
func (c *Config) Validate() error {
	if err := validateVolume("volume", c.Volume); err != nil {
		return err
	}
	switch c.Query {
	case QuerySocket, QueryHyprctl:
	default:
		return errors.Newf("query: unknown strategy %q (socket|hyprctl)", c.Query)
	}
	if c.Debounce < 0 {
		return errors.New("debounce cannot be negative")
	}
	if len(c.Player) > 0 && !containsPlaceholder(c.Player, PlaceholderPath) {
		return errors.Newf("player: command must contain the %s placeholder", PlaceholderPath)
	}
	for i, r := range c.Rules {
		if err := r.validate(); err != nil {
			return errors.Wrapf(err, "%s", r.Label(i))
		}
	}
	return nil
}

func (r RuleConfig) validate() error {
	if r.Volume != nil {
		if err := validateVolume("volume", *r.Volume); err != nil {
			return err
		}
	}
	if _, err := r.WorkspaceSelector(); err != nil {
		return err
	}
	if r.ClassRegex != "" {
		if _, err := regexp.Compile(r.ClassRegex); err != nil {
			return errors.Wrap(err, "class_regex")
		}
	}
	if r.TitleRegex != "" {
		if _, err := regexp.Compile(r.TitleRegex); err != nil {
			return errors.Wrap(err, "title_regex")
		}
	}
	return nil
}

func validateVolume(key string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return errors.Newf("%s: invalid value %v, volume must be between 0.0 and 1.0", key, v)
	}
	return nil
}

func containsPlaceholder(args []string, placeholder string) bool {
	for _, arg := range args {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}

// Label names the rule in diagnostics: its name, or rule[index].
func (r RuleConfig) Label(index int) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("rule[%d]", index)
}

// RuleVolume returns the rule volume, defaulting to full volume.
func (r RuleConfig) RuleVolume() float64 {
	if r.Volume == nil {
		return DefaultVolume
	}
	return *r.Volume
}

// HasPredicates reports whether the rule constrains the window at all.
func (r RuleConfig) HasPredicates() bool {
	return r.ClassRegex != "" || r.TitleRegex != "" || r.Floating != nil || r.XWayland != nil || r.Workspace != nil
}

// WorkspaceSelector interprets the workspace key: numbers match the workspace
// id, strings match the workspace name.
func (r RuleConfig) WorkspaceSelector() (*WorkspaceSelector, error) {
	switch v := r.Workspace.(type) {
	case nil:
		return nil, nil
	case string:
		return &WorkspaceSelector{Name: v}, nil
	case int:
		return &WorkspaceSelector{ID: &v}, nil
	case int64:
		id := int(v)
		return &WorkspaceSelector{ID: &id}, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, errors.Newf("workspace: id must be an integer, got %v", v)
		}
		id := int(v)
		return &WorkspaceSelector{ID: &id}, nil
	default:
		return nil, errors.Newf("workspace: must be an id or a name, got %T", r.Workspace)
	}
}

// Sounds returns every distinct sound path referenced by the configuration,
// default first.
func (c *Config) Sounds() []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	add(c.Sound)
	for _, r := range c.Rules {
		add(r.Sound)
	}
	return out
}
