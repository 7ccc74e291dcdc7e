package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/convoy/internal/deployerr"
	"github.com/fulmenhq/convoy/pkg/logger"
	"github.com/fulmenhq/convoy/pkg/safeio"
)

const (
	// EnvPrefix prefixes every orchestrator-only environment variable
	EnvPrefix = "CONVOY"

	// FileName is the configuration file base name; any extension viper
	// understands (yaml, yml, json, toml) is accepted.
	FileName = "convoy"

	KeyBaseDir = "base_dir"
	KeyProfile = "profile"
)

// Config holds the deploy configuration for one application
type Config struct {
	Deploy DeployConfig `json:"deploy"`

	// Path is the file the configuration was read from
	Path string `json:"-"`
	// BaseDir is the directory the file was discovered in
	BaseDir string `json:"-"`
}

// DeployConfig is the deploy section of the configuration file
type DeployConfig struct {
	Profiles []ProfileConfig    `json:"profiles"`
	Deltas   map[string][]string `json:"deltas,omitempty"`
	Commands CommandsConfig      `json:"commands"`
	Process  ProcessConfig       `json:"process"`
}

// ProfileConfig is one declared profile before defaults are applied. Pointer
// fields distinguish "unset" from a zero value.
type ProfileConfig struct {
	ID            string             `json:"id"`
	Title         string             `json:"title,omitempty"`
	Path          string             `json:"path,omitempty"`
	Repo          string             `json:"repo,omitempty"`
	Branch        string             `json:"branch,omitempty"`
	Sort          *int               `json:"sort,omitempty"`
	Processes     *int               `json:"processes,omitempty"`
	InstanceName  string             `json:"instance_name,omitempty"`
	InstanceNames []string           `json:"instance_names,omitempty"`
	InstanceArgs  map[string]ArgList `json:"instance_args,omitempty"`
	Script        string             `json:"script,omitempty"`
	Env           EnvMap             `json:"env,omitempty"`
	Enabled       *bool              `json:"enabled,omitempty"`
	PeerDeploy    []string           `json:"peer_deploy,omitempty"`
	PeerDeny      []string           `json:"peer_deny,omitempty"`
	Semver        BumpSetting        `json:"semver,omitempty"`
	SemverPackage bool               `json:"semver_package,omitempty"`
	DeployScript  ArgList            `json:"deploy_script,omitempty"`
}

// CommandsConfig overrides the package-manager commands run by each stage
type CommandsConfig struct {
	Install ArgList `json:"install,omitempty"`
	Build   ArgList `json:"build,omitempty"`
	Hook    ArgList `json:"hook,omitempty"`
}

// ProcessConfig configures the process manager
type ProcessConfig struct {
	Manager      string   `json:"manager,omitempty"`
	ReadyTimeout Duration `json:"ready_timeout,omitempty"`
}

var defaultCommands = CommandsConfig{
	Install: ArgList{"npm", "ci"},
	Build:   ArgList{"npm", "run", "build"},
	Hook:    ArgList{"npm", "run"},
}

const (
	defaultManager      = "pm2"
	defaultReadyTimeout = 30 * time.Second
)

// ArgList is an argument vector written either as a YAML/JSON list or as a
// single shell-quoted string.
type ArgList []string

// UnmarshalJSON accepts ["a", "b"] or "a 'b c'"
func (a *ArgList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected a list of arguments or a string")
	}
	words, err := SplitArgs(s)
	if err != nil {
		return err
	}
	*a = words
	return nil
}

// SplitArgs splits a shell-quoted argument string without expanding
// variables or backquotes.
func SplitArgs(s string) ([]string, error) {
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false
	words, err := p.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("split arguments %q: %w", s, err)
	}
	return words, nil
}

// BumpSetting holds a semver bump policy as written: a policy name or a
// boolean (true meaning patch).
type BumpSetting string

// UnmarshalJSON accepts booleans and strings
func (b *BumpSetting) UnmarshalJSON(data []byte) error {
	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		if flag {
			*b = "true"
		} else {
			*b = "false"
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("semver must be a boolean or a policy name")
	}
	*b = BumpSetting(s)
	return nil
}

// EnvMap is an environment overlay. Numbers and booleans are accepted and
// rendered the way they were written.
type EnvMap map[string]string

// UnmarshalJSON decodes an object of scalars
func (e *EnvMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("env must be a mapping of names to values")
	}
	out := make(EnvMap, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			return fmt.Errorf("env %s must be a scalar", k)
		}
	}
	*e = out
	return nil
}

// Duration is a time.Duration written as a Go duration string ("30s")
type Duration time.Duration

// UnmarshalJSON parses a duration string
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string such as \"30s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON renders the duration string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Settings returns the viper instance holding process-level settings: the
// base directory and default profile id, read from CONVOY_BASE_DIR and
// CONVOY_PROFILE unless bound to a flag by the caller.
func Settings() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	_ = v.BindEnv(KeyBaseDir)
	_ = v.BindEnv(KeyProfile)
	return v
}

// BaseDir resolves the directory configuration is loaded from, falling back
// to the current working directory.
func BaseDir(v *viper.Viper) (string, error) {
	dir := strings.TrimSpace(v.GetString(KeyBaseDir))
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = wd
	}
	return filepath.Abs(dir)
}

// DefaultProfile returns the environment-supplied default profile id
func DefaultProfile(v *viper.Viper) string {
	return strings.TrimSpace(v.GetString(KeyProfile))
}

// Load discovers convoy.{yaml,yml,json,toml} in baseDir, validates it against
// the embedded schema and decodes it. Every failure is a
// *deployerr.ConfigError.
func Load(baseDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(FileName)
	v.AddConfigPath(baseDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, &deployerr.ConfigError{Reason: fmt.Sprintf("no %s.yaml, .json or .toml found in %s", FileName, baseDir)}
		}
		return nil, &deployerr.ConfigError{Reason: "read configuration", Err: err}
	}
	path := v.ConfigFileUsed()
	logger.Debug("loading configuration", logger.String("path", path))

	data, err := safeio.ReadFileContained(baseDir, path)
	if err != nil {
		return nil, &deployerr.ConfigError{Reason: "read " + path, Err: err}
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	cfg.BaseDir = baseDir
	return cfg, nil
}

// Parse decodes configuration bytes in the format named by ext. Map keys keep
// their case, so environment variable names and instance names survive.
func Parse(data []byte, ext string) (*Config, error) {
	var doc interface{}
	var err error
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &doc)
	case "json":
		err = json.Unmarshal(data, &doc)
	case "toml":
		err = toml.Unmarshal(data, &doc)
	default:
		return nil, &deployerr.ConfigError{Reason: fmt.Sprintf("unsupported configuration format %q", ext)}
	}
	if err != nil {
		return nil, &deployerr.ConfigError{Reason: "parse configuration", Err: err}
	}

	canonical, err := json.Marshal(normalize(doc))
	if err != nil {
		return nil, &deployerr.ConfigError{Reason: "normalize configuration", Err: err}
	}
	if err := ValidateConfig(canonical); err != nil {
		return nil, &deployerr.ConfigError{Reason: "schema validation", Err: err}
	}

	cfg := &Config{}
	if err := json.Unmarshal(canonical, cfg); err != nil {
		return nil, &deployerr.ConfigError{Reason: "decode configuration", Err: err}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	cmds := &c.Deploy.Commands
	if len(cmds.Install) == 0 {
		cmds.Install = defaultCommands.Install
	}
	if len(cmds.Build) == 0 {
		cmds.Build = defaultCommands.Build
	}
	if len(cmds.Hook) == 0 {
		cmds.Hook = defaultCommands.Hook
	}
	if c.Deploy.Process.Manager == "" {
		c.Deploy.Process.Manager = defaultManager
	}
	if c.Deploy.Process.ReadyTimeout <= 0 {
		c.Deploy.Process.ReadyTimeout = Duration(defaultReadyTimeout)
	}
}

// normalize converts YAML's map[interface{}]interface{} nodes to string-keyed
// maps so the document can be rendered as JSON.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []interface{}:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	}
	return v
}
