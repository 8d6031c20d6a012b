package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"autoprobe/agent"
	"autoprobe/llm"
	"autoprobe/sandbox"
)

// appConfig is the merged runtime configuration: defaults, then the optional
// YAML file, then CLI flags, in increasing precedence. The API key comes
// from the environment only.
type appConfig struct {
	Root    string
	Mission string
	Model   string
	Turns   int
	Verbose bool
	LogDir  string
	History bool
	APIKey  string

	ShellTimeout    time.Duration
	MaxOutputBytes  int
	RequestInterval time.Duration
	MaxRetries      int
	Backoff         time.Duration
}

// configFile is the structure of autoprobe.yaml. Durations are expressed in
// seconds.
type configFile struct {
	Model                  string `yaml:"model"`
	Turns                  int    `yaml:"turns"`
	LogDir                 string `yaml:"log_dir"`
	ShellTimeoutSeconds    int    `yaml:"shell_timeout_seconds"`
	MaxOutputBytes         int    `yaml:"max_output_bytes"`
	RequestIntervalSeconds int    `yaml:"request_interval_seconds"`
	MaxRetries             int    `yaml:"max_retries"`
	BackoffSeconds         int    `yaml:"backoff_seconds"`
}

const (
	defaultModel          = "gemini-2.5-pro"
	defaultLogDir         = ".autoprobe"
	defaultMaxOutputBytes = 100_000
)

func loadAppConfig(args []string) (*appConfig, error) {
	fs := flag.NewFlagSet("autoprobe", flag.ContinueOnError)
	root := fs.String("root", "", "Path to the codebase to investigate (required)")
	mission := fs.String("mission", "", "Investigation objective (default: full security audit)")
	model := fs.String("model", "", "Reasoning-service model id")
	turns := fs.Int("turns", 0, "Maximum investigation turns")
	verbose := fs.Bool("verbose", false, "Log model reasoning and debug detail to stderr")
	logDir := fs.String("logdir", "", "Directory for transcripts, logs, and run history")
	config := fs.String("config", "", "Path to autoprobe.yaml")
	history := fs.Bool("history", false, "List past runs and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &appConfig{
		Model:           defaultModel,
		Turns:           agent.DefaultTurnBudget,
		LogDir:          defaultLogDir,
		APIKey:          os.Getenv("GEMINI_API_KEY"),
		ShellTimeout:    sandbox.DefaultShellTimeout,
		MaxOutputBytes:  defaultMaxOutputBytes,
		RequestInterval: llm.DefaultRequestInterval,
		MaxRetries:      llm.DefaultMaxRetries,
		Backoff:         llm.DefaultBackoff,
	}

	if *config != "" {
		if err := cfg.applyFile(*config); err != nil {
			return nil, err
		}
	}

	cfg.Root = *root
	cfg.Mission = *mission
	cfg.Verbose = *verbose
	cfg.History = *history
	if *model != "" {
		cfg.Model = *model
	}
	if *turns > 0 {
		cfg.Turns = *turns
	}
	if *logDir != "" {
		cfg.LogDir = *logDir
	}
	return cfg, nil
}

func (c *appConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var f configFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if f.Model != "" {
		c.Model = f.Model
	}
	if f.Turns > 0 {
		c.Turns = f.Turns
	}
	if f.LogDir != "" {
		c.LogDir = f.LogDir
	}
	if f.ShellTimeoutSeconds > 0 {
		c.ShellTimeout = time.Duration(f.ShellTimeoutSeconds) * time.Second
	}
	if f.MaxOutputBytes > 0 {
		c.MaxOutputBytes = f.MaxOutputBytes
	}
	if f.RequestIntervalSeconds > 0 {
		c.RequestInterval = time.Duration(f.RequestIntervalSeconds) * time.Second
	}
	if f.MaxRetries > 0 {
		c.MaxRetries = f.MaxRetries
	}
	if f.BackoffSeconds > 0 {
		c.Backoff = time.Duration(f.BackoffSeconds) * time.Second
	}
	return nil
}
