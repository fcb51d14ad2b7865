package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jaxxstorm/prevtag"
	"github.com/joho/godotenv"
	"github.com/magiconair/properties"
	"gopkg.in/yaml.v3"
)

// Version will be set by build process
var Version = "dev"

const (
	envPrefix      = "PREVTAG_"
	defaultEnvFile = ".env"
)

// Result property keys
const (
	keyVersion = "version"
	keyCommit  = "git.commit.hash"
	keyTag     = "git.tag"
)

type CLI struct {
	Repo         string        `arg:"" optional:"" help:"Repository path (default: current directory)"`
	TagPattern   []string      `short:"p" sep:"none" env:"PREVTAG_TAG_PATTERN" help:"Regex a version tag must fully match, with a capturing group named 'version' (repeatable, tried in order; PREVTAG_TAG_PATTERN holds a single pattern, use --config for more)"`
	Remote       string        `env:"PREVTAG_REMOTE" help:"Remote to fetch tags and history from (default: origin, else the first remote with a URL)"`
	SkipHead     *bool         `env:"PREVTAG_SKIP_HEAD" help:"Ignore tags on the HEAD commit (--skip-head=false overrides the config file)"`
	Depth        int           `env:"PREVTAG_DEPTH" help:"History depth fetched when a shallow clone has no version tag (default: 1000)"`
	FetchTimeout time.Duration `env:"PREVTAG_FETCH_TIMEOUT" help:"Timeout of a single fetch (default: 1h)"`
	Output       string        `short:"o" type:"path" env:"PREVTAG_OUTPUT" help:"Write the result to this file instead of stdout"`
	JSON         bool          `short:"j" env:"PREVTAG_JSON" help:"Output as JSON instead of properties"`
	Config       string        `type:"path" env:"PREVTAG_CONFIG" help:"YAML configuration file"`
	EnvFile      string        `default:".env" env:"PREVTAG_ENV_FILE" help:"Environment file loaded before parsing flags"`
	LogLevel     string        `default:"info" enum:"debug,info,warn,error" env:"PREVTAG_LOG_LEVEL" help:"Log level"`
	ShowVersion  bool          `help:"Show version information" name:"version"`

	envErr error `kong:"-"`
}

// fileConfig is the YAML configuration file. Flags take precedence.
type fileConfig struct {
	TagPatterns  []string      `yaml:"tag_patterns"`
	Remote       string        `yaml:"remote"`
	SkipHead     bool          `yaml:"skip_head"`
	Depth        int           `yaml:"depth"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// result is the JSON form of the resolved version
type result struct {
	Version string `json:"version,omitempty"`
	Commit  string `json:"git.commit.hash,omitempty"`
	Tag     string `json:"git.tag,omitempty"`
}

func main() {
	var cli CLI

	// the env file has to be in the environment before kong reads PREVTAG_* variables
	cli.envErr = godotenv.Load(envFileFromArgs(os.Args[1:]))

	kong.Parse(&cli,
		kong.Name("prevtag"),
		kong.Description("Find the nearest previously released version of a Git repository from its tags"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.Run(ctx)
	stop()
	if err != nil {
		slog.Error("Failed to resolve previous version", "error", err)
		os.Exit(1)
	}
}

func (c *CLI) Run(ctx context.Context) error {
	// Handle version flag
	if c.ShowVersion {
		return c.showVersion()
	}

	log := newLogger(os.Stderr, c.LogLevel)
	slog.SetDefault(log)

	if c.envErr != nil {
		log.Debug("Could not load env file, continuing with existing environment",
			"path", c.EnvFile, "error", c.envErr)
	}

	if c.Config != "" {
		cfg, err := loadConfig(c.Config)
		if err != nil {
			return err
		}
		c.applyConfig(cfg)
	}

	opts, err := c.options(log)
	if err != nil {
		return err
	}

	repoPath := c.Repo
	if repoPath == "" {
		repoPath, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
	}

	ref, err := prevtag.Resolve(ctx, repoPath, opts)
	if err != nil {
		return err
	}

	return c.output(ref)
}

func (c *CLI) showVersion() error {
	versionInfo := map[string]string{
		"version": Version,
		"name":    "prevtag",
	}

	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(versionInfo)
	}

	fmt.Printf("prevtag version %s\n", Version)
	return nil
}

func (c *CLI) options(log *slog.Logger) (prevtag.Options, error) {
	patterns, err := prevtag.CompilePatterns(c.TagPattern)
	if err != nil {
		return prevtag.Options{}, err
	}

	return prevtag.Options{
		TagPatterns:  patterns,
		Remote:       c.Remote,
		SkipHeadTags: c.SkipHead != nil && *c.SkipHead,
		Depth:        c.Depth,
		FetchTimeout: c.FetchTimeout,
		Logger:       log,
	}, nil
}

// applyConfig fills every option not set on the command line from cfg
func (c *CLI) applyConfig(cfg *fileConfig) {
	if len(c.TagPattern) == 0 {
		c.TagPattern = cfg.TagPatterns
	}
	if c.Remote == "" {
		c.Remote = cfg.Remote
	}
	if c.SkipHead == nil {
		skipHead := cfg.SkipHead
		c.SkipHead = &skipHead
	}
	if c.Depth == 0 {
		c.Depth = cfg.Depth
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = cfg.FetchTimeout
	}
}

func (c *CLI) output(ref *prevtag.GitRefVersion) error {
	if c.Output == "" {
		return writeResult(os.Stdout, ref, c.JSON)
	}

	f, err := os.Create(c.Output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writeResult(f, ref, c.JSON); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cfg, nil
}

// writeResult writes ref as properties or JSON. Nothing found writes no
// properties at all.
func writeResult(w io.Writer, ref *prevtag.GitRefVersion, asJSON bool) error {
	if asJSON {
		var r result
		if ref != nil {
			r = result{
				Version: ref.Version.String(),
				Commit:  ref.Commit.String(),
				Tag:     ref.Tag,
			}
		}
		return json.NewEncoder(w).Encode(r)
	}

	p := properties.NewProperties()
	if ref != nil {
		for _, kv := range [][2]string{
			{keyVersion, ref.Version.String()},
			{keyCommit, ref.Commit.String()},
			{keyTag, ref.Tag},
		} {
			if _, _, err := p.Set(kv[0], kv[1]); err != nil {
				return fmt.Errorf("setting property %s: %w", kv[0], err)
			}
		}
	}

	if _, err := p.Write(w, properties.UTF8); err != nil {
		return fmt.Errorf("writing properties: %w", err)
	}
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// envFileFromArgs finds the env file before flags are parsed
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if value, ok := strings.CutPrefix(arg, "--env-file="); ok {
			return value
		}
		if arg == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if value := os.Getenv(envPrefix + "ENV_FILE"); value != "" {
		return value
	}
	return defaultEnvFile
}
