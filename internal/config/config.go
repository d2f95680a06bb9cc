package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/acroform"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB
	DefaultPolicy      = "merge_renaming"

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "MCP_PDF_COMPOSER"
)

// Config holds all configuration for the PDF composer
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// PDF configuration
	PDFDirectory    string
	OutputDirectory string // where composed documents are written, defaults to PDFDirectory

	// Composition defaults, overridable per request
	DefaultPolicy  string
	DiscardOutline bool
	Optimize       bool
	Compress       bool

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum PDF file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:          ModeStdio, // Default to stdio mode for MCP compatibility
		Host:          DefaultHost,
		Port:          DefaultPort,
		PDFDirectory:  currentDir,
		DefaultPolicy: DefaultPolicy,
		Compress:      true,
		Version:       "1.0.0",
		ServerName:    "mcp-pdf-composer",
		LogLevel:      DefaultLogLevel,
		MaxFileSize:   DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	if cfg.PDFDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.PDFDirectory); err == nil {
			cfg.PDFDirectory = expandedPath
		}
	}
	if cfg.OutputDirectory == "" {
		cfg.OutputDirectory = cfg.PDFDirectory
	} else if expandedPath, err := filepath.Abs(cfg.OutputDirectory); err == nil {
		cfg.OutputDirectory = expandedPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("output", cfg.OutputDirectory)
	viper.SetDefault("policy", cfg.DefaultPolicy)
	viper.SetDefault("discardoutline", cfg.DiscardOutline)
	viper.SetDefault("optimize", cfg.Optimize)
	viper.SetDefault("compress", cfg.Compress)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.PDFDirectory, "Directory containing source PDF files")
	pflag.String("output", cfg.OutputDirectory, "Directory receiving composed PDF files (defaults to --dir)")
	pflag.String("policy", cfg.DefaultPolicy, "Form merge policy: discard, merge, merge_renaming, flatten")
	pflag.Bool("discardoutline", cfg.DiscardOutline, "Drop the outline of extracted pages")
	pflag.Bool("optimize", cfg.Optimize, "Deduplicate page resources before saving")
	pflag.Bool("compress", cfg.Compress, "Write object and cross reference streams")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "host", "port", "dir", "output", "policy",
		"discardoutline", "optimize", "compress", "loglevel", "maxfilesize",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP PDF Composer - A Model Context Protocol server extracting pages and merging forms\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                          "+
			"# stdio mode, current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/in --output=/out                  "+
			"# separate source and output directories\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --policy=flatten --optimize              "+
			"# flatten merged forms, deduplicate resources\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --host=0.0.0.0 --port=8081 # server on all interfaces\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %s_MODE            Server mode\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_HOST            Server host\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_PORT            Server port\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_DIR             Source directory\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_OUTPUT          Output directory\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_POLICY          Form merge policy\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_DISCARDOUTLINE  Drop outlines\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_OPTIMIZE        Deduplicate resources\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_COMPRESS        Compressed cross reference\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_LOGLEVEL        Log level\n", envPrefix)
		fmt.Fprintf(os.Stderr, "  %s_MAXFILESIZE     Maximum file size\n", envPrefix)
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.OutputDirectory = viper.GetString("output")
	cfg.DefaultPolicy = viper.GetString("policy")
	cfg.DiscardOutline = viper.GetBool("discardoutline")
	cfg.Optimize = viper.GetBool("optimize")
	cfg.Compress = viper.GetBool("compress")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Port only matters when serving HTTP
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}
	if err := ensureDirectory(c.PDFDirectory); err != nil {
		return err
	}
	if c.OutputDirectory != "" && c.OutputDirectory != c.PDFDirectory {
		if err := ensureDirectory(c.OutputDirectory); err != nil {
			return err
		}
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if _, err := acroform.ParsePolicy(c.DefaultPolicy); err != nil {
		return err
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// ensureDirectory creates dir when it does not exist
func ensureDirectory(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	return nil
}

// Policy returns the parsed default form merge policy
func (c *Config) Policy() acroform.Policy {
	policy, err := acroform.ParsePolicy(c.DefaultPolicy)
	if err != nil {
		return acroform.MergeRenamingExisting
	}
	return policy
}

// Output returns the directory composed documents are written to
func (c *Config) Output() string {
	if c.OutputDirectory == "" {
		return c.PDFDirectory
	}
	return c.OutputDirectory
}

// Logger returns a logger writing to w at the configured level
func (c *Config) Logger(w io.Writer) logging.Logger {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.New(w, level)
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, PDFDirectory: %s, OutputDirectory: %s, "+
		"Policy: %s, DiscardOutline: %t, Optimize: %t, Compress: %t, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Host, c.Port, c.PDFDirectory, c.Output(), c.DefaultPolicy,
		c.DiscardOutline, c.Optimize, c.Compress, c.LogLevel, c.MaxFileSize)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
