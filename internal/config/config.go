package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeBatch = "batch"
	ModeMCP   = "mcp"

	// Mail transports
	TransportSMTP     = "smtp"
	TransportSendGrid = "sendgrid"

	// Default values
	DefaultTemplate       = "template_inventaris.xlsx"
	DefaultOutputDir      = "generated_excel"
	DefaultReportDir      = "generated_pdf"
	DefaultImageCacheDir  = "image_cache"
	DefaultImageMaxDim    = 800
	DefaultFetchTimeout   = 15 * time.Second
	DefaultWorkers        = 1
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultSMTPHost       = "smtp.gmail.com"
	DefaultSMTPPort       = 587
	DefaultMailSubject    = "Form Inventaris Aset IT"
	DefaultEnvFile        = ".env"
	DefaultServerName     = "asset-form-generator"
	DefaultMaxInputSize   = 50 * 1024 * 1024 // 50MB
	DefaultMaxImageBytes  = 20 * 1024 * 1024 // 20MB
	DefaultReportRowsPage = 12

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "FORMGEN"
)

// Config holds all configuration for one generator run
type Config struct {
	Mode string // "batch" or "mcp"

	// Input
	InputFile    string
	InputDir     string
	Sheet        string
	Row          int // 1-based data row; 0 processes every row
	MaxInputSize int64

	// Output
	TemplateFile   string
	OutputDir      string
	ReportEnabled  bool
	ReportDir      string
	ReportRowsPage int
	Workers        int
	DryRun         bool

	// Images
	ImagesEnabled bool
	ImageCacheDir string
	ImageMaxDim   int
	MaxImageBytes int64
	FetchTimeout  time.Duration
	GCSImages     bool

	// Delivery
	EmailEnabled   bool
	MailTransport  string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string
	MailFrom       string
	MailFromName   string
	MailSubject    string
	SendGridAPIKey string

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
	LogFormat  string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:           ModeBatch,
		InputDir:       currentDir,
		MaxInputSize:   DefaultMaxInputSize,
		TemplateFile:   DefaultTemplate,
		OutputDir:      DefaultOutputDir,
		ReportDir:      DefaultReportDir,
		ReportRowsPage: DefaultReportRowsPage,
		Workers:        DefaultWorkers,
		ImageCacheDir:  DefaultImageCacheDir,
		ImageMaxDim:    DefaultImageMaxDim,
		MaxImageBytes:  DefaultMaxImageBytes,
		FetchTimeout:   DefaultFetchTimeout,
		MailTransport:  TransportSMTP,
		SMTPHost:       DefaultSMTPHost,
		SMTPPort:       DefaultSMTPPort,
		MailSubject:    DefaultMailSubject,
		Version:        "1.0.0",
		ServerName:     DefaultServerName,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
	}
}

// LoadFromFlags parses command line flags and returns a configuration.
// Values are layered: defaults, .env file, FORMGEN_* environment, flags.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	loadEnvFile()
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
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadEnvFile reads .env (or FORMGEN_ENV_FILE) into the process environment
// without overriding variables that are already set
func loadEnvFile() {
	path := os.Getenv(envPrefix + "_ENV_FILE")
	if path == "" {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); err == nil {
		_ = godotenv.Load(path)
	}
}

// flagKeys lists every flag name, which doubles as its viper key
var flagKeys = []string{
	"mode", "input", "input-dir", "sheet", "row", "max-input-size",
	"template", "output", "report", "report-dir", "report-rows", "workers", "dry-run",
	"images", "image-cache", "image-max-dim", "max-image-bytes", "fetch-timeout", "gcs-images",
	"email", "mail-transport", "smtp-host", "smtp-port", "smtp-user", "smtp-password",
	"mail-from", "mail-from-name", "mail-subject", "sendgrid-key",
	"loglevel", "logformat",
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("input-dir", cfg.InputDir)
	viper.SetDefault("max-input-size", cfg.MaxInputSize)
	viper.SetDefault("template", cfg.TemplateFile)
	viper.SetDefault("output", cfg.OutputDir)
	viper.SetDefault("report-dir", cfg.ReportDir)
	viper.SetDefault("report-rows", cfg.ReportRowsPage)
	viper.SetDefault("workers", cfg.Workers)
	viper.SetDefault("image-cache", cfg.ImageCacheDir)
	viper.SetDefault("image-max-dim", cfg.ImageMaxDim)
	viper.SetDefault("max-image-bytes", cfg.MaxImageBytes)
	viper.SetDefault("fetch-timeout", cfg.FetchTimeout)
	viper.SetDefault("mail-transport", cfg.MailTransport)
	viper.SetDefault("smtp-host", cfg.SMTPHost)
	viper.SetDefault("smtp-port", cfg.SMTPPort)
	viper.SetDefault("mail-subject", cfg.MailSubject)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("logformat", cfg.LogFormat)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Run mode: 'batch' generates documents, 'mcp' serves tools over stdio")
	pflag.String("input", cfg.InputFile, "Survey responses file (CSV or XLSX); newest file in --input-dir when empty")
	pflag.String("input-dir", cfg.InputDir, "Directory searched for responses when --input is empty")
	pflag.String("sheet", cfg.Sheet, "Worksheet to read from an XLSX input (first sheet when empty)")
	pflag.Int("row", cfg.Row, "Only process this 1-based response row (0 = all rows)")
	pflag.Int64("max-input-size", cfg.MaxInputSize, "Maximum input file size in bytes")
	pflag.String("template", cfg.TemplateFile, "Spreadsheet template to fill")
	pflag.String("output", cfg.OutputDir, "Directory for generated spreadsheets")
	pflag.Bool("report", cfg.ReportEnabled, "Also generate a PDF report per person")
	pflag.String("report-dir", cfg.ReportDir, "Directory for generated PDF reports")
	pflag.Int("report-rows", cfg.ReportRowsPage, "Item rows per PDF report page")
	pflag.Int("workers", cfg.Workers, "Number of people processed concurrently")
	pflag.Bool("dry-run", cfg.DryRun, "Classify and group without writing documents or sending mail")
	pflag.Bool("images", cfg.ImagesEnabled, "Download and embed item photos")
	pflag.String("image-cache", cfg.ImageCacheDir, "Directory for downloaded photos")
	pflag.Int("image-max-dim", cfg.ImageMaxDim, "Largest photo dimension in pixels after downscaling")
	pflag.Int64("max-image-bytes", cfg.MaxImageBytes, "Maximum downloaded photo size in bytes")
	pflag.Duration("fetch-timeout", cfg.FetchTimeout, "Timeout for each photo download attempt")
	pflag.Bool("gcs-images", cfg.GCSImages, "Resolve gs:// photo references through Cloud Storage")
	pflag.Bool("email", cfg.EmailEnabled, "Email generated spreadsheets to the addresses in the responses")
	pflag.String("mail-transport", cfg.MailTransport, "Mail transport: 'smtp' or 'sendgrid'")
	pflag.String("smtp-host", cfg.SMTPHost, "SMTP server host")
	pflag.Int("smtp-port", cfg.SMTPPort, "SMTP server port")
	pflag.String("smtp-user", cfg.SMTPUser, "SMTP user name")
	pflag.String("smtp-password", cfg.SMTPPassword, "SMTP password (prefer FORMGEN_SMTP_PASSWORD)")
	pflag.String("mail-from", cfg.MailFrom, "Sender address (defaults to --smtp-user)")
	pflag.String("mail-from-name", cfg.MailFromName, "Sender display name")
	pflag.String("mail-subject", cfg.MailSubject, "Email subject")
	pflag.String("sendgrid-key", cfg.SendGridAPIKey, "SendGrid API key (prefer FORMGEN_SENDGRID_KEY)")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.String("logformat", cfg.LogFormat, "Log format (console, json)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, key := range flagKeys {
		_ = viper.BindPFlag(key, pflag.Lookup(key))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nAsset Form Generator - fills inventory templates from survey responses\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                      # newest CSV in current directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input=responses.csv --report       # spreadsheets and PDF reports\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --images --email                     # embed photos and email results\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=mcp                           # serve tools over stdio\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  Every flag can be set as %s_<FLAG>, e.g. %s_SMTP_PASSWORD.\n", envPrefix, envPrefix)
		fmt.Fprintf(os.Stderr, "  A %s file in the working directory is loaded first.\n", DefaultEnvFile)
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
	cfg.InputFile = viper.GetString("input")
	cfg.InputDir = viper.GetString("input-dir")
	cfg.Sheet = viper.GetString("sheet")
	cfg.Row = viper.GetInt("row")
	cfg.MaxInputSize = viper.GetInt64("max-input-size")
	cfg.TemplateFile = viper.GetString("template")
	cfg.OutputDir = viper.GetString("output")
	cfg.ReportEnabled = viper.GetBool("report")
	cfg.ReportDir = viper.GetString("report-dir")
	cfg.ReportRowsPage = viper.GetInt("report-rows")
	cfg.Workers = viper.GetInt("workers")
	cfg.DryRun = viper.GetBool("dry-run")
	cfg.ImagesEnabled = viper.GetBool("images")
	cfg.ImageCacheDir = viper.GetString("image-cache")
	cfg.ImageMaxDim = viper.GetInt("image-max-dim")
	cfg.MaxImageBytes = viper.GetInt64("max-image-bytes")
	cfg.FetchTimeout = viper.GetDuration("fetch-timeout")
	cfg.GCSImages = viper.GetBool("gcs-images")
	cfg.EmailEnabled = viper.GetBool("email")
	cfg.MailTransport = viper.GetString("mail-transport")
	cfg.SMTPHost = viper.GetString("smtp-host")
	cfg.SMTPPort = viper.GetInt("smtp-port")
	cfg.SMTPUser = viper.GetString("smtp-user")
	cfg.SMTPPassword = viper.GetString("smtp-password")
	cfg.MailFrom = viper.GetString("mail-from")
	cfg.MailFromName = viper.GetString("mail-from-name")
	cfg.MailSubject = viper.GetString("mail-subject")
	cfg.SendGridAPIKey = viper.GetString("sendgrid-key")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.LogFormat = viper.GetString("logformat")

	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}
}

func (c *Config) expandPaths() {
	for _, p := range []*string{&c.InputFile, &c.InputDir, &c.TemplateFile, &c.OutputDir, &c.ReportDir, &c.ImageCacheDir} {
		if *p == "" {
			continue
		}
		if abs, err := filepath.Abs(*p); err == nil {
			*p = abs
		}
	}
}

// Validate checks if the configuration is valid and creates output directories
func (c *Config) Validate() error {
	if c.Mode != ModeBatch && c.Mode != ModeMCP {
		return errors.New("mode must be either 'batch' or 'mcp'")
	}

	if c.InputFile == "" && c.InputDir == "" {
		return errors.New("either an input file or an input directory is required")
	}

	if c.Row < 0 {
		return errors.New("row must be zero or a positive row number")
	}

	if c.MaxInputSize <= 0 {
		return errors.New("maximum input size must be positive")
	}

	if c.TemplateFile == "" {
		return errors.New("template file cannot be empty")
	}

	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}

	if c.ReportEnabled && c.ReportRowsPage < 1 {
		return errors.New("report rows per page must be at least 1")
	}

	if c.ImagesEnabled {
		if c.ImageMaxDim < 16 {
			return errors.New("image max dimension must be at least 16 pixels")
		}
		if c.FetchTimeout <= 0 {
			return errors.New("fetch timeout must be positive")
		}
		if c.MaxImageBytes <= 0 {
			return errors.New("maximum image size must be positive")
		}
	}

	if c.EmailEnabled {
		if err := c.validateMail(); err != nil {
			return err
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be console or json)", c.LogFormat)
	}

	if c.Mode == ModeBatch && !c.DryRun {
		dirs := []string{c.OutputDir}
		if c.ReportEnabled {
			dirs = append(dirs, c.ReportDir)
		}
		if c.ImagesEnabled {
			dirs = append(dirs, c.ImageCacheDir)
		}
		for _, dir := range dirs {
			if err := ensureDir(dir); err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *Config) validateMail() error {
	switch c.MailTransport {
	case TransportSMTP:
		if c.SMTPHost == "" {
			return errors.New("smtp host is required for email delivery")
		}
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			return errors.New("smtp port must be between 1 and 65535")
		}
	case TransportSendGrid:
		if c.SendGridAPIKey == "" {
			return errors.New("sendgrid api key is required for email delivery")
		}
	default:
		return fmt.Errorf("invalid mail transport: %s (must be smtp or sendgrid)", c.MailTransport)
	}
	if !strings.Contains(c.MailFrom, "@") {
		return errors.New("a sender address (--mail-from or --smtp-user) is required for email delivery")
	}
	return nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return errors.New("output directory cannot be empty")
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	}
	return nil
}

// SMTPAddress returns the SMTP server address as host:port
func (c *Config) SMTPAddress() string {
	return fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// IsMCPMode returns true if the tools are served over stdio
func (c *Config) IsMCPMode() bool {
	return c.Mode == ModeMCP
}

// IsBatchMode returns true for a one-shot generation run
func (c *Config) IsBatchMode() bool {
	return c.Mode == ModeBatch
}

// String returns a string representation of the configuration with secrets masked
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Input: %s, InputDir: %s, Template: %s, Output: %s, Report: %t, "+
		"Images: %t, Email: %t, Transport: %s, SMTP: %s, User: %s, Password: %s, Workers: %d, LogLevel: %s}",
		c.Mode, c.InputFile, c.InputDir, c.TemplateFile, c.OutputDir, c.ReportEnabled,
		c.ImagesEnabled, c.EmailEnabled, c.MailTransport, c.SMTPAddress(), c.SMTPUser, mask(c.SMTPPassword),
		c.Workers, c.LogLevel)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
