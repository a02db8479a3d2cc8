package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rfqcrm/internal/qualify"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	DBPath       string
	UploadDir    string
	OutputDir    string
	ProcessedDir string
	ReviewedDir  string
	RawMailDir   string
	LogLevel     string

	OpportunityStage string

	MinDeliveryDays        int
	ISOPolicy              string
	SamplingPolicy         string
	InspectionPoint        string
	PreferredManufacturers []string
	SettingsFile           string

	DibbsBaseURL      string
	DibbsRateLimitRPS int
	DibbsTimeoutMs    int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string
	GmailQuery        string

	IMAPHost          string
	IMAPPort          int
	IMAPSecure        bool
	IMAPUser          string
	IMAPPassword      string
	IMAPMarkSeen      bool
	IMAPSubjectFilter string

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:       getEnv("DB_PATH", filepath.Join(cwd, "data", "crm.db")),
		UploadDir:    getEnv("UPLOAD_DIR", filepath.Join(cwd, "data", "upload")),
		OutputDir:    getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		ProcessedDir: getEnv("PROCESSED_DIR", filepath.Join(cwd, "data", "processed")),
		ReviewedDir:  getEnv("REVIEWED_DIR", filepath.Join(cwd, "data", "reviewed")),
		RawMailDir:   getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		OpportunityStage: getEnv("OPPORTUNITY_STAGE", "Prospecting"),

		MinDeliveryDays:        getEnvInt("MIN_DELIVERY_DAYS", 120),
		ISOPolicy:              getEnv("ISO_POLICY", string(qualify.PolicyRequireNo)),
		SamplingPolicy:         getEnv("SAMPLING_POLICY", string(qualify.PolicyRequireNo)),
		InspectionPoint:        getEnv("INSPECTION_POINT", string(qualify.InspectionDestination)),
		PreferredManufacturers: getEnvList("PREFERRED_MANUFACTURERS"),
		SettingsFile:           getEnv("SETTINGS_FILE", ""),

		DibbsBaseURL:      getEnv("DIBBS_BASE_URL", "https://dibbs2.bsm.dla.mil/Downloads/RFQ"),
		DibbsRateLimitRPS: getEnvInt("DIBBS_RATE_LIMIT_RPS", 2),
		DibbsTimeoutMs:    getEnvInt("DIBBS_TIMEOUT_MS", 30000),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),
		GmailQuery:        getEnv("GMAIL_QUERY", "has:attachment filename:pdf"),

		IMAPHost:          getEnv("IMAP_HOST", ""),
		IMAPPort:          getEnvInt("IMAP_PORT", 993),
		IMAPSecure:        getEnvBool("IMAP_SECURE", true),
		IMAPUser:          getEnv("IMAP_USER", ""),
		IMAPPassword:      getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen:      getEnvBool("IMAP_MARK_SEEN", false),
		IMAPSubjectFilter: getEnv("IMAP_SUBJECT_FILTER", ""),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: missing required env var: %s", ErrInvalidConfig, name)
	}
	return nil
}

// Qualification builds the rule-engine settings from the environment, then
// overlays SETTINGS_FILE when one is configured.
func (c Config) Qualification() (qualify.Config, error) {
	q := qualify.Config{
		MinDeliveryDays:         c.MinDeliveryDays,
		ISOPolicy:               qualify.Policy(c.ISOPolicy),
		SamplingPolicy:          qualify.Policy(c.SamplingPolicy),
		RequiredInspectionPoint: qualify.InspectionPolicy(c.InspectionPoint),
		PreferredManufacturers:  append([]string(nil), c.PreferredManufacturers...),
	}
	if strings.TrimSpace(c.SettingsFile) != "" {
		var err error
		q, err = LoadSettingsFile(c.SettingsFile, q)
		if err != nil {
			return qualify.Config{}, err
		}
	}
	if err := q.Validate(); err != nil {
		return qualify.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return q, nil
}

// LoadSettingsFile reads a YAML settings document on top of base. Keys
// absent from the file keep their base value.
func LoadSettingsFile(path string, base qualify.Config) (qualify.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return qualify.Config{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	out := base
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return qualify.Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
