// Package config loads the connector configuration from the environment,
// an optional .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment variable names.
const (
	CollibraURL      = "COLLIBRA_URL"
	CollibraUsername = "COLLIBRA_USERNAME"
	CollibraPassword = "COLLIBRA_PASSWORD"
	ODBCURL          = "HTTP_ODBC_URL"
	RuleQuery        = "HTTP_ODBC_RULE_QUERY"
	ProfileQuery     = "HTTP_ODBC_PROFILE_QUERY"

	CommunityName         = "COLLIBRA_COMMUNITY_NAME"
	CommunityDescription  = "COLLIBRA_COMMUNITY_DESCRIPTION"
	GovernanceName        = "COLLIBRA_GOVERNANCE_NAME"
	GovernanceDescription = "COLLIBRA_GOVERNANCE_DESCRIPTION"
	RulebookName          = "COLLIBRA_RULEBOOK_NAME"
	RulebookDescription   = "COLLIBRA_RULEBOOK_DESCRIPTION"
	DataAssetName         = "COLLIBRA_DATA_ASSET_NAME"
	DataAssetDescription  = "COLLIBRA_DATA_ASSET_DESCRIPTION"

	DebugLevel     = "COLLIBRA_DEBUG_LEVEL"
	MultiCommunity = "COLLIBRA_MULTI_COMMUNITY"
	AttributeKey   = "COLLIBRA_ATTRIBUTE_KEY"
	LastRun        = "COLLIBRA_LAST_RUN"
	SyncMode       = "COLLIBRA_SYNC_MODE"
	JobPollMillis  = "COLLIBRA_JOB_POLL_INTERVAL_MS"
	JobMaxPolls    = "COLLIBRA_JOB_MAX_POLLS"
	NoDeletion     = "COLLIBRA_RELATION_NO_DELETION"

	Concurrency    = "DQ_CONCURRENCY"
	HTTPTimeout    = "DQ_HTTP_TIMEOUT_SECONDS"
	DBType         = "DQ_DB_TYPE"
	DBDSN          = "DQ_DB_DSN"
	RetentionDays  = "DQ_HISTORY_RETENTION_DAYS"
	HistoryEnabled = "DQ_HISTORY_ENABLED"

	Data3SixtyURL          = "DATA3SIXTY_URL"
	Data3SixtyAPIKey       = "DATA3SIXTY_API_KEY"
	Data3SixtyAPISecret    = "DATA3SIXTY_API_SECRET"
	Data3SixtyFusionAttrID = "DATA3SIXTY_FUSION_ATTRIBUTE_UID"
)

// Sync modes for the catalog target.
const (
	ModeImport = "import"
	ModeREST   = "rest"
)

// ConfigurationError lists required values that are missing or invalid.
type ConfigurationError struct {
	Missing []string
	Invalid map[string]string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("%s must be set to continue", strings.Join(e.Missing, ", ")))
	}
	for k, v := range e.Invalid {
		parts = append(parts, fmt.Sprintf("%s: %s", k, v))
	}
	return "configuration: " + strings.Join(parts, "; ")
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Collibra holds the governance catalog settings.
type Collibra struct {
	URL      string
	Username string
	Password string

	CommunityName         string
	CommunityDescription  string
	GovernanceName        string
	GovernanceDescription string
	RulebookName          string
	RulebookDescription   string
	DataAssetName         string
	DataAssetDescription  string

	MultiCommunity bool
	AttributeKey   string
	SyncMode       string
	PollInterval   time.Duration
	MaxPolls       int
	// NoDeletion keeps existing relations instead of recreating them.
	NoDeletion bool
}

// Data3Sixty holds the sibling catalog settings.
type Data3Sixty struct {
	URL                string
	APIKey             string
	APISecret          string
	FusionAttributeUID string
}

// History holds the sync-run store settings.
type History struct {
	Enabled       bool
	DBType        string
	DSN           string
	RetentionDays int
}

// Config is the full connector configuration.
type Config struct {
	Collibra   Collibra
	Data3Sixty Data3Sixty
	History    History

	ODBCURL      string
	RuleQuery    string
	ProfileQuery string

	DebugLevel  string
	LastRun     time.Time
	Concurrency int
	HTTPTimeout time.Duration
}

// SetDefaults registers the default value of every optional key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(CommunityName, "Data Quality Community")
	v.SetDefault(CommunityDescription, "Data quality results")
	v.SetDefault(GovernanceName, "Data Quality Results")
	v.SetDefault(GovernanceDescription, "Data quality metrics")
	v.SetDefault(RulebookName, "Data Quality Rules")
	v.SetDefault(RulebookDescription, "Data quality rules")
	v.SetDefault(DataAssetName, "Data Asset Domain")
	v.SetDefault(DataAssetDescription, "Assets from database")
	v.SetDefault(DebugLevel, "warning")
	v.SetDefault(LastRun, "1900-01-01")
	v.SetDefault(SyncMode, ModeImport)
	v.SetDefault(JobPollMillis, 1000)
	v.SetDefault(JobMaxPolls, 600)
	v.SetDefault(NoDeletion, true)
	v.SetDefault(Concurrency, 4)
	v.SetDefault(HTTPTimeout, 0)
	v.SetDefault(DBType, "sqlite")
	v.SetDefault(DBDSN, "dq-connector.db")
	v.SetDefault(RetentionDays, 30)
	v.SetDefault(HistoryEnabled, true)
}

// NewViper returns a viper instance reading the environment, with defaults
// registered and, when envFile exists, its KEY=value pairs loaded.
// Process environment wins over the file.
func NewViper(envFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	if envFile == "" {
		return v, nil
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return v, nil
		}
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}
	return v, nil
}

// Load reads a Config from v. Only value formats are checked here; use the
// Require* methods to enforce the settings a command needs.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Collibra: Collibra{
			URL:                   strings.TrimRight(v.GetString(CollibraURL), "/"),
			Username:              v.GetString(CollibraUsername),
			Password:              v.GetString(CollibraPassword),
			CommunityName:         v.GetString(CommunityName),
			CommunityDescription:  v.GetString(CommunityDescription),
			GovernanceName:        v.GetString(GovernanceName),
			GovernanceDescription: v.GetString(GovernanceDescription),
			RulebookName:          v.GetString(RulebookName),
			RulebookDescription:   v.GetString(RulebookDescription),
			DataAssetName:         v.GetString(DataAssetName),
			DataAssetDescription:  v.GetString(DataAssetDescription),
			MultiCommunity:        v.GetBool(MultiCommunity),
			AttributeKey:          v.GetString(AttributeKey),
			SyncMode:              strings.ToLower(v.GetString(SyncMode)),
			PollInterval:          time.Duration(v.GetInt(JobPollMillis)) * time.Millisecond,
			MaxPolls:              v.GetInt(JobMaxPolls),
			NoDeletion:            v.GetBool(NoDeletion),
		},
		Data3Sixty: Data3Sixty{
			URL:                strings.TrimRight(v.GetString(Data3SixtyURL), "/"),
			APIKey:             v.GetString(Data3SixtyAPIKey),
			APISecret:          v.GetString(Data3SixtyAPISecret),
			FusionAttributeUID: v.GetString(Data3SixtyFusionAttrID),
		},
		History: History{
			Enabled:       v.GetBool(HistoryEnabled),
			DBType:        strings.ToLower(v.GetString(DBType)),
			DSN:           v.GetString(DBDSN),
			RetentionDays: v.GetInt(RetentionDays),
		},
		ODBCURL:      strings.TrimRight(v.GetString(ODBCURL), "/"),
		RuleQuery:    v.GetString(RuleQuery),
		ProfileQuery: v.GetString(ProfileQuery),
		DebugLevel:   v.GetString(DebugLevel),
		Concurrency:  v.GetInt(Concurrency),
		HTTPTimeout:  time.Duration(v.GetInt(HTTPTimeout)) * time.Second,
	}

	invalid := map[string]string{}
	lastRun, err := ParseTime(v.GetString(LastRun))
	if err != nil {
		invalid[LastRun] = err.Error()
	}
	cfg.LastRun = lastRun

	if cfg.Collibra.SyncMode != ModeImport && cfg.Collibra.SyncMode != ModeREST {
		invalid[SyncMode] = fmt.Sprintf("must be %q or %q", ModeImport, ModeREST)
	}
	switch cfg.History.DBType {
	case "sqlite", "postgres", "mysql":
	default:
		invalid[DBType] = "must be sqlite, postgres or mysql"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Collibra.PollInterval <= 0 {
		cfg.Collibra.PollInterval = time.Second
	}
	if len(invalid) > 0 {
		return nil, &ConfigurationError{Invalid: invalid}
	}
	return cfg, nil
}

// RequireCollibra checks the settings needed to sync into the catalog.
func (c *Config) RequireCollibra() error {
	return requireValues(map[string]string{
		CollibraURL:      c.Collibra.URL,
		CollibraUsername: c.Collibra.Username,
		CollibraPassword: c.Collibra.Password,
		ODBCURL:          c.ODBCURL,
	})
}

// RequireRuleQuery checks that the rule query is set.
func (c *Config) RequireRuleQuery() error {
	return requireValues(map[string]string{RuleQuery: c.RuleQuery})
}

// RequireProfileQuery checks that the profile query is set.
func (c *Config) RequireProfileQuery() error {
	return requireValues(map[string]string{ProfileQuery: c.ProfileQuery})
}

// RequireData3Sixty checks the settings needed by the sibling connector.
func (c *Config) RequireData3Sixty() error {
	return requireValues(map[string]string{
		Data3SixtyURL:          c.Data3Sixty.URL,
		Data3SixtyAPIKey:       c.Data3Sixty.APIKey,
		Data3SixtyAPISecret:    c.Data3Sixty.APISecret,
		Data3SixtyFusionAttrID: c.Data3Sixty.FusionAttributeUID,
		ODBCURL:                c.ODBCURL,
	})
}

func requireValues(values map[string]string) error {
	var missing []string
	for k, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &ConfigurationError{Missing: missing}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses the last-run timestamp formats the connector accepts.
// Values without a zone are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
