package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Export targets.
const (
	TargetSheets   = "sheets"
	TargetBigQuery = "bigquery"
	TargetNotion   = "notion"
	TargetGCS      = "gcs"
	TargetCSV      = "csv"
	TargetXLSX     = "xlsx"
)

// Cursor stores.
const (
	CursorStoreSQLite = "sqlite"
	CursorStoreGCS    = "gcs"
)

// Config is the runtime configuration shared by every binary.
type Config struct {
	PlaidClientID  string
	PlaidSecret    string
	PlaidEnv       string
	PlaidRateLimit float64

	DatabasePath string
	CursorStore  string
	ExportTarget string

	SheetsSpreadsheetID string
	SheetsSheetName     string

	BigQueryProject string
	BigQueryDataset string
	BigQueryTable   string

	NotionToken string
	NotionDBID  string

	GCSBucket       string
	GCSObject       string
	GCSCursorPrefix string

	ExportFilePath string

	LookbackDays     int
	GetPageSize      int
	SyncPageSize     int
	ScheduleInterval time.Duration
	WorkerCount      int

	Port      string
	APIKey    string
	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"plaid_env":         "sandbox",
	"plaid_rate_limit":  5.0,
	"database_path":     "./finance-sync.db",
	"cursor_store":      CursorStoreSQLite,
	"export_target":     TargetCSV,
	"sheets_sheet_name": "Transactions",
	"bigquery_table":    "transactions",
	"gcs_object":        "exports/transactions.csv",
	"gcs_cursor_prefix": "cursors/",
	"export_file_path":  "./transactions.csv",
	"lookback_days":     30,
	"get_page_size":     500,
	"sync_page_size":    500,
	"schedule_interval": "6h",
	"worker_count":      2,
	"port":              "8080",
	"log_level":         "info",
	"log_format":        "console",
}

// Load reads a .env file if one exists, then resolves every setting from the
// environment, the optional config file and built-in defaults, in that order
// of precedence.
func Load(configFile string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("Load: read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		PlaidClientID:  v.GetString("plaid_client_id"),
		PlaidSecret:    v.GetString("plaid_secret"),
		PlaidEnv:       v.GetString("plaid_env"),
		PlaidRateLimit: v.GetFloat64("plaid_rate_limit"),

		DatabasePath: v.GetString("database_path"),
		CursorStore:  strings.ToLower(v.GetString("cursor_store")),
		ExportTarget: strings.ToLower(v.GetString("export_target")),

		SheetsSpreadsheetID: v.GetString("sheets_spreadsheet_id"),
		SheetsSheetName:     v.GetString("sheets_sheet_name"),

		BigQueryProject: v.GetString("bigquery_project"),
		BigQueryDataset: v.GetString("bigquery_dataset"),
		BigQueryTable:   v.GetString("bigquery_table"),

		NotionToken: v.GetString("notion_token"),
		NotionDBID:  v.GetString("notion_db_id"),

		GCSBucket:       v.GetString("gcs_bucket"),
		GCSObject:       v.GetString("gcs_object"),
		GCSCursorPrefix: v.GetString("gcs_cursor_prefix"),

		ExportFilePath: v.GetString("export_file_path"),

		LookbackDays:     v.GetInt("lookback_days"),
		GetPageSize:      v.GetInt("get_page_size"),
		SyncPageSize:     v.GetInt("sync_page_size"),
		ScheduleInterval: v.GetDuration("schedule_interval"),
		WorkerCount:      v.GetInt("worker_count"),

		Port:      v.GetString("port"),
		APIKey:    v.GetString("api_key"),
		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}

	return cfg, nil
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	require(c.PlaidClientID, "PLAID_CLIENT_ID")
	require(c.PlaidSecret, "PLAID_SECRET")

	switch c.ExportTarget {
	case TargetSheets:
		require(c.SheetsSpreadsheetID, "SHEETS_SPREADSHEET_ID")
		require(c.SheetsSheetName, "SHEETS_SHEET_NAME")
	case TargetBigQuery:
		require(c.BigQueryProject, "BIGQUERY_PROJECT")
		require(c.BigQueryDataset, "BIGQUERY_DATASET")
		require(c.BigQueryTable, "BIGQUERY_TABLE")
	case TargetNotion:
		require(c.NotionToken, "NOTION_TOKEN")
		require(c.NotionDBID, "NOTION_DB_ID")
	case TargetGCS:
		require(c.GCSObject, "GCS_OBJECT")
		if !strings.HasPrefix(c.GCSObject, "gs://") {
			require(c.GCSBucket, "GCS_BUCKET")
		}
	case TargetCSV, TargetXLSX:
		require(c.ExportFilePath, "EXPORT_FILE_PATH")
	default:
		errs = append(errs, fmt.Errorf("EXPORT_TARGET %q is not supported", c.ExportTarget))
	}

	switch c.CursorStore {
	case CursorStoreSQLite:
		require(c.DatabasePath, "DATABASE_PATH")
	case CursorStoreGCS:
		require(c.GCSBucket, "GCS_BUCKET")
	default:
		errs = append(errs, fmt.Errorf("CURSOR_STORE %q is not supported", c.CursorStore))
	}

	if c.LookbackDays < 0 {
		errs = append(errs, errors.New("LOOKBACK_DAYS must not be negative"))
	}
	if c.GetPageSize <= 0 || c.SyncPageSize <= 0 {
		errs = append(errs, errors.New("GET_PAGE_SIZE and SYNC_PAGE_SIZE must be positive"))
	}
	if c.ScheduleInterval <= 0 {
		errs = append(errs, errors.New("SCHEDULE_INTERVAL must be positive"))
	}
	if c.WorkerCount <= 0 {
		errs = append(errs, errors.New("WORKER_COUNT must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("Validate: %w", errors.Join(errs...))
	}
	return nil
}
