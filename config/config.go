// Package config loads the server configuration from config.yml, the
// environment and an optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gotify/configor"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/holidays"
	"github.com/warp/vacation-engine/vacation"
)

type Configuration struct {
	App struct {
		ListenAddr  string `default:"" env:"APP_HOST"`
		Port        int    `default:"8080" env:"APP_PORT"`
		CORSOrigins string `default:"*" env:"APP_CORS_ORIGINS"`
	}
	Database struct {
		Driver         string `default:"sqlite" env:"DB_DRIVER"`
		Path           string `default:"./vacation.db" env:"DB_PATH"`
		Host           string `default:"127.0.0.1" env:"DB_HOST"`
		Port           string `default:"5432" env:"DB_PORT"`
		Name           string `default:"vacation" env:"DB_NAME"`
		User           string `default:"postgres" env:"DB_USER"`
		Password       string `default:"postgres" env:"DB_PASSWORD"`
		SSLMode        string `default:"disable" env:"DB_SSL_MODE"`
		MigrateOnStart *bool  `default:"true" env:"DB_MIGRATE_ON_START"`
	}
	Log struct {
		Level string `default:"info" env:"LOG_LEVEL"`
	}
	Vacation struct {
		CatalogFile          string  `default:"" env:"VACATION_CATALOG_FILE"`
		HolidayICSFile       string  `default:"" env:"VACATION_HOLIDAY_ICS"`
		NonWorkingDates      string  `default:"" env:"VACATION_NON_WORKING_DATES"`
		DefaultHRApproverID  string  `default:"" env:"VACATION_DEFAULT_HR_APPROVER"`
		AllowNegativeBalance *bool   `default:"false" env:"VACATION_ALLOW_NEGATIVE_BALANCE"`
		MaxScheduleEdits     int     `default:"3" env:"VACATION_MAX_SCHEDULE_EDITS"`
		NotificationLeadDays int     `default:"7" env:"VACATION_NOTIFICATION_LEAD_DAYS"`
		DefaultYearlyDays    float64 `default:"20" env:"VACATION_DEFAULT_YEARLY_DAYS"`
	}
	Reminder struct {
		Enabled         *bool `default:"true" env:"REMINDER_ENABLED"`
		IntervalMinutes int   `default:"60" env:"REMINDER_INTERVAL_MINUTES"`
	}
}

func configFiles() []string {
	return []string{"config.yml"}
}

// Load reads .env (if present) into the environment, then config files and
// env overrides. Missing files are skipped.
func Load(files ...string) (*Configuration, error) {
	_ = godotenv.Load()

	if len(files) == 0 {
		files = configFiles()
	}
	conf := new(Configuration)
	if err := configor.New(&configor.Config{}).Load(conf, files...); err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Configuration) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Vacation.MaxScheduleEdits < 0 || c.Vacation.NotificationLeadDays < 0 || c.Vacation.DefaultYearlyDays < 0 {
		return errors.New("vacation limits must not be negative")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Configuration) Addr() string {
	return fmt.Sprintf("%s:%d", c.App.ListenAddr, c.App.Port)
}

// Origins splits the comma-separated CORS origin list.
func (c *Configuration) Origins() []string {
	return splitList(c.App.CORSOrigins)
}

// ReminderInterval is how often the reminder job runs.
func (c *Configuration) ReminderInterval() time.Duration {
	if c.Reminder.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Reminder.IntervalMinutes) * time.Minute
}

// PostgresDSN builds the gorm/pgx connection string.
func (c *Configuration) PostgresDSN() string {
	db := c.Database
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s password=%s",
		db.Host, db.Port, db.User, db.Name, db.SSLMode, db.Password)
}

// Settings builds the bootstrap settings snapshot. Holidays from the ICS
// file are merged with the configured date list.
func (c *Configuration) Settings() (vacation.Settings, error) {
	v := c.Vacation

	var imported []holidays.Holiday
	if v.HolidayICSFile != "" {
		hs, err := holidays.LoadFile(v.HolidayICSFile)
		if err != nil {
			return vacation.Settings{}, err
		}
		imported = hs
	}
	dates := holidays.Dates(imported, splitList(v.NonWorkingDates)...)
	for _, d := range dates {
		if _, err := vacation.ParseDate(d); err != nil {
			return vacation.Settings{}, errors.Wrapf(err, "non-working date %q", d)
		}
	}

	s := vacation.DefaultSettings()
	s.NonWorkingDates = dates
	s.DefaultHRApproverID = v.DefaultHRApproverID
	s.AllowNegativeBalance = v.AllowNegativeBalance != nil && *v.AllowNegativeBalance
	s.MaxScheduleEdits = v.MaxScheduleEdits
	s.NotificationLeadDays = v.NotificationLeadDays
	s.DefaultYearlyDays = decimal.NewFromFloat(v.DefaultYearlyDays)
	return s, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
