package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	conf, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", conf.Addr())
	assert.Equal(t, "sqlite", conf.Database.Driver)
	assert.Equal(t, []string{"*"}, conf.Origins())
	assert.Equal(t, time.Hour, conf.ReminderInterval())
	require.NotNil(t, conf.Reminder.Enabled)
	assert.True(t, *conf.Reminder.Enabled)

	s, err := conf.Settings()
	require.NoError(t, err)
	assert.Equal(t, 3, s.MaxScheduleEdits)
	assert.Equal(t, 7, s.NotificationLeadDays)
	assert.True(t, s.DefaultYearlyDays.Equal(decimal.NewFromInt(20)))
	assert.False(t, s.AllowNegativeBalance)
	assert.Empty(t, s.NonWorkingDates)
}

func TestLoad_FileAndEnv(t *testing.T) {
	// GIVEN: a config file and an env override for the port
	// WHEN: loading
	// THEN: env wins over the file, the file wins over defaults
	path := writeFile(t, "config.yml", `
app:
  port: 9000
  corsorigins: "https://hr.example.com, https://admin.example.com"
vacation:
  maxscheduleedits: 5
  nonworkingdates: "2025-12-25,2025-12-26"
  defaulthrapproverid: hr-1
`)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("VACATION_ALLOW_NEGATIVE_BALANCE", "true")

	conf, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", conf.Addr())
	assert.Equal(t, []string{"https://hr.example.com", "https://admin.example.com"}, conf.Origins())

	s, err := conf.Settings()
	require.NoError(t, err)
	assert.Equal(t, 5, s.MaxScheduleEdits)
	assert.Equal(t, "hr-1", s.DefaultHRApproverID)
	assert.True(t, s.AllowNegativeBalance)
	assert.Equal(t, []string{"2025-12-25", "2025-12-26"}, s.NonWorkingDates)
}

func TestLoad_UnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestSettings_MergesHolidayFile(t *testing.T) {
	ics := writeFile(t, "holidays.ics", "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n"+
		"BEGIN:VEVENT\r\nUID:a\r\nSUMMARY:Labour Day\r\nDTSTART;VALUE=DATE:20250501\r\nEND:VEVENT\r\n"+
		"END:VCALENDAR\r\n")
	t.Setenv("VACATION_HOLIDAY_ICS", ics)
	t.Setenv("VACATION_NON_WORKING_DATES", "2025-12-25,2025-05-01")

	conf, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	s, err := conf.Settings()
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-05-01", "2025-12-25"}, s.NonWorkingDates)
}

func TestSettings_RejectsBadDate(t *testing.T) {
	t.Setenv("VACATION_NON_WORKING_DATES", "2025-13-01")

	conf, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	_, err = conf.Settings()
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "leave")

	conf, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "host=db port=5432 user=postgres dbname=leave sslmode=disable password=postgres", conf.PostgresDSN())
}
