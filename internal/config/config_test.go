package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseIDList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want []int64
	}{
		{name: "empty", raw: "", want: nil},
		{name: "single", raw: "5", want: []int64{5}},
		{name: "spaces and blanks", raw: " 1, 2,,3 ", want: []int64{1, 2, 3}},
		{name: "non numeric dropped", raw: "1,abc,4", want: []int64{1, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseIDList(tt.raw))
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"HUBSPOT_PRIVATE_APP_TOKEN", "DATABASE_URL", "SYNC_CONCURRENCY", "PAGE_SIZE",
		"DRY_RUN", "COMPANY_IDS", "RATE_LIMIT_DELAY", "DB_HOST", "DB_PORT", "DB_USER",
		"DB_PASSWORD", "DB_NAME",
	} {
		t.Setenv(key, "")
	}
	// empty values fall back to defaults
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/shop")

	cfg := Load()

	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 100, cfg.PageSize)
	assert.False(t, cfg.DryRun)
	assert.Empty(t, cfg.CompanyIDsFilter)
	assert.Equal(t, 125*time.Millisecond, cfg.RateLimitDelay)
	assert.Equal(t, "postgres://u:p@db:5432/shop", cfg.DatabaseURL)
}

func TestLoadClampsAndParses(t *testing.T) {
	t.Setenv("SYNC_CONCURRENCY", "500")
	t.Setenv("PAGE_SIZE", "0")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("COMPANY_IDS", "7,8")
	t.Setenv("RATE_LIMIT_DELAY", "50")

	cfg := Load()

	assert.Equal(t, MaxConcurrency, cfg.Concurrency)
	assert.Equal(t, MinPageSize, cfg.PageSize)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, []int64{7, 8}, cfg.CompanyIDsFilter)
	assert.Equal(t, 50*time.Millisecond, cfg.RateLimitDelay)
}
