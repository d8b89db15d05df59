package db

import (
	"strings"
	"testing"

	"github.com/Guizzs26/go-crm-sync/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestBuildCompanyQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		filter      models.CompanyFilter
		wantArgs    int
		wantContain []string
		wantAbsent  []string
	}{
		{
			name:        "no filter",
			filter:      models.CompanyFilter{},
			wantArgs:    1,
			wantContain: []string{"status = ANY($1)", "LIMIT $2 OFFSET $3", "ORDER BY c.company_id ASC"},
			wantAbsent:  []string{"WHERE c."},
		},
		{
			name:        "ids and status",
			filter:      models.CompanyFilter{IDs: []int64{5, 6}, Status: models.StatusActive},
			wantArgs:    3,
			wantContain: []string{"c.company_id = ANY($1)", "c.status = $2", "status = ANY($3)", "LIMIT $4 OFFSET $5"},
		},
		{
			name:        "skip counts",
			filter:      models.CompanyFilter{IDs: []int64{1}, SkipCounts: true},
			wantArgs:    1,
			wantContain: []string{"c.company_id = ANY($1)", "LIMIT $2 OFFSET $3"},
			wantAbsent:  []string{"cscart_orders", "cscart_products"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			query, args := buildCompanyQuery(tt.filter)

			assert.Len(t, args, tt.wantArgs)
			for _, s := range tt.wantContain {
				assert.Contains(t, query, s)
			}
			for _, s := range tt.wantAbsent {
				assert.NotContains(t, query, s)
			}
			assert.False(t, strings.Contains(query, "%!"), "format verbs leaked into query")
		})
	}
}
