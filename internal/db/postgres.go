package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Guizzs26/go-crm-sync/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const usersPageSize = 500

var (
	ErrPrimaryInDuplicates = errors.New("primary company cannot be one of its duplicates")
	ErrNoDuplicates        = errors.New("at least one duplicate company is required")
	ErrCompanyNotFound     = errors.New("company not found")
)

var (
	// countedOrderStatuses are the order statuses that count toward a vendor's order total:
	// processed, complete, open
	countedOrderStatuses = []string{"P", "C", "O"}
	adminUserTypes       = []string{"A", "V"}

	// childTables reference cscart_companies.company_id and are repointed on merge
	childTables = []string{"cscart_products", "cscart_orders", "cscart_users", "cscart_payments"}
)

// PostgresRepository is the read side of the e-commerce store plus the merge utility
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresRepository(ctx context.Context, connString string, logger *slog.Logger) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 10 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	logger.Info("Connected to store database", "max_conns", config.MaxConns)
	return &PostgresRepository{pool: p, logger: logger}, nil
}

// FetchCompanies reads every company matching f, page by page, ordered by company_id.
// Empty f.IDs means no id filter. Aggregates come from the same statement as the row but
// each page is its own snapshot.
func (r *PostgresRepository) FetchCompanies(ctx context.Context, f models.CompanyFilter) ([]models.SourceCompany, error) {
	query, args := buildCompanyQuery(f)

	companies, err := collectPages(ctx, f.PageSize, func(ctx context.Context, limit, offset int) ([]models.SourceCompany, error) {
		rows, err := r.pool.Query(ctx, query, append(slices.Clone(args), limit, offset)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query companies: %w", err)
		}
		defer rows.Close()

		var page []models.SourceCompany
		for rows.Next() {
			var c models.SourceCompany
			var status string
			if err := rows.Scan(
				&c.ID, &c.Name, &c.Email, &c.URL, &c.Phone, &c.City, &c.State, &c.Country,
				&c.Zipcode, &c.Address, &status, &c.Timestamp,
				&c.ActiveProductCount, &c.DraftProductCount, &c.OrderCount, &c.HasPayPal, &c.HasStripe,
			); err != nil {
				return nil, fmt.Errorf("failed to scan company: %w", err)
			}
			c.Status = models.CompanyStatus(strings.TrimSpace(status))
			page = append(page, c)
		}
		return page, rows.Err()
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Fetched companies", "count", len(companies), "ids_filter", len(f.IDs), "status", f.Status)
	return companies, nil
}

// FetchUsersForCompanies reads active admin/vendor users owned by the given companies.
// An empty id list returns nothing without touching the database.
func (r *PostgresRepository) FetchUsersForCompanies(ctx context.Context, companyIDs []int64) ([]models.SourceUser, error) {
	if len(companyIDs) == 0 {
		return nil, nil
	}

	const query = `
		SELECT user_id, user_login, email, firstname, lastname, phone, company_id, last_login
		FROM cscart_users
		WHERE status = 'A' AND user_type = ANY($1) AND company_id = ANY($2)
		ORDER BY user_id ASC
		LIMIT $3 OFFSET $4
	`

	return collectPages(ctx, usersPageSize, func(ctx context.Context, limit, offset int) ([]models.SourceUser, error) {
		rows, err := r.pool.Query(ctx, query, adminUserTypes, companyIDs, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to query users: %w", err)
		}
		defer rows.Close()

		var page []models.SourceUser
		for rows.Next() {
			var u models.SourceUser
			if err := rows.Scan(
				&u.ID, &u.Login, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.CompanyID, &u.LastLogin,
			); err != nil {
				return nil, fmt.Errorf("failed to scan user: %w", err)
			}
			page = append(page, u)
		}
		return page, rows.Err()
	})
}

// MergeCompanies folds duplicate companies into primary inside one transaction: child rows
// are repointed to primary and the duplicate company rows are deleted. In dry-run the
// affected rows are only counted and the transaction is rolled back.
func (r *PostgresRepository) MergeCompanies(ctx context.Context, primaryID int64, duplicateIDs []int64, dryRun bool) (models.StoreMergeResult, error) {
	result := models.StoreMergeResult{PrimaryID: primaryID, DuplicateIDs: duplicateIDs, DryRun: dryRun}
	if len(duplicateIDs) == 0 {
		return result, ErrNoDuplicates
	}
	if slices.Contains(duplicateIDs, primaryID) {
		return result, ErrPrimaryInDuplicates
	}

	l := r.logger.With("primary_id", primaryID, "duplicates", duplicateIDs, "dry_run", dryRun)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return result, fmt.Errorf("failed to start merge transaction: %w", err)
	}
	// Rollback is a no-op after Commit
	defer tx.Rollback(ctx)

	locked, err := lockCompanies(ctx, tx, primaryID, duplicateIDs)
	if err != nil {
		return result, err
	}
	if !slices.Contains(locked, primaryID) {
		return result, fmt.Errorf("primary %d: %w", primaryID, ErrCompanyNotFound)
	}

	counts := make([]int64, len(childTables))
	for i, table := range childTables {
		var n int64
		if dryRun {
			err = tx.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE company_id = ANY($1)`, table), duplicateIDs).Scan(&n)
		} else {
			var tag pgconn.CommandTag
			tag, err = tx.Exec(ctx, fmt.Sprintf(`UPDATE %s SET company_id = $1 WHERE company_id = ANY($2)`, table), primaryID, duplicateIDs)
			n = tag.RowsAffected()
		}
		if err != nil {
			return result, fmt.Errorf("failed to repoint %s: %w", table, err)
		}
		counts[i] = n
	}
	result.Moved = models.MergeCounts{Products: counts[0], Orders: counts[1], Users: counts[2], Payments: counts[3]}

	if dryRun {
		result.Deleted = int64(len(locked) - 1)
		l.Info("Merge dry-run computed", "moved", result.Moved, "would_delete", result.Deleted)
		return result, nil
	}

	tag, err := tx.Exec(ctx, `DELETE FROM cscart_companies WHERE company_id = ANY($1)`, duplicateIDs)
	if err != nil {
		return result, fmt.Errorf("failed to delete duplicate companies: %w", err)
	}
	result.Deleted = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("failed to commit merge: %w", err)
	}

	l.Info("Companies merged", "moved", result.Moved, "deleted", result.Deleted)
	return result, nil
}

func lockCompanies(ctx context.Context, tx pgx.Tx, primaryID int64, duplicateIDs []int64) ([]int64, error) {
	rows, err := tx.Query(ctx,
		`SELECT company_id FROM cscart_companies WHERE company_id = $1 OR company_id = ANY($2) ORDER BY company_id FOR UPDATE`,
		primaryID, duplicateIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to lock companies: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to lock companies: %w", err)
	}
	return ids, nil
}

// Close gracefully shuts down the connection pool
func (r *PostgresRepository) Close() {
	r.logger.Info("Closing store connection pool")
	r.pool.Close()
}

// buildCompanyQuery returns the paged company statement and its filter args.
// LIMIT and OFFSET are the two placeholders after args.
func buildCompanyQuery(f models.CompanyFilter) (string, []any) {
	var where []string
	var args []any

	if len(f.IDs) > 0 {
		args = append(args, f.IDs)
		where = append(where, fmt.Sprintf("c.company_id = ANY($%d)", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("c.status = $%d", len(args)))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	var sb strings.Builder
	if f.SkipCounts {
		// Fast preview without aggregates
		sb.WriteString(`
			SELECT c.company_id, c.company, c.email, c.url, c.phone, c.city, c.state, c.country,
			       c.zipcode, c.address, c.status, COALESCE(c.timestamp, 0),
			       0::bigint, 0::bigint, 0::bigint, false, false
			FROM cscart_companies c
		`)
	} else {
		args = append(args, countedOrderStatuses)
		fmt.Fprintf(&sb, `
			SELECT c.company_id, c.company, c.email, c.url, c.phone, c.city, c.state, c.country,
			       c.zipcode, c.address, c.status, COALESCE(c.timestamp, 0),
			       COALESCE(p.active_count, 0), COALESCE(p.draft_count, 0), COALESCE(o.order_count, 0),
			       COALESCE(pm.has_paypal, false), COALESCE(pm.has_stripe, false)
			FROM cscart_companies c
			LEFT JOIN (
				SELECT company_id,
				       COUNT(*) FILTER (WHERE status = 'A') AS active_count,
				       COUNT(*) FILTER (WHERE status = 'D') AS draft_count
				FROM cscart_products
				GROUP BY company_id
			) p ON p.company_id = c.company_id
			LEFT JOIN (
				SELECT company_id, COUNT(*) AS order_count
				FROM cscart_orders
				WHERE status = ANY($%d)
				GROUP BY company_id
			) o ON o.company_id = c.company_id
			LEFT JOIN (
				SELECT company_id,
				       bool_or(processor ILIKE '%%paypal%%') AS has_paypal,
				       bool_or(processor ILIKE '%%stripe%%') AS has_stripe
				FROM cscart_payments
				WHERE status = 'A'
				GROUP BY company_id
			) pm ON pm.company_id = c.company_id
		`, len(args))
	}

	fmt.Fprintf(&sb, "%s\nORDER BY c.company_id ASC\nLIMIT $%d OFFSET $%d", whereSQL, len(args)+1, len(args)+2)
	return sb.String(), args
}
