package database

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaSQL string

// Tables created by the schema, in dependency order.
var Tables = []string{"organizations", "users", "beneficiaries", "story_updates", "reports"}

// Schema returns the embedded schema script.
func Schema() string {
	return schemaSQL
}

// Migrate applies the schema and verifies that every table is queryable.
// It returns the row count per table.
func Migrate(ctx context.Context, db *sqlx.DB, log logrus.FieldLogger) (map[string]int, error) {
	log.Info("Executing database schema")
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	counts := make(map[string]int, len(Tables))
	for _, table := range Tables {
		var n int
		query := "SELECT count(*) FROM public." + pq.QuoteIdentifier(table)
		if err := db.GetContext(ctx, &n, query); err != nil {
			return nil, fmt.Errorf("failed to verify table %s: %w", table, err)
		}
		log.WithField("table", table).Infof("Table ready with %d rows", n)
		counts[table] = n
	}
	return counts, nil
}

// MaskDSN hides the password of a URL-style DSN.
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		if len(dsn) > 10 {
			return dsn[:10] + "***"
		}
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
