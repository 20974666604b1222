package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tillworks/tillpoint/pkg/migrate"
)

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"UNIQUE (branch_id, order_number)",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (qty > 0)",
		"DROP TABLE IF EXISTS orders",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestInvoicesMigrationEnforcesSingleLiveInvoice(t *testing.T) {
	content := readMigration(t, "*_create_invoices_and_payments.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS invoices",
		"UNIQUE (branch_id, invoice_number)",
		"ON invoices(order_id) WHERE status <> 'void'",
		"fiscal_attempts  INTEGER NOT NULL DEFAULT 0",
		"FOREIGN KEY (refund_of) REFERENCES payments(id) ON DELETE SET NULL",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationIndexesUnpublished(t *testing.T) {
	content := readMigration(t, "*_create_outbox_events.sql")

	if !strings.Contains(content, "WHERE published_at IS NULL") {
		t.Errorf("missing partial index on unpublished events")
	}
}
