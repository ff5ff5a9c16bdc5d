package grants

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

// TestApplicationColumns_MatchMigration guards against drift between the
// repository's column list and the grant_applications table DDL.
func TestApplicationColumns_MatchMigration(t *testing.T) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..",
		"migrations", "000002_create_grant_applications.up.sql")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading grant applications migration: %v", err)
	}

	defined := map[string]bool{}
	colPattern := regexp.MustCompile(`(?m)^\s+([a-z][a-z0-9_]*)\s`)
	for _, match := range colPattern.FindAllStringSubmatch(string(data), -1) {
		defined[match[1]] = true
	}
	if len(defined) == 0 {
		t.Fatal("no column definitions found in grant applications migration")
	}

	for _, col := range strings.Split(applicationColumns, ",") {
		col = strings.TrimSpace(col)
		if !defined[col] {
			t.Errorf("repository selects column %q but the migration does not define it", col)
		}
	}
}
