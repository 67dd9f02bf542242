// Command sharc is a minimal flag-driven smoke tool for exercising an
// engine handle from a shell: open a database file (or :memory:), run
// zero or more DDL statements, run one query, and print its
// rows. Grounded on mjm918-tur/cmd/turdb/main.go, cut down from a full
// REPL since pkg/sharc's query grammar is SELECT-only.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"sharc/pkg/sharc"
	"sharc/pkg/sqlvalue"
)

func main() {
	path := flag.String("db", ":memory:", "database file path, or :memory:")
	execStmt := flag.String("exec", "", "a CREATE TABLE/INDEX/VIEW or ALTER TABLE statement to run before querying, semicolon-separated")
	query := flag.String("query", "", "a SELECT statement to run and print")
	flag.Parse()

	if err := run(*path, *execStmt, *query); err != nil {
		fmt.Fprintln(os.Stderr, "sharc:", err)
		os.Exit(1)
	}
}

func run(path, execStmt, query string) error {
	var (
		db  *sharc.DB
		err error
	)
	if path == ":memory:" {
		db, err = sharc.OpenMemory(sharc.Options{})
	} else {
		db, err = sharc.Open(path, sharc.Options{})
	}
	if err != nil {
		return err
	}
	defer db.Close()

	if strings.TrimSpace(execStmt) != "" {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(execStmt, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	if strings.TrimSpace(query) == "" {
		return nil
	}

	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols := rows.Columns()
	fmt.Println(strings.Join(cols, "\t"))
	for rows.Next() {
		fields := make([]string, len(cols))
		for i := range cols {
			fields[i] = formatValue(rows.Value(i))
		}
		fmt.Println(strings.Join(fields, "\t"))
	}
	return rows.Err()
}

func formatValue(v sqlvalue.Value) string {
	switch v.Kind() {
	case sqlvalue.KindNull:
		return "NULL"
	case sqlvalue.KindInteger:
		return fmt.Sprintf("%d", v.Int64())
	case sqlvalue.KindReal:
		return fmt.Sprintf("%g", v.Float64())
	case sqlvalue.KindText:
		return v.AsOwnedString()
	case sqlvalue.KindBlob:
		return fmt.Sprintf("x'%x'", v.BytesUnsafe())
	default:
		return ""
	}
}
