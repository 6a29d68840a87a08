package orm

import "fmt"

// Dialect abstracts SQL differences between database engines.
type Dialect interface {
	// Placeholder returns the bind parameter placeholder for the given
	// 1-based index. MySQL and SQLite return "?" regardless of index;
	// PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string
	// QuoteIdent quotes an identifier (table name, column name) to safely
	// handle SQL reserved words. MySQL uses backticks; PostgreSQL and SQLite
	// use double quotes.
	QuoteIdent(name string) string
}

// MySQL is the Dialect for MySQL / MariaDB.
var MySQL Dialect = mysqlDialect{}

// PostgreSQL is the Dialect for PostgreSQL.
var PostgreSQL Dialect = postgresDialect{}

// SQLite is the Dialect for SQLite.
var SQLite Dialect = sqliteDialect{}

type mysqlDialect struct{}

func (mysqlDialect) Placeholder(_ int) string      { return "?" }
func (mysqlDialect) QuoteIdent(name string) string { return "`" + name + "`" }

type postgresDialect struct{}

func (postgresDialect) Placeholder(index int) string  { return fmt.Sprintf("$%d", index) }
func (postgresDialect) QuoteIdent(name string) string { return `"` + name + `"` }

type sqliteDialect struct{}

func (sqliteDialect) Placeholder(_ int) string      { return "?" }
func (sqliteDialect) QuoteIdent(name string) string { return `"` + name + `"` }
