package offer

import "github.com/jmoiron/sqlx"

// DB exposes the mirror's connection to tests.
func DB(m *SQLMirror) *sqlx.DB { return m.db }
