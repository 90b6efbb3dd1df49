// Package all wires every built-in aggregate store backend into the
// aggregate factory. It exists purely for side effects: importing it makes
// the kinds "sqlite", "postgres", "mysql" and "mssql" available to
// aggregate.Open.
//
//	import _ "zerobyte/internal/aggregate/all"
//
// A binary that needs only a subset can blank-import the backend packages
// it wants instead.
package all

import (
	_ "zerobyte/internal/aggregate/mssql"
	_ "zerobyte/internal/aggregate/mysql"
	_ "zerobyte/internal/aggregate/postgres"
	_ "zerobyte/internal/aggregate/sqlite"
)
