// Package db embeds the storefront schema applied at startup.
package db

import _ "embed"

// Schema contains the DDL statements for all storefront tables. Every
// statement is idempotent so it can run on each boot.
//
//go:embed migrations/001_schema.sql
var Schema string
