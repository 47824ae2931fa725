// Package appfs embeds the static assets shipped with every binary:
// SQL migrations, email templates and the common passwords list.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* common-passwords.txt.gz
var FS embed.FS

const (
	MigrationsDir     = "migrations"
	EmailTemplatesDir = "templates/email"
	CommonPasswords   = "common-passwords.txt.gz"
)
