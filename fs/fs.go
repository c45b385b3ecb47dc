// Package appfs embeds the files the binaries need at runtime: SQL migrations, e-mail templates and the common password list.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* common-passwords.txt
var FS embed.FS
