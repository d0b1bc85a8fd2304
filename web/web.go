// Package web holds the browser front end served at "/".
package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte
