// Package web holds the embedded browser UI.
package web

import _ "embed"

// Index is the single page served at /
//
//go:embed index.html
var Index []byte
