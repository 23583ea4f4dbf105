package web

import (
	"embed"
)

// staticFiles holds the embedded show console page.
//
//go:embed static/*
var staticFiles embed.FS
