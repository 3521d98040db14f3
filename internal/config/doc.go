// Package config loads the captable configuration file.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/captable/config.toml (default)
//  3. If the config file doesn't exist, fall back to hardcoded defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// # Default Values
//
//   - Backend: sqlite, database at ~/.local/share/captable/captable.db
//   - API endpoint: 127.0.0.1:7488 (used by the http backend and by --serve)
//   - Log file: ~/.local/share/captable/captable.log
//   - Table: "items" with title, status, amount and created columns
//   - Page size: 1000 rows, poll interval 30s, service timeout 30s
//   - Execution policy for delete and refresh: serial
//   - Deleting more than 10 rows asks for confirmation
//
// # Example
//
//	backend = "sqlite"
//	db_path = "~/tables/tasks.db"
//	seed_file = "~/tables/tasks.yaml"
//	table = "tasks"
//	page_size = 500
//	poll_seconds = 10
//	policy = "batch"
//
//	[[columns]]
//	name = "title"
//	type = "text"
//	editable = true
//
//	[[columns]]
//	name = "priority"
//	type = "integer"
//	title = "Prio"
//	width = 6
//
// Paths are trimmed and "~" is expanded. Column types are text, integer or
// real; an empty title falls back to the column name.
package config
