// Package logtail reads the tail of the application log for the log
// overlay.
//
// Read keeps a ring buffer of the last maxLines lines, so memory stays
// bounded however large the file grows. Parse splits lines written by the
// standard logger into timestamp and message and Classify guesses a
// severity from the message wording:
//
//	lines, err := logtail.Read(cfg.LogPath, 200)
//	for _, line := range lines {
//		e := logtail.Parse("captable ", line)
//		...
//	}
package logtail
