// Package checkpoint persists the harvest cursor.
//
// The cursor file is a small JSON document holding the opaque upstream cursor
// plus running totals. It is rewritten whole through a temporary file and a
// rename after every fully processed page, so a restart resumes at the last
// page boundary. A missing file means the harvest starts from the beginning.
package checkpoint
