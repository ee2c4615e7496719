// Package jobstore records render jobs in a SQLite database.
//
// A job row is written when a render starts and completed when it ends, so
// the history shows runs that crashed as well: rows still marked running
// when the store is opened again are closed as interrupted.
package jobstore
