// Package mysql provides the MySQL-backed persistence layer. A single Store
// serves both the collaboration data (projects, tasks, threads, messages)
// and the account catalogue used by the authentication service, with schema
// migrations applied automatically on startup.
package mysql
