// Package types defines the entity types, table names, progress reporting
// interface and standard errors shared by the cardshelf store, the migration
// engine and the CLI.
package types
