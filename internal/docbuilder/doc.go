// Package docbuilder orchestrates documentation builds of versioned packages.
//
// A Builder reconciles the toolchain, fetches a package into a sandboxed
// build directory, documents its default target and up to a bounded number of
// additional targets, uploads the produced files and the package source, and
// records the outcome in the database. Build failures are outcomes, not
// errors: only infrastructure failures are returned to callers.
package docbuilder
