// Package workspace manages the ephemeral staging directories a package build
// collects its documentation in before upload.
package workspace
