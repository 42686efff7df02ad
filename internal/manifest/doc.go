// Package manifest reads and rewrites the extension manifest (package.json).
// It provides an order-preserving JSON document, the three-way merge used
// as a git merge driver for the manifest, the brand overlay that re-stamps
// identity fields after every sync, and JSON Schema validation.
package manifest
