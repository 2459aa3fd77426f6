// Package forms implements the form lifecycle for Formhive: creation,
// retrieval, listing, updates, and deletion of form records.
//
// Every read and mutation is guarded by the access engine in pkg/access.
// Single-form reads require viewer, updates require editor, and deletion
// requires owner; listings never error for forms the caller cannot see,
// they simply omit them. New forms always start private.
//
// Categories come from a closed list loaded from a YAML file at startup,
// so dashboards and filters never meet a free-form category string.
package forms
