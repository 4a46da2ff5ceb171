// Package manager implements policy template loading, hot reload, and
// per-agent role resolution.
//
// Templates are YAML documents loaded from a directory, one template per
// file, with the template id derived from the file name. The template set is
// rebuilt and atomically swapped on any filesystem change; a parse failure in
// one file is logged and that template omitted without affecting the others.
//
// Roles bind an agent to a template plus optional overrides. Override rule
// lists are concatenated onto the template's lists (no deduplication, no
// precedence beyond list membership) and limits are shallow-merged with
// override values winning. Assignments are persisted through a policy store
// and reloaded at startup.
package manager
