// Package main (cmd/storage-server) runs the storage router.
//
// The pool table is loaded from the first source that has pools:
//
//	--pools-file      YAML, TOML or JSON document
//	STORAGE_POOLS     the same document in an environment variable
//	--vault-path      a field of a Vault KV v2 secret
//
// When none is configured a single public pool named "default" stores files
// under --data-dir. SIGHUP reloads the table; an invalid reload is logged and
// the running table stays active. Provider health is re-checked on
// --health-schedule.
package main
