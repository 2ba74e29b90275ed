// Package main (cmd/storage-admin) is the operator client of the storage admin API.
//
// Commands:
//
//	pools     - list pools with per-provider health
//	health    - re-run provider health checks
//	put       - upload a file through a pool
//	delete    - delete a key from every provider of a pool
//	presign   - request direct upload instructions
//	url       - resolve a public or signed URL
//	validate  - check a pool file locally and print it normalized
//	register  - replace the server's pool table with the pools of a file
package main
