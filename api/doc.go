/*
Package api holds the wire types and server configuration shared by the
storage router's HTTP surface.

The admin API itself lives in the storagehandler subpackage, which exposes the
pool registry to operators:

  - pool introspection (name, visibility, strategy, per-provider health)
  - on-demand health checks
  - object upload, delete, presign and URL resolution through a pool
  - replacing the pool table, for example after editing provider URLs

Every non-2xx response carries an ErrorResponse body. Error classes map to
status codes as follows:

	unknown pool                        404
	invalid pool configuration          400
	payload over the pool size limit    413
	content type rejected by the pool   415
	capability missing in every driver  501
	no URL for the key                  404
	every provider failed               502
*/
package api
