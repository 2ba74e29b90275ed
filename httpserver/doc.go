/*
Package httpserver runs the storage router's HTTP listener.

A Server wraps any number of API handlers (see api/storagehandler) behind the
request logging middleware and adds the operational endpoints:

	GET /livez    always 200 while the process serves requests
	GET /readyz   200 until the server is drained, 503 afterwards
	GET /drain    mark the server not ready
	GET /undrain  mark the server ready again
	/debug/*      pprof, when EnablePprof is set

Prometheus metrics are served by a second listener on MetricsAddr.
Shutdown drains first so load balancers stop routing before in-flight
requests are given GracefulShutdownDuration to finish.
*/
package httpserver
