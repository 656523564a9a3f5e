/*
flag Package set up cli flags shared across services

Usage:

	Flags listed in this package are shared across boundaries and service-agnostic
	For service dependent flags please define in their respective package.
	Flags are only registered here, the binary's main function is responsible
	for calling flag.Parse().
*/

package flag

import (
	"flag"
)

const (
	APIServer = "api_server"
	Migrator  = "migrator"

	// Backend kinds selectable by -backend.
	BackendCloud  = "cloud"
	BackendMemory = "memory"
)

var (
	ServiceName   = flag.String("service", APIServer, "'api_server' or 'migrator'")
	Backend       = flag.String("backend", BackendCloud, "'cloud' for postgres/redis/cognito/s3, 'memory' for a self-contained dev server")
	AppConfigPath = flag.String("app_config_path", "cmd/server/config.yaml", "path to campusfeed app config")
	ByPassTracing = flag.Bool("bypass_tracing", true, "skip datadog tracer and profiler")
)
