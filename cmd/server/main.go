package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/it35lab/campusfeed/app_config"
	"github.com/it35lab/campusfeed/auth"
	"github.com/it35lab/campusfeed/eventbus"
	"github.com/it35lab/campusfeed/file_store"
	"github.com/it35lab/campusfeed/notification"
	"github.com/it35lab/campusfeed/reporter"
	"github.com/it35lab/campusfeed/server"
	"github.com/it35lab/campusfeed/server/middlewares"
	"github.com/it35lab/campusfeed/store"
	. "github.com/it35lab/campusfeed/utils"
	"github.com/it35lab/campusfeed/utils/dotenv"
	. "github.com/it35lab/campusfeed/utils/flag"
	. "github.com/it35lab/campusfeed/utils/log"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
)

const (
	sweepInterval = time.Minute
	// The memory backend serves uploaded objects from here.
	localObjectRoute = "/objects"
	localAddr        = "http://localhost:8080"
)

var engine *eventbus.Engine

func cleanup() {
	if engine != nil {
		engine.Shutdown()
	}
	CloseProfiler()
	CloseTracer()
	Log.Info("api server shutdown")
}

func main() {
	flag.Parse()
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
	// Rebuild the logger so the service field follows -service.
	InitLogger()
	defer cleanup()

	if !*ByPassTracing {
		StartTracer()
		StartProfiler()
	}

	if *ServiceName == Migrator {
		db, err := GetDBConnection()
		if err != nil {
			Log.Fatalln("cannot connect to DB", err)
		}
		DatabaseSetupAndMigration(db)
		Log.Info("database migrated")
		return
	}

	config := app_config.ParseServerAppConfig(*AppConfigPath)
	ctx := context.Background()

	router := gin.New()
	router.Use(middlewares.AccessLogger(gin.DefaultWriter), gin.Recovery())
	router.Use(cors.New(server.CorsConfig()))
	router.Use(gintrace.Middleware(*ServiceName))

	var deps server.Deps
	switch *Backend {
	case BackendMemory:
		deps = memoryDeps(router, config)
	case BackendCloud:
		deps = cloudDeps(ctx, config)
	default:
		Log.Fatalf("unknown backend %q", *Backend)
	}
	deps.Bus = eventbus.New()
	deps.Signals = notification.NewSignalChannels()
	deps.Config = config

	registry := server.NewRegistry(deps)
	defer registry.Close()

	statsd, err := reporter.NewStatsdClient()
	if err != nil {
		panic(err)
	}
	engine = eventbus.NewEngine(
		// Reporter counts feed activity in datadog.
		reporter.NewReporter(reporter.ReporterConfig{Name: "reporter"}, statsd, deps.Bus),
		// Sweeper drops clients that stopped calling.
		&server.RegistrySweeper{Registry: registry, Interval: sweepInterval},
	)
	engine.Start(ctx)

	server.New(registry, deps.Signals, config).AddRoutes(router)

	Log.Infof("api server starts up with %s backend", *Backend)
	router.Run(":8080")
}

// cloudDeps wires Postgres, Redis, Cognito and S3 from env.
func cloudDeps(ctx context.Context, config app_config.ServerAppConfig) server.Deps {
	db, err := GetDBConnection()
	if err != nil {
		Log.Fatalln("cannot connect to DB", err)
	}
	status, err := GetRedisStatusStore(ctx)
	if err != nil {
		Log.Fatalln("cannot connect to redis", err)
	}
	provider, err := auth.NewCognitoProvider(ctx, os.Getenv("COGNITO_CLIENT_ID"))
	if err != nil {
		Log.Fatalln("cannot create cognito provider", err)
	}
	objects, err := file_store.NewS3ObjectStore(os.Getenv("AWS_REGION"), config.PUBLIC_URL_PREFIX)
	if err != nil {
		Log.Fatalln("cannot create s3 object store", err)
	}
	return server.Deps{
		Provider: provider,
		Sessions: auth.NewRedisSessionStore(GetRedisClient(), auth.DefaultSessionTTL),
		Store:    store.New(db),
		Objects:  objects,
		Status:   status,
	}
}

// memoryDeps keeps everything in process, for local development.
func memoryDeps(router *gin.Engine, config app_config.ServerAppConfig) server.Deps {
	prefix := config.PUBLIC_URL_PREFIX
	if prefix == "" {
		prefix = localAddr + localObjectRoute
	}
	objects, err := file_store.NewLocalObjectStore("campusfeed", prefix)
	if err != nil {
		Log.Fatalln("cannot create local object store", err)
	}
	router.Static(localObjectRoute, objects.Root())

	return server.Deps{
		Provider: auth.NewMemoryProvider(),
		Sessions: auth.NewMemorySessionStore(),
		Store:    store.NewMemoryStore(),
		Objects:  objects,
		Status:   NewMemoryStatusStore(),
	}
}
