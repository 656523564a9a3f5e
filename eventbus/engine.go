package eventbus

import (
	"context"
	"sync"
	"time"

	Logger "github.com/it35lab/campusfeed/utils/log"
)

const (
	GracefulRetryDelay = 3 * time.Second
)

type Module interface {
	// RunModule contains the customized logic of the module. It takes in a
	// context object by which its lifecycle is managed. Return error if
	// encountered any error during execution.
	RunModule(ctx context.Context) error

	// Return name of the Module. Uniquely identifies the module instance.
	Name() string
}

// RunModuleWithGracefulRestart runs module until it returns nil or ctx is
// done, restarting it after GracefulRetryDelay on error.
func RunModuleWithGracefulRestart(ctx context.Context, module Module, retryDelay time.Duration) {
	for {
		err := module.RunModule(ctx)
		if err == nil {
			return
		}
		Logger.Log.Errorf(
			"module %s exited with error %v, retry in %s",
			module.Name(),
			err,
			retryDelay)

		// Wait for a small amount of time and restart.
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

// Engine manages the execution lifecycle of background modules consuming the
// bus.
type Engine struct {
	// Module's lifetime is bound to Engine's lifetime. Each Module will be ran
	// in a separate routine.
	Modules []Module

	RetryDelay time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(modules ...Module) *Engine {
	return &Engine{Modules: modules, RetryDelay: GracefulRetryDelay}
}

// Start runs every module in its own goroutine and returns immediately.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	for idx := range e.Modules {
		e.wg.Add(1)
		go func(m Module) {
			defer e.wg.Done()
			Logger.Log.Infof("start engine module %s", m.Name())
			RunModuleWithGracefulRestart(ctx, m, e.RetryDelay)
			Logger.Log.Infof("module %s finished execution", m.Name())
		}(e.Modules[idx])
	}
}

// Shutdown cancels all modules and blocks until they return.
func (e *Engine) Shutdown() {
	Logger.Log.Infoln("starting graceful shutdown of engine modules")
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}
