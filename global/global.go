package global

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/snowdag/snowdag/util"
	"github.com/snowdag/snowdag/util/set"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Global struct {
	*zap.SugaredLogger
	ctx             context.Context
	stopFun         context.CancelFunc
	wg              sync.WaitGroup
	logStopOnce     *sync.Once
	enabledTrace    atomic.Bool
	traceTagsMutex  sync.RWMutex
	traceTags       set.Set[string]
	metricsRegistry *prometheus.Registry
	componentsMutex sync.RWMutex
	components      set.Set[string]
}

var _ NodeGlobal = &Global{}

func New(logLevel ...zapcore.Level) *Global {
	lvl := zapcore.InfoLevel
	if len(logLevel) > 0 {
		lvl = logLevel[0]
	}
	ctx, stopFun := context.WithCancel(context.Background())
	return &Global{
		ctx:             ctx,
		stopFun:         stopFun,
		SugaredLogger:   NewLogger("", lvl, nil, ""),
		logStopOnce:     &sync.Once{},
		traceTags:       set.New[string](),
		metricsRegistry: prometheus.NewRegistry(),
		components:      set.New[string](),
	}
}

func (l *Global) Log() *zap.SugaredLogger {
	return l.SugaredLogger
}

func (l *Global) Ctx() context.Context {
	return l.ctx
}

func (l *Global) Stop() {
	l.Log().Info("global STOP invoked..")
	l.stopFun()
}

func (l *Global) Wait() {
	l.wg.Wait()
	l.logStopOnce.Do(func() {
		l.Log().Info("all components stopped")
	})
}

func (l *Global) MetricsRegistry() *prometheus.Registry {
	return l.metricsRegistry
}

func (l *Global) MarkWorkProcessStarted(name string) {
	l.componentsMutex.Lock()
	defer l.componentsMutex.Unlock()

	util.Assertf(!l.components.Contains(name), "duplicate component name '%s'", name)
	l.components.Insert(name)
	l.wg.Add(1)
}

func (l *Global) MarkWorkProcessStopped(name string) {
	l.componentsMutex.Lock()
	defer l.componentsMutex.Unlock()

	util.Assertf(l.components.Contains(name), "unknown component name '%s'", name)
	l.components.Remove(name)
	l.wg.Done()
}

// RepeatInBackground repeats closure until it returns false or global context is closed
func (l *Global) RepeatInBackground(name string, period time.Duration, fun func() bool, skipFirst ...bool) {
	l.MarkWorkProcessStarted(name)
	go func() {
		defer l.MarkWorkProcessStopped(name)

		if len(skipFirst) == 0 || !skipFirst[0] {
			if !fun() {
				return
			}
		}
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-l.ctx.Done():
				return
			case <-ticker.C:
				if !fun() {
					return
				}
			}
		}
	}()
}

func (l *Global) EnableTrace(enable bool) {
	l.enabledTrace.Store(enable)
}

func (l *Global) EnableTraceTags(tags ...string) {
	l.traceTagsMutex.Lock()
	for _, t := range tags {
		for _, t1 := range strings.Split(t, ",") {
			l.traceTags.Insert(strings.TrimSpace(t1))
		}
		l.enabledTrace.Store(true)
	}
	l.traceTagsMutex.Unlock()
	for _, tag := range tags {
		l.Tracef(tag, "trace tag enabled")
	}
}

func (l *Global) Tracef(tag string, format string, args ...any) {
	if !l.enabledTrace.Load() {
		return
	}

	l.traceTagsMutex.RLock()
	defer l.traceTagsMutex.RUnlock()

	for _, t := range strings.Split(tag, ",") {
		if l.traceTags.Contains(t) {
			l.SugaredLogger.Infof("TRACE(%s) %s", t, fmt.Sprintf(format, util.EvalLazyArgs(args...)...))
			return
		}
	}
}
