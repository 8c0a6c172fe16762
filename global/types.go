package global

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type (
	Logging interface {
		Log() *zap.SugaredLogger
		Tracef(tag string, format string, args ...any)
	}

	StartStop interface {
		Ctx() context.Context
		Stop()
		MarkWorkProcessStarted(name string)
		MarkWorkProcessStopped(name string)
		RepeatInBackground(name string, period time.Duration, fun func() bool, skipFirst ...bool)
	}

	Metrics interface {
		MetricsRegistry() *prometheus.Registry
	}

	// NodeGlobal is the environment shared by all engine components
	NodeGlobal interface {
		Logging
		StartStop
		Metrics
	}
)
