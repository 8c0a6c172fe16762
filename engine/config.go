package engine

import (
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type (
	ConfigParams struct {
		doNotStartPruner bool
		prunerRetention  time.Duration
		prunerPeriod     time.Duration
		checkpointDir    string
	}

	ConfigOption func(c *ConfigParams)
)

func defaultConfigParams() ConfigParams {
	return ConfigParams{}
}

// OptionDoNotStartPruner used for testing, to disable the background pruner.
// Config key: 'engine.do_not_start_pruner: true'
func OptionDoNotStartPruner(c *ConfigParams) {
	c.doNotStartPruner = true
}

// OptionPrunerTiming overrides payload retention window and pruning period.
// Config keys: 'engine.pruner.retention', 'engine.pruner.period'
func OptionPrunerTiming(retention, period time.Duration) ConfigOption {
	return func(c *ConfigParams) {
		c.prunerRetention = retention
		c.prunerPeriod = period
	}
}

// OptionCheckpointDir makes checkpoints persistent on disk instead of the
// default in-memory store. Config key: 'engine.checkpoint_dir'
func OptionCheckpointDir(dir string) ConfigOption {
	return func(c *ConfigParams) {
		c.checkpointDir = dir
	}
}

// OptionFromConfig reads the 'engine' sub-tree of the config profile
func OptionFromConfig(c *ConfigParams) {
	sub := viper.Sub("engine")
	if sub == nil {
		return
	}
	c.doNotStartPruner = sub.GetBool("do_not_start_pruner")
	if v := sub.GetDuration("pruner.retention"); v > 0 {
		c.prunerRetention = v
	}
	if v := sub.GetDuration("pruner.period"); v > 0 {
		c.prunerPeriod = v
	}
	if v := sub.GetString("checkpoint_dir"); v != "" {
		c.checkpointDir = v
	}
}

func (cfg *ConfigParams) log(log *zap.SugaredLogger) {
	if cfg.doNotStartPruner {
		log.Info("[engine config] do not start pruner")
	}
	if cfg.checkpointDir != "" {
		log.Infof("[engine config] checkpoints persisted at '%s'", cfg.checkpointDir)
	}
}
