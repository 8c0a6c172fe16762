package voting

import (
	"time"

	"github.com/snowdag/snowdag/util/lines"
	"github.com/spf13/viper"
)

// Parameters of the repeated-sampling protocol. They trade safety margin
// against finalization latency:
//
//	K            : how many peers are sampled per round
//	Alpha        : fraction of responding peers required to call the round "preferred"
//	Beta         : consecutive preferred rounds required for finality
//	MinResponses : a round with fewer responses is a quorum failure, not a vote
type Parameters struct {
	K                int
	Alpha            float64
	Beta             int
	MinResponses     int
	RoundTimeout     time.Duration
	MaxQuorumRetries int
	MaxRounds        int
	MaxParallelPolls int
}

const (
	DefaultK                = 20
	DefaultAlpha            = 0.67
	DefaultBeta             = 15
	DefaultMinResponses     = 8
	DefaultRoundTimeout     = 500 * time.Millisecond
	DefaultMaxQuorumRetries = 10
	DefaultMaxRounds        = 1000
	DefaultMaxParallelPolls = 50
)

func DefaultParameters() Parameters {
	return Parameters{
		K:                DefaultK,
		Alpha:            DefaultAlpha,
		Beta:             DefaultBeta,
		MinResponses:     DefaultMinResponses,
		RoundTimeout:     DefaultRoundTimeout,
		MaxQuorumRetries: DefaultMaxQuorumRetries,
		MaxRounds:        DefaultMaxRounds,
		MaxParallelPolls: DefaultMaxParallelPolls,
	}
}

// FastFinalityParameters lowers thresholds for sub-second finality at a
// reduced safety margin
func FastFinalityParameters() Parameters {
	ret := DefaultParameters()
	ret.K = 15
	ret.Alpha = 0.6
	ret.Beta = 8
	ret.MinResponses = 6
	ret.RoundTimeout = 100 * time.Millisecond
	return ret
}

// HighSecurityParameters raises thresholds for a larger adversarial margin,
// slower finality
func HighSecurityParameters() Parameters {
	ret := DefaultParameters()
	ret.K = 30
	ret.Alpha = 0.75
	ret.Beta = 25
	ret.MinResponses = 15
	ret.RoundTimeout = time.Second
	return ret
}

// ParametersFromConfig reads the 'consensus' sub-tree of the config profile.
// Missing keys keep the defaults
func ParametersFromConfig() Parameters {
	ret := DefaultParameters()
	sub := viper.Sub("consensus")
	if sub == nil {
		return ret
	}
	switch sub.GetString("preset") {
	case "fast":
		ret = FastFinalityParameters()
	case "high_security":
		ret = HighSecurityParameters()
	}
	if v := sub.GetInt("sample_size"); v > 0 {
		ret.K = v
	}
	if v := sub.GetFloat64("alpha"); v > 0 {
		ret.Alpha = v
	}
	if v := sub.GetInt("beta"); v > 0 {
		ret.Beta = v
	}
	if v := sub.GetInt("min_responses"); v > 0 {
		ret.MinResponses = v
	}
	if v := sub.GetDuration("round_timeout"); v > 0 {
		ret.RoundTimeout = v
	}
	if v := sub.GetInt("max_quorum_retries"); v > 0 {
		ret.MaxQuorumRetries = v
	}
	if v := sub.GetInt("max_rounds"); v > 0 {
		ret.MaxRounds = v
	}
	if v := sub.GetInt("max_parallel_polls"); v > 0 {
		ret.MaxParallelPolls = v
	}
	return ret
}

func (p Parameters) Lines(prefix ...string) *lines.Lines {
	ret := lines.New(prefix...)
	ret.Add("sample size (k): %d", p.K).
		Add("quorum threshold (alpha): %.2f", p.Alpha).
		Add("finality threshold (beta): %d", p.Beta).
		Add("min responses: %d", p.MinResponses).
		Add("round timeout: %v", p.RoundTimeout)
	return ret
}
