package technology

import (
	"fmt"

	"github.com/h2integrate/h2integrate/pkg/component"
)

const (
	SizeNormal         = "normal"
	SizeByMaxFeedstock = "resize_by_max_feedstock"
	SizeByMaxCommodity = "resize_by_max_commodity"
)

// Sizing is embedded in the configs of performance models that can size
// themselves from an upstream feedstock or a downstream demand.
type Sizing struct {
	SizeMode          string  `yaml:"size_mode"`
	FlowUsedForSizing string  `yaml:"flow_used_for_sizing"`
	MaxFeedstockRatio float64 `yaml:"max_feedstock_ratio"`
	MaxCommodityRatio float64 `yaml:"max_commodity_ratio"`
}

// Validate checks the mode and fills defaults.
func (s *Sizing) Validate() error {
	if s.SizeMode == "" {
		s.SizeMode = SizeNormal
	}
	switch s.SizeMode {
	case SizeNormal:
	case SizeByMaxFeedstock, SizeByMaxCommodity:
		if s.FlowUsedForSizing == "" {
			return fmt.Errorf("flow_used_for_sizing must be set when size_mode is %s or %s", SizeByMaxFeedstock, SizeByMaxCommodity)
		}
	default:
		return fmt.Errorf(
			"sizing mode %q is not a valid sizing mode; options are %s, %s, %s",
			s.SizeMode, SizeNormal, SizeByMaxFeedstock, SizeByMaxCommodity,
		)
	}
	if s.MaxFeedstockRatio == 0 {
		s.MaxFeedstockRatio = 1
	}
	if s.MaxCommodityRatio == 0 {
		s.MaxCommodityRatio = 1
	}
	return nil
}

// Inputs returns the ratio input of the sizing mode, if any.
func (s Sizing) Inputs() []component.Port {
	switch s.SizeMode {
	case SizeByMaxFeedstock:
		return []component.Port{component.Scalar("max_feedstock_ratio", "unitless", s.MaxFeedstockRatio, "")}
	case SizeByMaxCommodity:
		return []component.Port{component.Scalar("max_commodity_ratio", "unitless", s.MaxCommodityRatio, "")}
	}
	return nil
}
