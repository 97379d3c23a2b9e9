package synth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ProblemDefinition is the learn-args view the engine consumes. Keys the
// orchestrator does not interpret are carried through Extra.
type ProblemDefinition struct {
	Target             string
	TimeAim            *float64
	TimeseriesSettings map[string]any
	IgnoreFeatures     []string
	Extra              map[string]any
}

func ProblemDefinitionFromMap(m map[string]any) (ProblemDefinition, error) {
	pd := ProblemDefinition{Extra: map[string]any{}}
	for k, v := range m {
		switch k {
		case "target":
			s, ok := v.(string)
			if !ok {
				return pd, fmt.Errorf("problem definition: target must be a string, got %T", v)
			}
			pd.Target = s
		case "time_aim":
			if v == nil {
				continue
			}
			f, err := toFloat(v)
			if err != nil {
				return pd, fmt.Errorf("problem definition: time_aim: %w", err)
			}
			pd.TimeAim = &f
		case "timeseries_settings":
			if v == nil {
				continue
			}
			ts, ok := v.(map[string]any)
			if !ok {
				return pd, fmt.Errorf("problem definition: timeseries_settings must be an object, got %T", v)
			}
			pd.TimeseriesSettings = ts
		case "ignore_features":
			list, ok := v.([]any)
			if !ok {
				if ss, ok2 := v.([]string); ok2 {
					pd.IgnoreFeatures = append(pd.IgnoreFeatures, ss...)
					continue
				}
				return pd, fmt.Errorf("problem definition: ignore_features must be a list, got %T", v)
			}
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return pd, fmt.Errorf("problem definition: ignore_features entries must be strings")
				}
				pd.IgnoreFeatures = append(pd.IgnoreFeatures, s)
			}
		default:
			pd.Extra[k] = v
		}
	}
	if strings.TrimSpace(pd.Target) == "" {
		return pd, fmt.Errorf("problem definition: target is required")
	}
	return pd, nil
}

func (pd ProblemDefinition) Map() map[string]any {
	out := make(map[string]any, len(pd.Extra)+4)
	for k, v := range pd.Extra {
		out[k] = v
	}
	out["target"] = pd.Target
	if pd.TimeAim != nil {
		out["time_aim"] = *pd.TimeAim
	}
	if pd.TimeseriesSettings != nil {
		out["timeseries_settings"] = pd.TimeseriesSettings
	}
	if len(pd.IgnoreFeatures) > 0 {
		out["ignore_features"] = append([]string(nil), pd.IgnoreFeatures...)
	}
	return out
}

func (pd ProblemDefinition) Ignores(col string) bool {
	for _, c := range pd.IgnoreFeatures {
		if c == col {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
