package profile

import (
	"fmt"
	"strings"
)

type Task struct {
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
}

// Phase is one prioritised block of an action plan.
type Phase struct {
	Priority string `mapstructure:"priority"`
	Duration string `mapstructure:"duration"`
	Tasks    []Task `mapstructure:"tasks"`
}

// ActionPlan comes in two shapes: a list of phases from the profile flow, or
// immediate/short-term/long-term buckets from the resume analysis flow.
type ActionPlan struct {
	Phases    []Phase
	Immediate []string
	ShortTerm []string
	LongTerm  []string
}

func (a ActionPlan) IsEmpty() bool {
	return len(a.Phases) == 0 && len(a.Immediate) == 0 && len(a.ShortTerm) == 0 && len(a.LongTerm) == 0
}

type Recommendations struct {
	Strengths  []string
	Gaps       []string
	Classes    []string
	Companies  []string
	Skills     []string
	ActionPlan ActionPlan
}

func (r Recommendations) IsEmpty() bool {
	return len(r.Strengths) == 0 &&
		len(r.Gaps) == 0 &&
		len(r.Classes) == 0 &&
		len(r.Companies) == 0 &&
		len(r.Skills) == 0 &&
		r.ActionPlan.IsEmpty()
}

// DecodeRecommendations converts a recommendations document into its typed form.
func DecodeRecommendations(raw map[string]any) (Recommendations, error) {
	var r Recommendations
	if len(raw) == 0 {
		return r, nil
	}

	var flat struct {
		Strengths []string `mapstructure:"strengths"`
		Gaps      []string `mapstructure:"gaps"`
		Classes   []string `mapstructure:"classes"`
		Companies []string `mapstructure:"companies"`
		Skills    []string `mapstructure:"skills"`
	}
	if err := decode(pick(raw, "strengths", "gaps", "classes", "companies", "skills"), &flat); err != nil {
		return r, fmt.Errorf("decode recommendations: %w", err)
	}

	r.Strengths = compact(flat.Strengths)
	r.Gaps = compact(flat.Gaps)
	r.Classes = compact(flat.Classes)
	r.Companies = compact(flat.Companies)
	r.Skills = compact(flat.Skills)

	plan, err := decodeActionPlan(raw["actionPlan"])
	if err != nil {
		return r, fmt.Errorf("decode action plan: %w", err)
	}
	r.ActionPlan = plan

	return r, nil
}

func decodeActionPlan(v any) (ActionPlan, error) {
	var plan ActionPlan

	switch typed := v.(type) {
	case nil:
		return plan, nil
	case []any:
		if err := decode(typed, &plan.Phases); err != nil {
			return plan, err
		}
	case map[string]any:
		plan.Immediate = actions(typed["immediate"])
		plan.ShortTerm = actions(typed["shortTerm"])
		plan.LongTerm = actions(typed["longTerm"])
	default:
		return plan, fmt.Errorf("unsupported action plan type %T", v)
	}

	return plan, nil
}

// actions flattens bucket entries that are either plain strings or objects
// with an "action" key.
func actions(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if s, ok := v.(string); ok {
			items = []any{s}
		}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		switch typed := item.(type) {
		case string:
			out = append(out, typed)
		case map[string]any:
			if action, ok := typed["action"].(string); ok {
				out = append(out, action)
			}
		}
	}
	return compact(out)
}

func pick(raw map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		out[key] = v
	}
	return out
}
