package classifier

import (
	"context"

	"github.com/nvr-ai/go-waste/detection"
	"github.com/nvr-ai/go-waste/images"
	"github.com/nvr-ai/go-waste/labels"
	"github.com/nvr-ai/go-waste/profiler"
	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
)

// Route is where a stage's top label leads: a terminal category, or the next stage.
type Route struct {
	Category waste.Category
	Next     *Stage
}

// Stage is one model call of a cascade.
type Stage struct {
	Name      string
	Model     string
	Threshold float32
	// Routes are keyed by normalized label and take precedence over Mapper.
	Routes map[string]Route
	// Mapper resolves labels not in Routes to terminal categories. Only explicit entries count.
	Mapper *labels.Mapper
	// Fallback is taken by labels nothing else resolves. Nil makes them ErrUnmappableLabel.
	Fallback *Route
}

// route resolves a label with the precedence Routes, Mapper, Fallback.
func (s *Stage) route(label string) (Route, error) {
	if r, ok := s.Routes[labels.Normalize(label)]; ok {
		return r, nil
	}
	if s.Mapper != nil {
		if c, ok := s.Mapper.Lookup(label); ok {
			return Route{Category: c}, nil
		}
	}
	if s.Fallback != nil {
		return *s.Fallback, nil
	}
	return Route{}, errors.Wrapf(ErrUnmappableLabel, "stage %s: label %q", s.Name, label)
}

// sourceOnly leaves categories unset; stage labels are routed, not mapped.
type sourceOnly struct{}

func (sourceOnly) Map(string) waste.Category { return "" }

// Cascade runs stages in sequence, each stage's top label choosing the next one.
type Cascade struct {
	Models   Models
	Entry    *Stage
	Profiler *profiler.RuntimeProfiler
}

// Decide walks the stage tree from the entry stage.
//
// The result confidence is that of the last stage that ran. A stage with no candidate above its
// threshold ends the walk with no detection.
func (c *Cascade) Decide(ctx context.Context, img *images.Image) (Decision, error) {
	var trace []StageResult

	stage := c.Entry
	for depth := 0; stage != nil; depth++ {
		if depth > maxCascadeDepth {
			return Decision{Stages: trace}, errors.Errorf("cascade exceeded %d stages", maxCascadeDepth)
		}

		done := c.Profiler.StartOperation("stage." + stage.Name)
		raw, err := infer(ctx, c.Models, stage.Model, img, c.Profiler)
		done()
		if err != nil {
			return Decision{Stages: trace}, errors.Wrapf(err, "stage %s", stage.Name)
		}

		top, ok := detection.Top(detection.Normalize(raw, stage.Threshold, sourceOnly{}))
		if !ok {
			return Decision{Detections: []detection.Detection{}, Stages: trace}, nil
		}
		trace = append(trace, StageResult{Stage: stage.Name, Label: top.SourceLabel, Confidence: top.Confidence})

		route, err := stage.route(top.SourceLabel)
		if err != nil {
			return Decision{Stages: trace}, err
		}
		if route.Next != nil {
			stage = route.Next
			continue
		}

		top.Category = route.Category
		return Decision{Top: &top, Detections: []detection.Detection{top}, Stages: trace}, nil
	}

	return Decision{Stages: trace}, errors.New("cascade has no entry stage")
}

// maxCascadeDepth bounds a walk. Built cascades are acyclic; hand-assembled ones may not be.
const maxCascadeDepth = 16

// RouteConfig targets either a category or a stage.
type RouteConfig struct {
	Category string `mapstructure:"category" yaml:"category,omitempty" json:"category,omitempty"`
	Stage    string `mapstructure:"stage" yaml:"stage,omitempty" json:"stage,omitempty"`
}

// StageConfig declares one stage.
type StageConfig struct {
	Name      string                 `mapstructure:"name" yaml:"name" json:"name"`
	Model     string                 `mapstructure:"model" yaml:"model" json:"model"`
	Threshold float32                `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	Routes    map[string]RouteConfig `mapstructure:"routes" yaml:"routes,omitempty" json:"routes,omitempty"`
	Table     string                 `mapstructure:"table" yaml:"table,omitempty" json:"table,omitempty"`
	Labels    labels.Table           `mapstructure:"labels" yaml:"labels,omitempty" json:"labels,omitempty"`
	Fallback  *RouteConfig           `mapstructure:"fallback" yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// CascadeConfig declares the stage tree.
type CascadeConfig struct {
	Entry  string        `mapstructure:"entry" yaml:"entry" json:"entry"`
	Stages []StageConfig `mapstructure:"stages" yaml:"stages" json:"stages"`
}

// DefaultCascade is the three-network ensemble: a general split refined by e-waste and organic
// sub-classifiers.
func DefaultCascade() CascadeConfig {
	return CascadeConfig{
		Entry: "general",
		Stages: []StageConfig{
			{
				Name:  "general",
				Model: "general",
				Routes: map[string]RouteConfig{
					"e-waste":     {Stage: "ewaste"},
					"organic":     {Stage: "organic"},
					"non-organic": {Category: string(waste.NonOrganic)},
				},
			},
			{Name: "ewaste", Model: "ewaste", Table: labels.TableEWaste},
			{Name: "organic", Model: "organic", Table: labels.TableOrganic},
		},
	}
}

// BuildCascade resolves a cascade declaration into a validated, acyclic stage tree.
//
// Arguments:
//   - cfg: The declaration.
//   - taxonomy: Route and table targets must resolve in it. "fallback" names its fallback.
//
// Returns:
//   - *Stage: The entry stage.
//   - error: On unknown stages, unresolvable targets, routes with zero or two targets, or cycles.
func BuildCascade(cfg CascadeConfig, taxonomy *waste.Taxonomy) (*Stage, error) {
	if len(cfg.Stages) == 0 {
		return nil, errors.New("cascade: no stages configured")
	}

	decls := make(map[string]StageConfig, len(cfg.Stages))
	stages := make(map[string]*Stage, len(cfg.Stages))
	for _, sc := range cfg.Stages {
		if sc.Name == "" {
			return nil, errors.New("cascade: stage without a name")
		}
		if _, dup := decls[sc.Name]; dup {
			return nil, errors.Errorf("cascade: duplicate stage %q", sc.Name)
		}
		if sc.Model == "" {
			return nil, errors.Errorf("cascade: stage %q has no model", sc.Name)
		}
		if sc.Threshold < 0 || sc.Threshold >= 1 {
			return nil, errors.Errorf("cascade: stage %q threshold %v outside [0, 1)", sc.Name, sc.Threshold)
		}
		decls[sc.Name] = sc
		stages[sc.Name] = &Stage{Name: sc.Name, Model: sc.Model, Threshold: sc.Threshold}
	}

	resolve := func(stage string, rc RouteConfig) (Route, error) {
		switch {
		case rc.Category != "" && rc.Stage != "":
			return Route{}, errors.Errorf("cascade: stage %q: route names both category %q and stage %q", stage, rc.Category, rc.Stage)
		case rc.Stage != "":
			next, ok := stages[rc.Stage]
			if !ok {
				return Route{}, errors.Errorf("cascade: stage %q routes to undefined stage %q", stage, rc.Stage)
			}
			return Route{Next: next}, nil
		case labels.Normalize(rc.Category) == labels.FallbackTarget:
			return Route{Category: taxonomy.Fallback()}, nil
		case rc.Category != "":
			c, err := taxonomy.Lookup(rc.Category)
			if err != nil {
				return Route{}, errors.Wrapf(err, "cascade: stage %q", stage)
			}
			return Route{Category: c}, nil
		default:
			return Route{}, errors.Errorf("cascade: stage %q has a route without a target", stage)
		}
	}

	for name, sc := range decls {
		s := stages[name]

		s.Routes = make(map[string]Route, len(sc.Routes))
		for label, rc := range sc.Routes {
			r, err := resolve(name, rc)
			if err != nil {
				return nil, err
			}
			s.Routes[labels.Normalize(label)] = r
		}

		if sc.Table != "" || len(sc.Labels) > 0 {
			m, err := labels.Load(taxonomy, sc.Table, sc.Labels)
			if err != nil {
				return nil, errors.Wrapf(err, "cascade: stage %q", name)
			}
			s.Mapper = m
		}

		if sc.Fallback != nil {
			r, err := resolve(name, *sc.Fallback)
			if err != nil {
				return nil, err
			}
			s.Fallback = &r
		}

		if len(s.Routes) == 0 && s.Mapper == nil && s.Fallback == nil {
			return nil, errors.Errorf("cascade: stage %q has no routes, table or fallback", name)
		}
	}

	entry, ok := stages[cfg.Entry]
	if !ok {
		return nil, errors.Errorf("cascade: entry stage %q is not defined", cfg.Entry)
	}
	if err := checkAcyclic(entry, map[*Stage]bool{}); err != nil {
		return nil, err
	}
	return entry, nil
}

func checkAcyclic(s *Stage, visiting map[*Stage]bool) error {
	if visiting[s] {
		return errors.Errorf("cascade: cycle through stage %q", s.Name)
	}
	visiting[s] = true
	defer delete(visiting, s)

	next := make([]*Stage, 0, len(s.Routes)+1)
	for _, r := range s.Routes {
		if r.Next != nil {
			next = append(next, r.Next)
		}
	}
	if s.Fallback != nil && s.Fallback.Next != nil {
		next = append(next, s.Fallback.Next)
	}
	for _, n := range next {
		if err := checkAcyclic(n, visiting); err != nil {
			return err
		}
	}
	return nil
}
