package taxonomy

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// StepName identifies a wizard step.
type StepName string

const (
	StepVehicleType StepName = "vehicleType"
	StepMake        StepName = "make"
	StepModel       StepName = "model"
	StepGeneration  StepName = "generation"
	StepTrim        StepName = "trim"
	StepEngine      StepName = "engine"
	StepFuel        StepName = "fuel"
	StepDerivative  StepName = "derivative"
	StepYear        StepName = "year"
	StepMileage     StepName = "mileage"
	StepValuation   StepName = "valuation"
)

// Selections is everything the user has picked so far. Empty fields are unanswered.
type Selections struct {
	VehicleType string `json:"vehicleType"`
	Make        string `json:"make"`
	Model       string `json:"model"`
	Generation  string `json:"generation"`
	Trim        string `json:"trim"`
	Engine      string `json:"engine"`
	Fuel        string `json:"fuel"`
	Derivative  string `json:"derivative"`
	Year        int    `json:"year"`
	Mileage     *int   `json:"mileage" validate:"omitempty,min=0,max=1000000"`
}

// Step is the next question to ask, or the final valuation.
type Step struct {
	Name        StepName     `json:"step"`
	Options     []Option     `json:"options,omitempty"`
	Years       []YearOption `json:"years,omitempty"`
	Derivatives int          `json:"derivativesRemaining,omitempty"`
	Valuation   *Valuation   `json:"valuation,omitempty"`
}

// Wizard walks the taxonomy one dependent call at a time.
type Wizard struct {
	catalog Catalog
}

// NewWizard builds a Wizard over catalog.
func NewWizard(catalog Catalog) *Wizard {
	return &Wizard{catalog: catalog}
}

// Resolve returns the first unanswered step given sel.
func (w *Wizard) Resolve(ctx context.Context, sel Selections) (Step, error) {
	switch {
	case sel.VehicleType == "":
		opts, err := w.catalog.VehicleTypes(ctx)
		return optionStep(StepVehicleType, opts, err)
	case sel.Make == "":
		opts, err := w.catalog.Makes(ctx, sel.VehicleType)
		return optionStep(StepMake, opts, err)
	case sel.Model == "":
		opts, err := w.catalog.Models(ctx, sel.Make)
		return optionStep(StepModel, opts, err)
	case sel.Generation == "":
		opts, err := w.catalog.Generations(ctx, sel.Model)
		return optionStep(StepGeneration, opts, err)
	case sel.Derivative == "":
		return w.narrow(ctx, sel)
	case sel.Year == 0:
		years, err := w.catalog.Years(ctx, sel.Derivative)
		if err != nil {
			return Step{}, err
		}
		return Step{Name: StepYear, Years: years}, nil
	case sel.Mileage == nil:
		return Step{Name: StepMileage}, nil
	}
	if *sel.Mileage < 0 {
		return Step{}, fmt.Errorf("%w: mileage must not be negative", ErrInvalidSelection)
	}
	v, err := w.catalog.Value(ctx, ValuationRequest{DerivativeID: sel.Derivative, Year: sel.Year, Mileage: *sel.Mileage})
	if err != nil {
		return Step{}, err
	}
	return Step{Name: StepValuation, Valuation: &v}, nil
}

type facet struct {
	step     StepName
	selected func(Selections) string
	value    func(Derivative) string
}

var facets = []facet{
	{StepTrim, func(s Selections) string { return s.Trim }, func(d Derivative) string { return d.Trim }},
	{StepEngine, func(s Selections) string { return s.Engine }, func(d Derivative) string { return d.Engine }},
	{StepFuel, func(s Selections) string { return s.Fuel }, func(d Derivative) string { return d.FuelType }},
}

// narrow applies the answered facets and, while too many derivatives remain,
// asks the next facet that actually splits the list.
func (w *Wizard) narrow(ctx context.Context, sel Selections) (Step, error) {
	all, err := w.catalog.Derivatives(ctx, sel.Generation)
	if err != nil {
		return Step{}, err
	}
	remaining := all
	for _, f := range facets {
		want := f.selected(sel)
		if want == "" {
			continue
		}
		remaining = filterDerivatives(remaining, func(d Derivative) bool {
			return strings.EqualFold(f.value(d), want)
		})
		if len(remaining) == 0 {
			return Step{}, fmt.Errorf("%w: no derivatives match %s %q", ErrInvalidSelection, f.step, want)
		}
	}

	if len(remaining) > MaxDerivativesBeforeFacets {
		for _, f := range facets {
			if f.selected(sel) != "" {
				continue
			}
			values := distinct(remaining, f.value)
			if len(values) < 2 {
				continue
			}
			opts := make([]Option, len(values))
			for i, v := range values {
				opts[i] = Option{ID: v, Name: v}
			}
			return Step{Name: f.step, Options: opts, Derivatives: len(remaining)}, nil
		}
	}

	opts := make([]Option, len(remaining))
	for i, d := range remaining {
		opts[i] = Option{ID: d.ID, Name: d.Name}
	}
	return Step{Name: StepDerivative, Options: opts, Derivatives: len(remaining)}, nil
}

func optionStep(name StepName, opts []Option, err error) (Step, error) {
	if err != nil {
		return Step{}, err
	}
	return Step{Name: name, Options: opts}, nil
}

func filterDerivatives(in []Derivative, keep func(Derivative) bool) []Derivative {
	out := make([]Derivative, 0, len(in))
	for _, d := range in {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func distinct(in []Derivative, value func(Derivative) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, d := range in {
		v := strings.TrimSpace(value(d))
		if v == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(v)]; ok {
			continue
		}
		seen[strings.ToLower(v)] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
