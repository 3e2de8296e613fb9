package transform

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ajitpratap0/prepdash/pkg/dataset"
	"github.com/ajitpratap0/prepdash/pkg/errors"
	"github.com/ajitpratap0/prepdash/pkg/json"
)

// Params is a flat, named parameter set as received from a form, an HTTP
// body or a recipe file.
type Params map[string]any

// Builder decodes params into a bound step.
type Builder func(p Params, opts Options) (Step, error)

// Options are registry-wide defaults applied while building steps.
type Options struct {
	// Seed is used by split steps that do not set their own.
	Seed uint64
}

// Info describes a registered step for clients that build input forms.
type Info struct {
	Name    string   `json:"name"`
	Params  []string `json:"params"`
	Methods []string `json:"methods,omitempty"`
}

type entry struct {
	build Builder
	info  Info
}

// Registry maps step names to builders.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	opts    Options
}

// NewRegistry returns a registry with the built-in steps registered.
func NewRegistry(opts Options) *Registry {
	if opts.Seed == 0 {
		opts.Seed = DefaultSeed
	}
	r := &Registry{entries: make(map[string]entry), opts: opts}

	r.Register(Info{Name: StepMissing, Params: []string{"column", "method", "value"}, Methods: methodNames(MissingMethods)},
		func(p Params, _ Options) (Step, error) {
			mp := MissingParams{}
			var err error
			if mp.Column, err = p.String("column"); err != nil {
				return nil, err
			}
			method, err := p.String("method")
			if err != nil {
				return nil, err
			}
			mp.Method = MissingMethod(strings.ToLower(method))
			if mp.Value, err = p.Text("value"); err != nil {
				return nil, err
			}
			return NewMissing(mp)
		})

	r.Register(Info{Name: StepConvert, Params: []string{"column", "type"}, Methods: typeNames(ConvertTargets)},
		func(p Params, _ Options) (Step, error) {
			column, err := p.String("column")
			if err != nil {
				return nil, err
			}
			name, err := p.String("type")
			if err != nil {
				return nil, err
			}
			cp := ConvertParams{Column: column}
			if name != "" {
				if cp.Type, err = dataset.ParseType(name); err != nil {
					return nil, err
				}
			}
			return NewConvert(cp)
		})

	r.Register(Info{Name: StepDiscretize, Params: []string{"column", "bins"}},
		func(p Params, _ Options) (Step, error) {
			column, err := p.String("column")
			if err != nil {
				return nil, err
			}
			bins, err := p.Int("bins")
			if err != nil {
				return nil, err
			}
			return NewDiscretize(DiscretizeParams{Column: column, Bins: bins})
		})

	r.Register(Info{Name: StepNormalize, Params: []string{"columns"}},
		func(p Params, _ Options) (Step, error) {
			columns, err := p.Strings("columns")
			if err != nil {
				return nil, err
			}
			return NewNormalize(NormalizeParams{Columns: columns})
		})

	r.Register(Info{Name: StepEncode, Params: []string{"columns", "method"}, Methods: []string{string(EncodeOneHot), string(EncodeLabel)}},
		func(p Params, _ Options) (Step, error) {
			columns, err := p.Strings("columns")
			if err != nil {
				return nil, err
			}
			method, err := p.String("method")
			if err != nil {
				return nil, err
			}
			return NewEncode(EncodeParams{Columns: columns, Method: EncodeMethod(strings.ToLower(method))})
		})

	r.Register(Info{Name: StepSplit, Params: []string{"target", "train_size", "seed"}},
		func(p Params, o Options) (Step, error) {
			target, err := p.String("target")
			if err != nil {
				return nil, err
			}
			size, err := p.Float("train_size")
			if err != nil {
				return nil, err
			}
			seed, err := p.Int("seed")
			if err != nil {
				return nil, err
			}
			sp := SplitParams{Target: target, TrainSize: size, Seed: o.Seed}
			if seed > 0 {
				sp.Seed = uint64(seed)
			}
			return NewSplit(sp)
		})

	return r
}

// Register adds or replaces a step builder.
func (r *Registry) Register(info Info, build Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[info.Name] = entry{build: build, info: info}
}

// Build decodes params for the named step. Unknown steps and parameters
// outside the step's parameter set are validation errors.
func (r *Registry) Build(name string, p Params) (Step, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "unknown step %q", name).WithDetail("step", name)
	}
	p = p.normalized()
	allowed := make(map[string]struct{}, len(e.info.Params))
	for _, k := range e.info.Params {
		allowed[k] = struct{}{}
	}
	for k := range p {
		if _, ok := allowed[k]; !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation, "step %s does not take parameter %q", name, k).
				WithDetail("step", name)
		}
	}
	return e.build(p, r.opts)
}

// Steps describes the registered steps sorted by name.
func (r *Registry) Steps() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// paramAliases maps alternative spellings onto canonical keys.
var paramAliases = map[string]string{
	"constant":   "value",
	"dtype":      "type",
	"new_type":   "type",
	"newtype":    "type",
	"trainsize":  "train_size",
	"train-size": "train_size",
	"n_bins":     "bins",
}

func (p Params) normalized() Params {
	out := make(Params, len(p))
	for k, v := range p {
		key := strings.ToLower(strings.TrimSpace(k))
		if canon, ok := paramAliases[key]; ok {
			key = canon
		}
		out[key] = v
	}
	return out
}

func badParam(key string, v any, want string) error {
	return errors.Newf(errors.ErrorTypeValidation, "parameter %s must be %s, got %v", key, want, v).
		WithDetail("param", key)
}

// String reads a text parameter with surrounding whitespace removed; numbers
// are rendered as text and an absent key reads as "".
func (p Params) String(key string) (string, error) {
	v, err := p.Text(key)
	return strings.TrimSpace(v), err
}

// Text is String without trimming, for free-form values.
func (p Params) Text(key string) (string, error) {
	switch v := p[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", badParam(key, v, "text")
	}
}

// Strings reads a list of names. A single string is a one-element list.
func (p Params) Strings(key string) ([]string, error) {
	switch v := p[key].(type) {
	case nil:
		return nil, nil
	case string:
		if v = strings.TrimSpace(v); v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, badParam(key, v, "a list of column names")
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, badParam(key, v, "a list of column names")
	}
}

// Float reads a number; numeric text is accepted.
func (p Params) Float(key string) (float64, error) {
	switch v := p[key].(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, badParam(key, v, "a number")
		}
		return f, nil
	case string:
		f, ok := dataset.ParseNumber(v)
		if !ok {
			return 0, badParam(key, v, "a number")
		}
		return f, nil
	default:
		return 0, badParam(key, v, "a number")
	}
}

// Int reads a whole number.
func (p Params) Int(key string) (int, error) {
	f, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, badParam(key, p[key], "a whole number")
	}
	return int(f), nil
}

func methodNames(ms []MissingMethod) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m)
	}
	return out
}

func typeNames(ts []dataset.Type) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

// Describe renders a step and its parameters for logs.
func Describe(s Step) string {
	switch st := s.(type) {
	case *Missing:
		return fmt.Sprintf("%s(column=%s, method=%s)", st.Name(), st.params.Column, st.params.Method)
	case *Convert:
		return fmt.Sprintf("%s(column=%s, type=%s)", st.Name(), st.params.Column, st.params.Type)
	case *Discretize:
		return fmt.Sprintf("%s(column=%s, bins=%d)", st.Name(), st.params.Column, st.params.Bins)
	case *Normalize:
		return fmt.Sprintf("%s(columns=%s)", st.Name(), joinNames(st.params.Columns))
	case *Encode:
		return fmt.Sprintf("%s(columns=%s, method=%s)", st.Name(), joinNames(st.params.Columns), st.params.Method)
	case *Split:
		return fmt.Sprintf("%s(target=%s, train_size=%v)", st.Name(), st.params.Target, st.params.TrainSize)
	}
	return s.Name()
}
