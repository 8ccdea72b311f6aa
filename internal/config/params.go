package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFilename   = "trajectories.bin"
	DefaultFPos       = "fpos.xyz"
	DefaultCCDPrefix  = "ccd"
	DefaultDt         = 1e-6
	DefaultNumSteps   = 20000
	DefaultBufferSize = 5000
	DefaultCCDBins    = 128
	DefaultCCDExtent  = 600.0
)

// Params is the set of named options handed to the engine. Field names in
// yaml are also the names accepted by Set and Get.
//
// Positions are in micrometres, frequencies in Hz, time in seconds.
type Params struct {
	Filename string  `yaml:"filename" json:"filename"`
	Dt       float64 `yaml:"dt" json:"dt"`
	NumSteps int     `yaml:"num_steps" json:"num_steps"`

	Verbosity          int  `yaml:"verbosity" json:"verbosity"`
	SecularEnabled     bool `yaml:"secular_enabled" json:"secular_enabled"`
	MicromotionEnabled bool `yaml:"micromotion_enabled" json:"micromotion_enabled"`
	CoulombEnabled     bool `yaml:"coulomb_enabled" json:"coulomb_enabled"`
	StochasticEnabled  bool `yaml:"stochastic_enabled" json:"stochastic_enabled"`
	DopplerEnabled     bool `yaml:"doppler_enabled" json:"doppler_enabled"`

	// Steps held in memory before the trajectory writer flushes to disk.
	BufferSize int   `yaml:"buffer_size" json:"buffer_size"`
	Seed       int64 `yaml:"seed" json:"seed"`

	SecularFreq [3]float64 `yaml:"secular_freq,flow" json:"secular_freq"`
	RFFreq      float64    `yaml:"rf_freq" json:"rf_freq"`
	QParam      float64    `yaml:"q_param" json:"q_param"`
	Damping     float64    `yaml:"damping" json:"damping"`
	Temperature float64    `yaml:"temperature" json:"temperature"`

	FPosFilename string  `yaml:"fpos_filename" json:"fpos_filename"`
	CCDPrefix    string  `yaml:"ccd_prefix" json:"ccd_prefix"`
	CCDBins      int     `yaml:"ccd_bins" json:"ccd_bins"`
	CCDExtent    float64 `yaml:"ccd_extent" json:"ccd_extent"`
}

func DefaultParams() Params {
	return Params{
		Filename:       DefaultFilename,
		Dt:             DefaultDt,
		NumSteps:       DefaultNumSteps,
		SecularEnabled: true,
		CoulombEnabled: true,
		BufferSize:     DefaultBufferSize,
		SecularFreq:    [3]float64{30e3, 30e3, 10e3},
		RFFreq:         2e6,
		QParam:         0.1,
		Damping:        1e3,
		Temperature:    1e-3,
		FPosFilename:   DefaultFPos,
		CCDPrefix:      DefaultCCDPrefix,
		CCDBins:        DefaultCCDBins,
		CCDExtent:      DefaultCCDExtent,
	}
}

var (
	ErrMissingFilename = errors.New("config: filename is required")
	ErrUnknownParam    = errors.New("config: unknown parameter")
)

// Validate checks the fields every run needs.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Filename) == "" {
		return ErrMissingFilename
	}
	if p.Dt <= 0 {
		return fmt.Errorf("config: dt must be positive, got %g", p.Dt)
	}
	if p.NumSteps <= 0 {
		return fmt.Errorf("config: num_steps must be positive, got %d", p.NumSteps)
	}
	if p.BufferSize < 0 {
		return fmt.Errorf("config: buffer_size must not be negative, got %d", p.BufferSize)
	}
	if p.CCDBins < 0 {
		return fmt.Errorf("config: ccd_bins must not be negative, got %d", p.CCDBins)
	}
	if p.CCDBins > 0 && p.CCDExtent <= 0 {
		return fmt.Errorf("config: ccd_extent must be positive, got %g", p.CCDExtent)
	}
	return nil
}

func (p Params) fields() (map[string]any, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Names lists the accepted parameter names in sorted order.
func (p Params) Names() []string {
	f, err := p.fields()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Get returns the value of a named parameter.
func (p Params) Get(name string) (any, error) {
	f, err := p.fields()
	if err != nil {
		return nil, err
	}
	v, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return v, nil
}

// Set assigns a named parameter from its yaml text, e.g. Set("dt", "1e-7")
// or Set("secular_freq", "[1e4, 1e4, 5e3]"). p is unchanged on error.
func (p *Params) Set(name, value string) error {
	f, err := p.fields()
	if err != nil {
		return err
	}
	if _, ok := f[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(value), &node); err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	if len(node.Content) == 0 {
		return fmt.Errorf("config: %s: empty value", name)
	}

	doc, err := yaml.Marshal(map[string]*yaml.Node{name: node.Content[0]})
	if err != nil {
		return err
	}
	next := *p
	if err := yaml.Unmarshal(doc, &next); err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	*p = next
	return nil
}

// SetAll applies "name=value" assignments in order.
func (p *Params) SetAll(assignments []string) error {
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("config: expected name=value, got %q", a)
		}
		if err := p.Set(strings.TrimSpace(name), strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	return nil
}

func (p Params) String() string {
	var b strings.Builder
	b.WriteString("Simulation parameters:\n")
	fmt.Fprintf(&b, "  filename = %s\n", p.Filename)
	fmt.Fprintf(&b, "  dt = %g\n", p.Dt)
	fmt.Fprintf(&b, "  num_steps = %d\n", p.NumSteps)
	fmt.Fprintf(&b, "  secular: %t\n", p.SecularEnabled)
	fmt.Fprintf(&b, "  micromotion: %t\n", p.MicromotionEnabled)
	fmt.Fprintf(&b, "  coulomb: %t\n", p.CoulombEnabled)
	fmt.Fprintf(&b, "  stochastic: %t\n", p.StochasticEnabled)
	fmt.Fprintf(&b, "  doppler: %t\n", p.DopplerEnabled)
	fmt.Fprintf(&b, "  buffer_size: %d\n", p.BufferSize)
	return b.String()
}

func (p Params) JSON() (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Duration is the simulated time span num_steps*dt.
func (p Params) Duration() float64 {
	return float64(p.NumSteps) * p.Dt
}
