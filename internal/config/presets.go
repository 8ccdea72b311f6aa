package config

import "sort"

func withParams(mod func(p *Params)) Params {
	p := DefaultParams()
	mod(&p)
	return p
}

var Presets = map[string]func() *Config{
	// Two 40Ca+ ions released at z = -5 and +5.
	"pair": func() *Config {
		return DefaultConfig()
	},
	"chain": func() *Config {
		cfg := DefaultConfig()
		cfg.Ions = []IonConfig{{Mass: 40, Charge: 1, Count: 10, Spacing: 15}}
		cfg.Params = withParams(func(p *Params) {
			p.DopplerEnabled = true
			p.NumSteps = 50000
		})
		return cfg
	},
	// 40Ca+ sympathetically cooling 9Be+; each species lands on its own CCD channel.
	"mixed": func() *Config {
		cfg := DefaultConfig()
		cfg.Ions = []IonConfig{
			{Mass: 40, Charge: 1, Count: 4, Spacing: 20, Position: [3]float64{0, 0, -50}},
			{Mass: 9, Charge: 1, Count: 3, Spacing: 20, Position: [3]float64{0, 0, 40}},
		}
		cfg.Params = withParams(func(p *Params) {
			p.DopplerEnabled = true
			p.StochasticEnabled = true
			p.Temperature = 5e-3
			p.Seed = 7
		})
		cfg.CCD.Brightness = 1.5
		return cfg
	},
	"micromotion": func() *Config {
		cfg := DefaultConfig()
		cfg.Params = withParams(func(p *Params) {
			p.MicromotionEnabled = true
			p.Dt = 2e-8
			p.NumSteps = 100000
			p.BufferSize = 10000
		})
		return cfg
	},
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
