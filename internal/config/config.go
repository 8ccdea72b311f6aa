package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBrightness = 1.0
	DefaultScale      = 25.0
	DefaultWidth      = 640
	DefaultHeight     = 480
	DefaultAzimuth    = 45.0
	DefaultElevation  = 90.0
	DefaultRoll       = 180.0
)

type Config struct {
	Params  Params       `yaml:"params"`
	Ions    []IonConfig  `yaml:"ions"`
	CCD     CCDConfig    `yaml:"ccd"`
	Render  RenderConfig `yaml:"render"`
	Palette []string     `yaml:"palette"`
}

// IonConfig describes one ion, or a chain of Count identical ions spaced
// along the trap axis and centred on Position.
type IonConfig struct {
	Mass     int        `yaml:"mass"`
	Charge   int        `yaml:"charge"`
	Position [3]float64 `yaml:"position,flow"`
	Count    int        `yaml:"count,omitempty"`
	Spacing  float64    `yaml:"spacing,omitempty"`
}

type CCDConfig struct {
	Brightness float64 `yaml:"brightness"`
	Output     string  `yaml:"output"`
}

type RenderConfig struct {
	Scale     float64 `yaml:"scale"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Azimuth   float64 `yaml:"azimuth"`
	Elevation float64 `yaml:"elevation"`
	Roll      float64 `yaml:"roll"`
	Output    string  `yaml:"output"`
}

// Ion is a single expanded ion entry.
type Ion struct {
	Mass     int
	Charge   int
	Position [3]float64
}

func DefaultConfig() *Config {
	return &Config{
		Params: DefaultParams(),
		Ions: []IonConfig{
			{Mass: 40, Charge: 1, Count: 2, Spacing: 10},
		},
		CCD: CCDConfig{
			Brightness: DefaultBrightness,
			Output:     "ccd.png",
		},
		Render: RenderConfig{
			Scale:     DefaultScale,
			Width:     DefaultWidth,
			Height:    DefaultHeight,
			Azimuth:   DefaultAzimuth,
			Elevation: DefaultElevation,
			Roll:      DefaultRoll,
			Output:    "ions.png",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Expand turns the ion entries into the ordered ion list. Chains keep their
// ions contiguous so that each entry forms one species run.
func (c *Config) Expand() ([]Ion, error) {
	ions := make([]Ion, 0, len(c.Ions))
	for i, ic := range c.Ions {
		if ic.Mass <= 0 {
			return nil, fmt.Errorf("config: ion entry %d: mass must be positive", i)
		}
		charge := ic.Charge
		if charge == 0 {
			charge = 1
		}
		if ic.Count <= 1 {
			ions = append(ions, Ion{Mass: ic.Mass, Charge: charge, Position: ic.Position})
			continue
		}
		mid := float64(ic.Count-1) / 2
		for k := 0; k < ic.Count; k++ {
			pos := ic.Position
			pos[2] += (float64(k) - mid) * ic.Spacing
			ions = append(ions, Ion{Mass: ic.Mass, Charge: charge, Position: pos})
		}
	}
	return ions, nil
}
