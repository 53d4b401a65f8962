package model

import (
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
	yamlv3 "gopkg.in/yaml.v3"

	_ "embed"
)

// defaults, must match config.cue
const (
	DefaultTimeout          = 10
	DefaultServicesRegistry = "/run/dumpsys/services"
	DefaultHardwareRegistry = "/run/dumpsys/hardware"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int      `json:"version" yaml:"version"` // fixed 0 for now
	Timeout  int      `json:"timeout" yaml:"timeout"` // seconds per service
	Registry Registry `json:"registry" yaml:"registry"`
	Skip     []string `json:"skip,omitempty" yaml:"skip,omitempty"`
	Verbose  bool     `json:"verbose" yaml:"verbose"`
	Metrics  string   `json:"metrics,omitempty" yaml:"metrics,omitempty"` // prometheus textfile
}

// Registry holds the directories of both service namespaces.
type Registry struct {
	Services string `json:"services" yaml:"services"`
	Hardware string `json:"hardware" yaml:"hardware"`
}

func DefaultConfig() Config {
	return Config{
		Version: 0,
		Timeout: DefaultTimeout,
		Registry: Registry{
			Services: DefaultServicesRegistry,
			Hardware: DefaultHardwareRegistry,
		},
	}
}

func (c Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("dumpsys.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	return out, nil
}

// Encode writes the configuration in a format LoadConfig accepts
func (c Config) Encode(w io.Writer) error {
	enc := yamlv3.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
