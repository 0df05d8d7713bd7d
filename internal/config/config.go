// Package config loads the server configuration from a YAML file and
// validates it against a CUE schema before anything gets wired up. A
// config error at startup is a typed, positioned message, not a nil
// pointer halfway through serving.
package config

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// schema constrains every field the file may set and supplies defaults
// for the ones it omits.
const schema = `
server: {
	port:     int & >0 & <65536 | *8080
	basePath: string | *"/api"
}
store: {
	logPath:  string | *"scullery.db"
	docsPath: string | *"scullery-docs.db"
}
llm: {
	model: string | *""
}
engine: {
	maxSteps:   int & >0 | *1000
	maxRepeats: int & >0 | *25
}
request: {
	timeoutSeconds: int & >0 | *10
}
routes: {
	inclusions: [...string] | *[]
	exclusions: [...string] | *[]
}
`

// Config is the validated, default-filled server configuration.
type Config struct {
	Server struct {
		Port     int    `json:"port"`
		BasePath string `json:"basePath"`
	} `json:"server"`
	Store struct {
		LogPath  string `json:"logPath"`
		DocsPath string `json:"docsPath"`
	} `json:"store"`
	LLM struct {
		Model string `json:"model"`
	} `json:"llm"`
	Engine struct {
		MaxSteps   int `json:"maxSteps"`
		MaxRepeats int `json:"maxRepeats"`
	} `json:"engine"`
	Request struct {
		TimeoutSeconds int `json:"timeoutSeconds"`
	} `json:"request"`
	Routes struct {
		Inclusions []string `json:"inclusions"`
		Exclusions []string `json:"exclusions"`
	} `json:"routes"`
}

// RequestTimeout returns the response watchdog duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Request.TimeoutSeconds) * time.Second
}

// Default returns the configuration with every field at its schema
// default, as if loading an empty file.
func Default() (*Config, error) {
	return Parse(nil)
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates raw YAML against the schema and decodes it. A nil or
// empty document yields the defaults.
func Parse(raw []byte) (*Config, error) {
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}

	ctx := cuecontext.New()
	schemaVal := ctx.CompileString(schema)
	if err := schemaVal.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	val := schemaVal.Unify(ctx.Encode(data))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	var cfg Config
	if err := val.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &cfg, nil
}
