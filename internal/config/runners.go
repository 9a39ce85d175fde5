package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskdir/internal/runner"
)

// RunnersFile maps task types to external runner commands:
//
//	runners:
//	  - type: applescript
//	    command: /usr/local/bin/osascript-runner
//	  - type: claude_cli
//	    command: claude-runner
//	    args: ["--non-interactive"]
type RunnersFile struct {
	Runners []runner.Entry `yaml:"runners"`
}

// LoadRunners reads the runner mapping file. A missing file is not an error;
// built-in runners and the convention scan may be all a deployment needs.
func LoadRunners(path string) (*RunnersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RunnersFile{}, nil
		}
		return nil, fmt.Errorf("failed to read runners config: %w", err)
	}
	var cfg RunnersFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse runners config: %w", err)
	}
	for _, e := range cfg.Runners {
		if e.Type == "" {
			return nil, fmt.Errorf("runners config entry missing type")
		}
	}
	return &cfg, nil
}
