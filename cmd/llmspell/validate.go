package main

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lexlapax/llmspell/pkg/config"
)

// ValidateCmd loads a config file through the same layered Loader serve
// uses and pretty-prints the resolved document, so an operator can confirm
// what the runtime would actually see (defaults included) before deploying
// it. Grounded on the teacher's ValidateCmd/"hector validate".
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	loader, err := config.NewLoader(config.LoaderOptions{FilePath: cli.Config})
	if err != nil {
		return fmt.Errorf("build loader: %w", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("config %s is invalid: %w", cli.Config, err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal resolved config: %w", err)
	}

	fmt.Printf("%s is valid. Resolved configuration:\n\n%s", cli.Config, out)
	return nil
}
