package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/edgedash/internal/config"
	"github.com/spf13/pflag"
)

const defaultPath = "edgedash.toml"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	output := flags.StringP("output", "o", defaultPath, "output path for config template (- for stdout)")
	validate := flags.Bool("validate", false, "validate an existing config file")
	input := flags.StringP("input", "i", defaultPath, "config path for validation")
	force := flags.Bool("force", false, "overwrite existing config file")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *validate {
		if _, err := config.Load(config.Options{ConfigPath: *input, FileOnly: true}); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Validated config at %s\n", *input)
		return nil
	}

	if *output == "-" {
		template, err := config.Template()
		if err != nil {
			return err
		}
		_, err = stdout.Write(template)
		return err
	}
	if err := config.WriteTemplate(*output, *force); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote config template to %s\n", *output)
	return nil
}
