package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/danmuck/txprocessor/internal/config"
)

const defaultPath = "cmd/intkey-tp/config.toml"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	fs.SetOutput(stdout)
	output := fs.StringP("output", "o", defaultPath, "output path for the config template")
	validate := fs.Bool("validate", false, "validate an existing config file instead of writing one")
	input := fs.StringP("input", "i", defaultPath, "config path for --validate")
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "validated %s: endpoint=%s workers=%d queue_limit=%d tls=%t\n",
			*input, cfg.Processor.Endpoint, cfg.Processor.Workers, cfg.Processor.QueueLimit, cfg.Processor.Session.TLS.Enabled)
		return nil
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote config template to %s\n", *output)
	return nil
}
