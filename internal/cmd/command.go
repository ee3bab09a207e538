package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/zipsleuth/internal/config"
)

// Zipsleuth contains the global options.
type Zipsleuth struct {
	Profile string         `short:"p" long:"profile" description:"override AWS_PROFILE if given"`
	Config  flags.Filename `short:"c" long:"config" description:"load this configuration file instead of searching for .zipsleuth upwards from the working directory"`
}

// NewParser creates the parser with all commands registered.
func NewParser() (*flags.Parser, error) {
	opts := &Zipsleuth{}

	p := flags.NewNamedParser("zipsleuth", flags.Default)
	if _, err := p.AddGroup("Global Options", "", opts); err != nil {
		return nil, err
	}

	for _, c := range []struct {
		name, alias, description string
		data                     any
	}{
		{"analyze", "a", "guess which tool produced the archives", &Analyze{}},
		{"records", "r", "list every structural record of the archives", &Records{}},
	} {
		cmd, err := p.AddCommand(c.name, c.description, "", c.data)
		if err != nil {
			return nil, err
		}
		cmd.Aliases = []string{c.alias}
	}

	p.CommandHandler = func(command flags.Commander, args []string) error {
		if command == nil {
			return nil
		}

		if err := opts.load(); err != nil {
			return err
		}

		return command.Execute(args)
	}

	return p, nil
}

// load sets up config.DefaultLoader with the profile and configuration file from the global options.
func (o *Zipsleuth) load() error {
	if o.Profile != "" {
		if err := os.Setenv("AWS_PROFILE", o.Profile); err != nil {
			return fmt.Errorf("set AWS_PROFILE error: %w", err)
		}
	}

	if o.Config != "" {
		config.DefaultLoader.Profile = o.Profile
		if err := config.LoadFile(string(o.Config)); err != nil {
			return fmt.Errorf("load config error: %w", err)
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := config.LoadProfile(ctx, o.Profile); err != nil {
		return fmt.Errorf("load config error: %w", err)
	}

	return nil
}
