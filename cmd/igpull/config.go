package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igpull/pkg/config"
	"igpull/pkg/instagram"
	"igpull/pkg/proxy"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Long: `Manage the igpull configuration file.

Settings are resolved in this order, highest priority first:
  1. Command line flags
  2. Environment variables (IGPULL_*, also read from .env)
  3. Configuration file
  4. Default values`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a commented default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(g)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, g)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigPath(g)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Long: `Load the configuration from every source and check it.

Besides value ranges this checks that the cookies file parses, that the
proxy file is readable and that the output directory can be created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, g)
		},
	})
	return cmd
}

// configPath is the file the config commands operate on
func (g *globalOptions) configPath() string {
	if g.configFile != "" {
		return g.configFile
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.DefaultConfigPath()
}

func runConfigInit(g *globalOptions) error {
	path := g.configFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}

	fmt.Fprintf(g.out, "Configuration file created: %s\n", path)
	fmt.Fprintln(g.out, "\nNext steps:")
	fmt.Fprintln(g.out, "  1. Edit the file to taste")
	fmt.Fprintln(g.out, "  2. Run 'igpull config validate'")
	fmt.Fprintln(g.out, "  3. Download with 'igpull <username>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, g *globalOptions) error {
	cfg, err := g.loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}
	_, err = g.out.Write(data)
	return err
}

func runConfigPath(g *globalOptions) error {
	path := g.configPath()
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(g.out, "%s (not created, run 'igpull config init')\n", path)
		return nil
	}
	fmt.Fprintln(g.out, path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, g *globalOptions) error {
	cfg, err := g.loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	var problems []error
	if cfg.Client.CookiesFile != "" {
		if _, err := instagram.ParseCookiesFile(cfg.Client.CookiesFile); err != nil {
			problems = append(problems, fmt.Errorf("cookies: %w", err))
		}
	}
	if cfg.Proxy.Proxy != "" {
		if _, err := proxy.ParseURL(cfg.Proxy.Proxy); err != nil {
			problems = append(problems, fmt.Errorf("proxy: %w", err))
		}
	} else if cfg.Proxy.ProxyFile != "" {
		if _, err := proxy.ReadFile(cfg.Proxy.ProxyFile); err != nil {
			problems = append(problems, fmt.Errorf("proxy_file: %w", err))
		}
	}
	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Errorf("output directory: %w", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Errorf("log directory: %w", err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration has errors:\n%w", errors.Join(problems...))
	}

	fmt.Fprintf(g.out, "Configuration is valid (%s)\n", g.configPath())
	fmt.Fprintf(g.out, "  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Fprintf(g.out, "  Rate limit: %d requests per %s\n", cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	fmt.Fprintf(g.out, "  Batch size: %d posts\n", cfg.Download.BatchSize)
	fmt.Fprintf(g.out, "  Cookies: %t\n", cfg.UseCookies())
	return nil
}
