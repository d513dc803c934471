package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"storybook/internal/client"
	"storybook/internal/config"
)

type commandContext struct {
	configFlag *string
	addrFlag   *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, addrFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		addrFlag:   addrFlag,
		tokenFlag:  tokenFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// apiClient resolves the daemon address from the --addr flag or the config
// file and builds an API client for it.
func (c *commandContext) apiClient() (*client.Client, error) {
	addr := ""
	if c.addrFlag != nil {
		addr = strings.TrimSpace(*c.addrFlag)
	}
	token := ""
	if c.tokenFlag != nil {
		token = strings.TrimSpace(*c.tokenFlag)
	}

	if addr == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		addr = cfg.Paths.APIBind
		if token == "" {
			token = cfg.Paths.APIToken
		}
	}
	if addr == "" {
		return nil, fmt.Errorf("no daemon address configured (set paths.api_bind or pass --addr)")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return client.New(addr, token), nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var addrFlag string
	var tokenFlag string

	ctx := newCommandContext(&configFlag, &addrFlag, &tokenFlag)

	rootCmd := &cobra.Command{
		Use:           "storybookd",
		Short:         "Storybook generation daemon and CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "Daemon API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "API bearer token")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newCreateCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
