package cli

import (
	"context"
	"io"

	"github.com/dmitrijs2005/safeshare/internal/client/config"
	"github.com/dmitrijs2005/safeshare/internal/flagx"
	"github.com/dmitrijs2005/safeshare/internal/logging"
	"github.com/spf13/cobra"
)

// Opener builds the App the selected command runs against.
type Opener func(ctx context.Context, c *config.Config, logger logging.Logger, out io.Writer) (*App, error)

// Execute loads the configuration, runs the command named in os.Args and
// releases the App afterwards.
func Execute(ctx context.Context) error {
	cfg, err := config.LoadConfig(flagx.ConfigFileFlag())
	if err != nil {
		return err
	}

	root, closeApp := NewRootCommand(cfg, NewApp)
	defer closeApp()

	return root.ExecuteContext(ctx)
}

// NewRootCommand binds the persistent flags into cfg and wires the
// subcommands. The returned func closes the App if one was opened.
func NewRootCommand(cfg *config.Config, open Opener) (*cobra.Command, func() error) {
	var (
		app        *App
		configPath string
	)

	root := &cobra.Command{
		Use:           "safeshare",
		Short:         "Send files peer to peer over WebRTC",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewTextLogger(cmd.ErrOrStderr(), logging.ParseLevel(cfg.LogLevel))
			a, err := open(cmd.Context(), cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			app = a
			return nil
		},
	}

	// read by Execute before cobra runs; registered so cobra accepts it
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (json or yaml)")
	config.BindFlags(root.PersistentFlags(), cfg)

	current := func() *App { return app }
	root.AddCommand(sendCmd(current), receiveCmd(current), historyCmd(current))

	closeApp := func() error {
		if app == nil {
			return nil
		}
		return app.Close()
	}
	return root, closeApp
}
