package cli

import (
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/spf13/cobra"

	"vektor/internal/gui"
)

// AppID is the fyne application identifier.
const AppID = "dev.vektor.app"

func (c *CLI) guiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gui [IMAGE]",
		Short: "Open the interactive window",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fyneApp := app.NewWithID(AppID)
			fyneApp.SetIcon(theme.DocumentIcon())
			fyneApp.Settings().SetTheme(theme.DefaultTheme())

			logger := c.Logger.WithField("command", "gui")
			mainApp := gui.NewApplication(fyneApp, c.NewEngine(logger), c.cfg, logger)
			if len(args) == 1 {
				if err := mainApp.LoadImageFromPath(args[0]); err != nil {
					return err
				}
			}
			mainApp.ShowAndRun()
			logger.Info("Application shutting down gracefully")
			return nil
		},
	}
}
