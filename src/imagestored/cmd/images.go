package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// withApp opens the store for the duration of fn.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (retErr error) {
		a, appErr := openApp(cfg)
		if appErr != nil {
			return appErr
		}
		defer func() {
			if closeErr := a.Close(); closeErr != nil {
				retErr = errors.Join(retErr, closeErr)
			}
		}()
		return fn(cmd, args, a)
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists stored images",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		records, listErr := a.svc.List(cmd.Context(), true)
		if listErr != nil {
			return listErr
		}
		for _, record := range records {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", record.DisplayName(), record.URI)
		}
		return nil
	}),
}

var addCmd = &cobra.Command{
	Use:   "add <uri>...",
	Short: "Copies images into the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		for _, source := range args {
			record, addErr := a.svc.Add(cmd.Context(), source)
			if addErr != nil {
				return addErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), record.URI)
		}
		return nil
	}),
}

var removeCmd = &cobra.Command{
	Use:     "remove <uri|name>...",
	Aliases: []string{"rm"},
	Short:   "Deletes images from the store",
	Args:    cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		for _, ref := range args {
			if removeErr := a.svc.Remove(cmd.Context(), ref); removeErr != nil {
				return removeErr
			}
		}
		return nil
	}),
}

var uploadCmd = &cobra.Command{
	Use:   "upload <uri|name>",
	Short: "Sends an image to the configured endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		outcome, uploadErr := a.svc.Upload(cmd.Context(), args[0])
		if uploadErr != nil {
			return uploadErr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "status: %d\n%s\n", outcome.Result.StatusCode, outcome.Result.Body)
		return nil
	}),
}

var historyCmd = &cobra.Command{
	Use:   "history [uri|name]",
	Short: "Shows recorded upload attempts",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if a.journal == nil {
			return fmt.Errorf("upload history unavailable: %w", a.journalErr)
		}

		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		entries, historyErr := a.svc.History(cmd.Context(), ref)
		if historyErr != nil {
			return historyErr
		}

		out, marshalErr := yaml.Marshal(entries)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal history: %w", marshalErr)
		}
		_, writeErr := cmd.OutOrStdout().Write(out)
		return writeErr
	}),
}

func init() {
	rootCmd.AddCommand(listCmd, addCmd, removeCmd, uploadCmd, historyCmd)
}
