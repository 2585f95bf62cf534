package cmd

import (
	"errors"
	"fmt"

	"github.com/q-controller/imagestore/src/pkg/images/picker"
	"github.com/spf13/cobra"
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Adds the newest library image, or waits for a camera capture",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		camera, cameraErr := cmd.Flags().GetBool("camera")
		if cameraErr != nil {
			return fmt.Errorf("failed to get camera: %w", cameraErr)
		}
		quality, qualityErr := cmd.Flags().GetFloat64("quality")
		if qualityErr != nil {
			return fmt.Errorf("failed to get quality: %w", qualityErr)
		}

		source := picker.SourceLibrary
		if camera {
			source = picker.SourceCamera
		}
		req := picker.DefaultRequest(source)
		req.Quality = quality

		p := &picker.DirPicker{
			Library: cfg.LibraryPath(),
			Inbox:   cfg.InboxPath(),
			Timeout: cfg.CaptureTimeout,
			Quiet:   cfg.CaptureQuiet,
		}
		res, pickErr := p.Pick(cmd.Context(), req)
		if pickErr != nil {
			return pickErr
		}
		if res.Cancelled {
			return errors.New("nothing picked")
		}

		record, addErr := a.svc.Add(cmd.Context(), res.URI)
		if addErr != nil {
			return addErr
		}
		fmt.Fprintln(cmd.OutOrStdout(), record.URI)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(pickCmd)

	pickCmd.Flags().Bool("camera", false, "Wait for a capture in the inbox instead of picking from the library")
	pickCmd.Flags().Float64("quality", 0.75, "JPEG quality requested from the provider, in [0, 1]")
}
