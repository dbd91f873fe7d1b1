package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/unijord/krec"
	"github.com/unijord/krec/pkg/krecfile"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Print a recording's header and summary",
	Long: `Print the recording header (identity, task, time bounds, actuator
configuration table) and a frame summary.

Example:
  krec info capture.krec`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := krecfile.OpenFile(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		h := r.Header()
		bold := color.New(color.Bold)

		bold.Println("Recording")
		fmt.Printf("  UUID:            %s\n", h.UUID)
		fmt.Printf("  Task:            %s\n", h.Task)
		fmt.Printf("  Robot platform:  %s\n", h.RobotPlatform)
		fmt.Printf("  Robot serial:    %s\n", h.RobotSerial)
		fmt.Printf("  Start timestamp: %d\n", h.StartTimestamp)

		bold.Printf("\nActuator configs (%d)\n", len(h.ActuatorConfigs))
		for _, c := range h.ActuatorConfigs {
			fmt.Printf("  ID %-4d %-12s kp=%s kd=%s ki=%s max_torque=%s\n",
				c.ActuatorID,
				optString(c.Name),
				optFloat(c.Kp), optFloat(c.Kd), optFloat(c.Ki), optFloat(c.MaxTorque))
		}

		frames := r.Frames()
		var count int
		var first, last *krec.KRecFrame
		for {
			f, off, err := frames.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("frame walk stopped at offset %d: %w", off, err)
			}
			if first == nil {
				first = f
			}
			last = f
			count++
		}

		bold.Printf("\nFrames (%d)\n", count)
		if first != nil {
			fmt.Printf("  Real time range:  %d .. %d\n", first.RealTimestamp, last.RealTimestamp)
			fmt.Printf("  Video time range: %d .. %d\n", first.VideoTimestamp, last.VideoTimestamp)
		}
		if end, ok := frames.End(); ok {
			fmt.Printf("  Finalized:        %s (end timestamp %d)\n", color.New(color.FgGreen).Sprint("yes"), end)
		} else {
			fmt.Printf("  Finalized:        %s\n", color.New(color.FgYellow).Sprint("no"))
		}
		return nil
	},
}

func optFloat(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *p)
}

func optString(p *string) string {
	if p == nil {
		return "(unnamed)"
	}
	return *p
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
