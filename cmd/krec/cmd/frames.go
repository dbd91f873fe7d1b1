package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/unijord/krec/pkg/krecfile"
)

// framesCmd represents the frames command
var framesCmd = &cobra.Command{
	Use:   "frames <file>",
	Short: "Print a per-frame summary",
	Long: `Walk a recording's frames and print one line per frame: timestamps,
video alignment counters, and the number of actuator states and commands.

Example:
  krec frames capture.krec --start 100 --count 20`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, _ := cmd.Flags().GetInt("start")
		count, _ := cmd.Flags().GetInt("count")

		r, err := krecfile.OpenFile(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		frames := r.Frames()
		printed := 0
		for i := 0; ; i++ {
			f, off, err := frames.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("frame walk stopped at offset %d: %w", off, err)
			}
			if i < start {
				continue
			}
			if count > 0 && printed >= count {
				break
			}
			imu := " "
			if f.IMUValues != nil {
				imu = "imu"
			}
			fmt.Printf("%6d  real=%-15d video=%-15d frame#=%-8d step=%-8d states=%-3d commands=%-3d %s\n",
				i, f.RealTimestamp, f.VideoTimestamp, f.VideoFrameNumber, f.InferenceStep,
				len(f.ActuatorStates), len(f.ActuatorCommands), imu)
			printed++
		}
		return nil
	},
}

func init() {
	framesCmd.Flags().Int("start", 0, "First frame index to print")
	framesCmd.Flags().Int("count", 0, "Number of frames to print (0 = all)")
	rootCmd.AddCommand(framesCmd)
}
