package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sweeney/presence-beacon/internal/ble"
	"github.com/sweeney/presence-beacon/internal/logic"
	"github.com/sweeney/presence-beacon/internal/sampler"
)

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Take one sample, print the classified presence and exit",
		Long: `Brings the sensors up, samples every channel once and prints the raw
reading, the presence flag and the byte that would be published. BLE is not
started.`,
		Args: cobra.NoArgs,
		RunE: runState,
	}
}

func runState(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	hw, err := openHardware(cfg, logger)
	if err != nil {
		return err
	}
	defer hw.Close()

	readings := sampler.New(hw.distance1, hw.distance2, hw.motion, logger, nil).Sample()
	printState(cmd.OutOrStdout(), readings, logic.NewSnapshot(readings))
	return nil
}

func printState(w io.Writer, readings [logic.NumChannels]logic.Reading, snap logic.Snapshot) {
	present := color.New(color.FgGreen, color.Bold).SprintFunc()
	absent := color.New(color.FgHiBlack).SprintFunc()
	fault := color.New(color.FgRed).SprintFunc()

	uuids := ble.PresenceService().ChannelUUIDs()

	for _, ch := range logic.Channels {
		r := readings[ch]

		raw := fmt.Sprintf("%d mm", r.Value)
		if ch.IsMotion() {
			raw = "off"
			if r.Value != 0 {
				raw = "on"
			}
		}
		raw = fmt.Sprintf("%-8s", raw)
		if r.Fault {
			raw = fault(fmt.Sprintf("%-8s", "fault"))
		}

		flag := snap[ch].String()
		label := fmt.Sprintf("%-7s", flag)
		if snap[ch] == logic.Present {
			label = present(label)
		} else {
			label = absent(label)
		}

		fmt.Fprintf(w, "%-9s  %s  %s  %s  %d\n", ch, uuids[ch], raw, label, logic.Encode(snap[ch]))
	}
}
