// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/docbatch/internal/container"
	"github.com/pdiddy/docbatch/internal/resource"
	"github.com/pdiddy/docbatch/pkg/types"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the container runtime, engine image, and system headroom",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := container.DetectRuntime()
		if err != nil {
			return fmt.Errorf("no container runtime: %w", err)
		}
		fmt.Println("Container runtime:", rt.Name())

		image := viper.GetString("image")
		if image == "" {
			image = types.DefaultEngineImage
		}
		if err := rt.ImageExists(image); err == nil {
			fmt.Println("Engine image:     ", image, "(present)")
		} else {
			fmt.Println("Engine image:     ", image, "(missing, run 'docbatch pull')")
		}

		monitor := resource.NewMonitor(resource.SystemSampler{}, types.ResourceConfig{})
		snap, err := monitor.Sample()
		if err != nil {
			return fmt.Errorf("sampling resources: %w", err)
		}
		fmt.Printf("Available memory:  %.1f GiB\n", float64(snap.AvailableMemory)/(1024*1024*1024))
		fmt.Printf("CPU utilization:   %.0f%%\n", snap.CPUPercent)
		if resource.HasHeadroom(snap, types.ResourceConfig{
			MinFreeMemory: types.DefaultMinFreeMemory,
			MaxCPUPercent: types.DefaultMaxCPUPercent,
		}) {
			fmt.Println("Headroom:          ok")
		} else {
			fmt.Println("Headroom:          low (admission will apply backpressure)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
