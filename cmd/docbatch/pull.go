// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/docbatch/internal/container"
	"github.com/pdiddy/docbatch/pkg/types"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull the conversion engine container image",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := container.DetectRuntime()
		if err != nil {
			return fmt.Errorf("no container runtime: %w", err)
		}

		image, _ := cmd.Flags().GetString("image")
		if !cmd.Flags().Changed("image") {
			if v := viper.GetString("image"); v != "" {
				image = v
			}
		}

		fmt.Printf("Pulling %s with %s...\n", image, rt.Name())
		if err := rt.Pull(image, os.Stdout); err != nil {
			return fmt.Errorf("pulling %s: %w", image, err)
		}
		fmt.Println("Done.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
	pullCmd.Flags().String("image", types.DefaultEngineImage, "conversion engine container image")
}
