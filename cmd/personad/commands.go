package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"personad/internal/engine"
	"personad/internal/registry"
)

func newAdaptersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "adapters",
		Short:   "List the persona adapters under the adapters root",
		Example: "  personad adapters --adapters-dir ./adapters",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Open(a.cfg.AdaptersDir, registry.Options{Logger: &a.log})
			if err != nil {
				return err
			}
			names, err := reg.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the base model and llama.cpp tools without loading anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := engine.New(engine.OptionsFromConfig(a.cfg.Engine, &a.log))
			if err != nil {
				return err
			}
			defer eng.Close()
			rep := eng.SanityCheck()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return err
			}
			if rep.Error != "" {
				return fmt.Errorf("doctor: %s", rep.Error)
			}
			return nil
		},
	}
}
