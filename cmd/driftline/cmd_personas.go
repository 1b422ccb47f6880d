package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goblincore/driftline"
	"github.com/spf13/cobra"
)

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List and create personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		personas, err := driftline.LoadPersonasFromDir(cfg.PersonaDir, logger)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(personas) == 0 {
			fmt.Fprintf(out, "No personas in %s\n", cfg.PersonaDir)
			return nil
		}
		for _, id := range driftline.SortedPersonaIDs(personas) {
			p := personas[id]
			fmt.Fprintf(out, "%-12s %s, %d, %s (start: %s)\n", id, p.Name, p.Age, p.Role, p.DefaultState.Mode)
		}
		return nil
	},
}

var personasValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Check persona files and report warnings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		var failed int
		for _, path := range args {
			p, warnings, err := driftline.LoadPersona(path)
			if err != nil {
				fmt.Fprintf(out, "✗ %s: %v\n", path, err)
				failed++
				continue
			}
			fmt.Fprintf(out, "✓ %s (%s)\n", path, p.Name)
			for _, w := range warnings {
				fmt.Fprintf(out, "    warning: %s\n", w)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d persona file(s) invalid", failed)
		}
		return nil
	},
}

var (
	initAge  int
	initRole string
)

var personasInitCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Write a starter persona file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		name := args[0]
		path := filepath.Join(cfg.PersonaDir, strings.ToLower(name)+".yaml")
		if err := driftline.SavePersona(driftline.DefaultPersona(name, initAge, initRole), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
		return nil
	},
}

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List life-context scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		list, err := driftline.LoadScenarios(cfg.ScenarioPath)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, sc := range list {
			fmt.Fprintf(out, "%-24s %s\n", sc.Name, sc.Description)
			for metric, delta := range sc.Effects {
				fmt.Fprintf(out, "    %-20s %+.2f\n", metric, delta)
			}
		}
		return nil
	},
}

func init() {
	personasInitCmd.Flags().IntVar(&initAge, "age", 30, "Persona age")
	personasInitCmd.Flags().StringVar(&initRole, "role", "client", "Persona role")
	personasCmd.AddCommand(personasValidateCmd)
	personasCmd.AddCommand(personasInitCmd)
}
