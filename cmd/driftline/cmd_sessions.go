package main

import (
	"fmt"

	"github.com/goblincore/driftline"
	"github.com/spf13/cobra"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.ListSessions(sessionsLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range list {
			ended := "open"
			if !s.EndedAt.IsZero() {
				ended = s.EndedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(out, "%s  %-10s %s  %3d turns  ended: %s\n",
				s.ID, s.Persona, s.StartedAt.Format("2006-01-02 15:04"), s.Turns, ended)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a recorded session's turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		turns, err := store.LoadTurns(args[0])
		if err != nil {
			return err
		}
		shifts, err := store.ContextShifts(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(shifts) > 0 {
			fmt.Fprintf(out, "Context shifts: %v\n\n", shifts)
		}
		for _, t := range turns {
			fmt.Fprintf(out, "[%d] %s via %s (%s)\n", t.Index+1, t.At.Format("15:04:05"), t.Strategy, t.Backend)
			fmt.Fprintf(out, "  student: %s\n  %s: %s\n", t.Student, t.Persona, t.Client)
			fmt.Fprintf(out, "  mode %s  anxiety %.2f  trust %.2f  openness %.2f\n\n",
				t.Mode, t.State.Anxiety(), t.State.Trust(), t.State.Openness())
		}
		return nil
	},
}

func openStore() (*driftline.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return driftline.NewStore(cfg.DBPath)
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum sessions to list")
	sessionsCmd.AddCommand(sessionsShowCmd)
}
