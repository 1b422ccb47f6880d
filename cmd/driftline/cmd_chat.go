package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/goblincore/driftline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	forceFlag   string
	metricsAddr string
	studentName string
	reportPath  string
	streamFlag  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <persona>",
	Short: "Start an interactive practice session",
	Long: `Start an interactive session with a persona from the persona directory.

Commands inside the session:
  /scenario <name>  apply a life-context scenario
  /scenarios        list scenarios
  /state            show the client's emotional state
  /suggest          suggest responses for your next turn
  /transcript       print the transcript so far
  /reset            start over from the persona's default state
  /quit             end the session and print the report`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&forceFlag, "force", "", "Force a response path: AI or Templates")
	chatCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	chatCmd.Flags().StringVar(&studentName, "student", "", "Student name for the report")
	chatCmd.Flags().StringVar(&reportPath, "report", "", "Write the JSON assessment report to this file on exit")
	chatCmd.Flags().BoolVar(&streamFlag, "stream", true, "Print model replies as they stream")
}

func runChat(cmd *cobra.Command, args []string) error {
	forced, err := driftline.ParseForcedMode(forceFlag)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sim, err := driftline.Init(ctx, cfg)
	if err != nil {
		return err
	}
	defer sim.Close()

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	session, err := sim.StartSession(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	p := session.Persona()
	fmt.Fprintf(out, "Session with %s (%d, %s). Backends: %s\n", p.Name, p.Age, p.Role, sim.Dispatcher().Availability())
	fmt.Fprintf(out, "Type a message, or /quit to end.\n\n")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := handleCommand(out, sim, session, line); done {
				break
			}
			continue
		}

		var streamed bool
		var onToken func(string)
		if streamFlag {
			onToken = func(tok string) {
				if !streamed {
					fmt.Fprintf(out, "%s> ", p.Name)
					streamed = true
				}
				fmt.Fprint(out, tok)
			}
		}
		res, err := session.RespondStream(ctx, line, forced, onToken)
		if err != nil {
			fmt.Fprintf(out, "\nerror: %v\n\n", err)
			continue
		}
		if streamed {
			// Streamed text is raw; show the cleaned reply underneath.
			fmt.Fprintf(out, "\n\n")
			if res.StreamDiscarded {
				fmt.Fprintln(out, "(model reply interrupted; answering from templates instead)")
			}
		}
		fmt.Fprintf(out, "%s> %s\n\n%s\n\n", p.Name, res.Reply, res.TeachingNote)
	}

	report, err := sim.EndSession(session.ID(), studentName)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, report.Summary())
	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		if err := report.WriteJSON(f); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(out, "\nReport written to %s\n", reportPath)
	}
	return nil
}

// handleCommand runs a slash command and reports whether the session should end.
func handleCommand(out io.Writer, sim *driftline.Simulator, s *driftline.Session, line string) bool {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit", "end":
		return true
	case "scenario":
		st, err := sim.ShiftContext(s.ID(), arg)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n\n", err)
			return false
		}
		fmt.Fprintf(out, "Context applied: %s (mode: %s)\n\n", arg, st.Mode)
	case "scenarios":
		for _, sc := range sim.Scenarios() {
			fmt.Fprintf(out, "  %-24s %s\n", sc.Name, sc.Description)
		}
		fmt.Fprintln(out)
	case "state":
		printState(out, s.State())
	case "suggest":
		groups, err := sim.Suggest(s.ID())
		if err != nil {
			fmt.Fprintf(out, "error: %v\n\n", err)
			return false
		}
		fmt.Fprintln(out, driftline.FormatSuggestions(groups))
	case "transcript":
		fmt.Fprintln(out, driftline.RenderTranscript(s.Persona(), s.Turns(), s.State()))
	case "reset":
		s.Reset()
		fmt.Fprintf(out, "Session reset.\n\n")
	default:
		fmt.Fprintf(out, "unknown command /%s\n\n", name)
	}
	return false
}

func printState(out io.Writer, st driftline.EmotionalState) {
	fmt.Fprintf(out, "Mode: %s\n", st.Mode)
	for _, name := range st.MetricNames() {
		v := st.Metrics[name]
		fmt.Fprintf(out, "  %-20s %.2f %s\n", name, v, strings.Repeat("█", int(v*10)))
	}
	if len(st.Memory) > 0 {
		fmt.Fprintln(out, "Memory:")
		for _, m := range st.Memory {
			fmt.Fprintf(out, "  - %s\n", m)
		}
	}
	fmt.Fprintln(out)
}
