package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/spf13/cobra"
)

var (
	reportUser  string
	reportNow   string
	reportLimit int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the attention feed and key contacts for a user",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportUser, "user", "u", "", "User to report on")
	reportCmd.Flags().StringVar(&reportNow, "now", "", "Evaluate as of this RFC3339 time (default: current time)")
	reportCmd.Flags().IntVarP(&reportLimit, "limit", "n", 5, "Maximum key contacts to show")
	reportCmd.MarkFlagRequired("user")
}

func runReport(cmd *cobra.Command, args []string) error {
	now := time.Now().UTC()
	if reportNow != "" {
		t, err := time.Parse(time.RFC3339, reportNow)
		if err != nil {
			return fmt.Errorf("parse --now: %w", err)
		}
		now = t
	}

	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	eng := engine.New(rt.registry, rt.db, rt.cfg.EngineParams(), rt.log)
	if _, ok := rt.registry.Lookup(reportUser); !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "No interactions recorded for %s.\n", reportUser)
		return nil
	}

	out := cmd.OutOrStdout()
	printAttention(out, eng.Attention(cmd.Context(), reportUser, now), now)
	printKeyContacts(out, eng.KeyContacts(reportUser, now, reportLimit))
	return nil
}

func printAttention(w io.Writer, items []engine.AttentionItem, now time.Time) {
	fmt.Fprintln(w, "## Needs attention")
	fmt.Fprintln(w)
	if len(items) == 0 {
		fmt.Fprintln(w, "Nothing right now.")
		fmt.Fprintln(w)
		return
	}
	for i, item := range items {
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, item.Type, item.Message)
		if item.Deadline != nil {
			fmt.Fprintf(w, "   due %s\n", humanize.RelTime(*item.Deadline, now, "ago", "from now"))
		}
	}
	fmt.Fprintln(w)
}

func printKeyContacts(w io.Writer, contacts []engine.KeyContact) {
	fmt.Fprintln(w, "## Key contacts")
	fmt.Fprintln(w)
	if len(contacts) == 0 {
		fmt.Fprintln(w, "Not enough activity yet.")
		return
	}
	for i, c := range contacts {
		vip := ""
		if c.IsVIP {
			vip = " (VIP)"
		}
		name := c.DisplayName
		if name == "" {
			name = c.ContactID
		}
		fmt.Fprintf(w, "%d. %s%s [%s] score %.2f\n", i+1, name, vip, c.RelationshipType, c.Score)
	}
}
