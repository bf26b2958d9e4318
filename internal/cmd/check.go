package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oarkflow/sendlist"
	"github.com/oarkflow/sendlist/internal/message"
	"github.com/oarkflow/sendlist/internal/tmpl"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check settings, template and recipient list",
	Long: `Check that the mailing can be sent, without sending anything.

This validates:
  - Required settings and value ranges
  - Template syntax and subject
  - Recipient list format
  - Sender, copy and recipient addresses
  - The attachment file`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		m, err := prepare()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Settings are valid (%s:%d, %s)\n", m.cfg.Host, m.cfg.Port, m.cfg.Encryption)
		fmt.Fprintf(out, "✓ Template %s compiled\n", templateFile)
		if a := m.assembler.Attachment(); a != nil {
			fmt.Fprintf(out, "✓ Attachment %s (%d bytes)\n", a.Name, len(a.Data))
		}
		fmt.Fprintf(out, "✓ Loaded %d recipients from %s\n", len(m.records), csvFile)

		var failed int
		var first *message.Message
		for _, rec := range m.records {
			rendered, err := m.renderer.Render(rec)
			if err == nil {
				var msg *message.Message
				msg, err = m.assembler.Assemble(rec, rendered.Subject, rendered.Body)
				if first == nil && msg != nil {
					first = msg
				}
			}
			if err != nil {
				fmt.Fprintf(out, "✗ %s: %v\n", rec.Address(), err)
				failed++
			}
		}

		if first != nil {
			fmt.Fprintf(out, "\nPreview for %s:\n", first.To.String())
			fmt.Fprintf(out, "  Subject: %s\n", first.Subject)
			fmt.Fprintf(out, "  Body:    %s\n", tmpl.Preview(first.Body, first.ContentType == message.TextHTML, 72))
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d recipients cannot be sent", failed, len(m.records))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build date of sendlist.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sendlist %s\n", sendlist.Version)
		if sendlist.GitCommit != "" {
			fmt.Fprintf(out, "  Commit: %s\n", sendlist.GitCommit)
		}
		if sendlist.BuildDate != "" {
			fmt.Fprintf(out, "  Built:  %s\n", sendlist.BuildDate)
		}
	},
}
