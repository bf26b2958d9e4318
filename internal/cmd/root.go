/*
Package cmd provides the CLI commands for sendlist.
*/
package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	csvFile      string
	templateFile string
	smtpFile     string
	emailFile    string
	overrides    []string
	showReadme   bool
	dryRun       bool
	verbose      bool
	debug        bool
)

// rootCmd sends the mailing when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sendlist",
	Short: "Send personalized emails to a list of recipients",
	Long: `sendlist renders a template for every recipient of a CSV list
and sends the result over SMTP, one message at a time.

Settings are read from two env files, the process environment
and --set overrides, in increasing precedence.

Example:
  sendlist                          # Send using ./list.csv and ./email.tpl
  sendlist -c team.csv -t note.md   # Markdown template, sent as HTML
  sendlist --dry-run                # Print the messages instead of sending
  sendlist check                    # Validate everything without sending`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runSend,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&csvFile, "csv", "c", "./list.csv", "CSV file (name,email,data)")
	rootCmd.PersistentFlags().StringVarP(&templateFile, "template", "t", "./email.tpl", "Email template file")
	rootCmd.PersistentFlags().StringVarP(&smtpFile, "smtp", "s", "./smtp.env", "SMTP config file")
	rootCmd.PersistentFlags().StringVarP(&emailFile, "email", "e", "./email.env", "Email config file")
	rootCmd.PersistentFlags().StringArrayVar(&overrides, "set", nil, "Override a setting as KEY=VALUE (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")

	// Complete file flags with the expected extensions
	_ = rootCmd.MarkPersistentFlagFilename("csv", "csv")
	_ = rootCmd.MarkPersistentFlagFilename("template", "tpl", "md", "txt", "html")
	_ = rootCmd.MarkPersistentFlagFilename("smtp", "env")
	_ = rootCmd.MarkPersistentFlagFilename("email", "env")

	rootCmd.Flags().BoolVarP(&showReadme, "readme", "r", false, "Print the documentation")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print messages instead of sending them")

	// Add subcommands
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else if verbose {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}
}
