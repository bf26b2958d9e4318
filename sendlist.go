/*
Package sendlist provides a mail-merge dispatcher that renders one personalized
message per recipient of a CSV table and delivers it over SMTP.

Sendlist reads:
  - a recipient table (name,email,data) in CSV format
  - a message template for the body, optionally with YAML front matter
  - SMTP and message settings from env files, the process environment and flags

# Templates

Templates reference recipient fields by name:

	Hello {{name}}, your code is {{data}}.

The dotted forms {{.name}} and {{.Name}} work as well, together with a small set
of helpers (tolower, toupper, trim, default, ...).

# Usage

Basic usage:

	sendlist                          # Send using ./list.csv, ./email.tpl, ./smtp.env, ./email.env
	sendlist -c people.csv -t news.md # Custom recipient table and Markdown template
	sendlist --dry-run                # Print MIME messages instead of sending
	sendlist check                    # Validate configuration without sending
	sendlist --readme                 # Print the bundled documentation

For more information, see the documentation at https://github.com/oarkflow/sendlist
*/
package sendlist

import _ "embed"

// Version is the current version of Sendlist
const Version = "1.0.0"

// BuildDate is set at build time
var BuildDate string

// GitCommit is set at build time
var GitCommit string

// Readme is the bundled documentation printed by --readme.
//
//go:embed README.md
var Readme string
