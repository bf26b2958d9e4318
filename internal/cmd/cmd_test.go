package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/sendlist"
	"github.com/oarkflow/sendlist/internal/config"
)

type fixture struct {
	dir      string
	csv      string
	template string
	smtp     string
	email    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		csv:      filepath.Join(dir, "list.csv"),
		template: filepath.Join(dir, "email.tpl"),
		smtp:     filepath.Join(dir, "smtp.env"),
		email:    filepath.Join(dir, "email.env"),
	}
	f.write(t, f.csv, "Alice,alice@x.com,TOKEN1\nBob,bob@x.com,TOKEN2\n")
	f.write(t, f.template, "Hello {{name}}, code {{data}}")
	f.write(t, f.smtp, "SENDLIST_HOST=smtp.example.com\nSENDLIST_USER=user\nSENDLIST_PASSWORD=secret\n")
	f.write(t, f.email, "SENDLIST_FROM=\"News <news@example.com>\"\nSENDLIST_SUBJECT=\"Code for {{name}}\"\nSENDLIST_DELAY=0\n")
	return f
}

func (f *fixture) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) args(args ...string) []string {
	return append(args, "-c", f.csv, "-t", f.template, "-s", f.smtp, "-e", f.email)
}

func resetFlags() {
	csvFile = "./list.csv"
	templateFile = "./email.tpl"
	smtpFile = "./smtp.env"
	emailFile = "./email.env"
	overrides = nil
	showReadme = false
	dryRun = false
	verbose = false
	debug = false
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRoot_Readme(t *testing.T) {
	out, err := execute(t, "--readme")
	require.NoError(t, err)
	assert.Equal(t, sendlist.Readme, out)
}

func TestRoot_DryRun(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, f.args("--dry-run")...)
	require.NoError(t, err)

	assert.Contains(t, out, "--- Sending to: \"Alice\" <alice@x.com> \n")
	assert.Contains(t, out, "--- Sending to: \"Bob\" <bob@x.com> \n")
	assert.Contains(t, out, "Hello Alice, code TOKEN1")
	assert.Contains(t, out, "Hello Bob, code TOKEN2")
	assert.Contains(t, out, "text/plain")
	assert.NotContains(t, out, "### Failed")
	assert.True(t, strings.HasSuffix(out, "=== Processed 2 mails\n"))
}

func TestRoot_DryRunReportsFailures(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.csv, "Alice,alice@x.com,TOKEN1\nBroken,not-an-address,X\nBob,bob@x.com,TOKEN2\n")

	out, err := execute(t, f.args("--dry-run")...)
	require.NoError(t, err)

	assert.Contains(t, out, "--- Sending to: \"Broken\" <not-an-address> ### Failed: ")
	assert.Contains(t, out, "### Failed to send: 1\n=== Processed 3 mails\n")
}

func TestRoot_MissingSubject(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.email, "SENDLIST_FROM=news@example.com\n")

	_, err := execute(t, f.args("--dry-run")...)
	require.ErrorIs(t, err, config.ErrMissingSubject)
}

func TestRoot_FrontMatterSubject(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.email, "SENDLIST_FROM=news@example.com\nSENDLIST_DELAY=0\n")
	f.write(t, f.template, "---\nsubject: Hi {{name}}\n---\nHello {{name}}")

	out, err := execute(t, f.args("--dry-run")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Subject: Hi Alice")
}

func TestRoot_StartupErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		want  string
	}{
		{
			name:  "missing host",
			setup: func(t *testing.T, f *fixture) { f.write(t, f.smtp, "SENDLIST_USER=u\nSENDLIST_PASSWORD=p\n") },
			want:  "SENDLIST_HOST must be set",
		},
		{
			name:  "missing recipient list",
			setup: func(t *testing.T, f *fixture) { require.NoError(t, os.Remove(f.csv)) },
			want:  "list.csv",
		},
		{
			name:  "short row",
			setup: func(t *testing.T, f *fixture) { f.write(t, f.csv, "Alice,alice@x.com\n") },
			want:  "line 1",
		},
		{
			name:  "broken template",
			setup: func(t *testing.T, f *fixture) { f.write(t, f.template, "Hello {{name") },
			want:  "template",
		},
		{
			name:  "invalid sender",
			setup: func(t *testing.T, f *fixture) { f.write(t, f.email, "SENDLIST_FROM=nobody\nSENDLIST_SUBJECT=s\n") },
			want:  "invalid sender",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			out, err := execute(t, f.args("--dry-run")...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.NotContains(t, out, "--- Sending to")
		})
	}
}

func TestCheck(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, f.args("check", "--set", "SUBJECT=Override for {{name}}")...)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ Settings are valid (smtp.example.com:465, tls)")
	assert.Contains(t, out, "✓ Loaded 2 recipients")
	assert.Contains(t, out, "Subject: Override for Alice")
	assert.Contains(t, out, "Hello Alice, code TOKEN1")
	assert.NotContains(t, out, "--- Sending to")
}

func TestCheck_ReportsBadRecipients(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.csv, "Alice,alice@x.com,TOKEN1\nBroken,not-an-address,X\n")

	out, err := execute(t, f.args("check")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 recipients")
	assert.Contains(t, out, "✗ \"Broken\" <not-an-address>")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sendlist "+sendlist.Version)
}

func TestParseOverrides(t *testing.T) {
	values, err := parseOverrides([]string{"HOST=a", "SUBJECT=x=y", "HOST=b", "CC="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"HOST": "b", "SUBJECT": "x=y", "CC": ""}, values)

	for _, bad := range []string{"HOST", "=value", " =x"} {
		_, err := parseOverrides([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestCompletion(t *testing.T) {
	out, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "sendlist")

	_, err = execute(t, "completion", "tcsh")
	assert.Error(t, err)
}
