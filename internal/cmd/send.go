package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/oarkflow/sendlist"
	"github.com/oarkflow/sendlist/internal/config"
	"github.com/oarkflow/sendlist/internal/dispatch"
	"github.com/oarkflow/sendlist/internal/message"
	"github.com/oarkflow/sendlist/internal/recipient"
	"github.com/oarkflow/sendlist/internal/tmpl"
	"github.com/oarkflow/sendlist/internal/transport"
)

// sender is a dispatch.Sender holding a connection.
type sender interface {
	Send(ctx context.Context, msg *message.Message) error
	Close() error
}

// mailing holds everything resolved at startup.
type mailing struct {
	cfg       *config.Config
	renderer  *tmpl.Renderer
	assembler *message.Assembler
	records   []recipient.Record
}

func runSend(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if showReadme {
		fmt.Fprint(out, sendlist.Readme)
		return nil
	}

	m, err := prepare()
	if err != nil {
		return err
	}

	delay := m.cfg.Delay
	var tr sender
	if dryRun {
		tr = transport.NewWriter(out)
		delay = 0
	} else {
		tr = transport.NewSMTP(m.cfg)
	}
	defer func() {
		if err := tr.Close(); err != nil {
			log.Warn("Failed to close transport", "error", err)
		}
	}()

	log.Info("Sending mailing",
		"recipients", len(m.records),
		"server", fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port),
		"html", m.renderer.HTML() || m.cfg.HTML,
		"dry-run", dryRun)

	d := dispatch.New(m.renderer, m.assembler, tr,
		dispatch.WithDelay(delay),
		dispatch.WithOutput(out))
	report := d.Run(cmd.Context(), m.records)

	log.Info("Mailing finished", "attempted", report.Attempted, "failed", report.Failed)
	return nil
}

// prepare loads the configuration, template and recipient list. Any error
// here stops the run before a message is sent.
func prepare() (*mailing, error) {
	values, err := parseOverrides(overrides)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.LoadOptions{
		Files:     []string{smtpFile, emailFile},
		Environ:   os.Environ(),
		Overrides: values,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	src, err := tmpl.LoadSource(templateFile)
	if err != nil {
		return nil, err
	}
	subject, err := cfg.ResolveSubject(src.Subject)
	if err != nil {
		return nil, err
	}
	renderer, err := tmpl.New(subject, src.Body,
		tmpl.WithHTML(cfg.HTML),
		tmpl.WithMarkdown(src.Markdown))
	if err != nil {
		return nil, err
	}

	records, err := recipient.Load(csvFile, recipient.WithComment(cfg.Comment))
	if err != nil {
		return nil, err
	}
	log.Debug("Loaded recipients", "path", csvFile, "count", len(records))

	assembler, err := message.NewAssembler(message.Options{
		From:       cfg.From,
		ReplyTo:    cfg.ReplyTo,
		CC:         cfg.CC,
		BCC:        cfg.BCC,
		HTML:       cfg.HTML || renderer.HTML(),
		Attachment: cfg.Attachment,
	})
	if err != nil {
		return nil, err
	}

	return &mailing{
		cfg:       cfg,
		renderer:  renderer,
		assembler: assembler,
		records:   records,
	}, nil
}

// parseOverrides splits KEY=VALUE pairs. Later pairs win.
func parseOverrides(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set value %q: expected KEY=VALUE", pair)
		}
		values[key] = value
	}
	return values, nil
}
