// Package dispatch drives the per-recipient render, assemble and send loop.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/oarkflow/sendlist/internal/message"
	"github.com/oarkflow/sendlist/internal/recipient"
	"github.com/oarkflow/sendlist/internal/tmpl"
)

// Renderer renders the subject and body for a recipient.
type Renderer interface {
	RenderSubject(rec recipient.Record) (string, error)
	RenderBody(rec recipient.Record) (string, error)
}

// Assembler builds the message for a recipient.
type Assembler interface {
	Assemble(rec recipient.Record, subject, body string) (*message.Message, error)
}

// Sender delivers an assembled message.
type Sender interface {
	Send(ctx context.Context, msg *message.Message) error
}

// Stage names the step of the pipeline where a recipient failed.
type Stage string

const (
	StageRenderSubject Stage = "render subject"
	StageRenderBody    Stage = "render body"
	StageAssemble      Stage = "assemble"
	StageSend          Stage = "send"
)

// Outcome is the result for one recipient.
type Outcome struct {
	Recipient recipient.Record
	Stage     Stage // set on failure
	Err       error
}

// Success reports whether the message was handed to the transport.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Report aggregates the outcomes of a run in input order.
type Report struct {
	Outcomes  []Outcome
	Attempted int
	Failed    int
}

// Dispatcher processes recipients one at a time, in order.
type Dispatcher struct {
	renderer  Renderer
	assembler Assembler
	sender    Sender
	delay     time.Duration
	out       io.Writer
	sleep     func(time.Duration)
	preview   func(body string, html bool, max int) string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDelay sets the pause after every send attempt.
func WithDelay(delay time.Duration) Option {
	return func(d *Dispatcher) {
		d.delay = delay
	}
}

// WithOutput sets where status lines are written (default stdout).
func WithOutput(w io.Writer) Option {
	return func(d *Dispatcher) {
		d.out = w
	}
}

// WithSleep replaces time.Sleep.
func WithSleep(sleep func(time.Duration)) Option {
	return func(d *Dispatcher) {
		d.sleep = sleep
	}
}

// New creates a Dispatcher.
func New(renderer Renderer, assembler Assembler, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		renderer:  renderer,
		assembler: assembler,
		sender:    sender,
		delay:     time.Second,
		out:       os.Stdout,
		sleep:     time.Sleep,
		preview:   tmpl.Preview,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes every record and returns one outcome per record. A failing
// recipient never stops the loop. The delay follows every attempt,
// including the last one.
func (d *Dispatcher) Run(ctx context.Context, records []recipient.Record) Report {
	report := Report{Outcomes: make([]Outcome, 0, len(records))}

	for _, rec := range records {
		fmt.Fprintf(d.out, "--- Sending to: %s ", rec.Address())

		outcome := d.process(ctx, rec)
		if outcome.Success() {
			fmt.Fprintln(d.out)
		} else {
			fmt.Fprintf(d.out, "### Failed: %v\n", outcome.Err)
			log.Debug("Delivery failed", "to", rec.Email, "stage", outcome.Stage, "error", outcome.Err)
			report.Failed++
		}
		report.Outcomes = append(report.Outcomes, outcome)
		report.Attempted++

		if d.delay > 0 {
			d.sleep(d.delay)
		}
	}

	if report.Failed > 0 {
		fmt.Fprintf(d.out, "### Failed to send: %d\n", report.Failed)
	}
	fmt.Fprintf(d.out, "=== Processed %d mails\n", report.Attempted)

	return report
}

func (d *Dispatcher) process(ctx context.Context, rec recipient.Record) Outcome {
	fail := func(stage Stage, err error) Outcome {
		return Outcome{Recipient: rec, Stage: stage, Err: err}
	}

	subject, err := d.renderer.RenderSubject(rec)
	if err != nil {
		return fail(StageRenderSubject, err)
	}
	body, err := d.renderer.RenderBody(rec)
	if err != nil {
		return fail(StageRenderBody, err)
	}

	msg, err := d.assembler.Assemble(rec, subject, body)
	if err != nil {
		return fail(StageAssemble, err)
	}
	if log.GetLevel() <= log.DebugLevel {
		log.Debug("Assembled message",
			"to", msg.To.Address,
			"subject", msg.Subject,
			"parts", msg.Parts(),
			"preview", d.preview(msg.Body, msg.ContentType == message.TextHTML, 60))
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		return fail(StageSend, err)
	}
	return Outcome{Recipient: rec}
}
