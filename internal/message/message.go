// Package message assembles the outgoing message for each recipient.
package message

import (
	"errors"
	"fmt"
	netmail "net/mail"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	mail "github.com/xhit/go-simple-mail/v2"

	"github.com/oarkflow/sendlist/internal/recipient"
)

// AttachmentContentType is used for every attachment.
const AttachmentContentType = "application/octet-stream"

var (
	// ErrInvalidSender indicates a From address that cannot be parsed.
	ErrInvalidSender = errors.New("invalid sender address")

	// ErrInvalidAddress indicates a recipient, CC, BCC or Reply-To address that cannot be parsed.
	ErrInvalidAddress = errors.New("invalid address")
)

// ContentType of the message body
type ContentType string

const (
	TextPlain ContentType = "text/plain"
	TextHTML  ContentType = "text/html"
)

// Attachment is a file shared by all messages of a run.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is a fully addressed message ready for the transport.
type Message struct {
	From        netmail.Address
	To          netmail.Address
	ReplyTo     *netmail.Address
	CC          *netmail.Address
	BCC         *netmail.Address
	Subject     string
	Body        string
	ContentType ContentType
	Attachment  *Attachment
}

// Multipart reports whether the message carries an attachment part.
func (m *Message) Multipart() bool {
	return m.Attachment != nil
}

// Parts returns the number of MIME parts.
func (m *Message) Parts() int {
	if m.Multipart() {
		return 2
	}
	return 1
}

// Recipients returns every envelope recipient.
func (m *Message) Recipients() []string {
	rcpt := []string{m.To.Address}
	if m.CC != nil {
		rcpt = append(rcpt, m.CC.Address)
	}
	if m.BCC != nil {
		rcpt = append(rcpt, m.BCC.Address)
	}
	return rcpt
}

// Email converts the message into a go-simple-mail message.
func (m *Message) Email() (*mail.Email, error) {
	email := mail.NewMSG()
	email.SetFrom(m.From.String()).
		AddTo(m.To.String()).
		SetSubject(m.Subject)

	if m.ReplyTo != nil {
		email.SetReplyTo(m.ReplyTo.String())
	}
	if m.CC != nil {
		email.AddCc(m.CC.String())
	}
	if m.BCC != nil {
		email.AddBcc(m.BCC.String())
	}

	if m.ContentType == TextHTML {
		email.SetBody(mail.TextHTML, m.Body)
	} else {
		email.SetBody(mail.TextPlain, m.Body)
	}

	if m.Attachment != nil {
		email.AddAttachmentData(m.Attachment.Data, m.Attachment.Name, m.Attachment.ContentType)
	}

	if email.Error != nil {
		return nil, fmt.Errorf("failed to build message for %s: %w", m.To.Address, email.Error)
	}
	return email, nil
}

// Raw renders the message in MIME format.
func (m *Message) Raw() (string, error) {
	email, err := m.Email()
	if err != nil {
		return "", err
	}
	return email.GetMessage(), nil
}

// Options configures an Assembler. Nil optional fields are left out of
// every message.
type Options struct {
	From       string
	ReplyTo    *string
	CC         *string
	BCC        *string
	HTML       bool
	Attachment *string
}

// Assembler builds messages that share sender, optional headers and attachment.
type Assembler struct {
	from        netmail.Address
	replyTo     *string
	cc          *string
	bcc         *string
	contentType ContentType
	attachment  *Attachment
}

// NewAssembler validates the sender and reads the attachment once.
func NewAssembler(opts Options) (*Assembler, error) {
	from, err := netmail.ParseAddress(opts.From)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSender, opts.From, err)
	}

	a := &Assembler{
		from:        *from,
		replyTo:     opts.ReplyTo,
		cc:          opts.CC,
		bcc:         opts.BCC,
		contentType: TextPlain,
	}
	if opts.HTML {
		a.contentType = TextHTML
	}

	if opts.Attachment != nil {
		data, err := os.ReadFile(*opts.Attachment)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		a.attachment = &Attachment{
			Name:        filepath.Base(*opts.Attachment),
			ContentType: AttachmentContentType,
			Data:        data,
		}
		log.Debug("Loaded attachment", "name", a.attachment.Name, "size", len(data))
	}

	return a, nil
}

// Attachment returns the shared attachment, nil if none is configured.
func (a *Assembler) Attachment() *Attachment {
	return a.attachment
}

// Assemble builds the message for rec.
func (a *Assembler) Assemble(rec recipient.Record, subject, body string) (*Message, error) {
	to, err := netmail.ParseAddress(rec.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: to %q: %v", ErrInvalidAddress, rec.Email, err)
	}

	msg := &Message{
		From:        a.from,
		To:          netmail.Address{Name: rec.Name, Address: to.Address},
		Subject:     subject,
		Body:        body,
		ContentType: a.contentType,
		Attachment:  a.attachment,
	}

	if msg.ReplyTo, err = parseOptional("reply-to", a.replyTo); err != nil {
		return nil, err
	}
	if msg.CC, err = parseOptional("cc", a.cc); err != nil {
		return nil, err
	}
	if msg.BCC, err = parseOptional("bcc", a.bcc); err != nil {
		return nil, err
	}

	return msg, nil
}

func parseOptional(field string, v *string) (*netmail.Address, error) {
	if v == nil {
		return nil, nil
	}
	addr, err := netmail.ParseAddress(*v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidAddress, field, *v, err)
	}
	return addr, nil
}
