/*
Package config provides configuration loading and validation for Sendlist.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"dario.cat/mergo"
	"github.com/a8m/envsubst"
	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every setting in env files and the environment.
const EnvPrefix = "SENDLIST_"

// Setting keys, without EnvPrefix.
const (
	KeyHost       = "HOST"
	KeyPort       = "PORT"
	KeyUser       = "USER"
	KeyPassword   = "PASSWORD"
	KeyFrom       = "FROM"
	KeyReplyTo    = "REPLY_TO"
	KeyCC         = "CC"
	KeyBCC        = "BCC"
	KeySubject    = "SUBJECT"
	KeyHTML       = "HTML"
	KeyAttachment = "ATTACHMENT"
	KeyDelay      = "DELAY"
	KeyEncryption = "ENCRYPTION"
	KeyAuth       = "AUTH"
	KeyComment    = "COMMENT"
)

var (
	// ErrInvalid indicates a configuration that failed validation.
	ErrInvalid = errors.New("invalid configuration")

	// ErrMissingSubject indicates that neither the settings nor the template provide a subject.
	ErrMissingSubject = errors.New(EnvPrefix + KeySubject + " must be set")
)

// Encryption selects how the SMTP session is secured
type Encryption string

const (
	EncryptionTLS      Encryption = "tls"
	EncryptionStartTLS Encryption = "starttls"
	EncryptionNone     Encryption = "none"
)

// AuthType selects the SMTP authentication mechanism
type AuthType string

const (
	AuthAuto    AuthType = "auto"
	AuthPlain   AuthType = "plain"
	AuthLogin   AuthType = "login"
	AuthCramMD5 AuthType = "crammd5"
	AuthNone    AuthType = "none"
)

// Config is the resolved run configuration. It is built once by Load and
// not modified afterwards.
type Config struct {
	// SMTP server
	Host       string     `env:"HOST" validate:"required"`
	Port       int        `env:"PORT" validate:"min=1,max=65535"`
	User       string     `env:"USER" validate:"required"`
	Password   string     `env:"PASSWORD" validate:"required"`
	Encryption Encryption `env:"ENCRYPTION" validate:"oneof=tls starttls none"`
	Auth       AuthType   `env:"AUTH" validate:"oneof=auto plain login crammd5 none"`

	// Message
	From       string  `env:"FROM" validate:"required"`
	ReplyTo    *string `env:"REPLY_TO"`
	CC         *string `env:"CC"`
	BCC        *string `env:"BCC"`
	Subject    *string `env:"SUBJECT"`
	HTML       bool    `env:"HTML"`
	Attachment *string `env:"ATTACHMENT"`

	// Delay is the pause after every send attempt
	Delay time.Duration `env:"DELAY" validate:"min=0"`

	// Comment is the recipient list comment marker
	Comment rune `env:"COMMENT"`
}

// LoadOptions lists the configuration sources, lowest precedence first
// within each group: defaults, Files, Environ, Overrides.
type LoadOptions struct {
	// Files are env files; missing files are skipped
	Files []string

	// Environ is the process environment in KEY=VALUE form
	Environ []string

	// Overrides are explicit settings, keys with or without EnvPrefix
	Overrides map[string]string
}

func defaults() map[string]string {
	return map[string]string{
		KeyPort:    "465",
		KeyDelay:   "1",
		KeyAuth:    string(AuthAuto),
		KeyComment: "#",
	}
}

// Load resolves the configuration from all sources and validates it.
func Load(opts LoadOptions) (*Config, error) {
	values := defaults()

	for _, path := range opts.Files {
		fileValues, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("Env file not found, skipping", "path", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
		}
		log.Debug("Loaded env file", "path", path)

		if err := merge(values, prefixed(fileValues)); err != nil {
			return nil, err
		}
	}

	if err := merge(values, prefixed(parseEnviron(opts.Environ))); err != nil {
		return nil, err
	}

	// An unset variable in an override is an error, use $$ for a literal $
	overrides := make(map[string]string, len(opts.Overrides))
	for k, v := range opts.Overrides {
		expanded, err := envsubst.StringRestricted(v, true, false)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to expand override %s: %v", ErrInvalid, k, err)
		}
		overrides[strings.TrimPrefix(strings.ToUpper(k), EnvPrefix)] = expanded
	}
	if err := merge(values, overrides); err != nil {
		return nil, err
	}

	return FromValues(values)
}

// FromValues builds and validates a Config from resolved bare-key values.
func FromValues(values map[string]string) (*Config, error) {
	cfg := &Config{
		Host:       values[KeyHost],
		User:       values[KeyUser],
		Password:   values[KeyPassword],
		From:       values[KeyFrom],
		ReplyTo:    optional(values[KeyReplyTo]),
		CC:         optional(values[KeyCC]),
		BCC:        optional(values[KeyBCC]),
		Subject:    optional(values[KeySubject]),
		HTML:       Truthy(values[KeyHTML]),
		Attachment: optional(values[KeyAttachment]),
		Auth:       AuthType(strings.ToLower(values[KeyAuth])),
	}

	port, err := strconv.Atoi(values[KeyPort])
	if err != nil {
		return nil, fmt.Errorf("%w: %s%s must be a number: %q", ErrInvalid, EnvPrefix, KeyPort, values[KeyPort])
	}
	cfg.Port = port

	delay, err := strconv.ParseFloat(values[KeyDelay], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s%s must be a number of seconds: %q", ErrInvalid, EnvPrefix, KeyDelay, values[KeyDelay])
	}
	cfg.Delay = time.Duration(delay * float64(time.Second))

	cfg.Encryption = Encryption(strings.ToLower(values[KeyEncryption]))
	if cfg.Encryption == "" {
		cfg.Encryption = EncryptionStartTLS
		if cfg.Port == 465 {
			cfg.Encryption = EncryptionTLS
		}
	}

	if c := values[KeyComment]; c != "" {
		r, size := utf8.DecodeRuneInString(c)
		if size != len(c) {
			return nil, fmt.Errorf("%w: %s%s must be a single character: %q", ErrInvalid, EnvPrefix, KeyComment, c)
		}
		cfg.Comment = r
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return EnvPrefix + fld.Tag.Get("env")
	})

	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var problems []string
	for _, fe := range validationErrors {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fmt.Sprintf("%s must be set", fe.Field()))
		case "oneof":
			problems = append(problems, fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value()))
		default:
			problems = append(problems, fmt.Sprintf("%s is out of range: %v", fe.Field(), fe.Value()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

// ResolveSubject returns the configured subject, falling back to fallback
// (typically the template front matter).
func (c *Config) ResolveSubject(fallback string) (string, error) {
	if c.Subject != nil {
		return *c.Subject, nil
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback, nil
	}
	return "", ErrMissingSubject
}

// Truthy interprets the HTML flag. Empty, "no", "unset", "0" and "false"
// are false, anything else is true.
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "no", "unset", "0", "false":
		return false
	}
	return true
}

// merge layers src over dst. Empty values in src are treated as unset.
func merge(dst, src map[string]string) error {
	layer := make(map[string]string, len(src))
	for k, v := range src {
		if v != "" {
			layer[k] = v
		}
	}
	if err := mergo.Merge(&dst, layer, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge settings: %w", err)
	}
	return nil
}

// prefixed keeps EnvPrefix keys and strips the prefix.
func prefixed(in map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range in {
		if key, ok := strings.CutPrefix(k, EnvPrefix); ok {
			out[key] = v
		}
	}
	return out
}

func parseEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}
	return env
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
