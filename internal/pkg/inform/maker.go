package inform

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/jordan-wright/email"
	"github.com/spf13/viper"

	"github.com/vocalalchemy/forge/internal/pkg/messages"
)

// Data is passed to the email templates
type Data struct {
	ID      string
	JobName string
	Email   string
	MsgType string
	MsgTime time.Time
}

var defaultSubjects = map[string]string{
	messages.InformStarted:  "Voice forge: training of '{{.JobName}}' started",
	messages.InformLabeling: "Voice forge: '{{.JobName}}' is ready for labeling",
	messages.InformFinished: "Voice forge: character '{{.JobName}}' is ready",
	messages.InformFailed:   "Voice forge: '{{.JobName}}' failed",
}

var defaultTexts = map[string]string{
	messages.InformStarted: "Preprocessing of the job '{{.JobName}}' ({{.ID}}) started at {{.MsgTime.Format \"2006-01-02 15:04\"}}.",
	messages.InformLabeling: "The job '{{.JobName}}' ({{.ID}}) finished transcription at {{.MsgTime.Format \"2006-01-02 15:04\"}}.\n" +
		"Review the transcripts and start the training.",
	messages.InformFinished: "The voice character '{{.JobName}}' ({{.ID}}) finished training at {{.MsgTime.Format \"2006-01-02 15:04\"}} and is ready to use.",
	messages.InformFailed:   "The job '{{.JobName}}' ({{.ID}}) failed at {{.MsgTime.Format \"2006-01-02 15:04\"}}.",
}

// TemplateEmailMaker renders emails from configured or default templates
type TemplateEmailMaker struct {
	from      string
	subjects  map[string]*template.Template
	templates map[string]*template.Template
}

// NewTemplateEmailMaker inits the maker from config.
// Templates may be overridden with mail.<type>.subject, mail.<type>.text
func NewTemplateEmailMaker(c *viper.Viper) (*TemplateEmailMaker, error) {
	r := &TemplateEmailMaker{from: c.GetString("mail.from"),
		subjects: map[string]*template.Template{}, templates: map[string]*template.Template{}}
	if r.from == "" {
		return nil, fmt.Errorf("no mail.from")
	}
	for _, tp := range []string{messages.InformStarted, messages.InformLabeling,
		messages.InformFinished, messages.InformFailed} {
		var err error
		r.subjects[tp], err = parseTemplate(c.GetString("mail."+tp+".subject"), defaultSubjects[tp])
		if err != nil {
			return nil, fmt.Errorf("can't parse subject for %s: %w", tp, err)
		}
		r.templates[tp], err = parseTemplate(c.GetString("mail."+tp+".text"), defaultTexts[tp])
		if err != nil {
			return nil, fmt.Errorf("can't parse text for %s: %w", tp, err)
		}
	}
	return r, nil
}

// Make prepares an email for the message type
func (m *TemplateEmailMaker) Make(data *Data) (*email.Email, error) {
	tmpl, ok := m.templates[data.MsgType]
	if !ok {
		return nil, fmt.Errorf("unknown inform type '%s'", data.MsgType)
	}
	subject, err := runTemplate(m.subjects[data.MsgType], data)
	if err != nil {
		return nil, err
	}
	text, err := runTemplate(tmpl, data)
	if err != nil {
		return nil, err
	}
	return &email.Email{From: m.from, To: []string{data.Email},
		Subject: string(subject), Text: text}, nil
}

func parseTemplate(cfg, def string) (*template.Template, error) {
	if cfg == "" {
		cfg = def
	}
	return template.New("").Parse(cfg)
}

func runTemplate(tmpl *template.Template, data *Data) ([]byte, error) {
	var b bytes.Buffer
	if err := tmpl.Execute(&b, data); err != nil {
		return nil, fmt.Errorf("can't run template: %w", err)
	}
	return b.Bytes(), nil
}
