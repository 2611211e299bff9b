package inform

import (
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
)

// simpleEmailSender sends email using smtp
type simpleEmailSender struct {
	host     string
	addr     string
	username string
	password string
}

// NewSimpleEmailSender initiates email sender
func NewSimpleEmailSender(c *viper.Viper) (*simpleEmailSender, error) {
	r := simpleEmailSender{}
	r.host = c.GetString("smtp.host")
	port := c.GetInt("smtp.port")
	if r.host == "" || port == 0 {
		return nil, fmt.Errorf("no smtp.host or smtp.port")
	}
	r.addr = r.host + ":" + strconv.Itoa(port)
	r.username = c.GetString("smtp.username")
	r.password = c.GetString("smtp.password")
	goapp.Log.Info().Str("addr", r.addr).Msg("SMTP sender")
	return &r, nil
}

// Send sends email
func (s *simpleEmailSender) Send(email *email.Email) error {
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	return email.Send(s.addr, auth)
}
