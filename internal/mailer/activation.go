package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// ActivationSubject is the subject line of the activation email.
const ActivationSubject = "Activate your account"

// ActivationData fills the activation email templates.
type ActivationData struct {
	Username string
	Link     string
	TTLHours int
}

var activationText = texttemplate.Must(texttemplate.New("activation.txt").Parse(
	`Hi {{.Username}},

Please confirm your email address to activate your account:

{{.Link}}

The link expires in {{.TTLHours}} hours. If you did not register, ignore this email.
`))

var activationHTML = htmltemplate.Must(htmltemplate.New("activation.html").Parse(
	`<!DOCTYPE html>
<html>
<body>
<p>Hi {{.Username}},</p>
<p>Please confirm your email address to activate your account:</p>
<p><a href="{{.Link}}">Activate account</a></p>
<p>The link expires in {{.TTLHours}} hours. If you did not register, ignore this email.</p>
</body>
</html>
`))

// RenderActivation builds the activation email for to.
func RenderActivation(to string, data ActivationData) (Message, error) {
	var text, html bytes.Buffer
	if err := activationText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render activation text: %w", err)
	}
	if err := activationHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render activation html: %w", err)
	}
	return Message{To: to, Subject: ActivationSubject, Text: text.String(), HTML: html.String()}, nil
}
