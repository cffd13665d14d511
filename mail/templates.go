package mail

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"
)

const (
	verificationSubject  = "Verify your email address"
	passwordResetSubject = "Reset your password"
)

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body>
<h2>Welcome to {{.AppName}}</h2>
<p>Please confirm your email address by following the link below. The link expires in 24 hours.</p>
<p><a href="{{.Link}}">Verify email</a></p>
<p>If you did not create an account, you can ignore this email.</p>
</body>
</html>
`))

var passwordResetTemplate = template.Must(template.New("password-reset").Parse(`<!DOCTYPE html>
<html>
<body>
<h2>{{.AppName}} password reset</h2>
<p>We received a request to reset your password. The link below expires in 24 hours and can be used once.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not request a reset, you can ignore this email.</p>
</body>
</html>
`))

type templateData struct {
	AppName string
	Link    string
}

// Composer renders the flow emails with links rooted at BaseURL.
type Composer struct {
	From    string
	AppName string
	BaseURL string
}

// Verification renders the email-verification message for token.
func (c Composer) Verification(to, token string) (Message, error) {
	return c.render(verificationTemplate, verificationSubject, to, "/auth/verify-email", token)
}

// PasswordReset renders the password-reset message for token.
func (c Composer) PasswordReset(to, token string) (Message, error) {
	return c.render(passwordResetTemplate, passwordResetSubject, to, "/auth/reset-password", token)
}

// Link returns the absolute URL for path carrying token as a query parameter.
func (c Composer) Link(path, token string) string {
	return strings.TrimRight(c.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (c Composer) render(t *template.Template, subject, to, path, token string) (Message, error) {
	var buf bytes.Buffer
	err := t.Execute(&buf, templateData{
		AppName: c.AppName,
		Link:    c.Link(path, token),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		From:    c.From,
		To:      to,
		Subject: subject,
		HTML:    buf.String(),
	}, nil
}
