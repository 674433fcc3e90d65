package mail

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template names.
const (
	TemplatePasswordReset     = "password_reset"
	TemplateEmailVerification = "email_verification"
	TemplatePasswordChanged   = "password_changed"
	TemplateEmailVerified     = "email_verified"
)

type mailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[string]mailTemplate{
	TemplatePasswordReset: {
		subject: "Password Reset Instructions",
		body: template.Must(template.New(TemplatePasswordReset).Parse(`Hello {{.Name}},

You recently requested to reset your password. Open the link below to proceed:

{{.Link}}

If you didn't request this, please ignore this email.
This link will expire in {{.ExpiresIn}}.
`)),
	},
	TemplateEmailVerification: {
		subject: "Verify Your Email Address",
		body: template.Must(template.New(TemplateEmailVerification).Parse(`Welcome to the platform, {{.Name}}!

Please verify your email address to complete your registration:

{{.Link}}

If you didn't create this account, please ignore this email.
This link will expire in {{.ExpiresIn}}.
`)),
	},
	TemplatePasswordChanged: {
		subject: "Password Changed Successfully",
		body: template.Must(template.New(TemplatePasswordChanged).Parse(`Hello {{.Name}},

Your password was successfully updated.
If you didn't make this change, please contact our support team immediately.
`)),
	},
	TemplateEmailVerified: {
		subject: "Email Verified Successfully",
		body: template.Must(template.New(TemplateEmailVerified).Parse(`Hello {{.Name}},

Your email address has been successfully verified!
You can now log in to your account and start using our services.
`)),
	},
}

// Render builds a message from a named template.
func Render(name, to string, data any) (Message, error) {
	tmpl, ok := templates[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown mail template %q", name)
	}
	var b bytes.Buffer
	if err := tmpl.body.Execute(&b, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{To: to, Subject: tmpl.subject, Body: b.String()}, nil
}
