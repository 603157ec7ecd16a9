// Package queue defines the mail events exchanged over RabbitMQ and the
// worker that delivers them.
package queue

// PasswordResetQueue is the default queue for reset mails.
const PasswordResetQueue = "mail.password_reset"

// PasswordResetMail is published when a user asks for a password reset. It
// carries everything the worker needs to deliver the mail without touching
// the credential store.
type PasswordResetMail struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	ResetURL    string `json:"reset_url"`
	RequestedAt string `json:"requested_at"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// Body renders the plain-text mail body. Events without an expiry fall back
// to wording that names no deadline.
func (m PasswordResetMail) Body() string {
	validity := "The link can be used once."
	if m.ExpiresAt != "" {
		validity = "The link can be used once and expires at " + m.ExpiresAt + "."
	}
	return "You requested a password reset.\r\n\r\n" +
		"Open this link to set a new password:\r\n" + m.ResetURL + "\r\n\r\n" +
		validity + " If you did not ask for it, ignore this mail.\r\n"
}
