package enum

// EmailSecurity is the connection security mode for an IMAP endpoint.
type EmailSecurity string

const (
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "starttls"
	EmailSecurityNone     EmailSecurity = "none"
)

func (e EmailSecurity) String() string {
	return string(e)
}
