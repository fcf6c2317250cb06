package auth

import (
	"fmt"
	"strings"
)

// MessageComposer builds the outbound messages this package sends:
// verification links and team invites. Delivery is the Messenger's problem;
// composition stays here so link formats live in one place.
type MessageComposer struct {
	baseURL string
	appName string
}

func NewMessageComposer(baseURL, appName string) *MessageComposer {
	return &MessageComposer{
		baseURL: strings.TrimRight(baseURL, "/"),
		appName: appName,
	}
}

// VerificationLink is the URL embedded in verification emails.
func (m *MessageComposer) VerificationLink(token string) string {
	return fmt.Sprintf("%s/verify/%s", m.baseURL, token)
}

// InviteLink is the URL embedded in team invite emails.
func (m *MessageComposer) InviteLink(token string) string {
	return fmt.Sprintf("%s/invites/accept/%s", m.baseURL, token)
}

// ComposeVerification renders the verification email for a user.
func (m *MessageComposer) ComposeVerification(user *User, token string) (subject, body string) {
	subject = fmt.Sprintf("Verify your %s email address", m.appName)
	body = fmt.Sprintf(
		"Hi %s,\n\nConfirm your email address to finish setting up your %s account:\n\n%s\n\nThe link is valid for %d days. If you did not create this account you can ignore this message.\n",
		displayName(user),
		m.appName,
		m.VerificationLink(token),
		int(DefaultVerificationMaxAge.Hours())/24,
	)
	return subject, body
}

// ComposeInvite renders the invite email for a pending team invite.
func (m *MessageComposer) ComposeInvite(invite *TeamInvite, inviterName, accountName string) (subject, body string) {
	subject = fmt.Sprintf("You have been invited to join %s on %s", accountName, m.appName)
	body = fmt.Sprintf(
		"%s invited you to join %s as %s.\n\nAccept the invite here:\n\n%s\n\nThe invite expires on %s.\n",
		inviterName,
		accountName,
		invite.Role,
		m.InviteLink(invite.Token),
		invite.ExpiresAt.Format("Jan 2, 2006"),
	)
	return subject, body
}

func displayName(user *User) string {
	if user == nil {
		return "there"
	}
	if user.FirstName != "" {
		return user.FirstName
	}
	if at := strings.Index(user.Email, "@"); at > 0 {
		return user.Email[:at]
	}
	return "there"
}
