package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leadlocal/go-auth"
	"github.com/stretchr/testify/assert"
)

func TestMessageComposerLinks(t *testing.T) {
	composer := auth.NewMessageComposer("https://app.example.com/", "LeadLocal")

	// trailing slash on the base URL does not double up
	assert.Equal(t,
		"https://app.example.com/verify/tok-123",
		composer.VerificationLink("tok-123"))
	assert.Equal(t,
		"https://app.example.com/invites/accept/tok-456",
		composer.InviteLink("tok-456"))
}

func TestComposeVerification(t *testing.T) {
	composer := auth.NewMessageComposer("https://app.example.com", "LeadLocal")

	t.Run("greets by first name", func(t *testing.T) {
		user := &auth.User{FirstName: "Jane", Email: "jane@example.com"}
		subject, body := composer.ComposeVerification(user, "tok-123")

		assert.Equal(t, "Verify your LeadLocal email address", subject)
		assert.Contains(t, body, "Hi Jane,")
		assert.Contains(t, body, "https://app.example.com/verify/tok-123")
	})

	t.Run("falls back to the email local part", func(t *testing.T) {
		user := &auth.User{Email: "jane.doe@example.com"}
		_, body := composer.ComposeVerification(user, "tok-123")
		assert.Contains(t, body, "Hi jane.doe,")
	})

	t.Run("nil user still composes", func(t *testing.T) {
		_, body := composer.ComposeVerification(nil, "tok-123")
		assert.Contains(t, body, "Hi there,")
	})
}

func TestComposeInvite(t *testing.T) {
	composer := auth.NewMessageComposer("https://app.example.com", "LeadLocal")

	expires := time.Date(2026, time.September, 5, 12, 0, 0, 0, time.UTC)
	invite := &auth.TeamInvite{
		ID:        uuid.New(),
		Email:     "new.member@example.com",
		Role:      auth.RoleMember,
		Token:     "tok-789",
		Status:    auth.InviteStatusPending,
		ExpiresAt: &expires,
	}

	subject, body := composer.ComposeInvite(invite, "Jane", "Acme")

	assert.Equal(t, "You have been invited to join Acme on LeadLocal", subject)
	assert.Contains(t, body, "Jane invited you to join Acme as member.")
	assert.Contains(t, body, "https://app.example.com/invites/accept/tok-789")
	assert.Contains(t, body, "Sep 5, 2026")
}
