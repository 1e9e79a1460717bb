package domain

import "time"

type User struct {
	Username       string
	PasswordDigest string
}

func NewUser(username, passwordDigest string) User {
	return User{
		Username:       username,
		PasswordDigest: passwordDigest,
	}
}

type PrivateMessage struct {
	Sender    string
	Recipient string
	Body      string
	CreatedAt time.Time
}

func NewPrivateMessage(sender, recipient, body string, createdAt time.Time) PrivateMessage {
	return PrivateMessage{
		Sender:    sender,
		Recipient: recipient,
		Body:      body,
		CreatedAt: createdAt,
	}
}

// Between reports whether the message was exchanged by the unordered pair {a, b}.
func (m PrivateMessage) Between(a, b string) bool {
	return (m.Sender == a && m.Recipient == b) || (m.Sender == b && m.Recipient == a)
}

// PairKey identifies the conversation of two users independent of direction.
// Usernames never contain whitespace, so a space cannot collide.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + " " + b
}
