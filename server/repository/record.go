package repository

import (
	"math"
	"time"

	"github.com/ponyo877/chatrelay/server/domain"
)

// pmRecord is the stored shape of a private message. Timestamp is Unix
// seconds with a fractional part.
type pmRecord struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

func newPMRecord(m domain.PrivateMessage) pmRecord {
	return pmRecord{
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Message:   m.Body,
		Timestamp: float64(m.CreatedAt.UnixNano()) / float64(time.Second),
	}
}

func (r pmRecord) toDomain() domain.PrivateMessage {
	sec, frac := math.Modf(r.Timestamp)
	createdAt := time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second))))
	return domain.NewPrivateMessage(r.Sender, r.Recipient, r.Message, createdAt)
}
