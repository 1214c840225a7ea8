package services

import "time"

const (
	DefaultTestPeriodDays = 21
	MaxTestPeriodDays     = 60
)

// Protocol is a test campaign participants join through its share link.
type Protocol struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	ShareLink      string    `json:"shareLink"`
	ProductName    string    `json:"productName,omitempty"`
	TestPeriodDays int       `json:"testPeriodDays"`
	MaterialState  string    `json:"materialState,omitempty"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PublicProtocol is the participant-facing view of a protocol.
type PublicProtocol struct {
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	ShareLink      string `json:"shareLink"`
	ProductName    string `json:"productName,omitempty"`
	TestPeriodDays int    `json:"testPeriodDays"`
}

func (p *Protocol) Public() PublicProtocol {
	return PublicProtocol{
		Title:          p.Title,
		Description:    p.Description,
		ShareLink:      p.ShareLink,
		ProductName:    p.ProductName,
		TestPeriodDays: p.TestPeriodDays,
	}
}

type Admin struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	PassHash  []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
