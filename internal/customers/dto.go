package customers

type CustomerInput struct {
	Title        string `json:"title" validate:"max=20"`
	FirstName    string `json:"firstName" validate:"required,max=100"`
	MiddleName   string `json:"middleName" validate:"max=100"`
	LastName     string `json:"lastName" validate:"required,max=100"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone" validate:"max=30"`
	AddressLine1 string `json:"addressLine1" validate:"max=200"`
	AddressLine2 string `json:"addressLine2" validate:"max=200"`
	City         string `json:"city" validate:"max=100"`
	County       string `json:"county" validate:"max=100"`
	Postcode     string `json:"postcode" validate:"max=10"`
	Notes        string `json:"notes" validate:"max=2000"`
}

type ListCustomersRequest struct {
	DealerID int64  `validate:"required,gt=0"`
	Search   string `validate:"max=100"`
	Limit    int    `validate:"gte=0,lte=1000"`
	Offset   int    `validate:"gte=0"`
}
