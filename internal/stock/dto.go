package stock

import "github.com/shopspring/decimal"

type VehicleInput struct {
	Registration  string          `json:"registration" validate:"required,min=2,max=10"`
	VIN           string          `json:"vin" validate:"omitempty,len=17,alphanum"`
	Make          string          `json:"make" validate:"required,max=60"`
	Model         string          `json:"model" validate:"required,max=60"`
	Derivative    string          `json:"derivative" validate:"max=120"`
	Year          int             `json:"year" validate:"omitempty,gte=1900,lte=2100"`
	Mileage       int             `json:"mileage" validate:"gte=0,lte=2000000"`
	Colour        string          `json:"colour" validate:"max=40"`
	FuelType      string          `json:"fuelType" validate:"max=40"`
	Transmission  string          `json:"transmission" validate:"max=40"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	RetailPrice   decimal.Decimal `json:"retailPrice"`
	Status        Status          `json:"status"`
	Notes         string          `json:"notes" validate:"max=4000"`
}

type ListVehiclesRequest struct {
	DealerID int64  `validate:"required,gt=0"`
	Status   Status `validate:"omitempty,oneof=in_stock reserved sold"`
	Make     string `validate:"max=60"`
	Search   string `validate:"max=100"`
	Limit    int    `validate:"gte=0,lte=10000"`
	Offset   int    `validate:"gte=0"`
}

// NewImage is an uploaded photo waiting to be stored.
type NewImage struct {
	FileName    string
	ContentType string
	Data        []byte
}
