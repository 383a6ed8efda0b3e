package invoices

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/forecourt/forecourt/internal/pricing"
)

// formReader pulls typed values out of a parsed form, collecting a message
// per field that fails to parse.
type formReader struct {
	r    *http.Request
	errs map[string]string
}

func (f *formReader) str(name string) string {
	return strings.TrimSpace(f.r.PostFormValue(name))
}

func (f *formReader) money(name string) decimal.Decimal {
	d, err := parseMoney(f.r.PostFormValue(name))
	if err != nil {
		f.errs[name] = "Enter an amount like 1250.00"
	}
	return d
}

func (f *formReader) rate(name string) decimal.Decimal {
	raw := strings.TrimSuffix(f.str(name), "%")
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		f.errs[name] = "Enter a percentage like 20"
		return decimal.Zero
	}
	return d.Div(decimal.NewFromInt(100))
}

func (f *formReader) int(name string) int {
	raw := strings.ReplaceAll(f.str(name), ",", "")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		f.errs[name] = "Enter a whole number"
	}
	return n
}

func (f *formReader) id(name string) *int64 {
	raw := f.str(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

func (f *formReader) flag(name string) bool {
	switch f.str(name) {
	case "on", "1", "true", "yes":
		return true
	}
	return false
}

func (f *formReader) day(name string) Day {
	raw := f.str(name)
	if raw != "" && Day(raw).Time().IsZero() {
		f.errs[name] = "Enter a date as YYYY-MM-DD"
	}
	return Day(raw)
}

func (f *formReader) address(prefix string) Address {
	return Address{
		Street:   f.str(prefix + "_street"),
		Line2:    f.str(prefix + "_line2"),
		City:     f.str(prefix + "_city"),
		County:   f.str(prefix + "_county"),
		Postcode: strings.ToUpper(f.str(prefix + "_postcode")),
	}
}

func (f *formReader) addon(prefix string) pricing.Addon {
	return pricing.Addon{
		Name:     f.str(prefix + "_name"),
		Cost:     f.money(prefix + "_cost"),
		Discount: f.money(prefix + "_discount"),
		Enabled:  f.flag(prefix + "_enabled"),
	}
}

// addonList reads parallel <prefix>_name/_cost/_discount/_enabled lists,
// skipping rows with neither a name nor a cost.
func (f *formReader) addonList(prefix string) []pricing.Addon {
	names := f.r.PostForm[prefix+"_name"]
	var out []pricing.Addon
	for i, name := range names {
		a := pricing.Addon{Name: strings.TrimSpace(name)}
		var err error
		if a.Cost, err = parseMoney(at(f.r.PostForm[prefix+"_cost"], i)); err != nil {
			f.errs[prefix] = "Add-on amounts must look like 150.00"
		}
		if a.Discount, err = parseMoney(at(f.r.PostForm[prefix+"_discount"], i)); err != nil {
			f.errs[prefix] = "Add-on amounts must look like 150.00"
		}
		a.Enabled = at(f.r.PostForm[prefix+"_enabled"], i) == "1"
		if a.Name == "" && a.Cost.IsZero() {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (f *formReader) payments(prefix string) []Payment {
	amounts := f.r.PostForm[prefix+"_amount"]
	var out []Payment
	for i, raw := range amounts {
		amount, err := parseMoney(raw)
		if err != nil {
			f.errs[prefix] = "Payment amounts must look like 500.00"
			continue
		}
		if amount.IsZero() {
			continue
		}
		out = append(out, Payment{
			Amount:    amount,
			Date:      Day(strings.TrimSpace(at(f.r.PostForm[prefix+"_date"], i))),
			Reference: strings.TrimSpace(at(f.r.PostForm[prefix+"_reference"], i)),
		})
	}
	return out
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

func parseMoney(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.NewReplacer("£", "", ",", "").Replace(raw))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(2), nil
}

// DataFromForm reads the edit form. The returned map names fields that did
// not parse; the data holds zero values for them.
func DataFromForm(r *http.Request) (ComprehensiveInvoiceData, map[string]string) {
	f := &formReader{r: r, errs: map[string]string{}}
	d := ComprehensiveInvoiceData{
		Meta: Meta{
			InvoiceDate: f.day("invoice_date"),
			SaleDate:    f.day("sale_date"),
			SaleType:    pricing.SaleType(f.str("sale_type")),
			InvoiceTo:   pricing.InvoiceTo(f.str("invoice_to")),
			Salesperson: f.str("salesperson"),
		},
		Vehicle: VehicleDetails{
			Registration:          strings.ToUpper(strings.ReplaceAll(f.str("vehicle_registration"), " ", "")),
			Make:                  f.str("vehicle_make"),
			Model:                 f.str("vehicle_model"),
			Derivative:            f.str("vehicle_derivative"),
			VIN:                   strings.ToUpper(f.str("vehicle_vin")),
			EngineNumber:          f.str("vehicle_engine_number"),
			EngineCapacity:        f.str("vehicle_engine_capacity"),
			Colour:                f.str("vehicle_colour"),
			FuelType:              f.str("vehicle_fuel_type"),
			FirstRegistrationDate: f.day("vehicle_first_registered"),
			Mileage:               f.int("vehicle_mileage"),
			StockID:               f.id("vehicle_stock_id"),
		},
		Customer: CustomerDetails{
			Title:         f.str("customer_title"),
			FirstName:     f.str("customer_first_name"),
			MiddleName:    f.str("customer_middle_name"),
			Surname:       f.str("customer_surname"),
			Address:       f.address("customer"),
			ContactNumber: f.str("customer_phone"),
			Email:         f.str("customer_email"),
			CustomerID:    f.id("customer_id"),
		},
		FinanceCompany: FinanceCompany{
			Name:          f.str("finance_name"),
			CompanyName:   f.str("finance_company_name"),
			Address:       f.address("finance"),
			ContactNumber: f.str("finance_phone"),
			Email:         f.str("finance_email"),
			Reference:     f.str("finance_reference"),
		},
		Pricing: PricingDetails{
			SalePrice:                       f.money("sale_price"),
			DiscountOnSalePrice:             f.money("discount_on_sale_price"),
			WarrantyPrice:                   f.money("warranty_price"),
			DiscountOnWarranty:              f.money("discount_on_warranty"),
			EnhancedWarrantyPrice:           f.money("enhanced_warranty_price"),
			DiscountOnEnhancedWarranty:      f.money("discount_on_enhanced_warranty"),
			DeliveryCost:                    f.money("delivery_cost"),
			DiscountOnDelivery:              f.money("discount_on_delivery"),
			VATRate:                         f.rate("vat_rate"),
			CompulsorySaleDepositNonFinance: f.money("compulsory_sale_deposit"),
		},
		Warranty: Warranty{
			Level:                  f.str("warranty_level"),
			Name:                   f.str("warranty_name"),
			DurationMonths:         f.int("warranty_duration"),
			InHouse:                f.flag("warranty_in_house"),
			EnhancedLevel:          f.str("enhanced_warranty_level"),
			EnhancedName:           f.str("enhanced_warranty_name"),
			EnhancedDurationMonths: f.int("enhanced_warranty_duration"),
		},
		Delivery: Delivery{
			Type:     f.str("delivery_type"),
			Date:     f.day("delivery_date"),
			Location: f.str("delivery_location"),
		},
		Deposit: Deposit{
			AmountPaid: f.money("deposit_paid"),
			Date:       f.day("deposit_date"),
		},
		Payments: Payments{
			Card: f.payments("card"),
			BACS: f.payments("bacs"),
			Cash: f.payments("cash"),
		},
		Addons: Addons{
			Customer: AddonSet{
				Slot1:   f.addon("customer_addon1"),
				Slot2:   f.addon("customer_addon2"),
				Dynamic: f.addonList("customer_addon"),
			},
			Finance: AddonSet{
				Slot1:   f.addon("finance_addon1"),
				Slot2:   f.addon("finance_addon2"),
				Dynamic: f.addonList("finance_addon"),
			},
		},
		PartExchange: PartExchangeDetails{
			Included:     f.flag("px_included"),
			Registration: strings.ToUpper(f.str("px_registration")),
			MakeModel:    f.str("px_make_model"),
			Mileage:      f.int("px_mileage"),
			Value:        f.money("px_value"),
			Settlement:   f.money("px_settlement"),
		},
		Checklist: Checklist{
			MileageConfirmed: f.flag("check_mileage"),
			CambeltConfirmed: f.flag("check_cambelt"),
			ServiceHistory:   f.str("check_service_history"),
			NumberOfKeys:     f.int("check_keys"),
			UserManual:       f.flag("check_manual"),
			V5Present:        f.flag("check_v5"),
			Notes:            f.str("check_notes"),
		},
		Signature: Signature{
			CustomerAvailable: f.flag("signature_customer_available"),
			ImageKey:          f.str("signature_image_key"),
			Date:              f.day("signature_date"),
		},
		Terms: Terms{
			AdditionalInformation: f.str("additional_information"),
			Text:                  f.str("terms"),
		},
	}
	if d.Delivery.Type != DeliveryDelivery {
		d.Delivery.Type = DeliveryCollection
	}
	return d, f.errs
}
