package draft

import "sort"

// Template describes one document type the generator can draft.
type Template struct {
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	RequiredFields []string `json:"requiredFields"`
	OptionalFields []string `json:"optionalFields,omitempty"`
	Sections       []string `json:"sections"`
}

var templates = map[string]Template{
	"nda": {
		Type:           "nda",
		Title:          "Non-Disclosure Agreement",
		Description:    "Mutual or one-way confidentiality agreement between two parties.",
		RequiredFields: []string{"disclosingParty", "receivingParty", "purpose"},
		OptionalFields: []string{"term", "jurisdiction", "effectiveDate"},
		Sections: []string{
			"Parties and effective date",
			"Definition of confidential information",
			"Obligations of the receiving party",
			"Exclusions from confidentiality",
			"Term and termination",
			"Return or destruction of materials",
			"Governing law",
			"Signatures",
		},
	},
	"employment_contract": {
		Type:           "employment_contract",
		Title:          "Employment Contract",
		Description:    "Agreement setting out the terms of employment between an employer and an employee.",
		RequiredFields: []string{"employer", "employee", "position", "salary", "startDate"},
		OptionalFields: []string{"workLocation", "probationPeriod", "noticePeriod", "benefits"},
		Sections: []string{
			"Parties",
			"Position and duties",
			"Commencement and probation",
			"Remuneration and benefits",
			"Working hours and leave",
			"Confidentiality and intellectual property",
			"Termination and notice",
			"Governing law",
			"Signatures",
		},
	},
	"lease_agreement": {
		Type:           "lease_agreement",
		Title:          "Lease Agreement",
		Description:    "Residential or commercial lease between a landlord and a tenant.",
		RequiredFields: []string{"landlord", "tenant", "propertyAddress", "rentAmount", "leaseTerm"},
		OptionalFields: []string{"securityDeposit", "paymentDay", "utilities", "petsAllowed"},
		Sections: []string{
			"Parties and premises",
			"Term of lease",
			"Rent and payment",
			"Security deposit",
			"Use of premises",
			"Maintenance and repairs",
			"Termination",
			"Signatures",
		},
	},
	"service_agreement": {
		Type:           "service_agreement",
		Title:          "Service Agreement",
		Description:    "Agreement under which a provider performs services for a client.",
		RequiredFields: []string{"provider", "client", "services", "fee"},
		OptionalFields: []string{"paymentTerms", "startDate", "endDate", "deliverables"},
		Sections: []string{
			"Parties",
			"Scope of services",
			"Fees and payment",
			"Term and termination",
			"Warranties",
			"Limitation of liability",
			"Confidentiality",
			"Signatures",
		},
	},
	"sales_contract": {
		Type:           "sales_contract",
		Title:          "Sales Contract",
		Description:    "Contract for the sale of goods between a seller and a buyer.",
		RequiredFields: []string{"seller", "buyer", "goods", "price"},
		OptionalFields: []string{"deliveryDate", "deliveryAddress", "warranty"},
		Sections: []string{
			"Parties",
			"Description of goods",
			"Purchase price and payment",
			"Delivery",
			"Inspection and acceptance",
			"Warranties",
			"Risk and title",
			"Signatures",
		},
	},
	"power_of_attorney": {
		Type:           "power_of_attorney",
		Title:          "Power of Attorney",
		Description:    "Instrument authorizing an agent to act on behalf of a principal.",
		RequiredFields: []string{"principal", "agent", "powers"},
		OptionalFields: []string{"effectiveDate", "expiryDate", "durable"},
		Sections: []string{
			"Appointment of agent",
			"Powers granted",
			"Limitations",
			"Effective date and duration",
			"Revocation",
			"Signatures and acknowledgment",
		},
	},
	"loan_agreement": {
		Type:           "loan_agreement",
		Title:          "Loan Agreement",
		Description:    "Agreement for a lender to advance money to a borrower.",
		RequiredFields: []string{"lender", "borrower", "principalAmount", "interestRate", "repaymentTerms"},
		OptionalFields: []string{"collateral", "lateFee", "maturityDate"},
		Sections: []string{
			"Parties",
			"Loan amount",
			"Interest",
			"Repayment schedule",
			"Prepayment",
			"Default and remedies",
			"Governing law",
			"Signatures",
		},
	},
	"partnership_agreement": {
		Type:           "partnership_agreement",
		Title:          "Partnership Agreement",
		Description:    "Agreement between partners forming a business partnership.",
		RequiredFields: []string{"partners", "businessName", "businessPurpose", "capitalContributions"},
		OptionalFields: []string{"profitSharing", "management", "dissolution"},
		Sections: []string{
			"Formation and name",
			"Purpose",
			"Capital contributions",
			"Profits and losses",
			"Management and voting",
			"Admission and withdrawal of partners",
			"Dissolution",
			"Signatures",
		},
	},
}

// Lookup returns the template for a document type.
func Lookup(documentType string) (Template, bool) {
	t, ok := templates[documentType]
	return t, ok
}

// Templates returns every template ordered by type.
func Templates() []Template {
	out := make([]Template, 0, len(templates))
	for _, t := range templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// MissingFields lists required fields absent or blank in details.
func (t Template) MissingFields(details map[string]string) []string {
	var missing []string
	for _, field := range t.RequiredFields {
		if value, ok := details[field]; !ok || isBlank(value) {
			missing = append(missing, field)
		}
	}
	return missing
}
