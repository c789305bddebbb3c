package quickbooks

// Entity names as they appear in QBO response envelopes. The REST path is
// the lower-cased name.
const (
	EntityAccount       = "Account"
	EntityCompanyInfo   = "CompanyInfo"
	EntityCreditMemo    = "CreditMemo"
	EntityCustomer      = "Customer"
	EntityInvoice       = "Invoice"
	EntityItem          = "Item"
	EntityPayment       = "Payment"
	EntityPaymentMethod = "PaymentMethod"
	EntityRefundReceipt = "RefundReceipt"
	EntitySalesOrder    = "SalesOrder"
	EntitySalesReceipt  = "SalesReceipt"
	EntityTaxCode       = "TaxCode"
	EntityTaxRate       = "TaxRate"
)

const (
	DetailTypeSalesItem = "SalesItemLineDetail"

	GlobalTaxExcluded = "TaxExcluded"

	TaxCodeTaxable = "TAX"
	TaxCodeExempt  = "NON"
)

type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

func NewRef(value string) *Ref {
	if value == "" {
		return nil
	}
	return &Ref{Value: value}
}

type EmailAddress struct {
	Address string `json:"Address"`
}

type PhysicalAddress struct {
	Line1                  string `json:"Line1,omitempty"`
	City                   string `json:"City,omitempty"`
	Country                string `json:"Country,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
}

type SalesItemLineDetail struct {
	ItemRef    Ref     `json:"ItemRef"`
	Qty        float64 `json:"Qty,omitempty"`
	UnitPrice  float64 `json:"UnitPrice"`
	TaxCodeRef *Ref    `json:"TaxCodeRef,omitempty"`
}

type LinkedTxn struct {
	TxnID   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

type Line struct {
	ID                  string               `json:"Id,omitempty"`
	DetailType          string               `json:"DetailType,omitempty"`
	Amount              float64              `json:"Amount"`
	Description         string               `json:"Description,omitempty"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
	LinkedTxn           []LinkedTxn          `json:"LinkedTxn,omitempty"`
}

type TxnTaxDetail struct {
	TxnTaxCodeRef *Ref    `json:"TxnTaxCodeRef,omitempty"`
	TotalTax      float64 `json:"TotalTax"`
}

type Invoice struct {
	ID                           string        `json:"Id,omitempty"`
	SyncToken                    string        `json:"SyncToken,omitempty"`
	DocNumber                    string        `json:"DocNumber,omitempty"`
	CustomerRef                  Ref           `json:"CustomerRef"`
	Line                         []Line        `json:"Line"`
	TxnDate                      string        `json:"TxnDate,omitempty"`
	DueDate                      string        `json:"DueDate,omitempty"`
	TotalAmt                     float64       `json:"TotalAmt"`
	Balance                      float64       `json:"Balance,omitempty"`
	PrivateNote                  string        `json:"PrivateNote,omitempty"`
	CurrencyRef                  *Ref          `json:"CurrencyRef,omitempty"`
	GlobalTaxCalculation         string        `json:"GlobalTaxCalculation,omitempty"`
	TxnTaxDetail                 *TxnTaxDetail `json:"TxnTaxDetail,omitempty"`
	AllowOnlineACHPayment        bool          `json:"AllowOnlineACHPayment"`
	AllowOnlineCreditCardPayment bool          `json:"AllowOnlineCreditCardPayment"`
}

type Payment struct {
	ID                  string  `json:"Id,omitempty"`
	CustomerRef         Ref     `json:"CustomerRef"`
	TotalAmt            float64 `json:"TotalAmt"`
	TxnDate             string  `json:"TxnDate,omitempty"`
	PaymentRefNum       string  `json:"PaymentRefNum,omitempty"`
	PaymentMethodRef    *Ref    `json:"PaymentMethodRef,omitempty"`
	DepositToAccountRef *Ref    `json:"DepositToAccountRef,omitempty"`
	CurrencyRef         *Ref    `json:"CurrencyRef,omitempty"`
	PrivateNote         string  `json:"PrivateNote,omitempty"`
	Line                []Line  `json:"Line,omitempty"`
}

type SalesReceipt struct {
	ID                   string        `json:"Id,omitempty"`
	CustomerRef          Ref           `json:"CustomerRef"`
	Line                 []Line        `json:"Line"`
	TxnDate              string        `json:"TxnDate,omitempty"`
	TotalAmt             float64       `json:"TotalAmt"`
	PaymentRefNum        string        `json:"PaymentRefNum,omitempty"`
	PaymentMethodRef     *Ref          `json:"PaymentMethodRef,omitempty"`
	DepositToAccountRef  *Ref          `json:"DepositToAccountRef,omitempty"`
	CurrencyRef          *Ref          `json:"CurrencyRef,omitempty"`
	PrivateNote          string        `json:"PrivateNote,omitempty"`
	GlobalTaxCalculation string        `json:"GlobalTaxCalculation,omitempty"`
	TxnTaxDetail         *TxnTaxDetail `json:"TxnTaxDetail,omitempty"`
}

type RefundReceipt struct {
	ID                   string        `json:"Id,omitempty"`
	CustomerRef          Ref           `json:"CustomerRef"`
	Line                 []Line        `json:"Line"`
	TxnDate              string        `json:"TxnDate,omitempty"`
	TotalAmt             float64       `json:"TotalAmt"`
	PaymentRefNum        string        `json:"PaymentRefNum,omitempty"`
	PaymentMethodRef     *Ref          `json:"PaymentMethodRef,omitempty"`
	DepositToAccountRef  *Ref          `json:"DepositToAccountRef,omitempty"`
	CurrencyRef          *Ref          `json:"CurrencyRef,omitempty"`
	PrivateNote          string        `json:"PrivateNote,omitempty"`
	GlobalTaxCalculation string        `json:"GlobalTaxCalculation,omitempty"`
	TxnTaxDetail         *TxnTaxDetail `json:"TxnTaxDetail,omitempty"`
}

type CreditMemo struct {
	ID                   string        `json:"Id,omitempty"`
	DocNumber            string        `json:"DocNumber,omitempty"`
	CustomerRef          Ref           `json:"CustomerRef"`
	Line                 []Line        `json:"Line"`
	TxnDate              string        `json:"TxnDate,omitempty"`
	TotalAmt             float64       `json:"TotalAmt"`
	CurrencyRef          *Ref          `json:"CurrencyRef,omitempty"`
	PrivateNote          string        `json:"PrivateNote,omitempty"`
	GlobalTaxCalculation string        `json:"GlobalTaxCalculation,omitempty"`
	TxnTaxDetail         *TxnTaxDetail `json:"TxnTaxDetail,omitempty"`
}

type SalesOrder struct {
	ID                   string        `json:"Id,omitempty"`
	DocNumber            string        `json:"DocNumber,omitempty"`
	CustomerRef          Ref           `json:"CustomerRef"`
	Line                 []Line        `json:"Line"`
	TxnDate              string        `json:"TxnDate,omitempty"`
	TotalAmt             float64       `json:"TotalAmt"`
	CurrencyRef          *Ref          `json:"CurrencyRef,omitempty"`
	PrivateNote          string        `json:"PrivateNote,omitempty"`
	GlobalTaxCalculation string        `json:"GlobalTaxCalculation,omitempty"`
	TxnTaxDetail         *TxnTaxDetail `json:"TxnTaxDetail,omitempty"`
}

type Item struct {
	ID               string  `json:"Id,omitempty"`
	Name             string  `json:"Name"`
	Type             string  `json:"Type,omitempty"`
	Sku              string  `json:"Sku,omitempty"`
	Description      string  `json:"Description,omitempty"`
	UnitPrice        float64 `json:"UnitPrice,omitempty"`
	Taxable          bool    `json:"Taxable"`
	Active           bool    `json:"Active,omitempty"`
	IncomeAccountRef *Ref    `json:"IncomeAccountRef,omitempty"`
}

type Customer struct {
	ID               string        `json:"Id,omitempty"`
	SyncToken        string        `json:"SyncToken,omitempty"`
	Sparse           bool          `json:"sparse,omitempty"`
	DisplayName      string        `json:"DisplayName,omitempty"`
	GivenName        string        `json:"GivenName,omitempty"`
	FamilyName       string        `json:"FamilyName,omitempty"`
	PrimaryEmailAddr *EmailAddress `json:"PrimaryEmailAddr,omitempty"`
	Notes            string        `json:"Notes,omitempty"`
}

type Account struct {
	ID                 string `json:"Id,omitempty"`
	Name               string `json:"Name"`
	AccountType        string `json:"AccountType,omitempty"`
	AccountSubType     string `json:"AccountSubType,omitempty"`
	FullyQualifiedName string `json:"FullyQualifiedName,omitempty"`
	Active             bool   `json:"Active,omitempty"`
}

type PaymentMethod struct {
	ID   string `json:"Id,omitempty"`
	Name string `json:"Name"`
	Type string `json:"Type,omitempty"`
}

type TaxRateDetail struct {
	TaxRateRef Ref `json:"TaxRateRef"`
}

type TaxRateList struct {
	TaxRateDetail []TaxRateDetail `json:"TaxRateDetail"`
}

type TaxCode struct {
	ID                  string       `json:"Id"`
	Name                string       `json:"Name"`
	Active              bool         `json:"Active"`
	Taxable             bool         `json:"Taxable"`
	SalesTaxRateList    *TaxRateList `json:"SalesTaxRateList,omitempty"`
	PurchaseTaxRateList *TaxRateList `json:"PurchaseTaxRateList,omitempty"`
}

type TaxRate struct {
	ID        string  `json:"Id"`
	Name      string  `json:"Name"`
	RateValue float64 `json:"RateValue"`
	Active    bool    `json:"Active"`
}

type CompanyInfo struct {
	ID          string           `json:"Id"`
	CompanyName string           `json:"CompanyName"`
	Country     string           `json:"Country"`
	CompanyAddr *PhysicalAddress `json:"CompanyAddr,omitempty"`
}

// QueryResponse is the body of GET /query; only the queried entity's slice
// is populated.
type QueryResponse struct {
	Account       []Account       `json:"Account"`
	CompanyInfo   []CompanyInfo   `json:"CompanyInfo"`
	Customer      []Customer      `json:"Customer"`
	Item          []Item          `json:"Item"`
	PaymentMethod []PaymentMethod `json:"PaymentMethod"`
	TaxCode       []TaxCode       `json:"TaxCode"`
	TaxRate       []TaxRate       `json:"TaxRate"`
	StartPosition int             `json:"startPosition"`
	MaxResults    int             `json:"maxResults"`
}
