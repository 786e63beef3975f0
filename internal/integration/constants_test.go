package integration_test

const (
	TestUserId        = 1
	TestCustomerEmail = "buyer@example.com"

	TestStoreID       = "teststore"
	TestStorePassword = "teststore@ssl"
	TestBankTranID    = "2503011200001"
	TestValID         = "250301120000abc"
	TestRefundRefID   = "RF-1001"

	TestInvoiceSubtotal = "1400.00"
	TestInvoiceTax      = "100.00"
	TestInvoiceTotal    = "1500"
)
