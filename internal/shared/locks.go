package shared

import "fmt"

// InvoiceLockKey builds the redis key guarding concurrent work on one invoice.
func InvoiceLockKey(invoiceID int64) string {
	return fmt.Sprintf("forecourt:invoice:%d:lock", invoiceID)
}
