package rbac

import "sort"

// Role names stored in users.role.
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleSales   = "sales"
	RoleViewer  = "viewer"
)

// Permission names checked by route groups.
const (
	PermStockView    = "stock.view"
	PermStockEdit    = "stock.edit"
	PermInvoiceView  = "invoice.view"
	PermInvoiceEdit  = "invoice.edit"
	PermInvoiceIssue = "invoice.issue"
	PermCustomerView = "customer.view"
	PermCustomerEdit = "customer.edit"
	PermUploadCreate = "upload.create"
	PermValuationUse = "valuation.use"
	PermDealerManage = "dealer.manage"
	PermJobsTrigger  = "jobs.trigger"
	PermAuditView    = "audit.view"
)

var viewerPerms = []string{PermStockView, PermInvoiceView, PermCustomerView}

var salesPerms = append(append([]string{}, viewerPerms...),
	PermStockEdit, PermInvoiceEdit, PermCustomerEdit, PermUploadCreate, PermValuationUse)

var managerPerms = append(append([]string{}, salesPerms...), PermInvoiceIssue, PermJobsTrigger, PermAuditView)

var ownerPerms = append(append([]string{}, managerPerms...), PermDealerManage)

var matrix = map[string][]string{
	RoleOwner:   ownerPerms,
	RoleManager: managerPerms,
	RoleSales:   salesPerms,
	RoleViewer:  viewerPerms,
}

// PermissionsFor returns the sorted permissions granted to role; unknown roles get none.
func PermissionsFor(role string) []string {
	perms := append([]string(nil), matrix[role]...)
	sort.Strings(perms)
	return perms
}

// ValidRole reports whether role is part of the matrix.
func ValidRole(role string) bool {
	_, ok := matrix[role]
	return ok
}
