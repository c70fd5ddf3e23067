package models

// PermissionCatalog is the global set of permission codes the handlers gate
// on. Seeded into the permission store at startup; codes are stable and safe
// to reference from route registrations.
var PermissionCatalog = []Permission{
	{Code: "organization.create", Description: "Create organizations"},
	{Code: "organization.update", Description: "Update organizations"},
	{Code: "organization.delete", Description: "Delete organizations"},
	{Code: "user.create", Description: "Create users"},
	{Code: "user.update", Description: "Update users"},
	{Code: "user.delete", Description: "Deactivate users"},
	{Code: "role.manage", Description: "Create roles and manage their permissions"},
	{Code: "role.assign", Description: "Assign and remove user roles"},
	{Code: "standard.create", Description: "Create standards and versions"},
	{Code: "standard.update", Description: "Update standards, lock versions"},
	{Code: "control.import", Description: "Bulk-import controls from CSV"},
	{Code: "question.manage", Description: "Create and map questions"},
	{Code: "assessment.create", Description: "Create assessments"},
	{Code: "assessment.update", Description: "Update and transition assessments"},
	{Code: "assessment.assign", Description: "Create assignments"},
	{Code: "response.submit", Description: "Create and submit responses"},
	{Code: "response.review", Description: "Approve or reject submitted responses"},
	{Code: "evidence.upload", Description: "Upload and link evidence"},
	{Code: "evidence.validate", Description: "Validate evidence"},
	{Code: "finding.manage", Description: "Create and transition findings"},
	{Code: "remediation.manage", Description: "Manage remediation actions and tasks"},
	{Code: "report.view", Description: "View reporting aggregates"},
	{Code: "audit.view", Description: "Query the tenant audit trail"},
}
