package policy

// BuiltinPolicies returns the policies every Atrium deployment enforces.
func BuiltinPolicies() []Policy {
	return []Policy{
		businessJustificationPolicy(),
		exportFileCountPolicy(),
	}
}

// businessJustificationPolicy requires a non-empty business justification
// on every request before it can leave draft.
func businessJustificationPolicy() Policy {
	return Policy{
		Name:        "business-justification",
		Description: "Requires a non-empty business justification on every airlock request",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"airlock", "review"},
		Rego: `package atrium.policies.justification

import rego.v1

deny contains violation if {
	input.request
	not input.request.businessJustification
	violation := {
		"message": sprintf("Request %s has no business justification", [input.request.id]),
		"severity": "error",
		"request": input.request.id,
	}
}

deny contains violation if {
	input.request
	trim_space(input.request.businessJustification) == ""
	violation := {
		"message": sprintf("Request %s has an empty business justification", [input.request.id]),
		"severity": "error",
		"request": input.request.id,
	}
}
`,
	}
}

// exportFileCountPolicy bounds the number of files an export request may
// carry.
func exportFileCountPolicy() Policy {
	return Policy{
		Name:        "export-file-count",
		Description: "Bounds the number of files in an export request",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"airlock", "export"},
		Rego: `package atrium.policies.export

import rego.v1

deny contains violation if {
	input.request.type == "export"
	count(input.request.files) > input.context.max_export_files
	violation := {
		"message": sprintf("Export request %s has %d files, limit is %d", [input.request.id, count(input.request.files), input.context.max_export_files]),
		"severity": "error",
		"request": input.request.id,
	}
}
`,
	}
}
