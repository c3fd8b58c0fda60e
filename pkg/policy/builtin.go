package policy

import (
	"time"
)

// GetBuiltinRules returns the pattern rules compiled into every engine.
func GetBuiltinRules() []Rule {
	return []Rule{
		suspiciousLiteralsRule(),
		restrictedImportsRule(),
		forbiddenCallsRule(),
	}
}

// suspiciousLiteralsRule rejects string literals shaped like filesystem
// paths or network endpoints when they are passed as call arguments.
func suspiciousLiteralsRule() Rule {
	return Rule{
		Name:        "suspicious-literals",
		Description: "Rejects filesystem-path and network-endpoint literals used as call arguments",
		Enabled:     true,
		Tags:        []string{"literals", "exfiltration"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tabulark.rules.literals

import rego.v1

path_patterns := [
	"^/",
	"^\\.\\./",
	"^~/",
	"^[A-Za-z]:\\\\",
	"/etc/",
	"/proc/",
	"/dev/",
]

endpoint_patterns := [
	"^[a-z][a-z0-9+.-]*://",
	"^[A-Za-z0-9.-]+\\.[A-Za-z]{2,}:[0-9]+$",
	"^[0-9]{1,3}(\\.[0-9]{1,3}){3}(:[0-9]+)?$",
]

deny contains violation if {
	some lit in input.literals
	some pattern in path_patterns
	regex.match(pattern, lit.value)
	violation := {
		"category": "SuspiciousLiteral",
		"message": sprintf("literal %q passed to %s() looks like a filesystem path", [lit.value, lit.call]),
		"line": lit.line,
		"col": lit.col,
	}
}

deny contains violation if {
	some lit in input.literals
	some pattern in endpoint_patterns
	regex.match(pattern, lit.value)
	violation := {
		"category": "SuspiciousLiteral",
		"message": sprintf("literal %q passed to %s() looks like a network endpoint", [lit.value, lit.call]),
		"line": lit.line,
		"col": lit.col,
	}
}
`,
	}
}

// restrictedImportsRule rejects every load statement: generated code has
// no legitimate imports, the whole usable surface is predeclared.
func restrictedImportsRule() Rule {
	return Rule{
		Name:        "restricted-imports",
		Description: "Rejects all module loads; the operation surface is predeclared",
		Enabled:     true,
		Tags:        []string{"imports"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tabulark.rules.imports

import rego.v1

deny contains violation if {
	some imp in input.imports
	violation := {
		"category": "ForbiddenImport",
		"message": sprintf("load of %q is not permitted", [imp.module]),
		"line": imp.line,
		"col": imp.col,
	}
}
`,
	}
}

// forbiddenCallsRule is a backstop behind the registry's lexical check:
// even if a deny-listed name were re-allowed by misconfiguration, calls
// into the process/filesystem/network surface are still rejected here.
func forbiddenCallsRule() Rule {
	return Rule{
		Name:        "forbidden-calls",
		Description: "Backstop rejection of process, filesystem, and network call names",
		Enabled:     true,
		Tags:        []string{"calls"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tabulark.rules.calls

import rego.v1

blocked := {
	"open", "exec", "eval", "compile", "input",
	"getattr", "setattr", "hasattr", "delattr", "dir",
	"socket", "connect", "popen", "system", "spawn",
}

deny contains violation if {
	some call in input.calls
	blocked[call.name]
	violation := {
		"category": "ForbiddenCall",
		"message": sprintf("call to %s() is not permitted", [call.name]),
		"line": call.line,
		"col": call.col,
	}
}
`,
	}
}
