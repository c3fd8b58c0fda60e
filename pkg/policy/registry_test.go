package policy

import "testing"

func TestDefaultRegistryAllowedCalls(t *testing.T) {
	r := DefaultRegistry()

	allowed := []string{"filter", "groupby", "merge", "sum", "len", "sorted"}
	for _, name := range allowed {
		if !r.IsAllowedCall(name) {
			t.Errorf("expected %q to be allowed", name)
		}
	}

	denied := []string{"open", "exec", "eval", "subprocess", "nonsense"}
	for _, name := range denied {
		if r.IsAllowedCall(name) {
			t.Errorf("expected %q not to be allowed", name)
		}
	}
}

func TestDefaultRegistryForbiddenTokens(t *testing.T) {
	r := DefaultRegistry()

	for _, name := range []string{"load", "os", "socket", "__import__", "environ"} {
		if !r.IsForbiddenToken(name) {
			t.Errorf("expected token %q to be forbidden", name)
		}
	}
	if r.IsForbiddenToken("filter") {
		t.Error("filter should not be forbidden")
	}
}

func TestNewRegistryExtraEntries(t *testing.T) {
	r := NewRegistry([]string{"explode"}, []string{"explode", "custom_bad"})

	// Deny wins when a name is on both lists.
	if r.IsAllowedCall("explode") {
		t.Error("deny-listed name must not be allowed")
	}
	if !r.IsForbiddenToken("explode") {
		t.Error("extra forbidden token not registered")
	}
	if !r.IsForbiddenToken("custom_bad") {
		t.Error("extra forbidden token not registered")
	}
}

func TestRegistryListsAreSorted(t *testing.T) {
	r := DefaultRegistry()

	calls := r.AllowedCalls()
	for i := 1; i < len(calls); i++ {
		if calls[i-1] >= calls[i] {
			t.Fatalf("AllowedCalls not sorted at %d: %q >= %q", i, calls[i-1], calls[i])
		}
	}

	tokens := r.ForbiddenTokens()
	for i := 1; i < len(tokens); i++ {
		if tokens[i-1] >= tokens[i] {
			t.Fatalf("ForbiddenTokens not sorted at %d: %q >= %q", i, tokens[i-1], tokens[i])
		}
	}
}
