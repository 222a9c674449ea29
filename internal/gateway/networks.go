package gateway

import "strings"

// NetworkTable maps mobile money network names to gateway bank codes.
// Lookups ignore case and surrounding whitespace.
type NetworkTable map[string]string

func NewNetworkTable(m map[string]string) NetworkTable {
	t := make(NetworkTable, len(m))
	for name, code := range m {
		t[strings.ToLower(strings.TrimSpace(name))] = code
	}
	return t
}

// BankCode returns the code for network and whether it is supported.
func (t NetworkTable) BankCode(network string) (string, bool) {
	code, ok := t[strings.ToLower(strings.TrimSpace(network))]
	return code, ok && code != ""
}
