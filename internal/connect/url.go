package connect

import (
	"fmt"
	"net/url"
	"strings"

	"kanmonconnect/internal/protocol"
)

// Environment selects which Connect deployment the surface loads.
type Environment string

const (
	Production  Environment = "production"
	Sandbox     Environment = "sandbox"
	Staging     Environment = "staging"
	Development Environment = "development"
)

var endpoints = map[Environment]string{
	Production: "https://connect.kanmon.com",
	Sandbox:    "https://connect.kanmon.dev",
	Staging:    "https://connect.concar.dev",
	// Android emulators reach the host machine at 10.0.2.2 instead.
	Development: "http://localhost:4200",
}

// BaseURL returns the endpoint for env; the empty environment is production.
func BaseURL(env Environment) (string, error) {
	if env == "" {
		env = Production
	}
	base, ok := endpoints[env]
	if !ok {
		return "", &ValidationError{Field: "environment", Reason: fmt.Sprintf("unknown environment %q", env)}
	}
	return base, nil
}

// URLParams are the values encoded into the load URL.
type URLParams struct {
	BaseURL                       string
	ConnectToken                  string
	CustomInitializationName      string
	ProductSubsetDuringOnboarding []protocol.ProductType
}

// BuildURL renders {base}/connect?connectToken=..&disableModalTransition=true[..]
// with every key and value percent-encoded, in that parameter order.
func BuildURL(p URLParams) string {
	type kv struct{ key, value string }
	params := []kv{
		{"connectToken", p.ConnectToken},
		{"disableModalTransition", "true"},
	}
	if p.CustomInitializationName != "" {
		params = append(params, kv{"customInitializationName", p.CustomInitializationName})
	}
	if len(p.ProductSubsetDuringOnboarding) > 0 {
		names := make([]string, len(p.ProductSubsetDuringOnboarding))
		for i, prod := range p.ProductSubsetDuringOnboarding {
			names[i] = string(prod)
		}
		params = append(params, kv{"productSubsetDuringOnboarding", strings.Join(names, ",")})
	}

	parts := make([]string, len(params))
	for i, param := range params {
		parts[i] = encodeComponent(param.key) + "=" + encodeComponent(param.value)
	}
	return strings.TrimRight(p.BaseURL, "/") + "/connect?" + strings.Join(parts, "&")
}

// encodeComponent percent-encodes s, spaces included, leaving only
// unreserved characters bare.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
