package naming

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// NoProvider is the provenance used when a name carries no "@provider" suffix
const NoProvider = "no-provider"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Split separates "name@provider" into its base and provenance.
// The split happens on the last "@". A missing or blank provenance
// becomes NoProvider.
func Split(name string) (base, provenance string) {
	idx := strings.LastIndex(name, "@")
	if idx < 0 {
		return strings.TrimSpace(name), NoProvider
	}

	base = strings.TrimSpace(name[:idx])
	provenance = strings.TrimSpace(name[idx+1:])
	if provenance == "" {
		provenance = NoProvider
	}
	return base, provenance
}

// Sanitize replaces spaces and every character outside [A-Za-z0-9_.-]
// with an underscore
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	return unsafeChars.ReplaceAllString(s, "_")
}

// Namespace turns a gateway-local entity name into a registry-global one:
//
//	"redirect-to-https@file" -> "<node>-redirect-to-https__file"
//	"OIDC MZ@http"           -> "<node>-OIDC_MZ__http"
//	"compress"               -> "<node>-compress__no-provider"
func Namespace(name, node string) string {
	base, provenance := Split(name)
	return Sanitize(node + "-" + Sanitize(base) + "__" + Sanitize(provenance))
}

// NamespaceAll namespaces every name of a reference list
func NamespaceAll(names []string, node string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, Namespace(name, node))
	}
	return out
}

// ParseEndpoint extracts host and port from a service URL. Without an
// explicit port, https maps to 443 and everything else to 80.
func ParseEndpoint(rawURL string) (string, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, fmt.Errorf("invalid service URL %q: %w", rawURL, err)
	}

	host := u.Hostname()
	if host == "" {
		return "", 0, fmt.Errorf("cannot parse hostname from service URL %q", rawURL)
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return "", 0, fmt.Errorf("invalid port in service URL %q", rawURL)
		}
		return host, port, nil
	}

	if strings.EqualFold(u.Scheme, "https") {
		return host, 443, nil
	}
	return host, 80, nil
}
