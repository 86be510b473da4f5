package usersync

import (
	"strings"

	"github.com/gogotex/usersync/internal/config"
)

// MapUserData builds the directory payload for a provider user, starting from
// {id: subject}. Each rule is
// resolved against the provider attributes, then the provider's raw attributes,
// then the local user; the first non-nil value wins. A missing username is
// derived from the local part of the email.
func MapUserData(mapping config.FieldMapping, provider ProviderUser, local LocalUser) map[string]any {
	out := map[string]any{}
	if provider.Subject != "" {
		out["id"] = provider.Subject
	} else if v, ok := firstValue(provider.Attributes, "id", "sub"); ok {
		out["id"] = v
	}

	for _, rule := range mapping {
		if v, ok := resolve(rule.Source, provider, local); ok {
			out[rule.Target] = v
		}
	}

	if username, _ := out["username"].(string); username == "" {
		if email, _ := out["email"].(string); email != "" {
			name, _, _ := strings.Cut(email, "@")
			out["username"] = name
		}
	}

	for k, v := range out {
		if v == nil {
			delete(out, k)
		}
	}
	return out
}

func resolve(source string, provider ProviderUser, local LocalUser) (any, bool) {
	for _, m := range []map[string]any{provider.Attributes, provider.Raw, local.Fields} {
		if v, ok := m[source]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}
