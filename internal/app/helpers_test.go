package app

import (
	"net"

	"github.com/gogotex/usersync/internal/usersync"
)

func splitAddr(addr string) (string, string, error) {
	return net.SplitHostPort(addr)
}

func providerUser(sub string) usersync.ProviderUser {
	return usersync.NewProviderUser(map[string]any{"sub": sub, "email": sub + "@example.com"})
}

func localUser(id string) usersync.LocalUser {
	return usersync.NewLocalUser(map[string]any{"id": id})
}
