package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/lexshelf/internal/api"
	"github.com/jackzampolin/lexshelf/internal/config"
	"github.com/jackzampolin/lexshelf/internal/svcctx"
	"github.com/jackzampolin/lexshelf/internal/types"
)

// SettingsEndpoint handles GET /api/settings. It returns the effective
// configuration with credentials reduced to labels.
type SettingsEndpoint struct{}

func (e *SettingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings", e.handler
}

func (e *SettingsEndpoint) RequiresInit() bool { return true }

func (e *SettingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	mgr := svcctx.ConfigFrom(r.Context())
	if mgr == nil {
		writeError(w, http.StatusServiceUnavailable, "config not available")
		return
	}
	writeJSON(w, http.StatusOK, redact(mgr.Get()))
}

// redact copies cfg with every API key replaced by its label.
func redact(cfg *config.Config) config.Config {
	out := *cfg
	out.Providers = make(map[string]config.ProviderCfg, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		keys := cfg.ResolveAPIKeys(name)
		pc.APIKeys = make([]string, len(keys))
		for i, k := range keys {
			pc.APIKeys[i] = types.ProviderKey{ProviderName: name, Credential: k}.Label()
		}
		out.Providers[name] = pc
	}
	if out.Store.DSN != "" {
		out.Store.DSN = "****"
	}
	return out
}

func (e *SettingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show the server's effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]any
			if err := client.Get(cmd.Context(), "/api/settings", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
