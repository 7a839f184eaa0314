// Package capability derives the live provider/model catalog for the gateway.
//
// The catalog is a pure function of two inputs: the providers configuration
// (a JSON document listing providers and their models) and credential
// presence per provider. It is recomputed on every query; nothing is cached,
// so a changed environment is visible on the next call.
package capability

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/pkg/models"
	"github.com/rs/zerolog/log"
)

// Disabled-provider reasons surfaced in capability responses.
const (
	ReasonMissingConfig     = "missing configuration"
	ReasonDisabledByConfig  = "disabled by configuration"
	ReasonMissingCredential = "missing credential"
	ReasonNoModels          = "no models configured"
)

// ProviderConfig is one record of the providers JSON document.
type ProviderConfig struct {
	Provider string        `json:"provider"`
	Enabled  bool          `json:"enabled"`
	Models   []ModelConfig `json:"models"`
}

// ModelConfig describes one configured model of a provider.
type ModelConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CredentialSource answers credential questions per provider. The gateway
// only ever needs presence and the raw value; rotation is out of scope.
type CredentialSource interface {
	HasCredential(p models.Provider) bool
	Credential(p models.Provider) string
}

// credentialEnv maps each provider to the environment variable holding its
// API key.
var credentialEnv = map[models.Provider]string{
	models.ProviderGroq:   "GROQ_API_KEY",
	models.ProviderGoogle: "GOOGLE_API_KEY",
	models.ProviderOpenAI: "OPENAI_API_KEY",
}

// EnvCredentials reads provider API keys from the process environment.
type EnvCredentials struct{}

func (EnvCredentials) HasCredential(p models.Provider) bool {
	return EnvCredentials{}.Credential(p) != ""
}

func (EnvCredentials) Credential(p models.Provider) string {
	name, ok := credentialEnv[p]
	if !ok {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

// Resolver computes the capability catalog on demand.
type Resolver struct {
	cfg   config.ProvidersConfig
	creds CredentialSource
}

// NewResolver creates a resolver bound to a configuration source and a
// credential source.
func NewResolver(cfg config.ProvidersConfig, creds CredentialSource) *Resolver {
	return &Resolver{cfg: cfg, creds: creds}
}

// Current re-reads the configuration source and returns the catalog.
func (r *Resolver) Current() models.Capabilities {
	return Resolve(r.loadConfig(), r.creds)
}

// ConfigPresent reports whether any providers configuration source is wired,
// for the capabilities debug block. No secret values are exposed.
func (r *Resolver) ConfigPresent() bool {
	return r.cfg.File != "" || strings.TrimSpace(r.cfg.JSON) != ""
}

// Credential returns the provider's API key and whether one is present.
func (r *Resolver) Credential(p models.Provider) (string, bool) {
	c := r.creds.Credential(p)
	return c, c != ""
}

// CredentialsPresent returns the per-provider credential presence map for the
// capabilities debug block.
func (r *Resolver) CredentialsPresent() map[models.Provider]bool {
	out := make(map[models.Provider]bool, len(models.KnownProviders))
	for _, p := range models.KnownProviders {
		out[p] = r.creds.HasCredential(p)
	}
	return out
}

// loadConfig reads the providers document, preferring the file source.
// Malformed or missing configuration degrades to an empty list: the policy
// in Resolve then reports every provider as unconfigured instead of failing
// the caller.
func (r *Resolver) loadConfig() []ProviderConfig {
	if r.cfg.File != "" {
		raw, err := os.ReadFile(r.cfg.File)
		if err != nil {
			log.Warn().Err(err).Str("path", r.cfg.File).Msg("Cannot read providers file")
			return nil
		}
		return parseProviders(string(raw))
	}
	return parseProviders(r.cfg.JSON)
}

// parseProviders decodes the providers JSON. Values pasted into env files may
// contain line breaks, so those are stripped first.
func parseProviders(raw string) []ProviderConfig {
	cleaned := strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(raw))
	if cleaned == "" {
		return nil
	}
	var entries []ProviderConfig
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		log.Warn().Err(err).Msg("Failed to parse providers configuration")
		return nil
	}
	return entries
}

// Resolve applies the capability policy to a configuration snapshot. Pure:
// no side effects, identical inputs yield identical output.
func Resolve(entries []ProviderConfig, creds CredentialSource) models.Capabilities {
	byProvider := make(map[models.Provider]ProviderConfig, len(entries))
	for _, e := range entries {
		if models.IsKnownProvider(e.Provider) {
			byProvider[models.Provider(e.Provider)] = e
		}
	}

	caps := models.Capabilities{
		Providers: make(map[models.Provider]models.CapabilityEntry, len(models.KnownProviders)),
	}

	for _, p := range models.KnownProviders {
		cfg, ok := byProvider[p]
		switch {
		case !ok:
			caps.Providers[p] = disabled(ReasonMissingConfig)
		case !cfg.Enabled:
			caps.Providers[p] = disabled(ReasonDisabledByConfig)
		case !creds.HasCredential(p):
			caps.Providers[p] = disabled(ReasonMissingCredential)
		default:
			opts := modelOptions(p, cfg.Models)
			if len(opts) == 0 {
				caps.Providers[p] = disabled(ReasonNoModels)
				continue
			}
			caps.Providers[p] = models.CapabilityEntry{Enabled: true, Models: opts}
		}
	}
	return caps
}

func disabled(reason string) models.CapabilityEntry {
	return models.CapabilityEntry{Enabled: false, Models: []models.ModelOption{}, ReasonDisabled: reason}
}

// modelOptions filters the configured models to those with a usable id and
// maps them to their canonical "provider/modelId" form.
func modelOptions(p models.Provider, configured []ModelConfig) []models.ModelOption {
	var opts []models.ModelOption
	for _, m := range configured {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			continue
		}
		label := strings.TrimSpace(m.Name)
		if label == "" {
			label = id
		}
		opts = append(opts, models.ModelOption{
			Value:       string(p) + "/" + id,
			Label:       label,
			Description: strings.TrimSpace(m.Description),
		})
	}
	return opts
}
