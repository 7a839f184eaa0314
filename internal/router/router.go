// Package router resolves an agent's model field to a concrete provider
// target: which backend to call, with which model id and credential.
package router

import (
	"fmt"
	"strings"

	"github.com/agentdeck/agentdeck/internal/capability"
	"github.com/agentdeck/agentdeck/pkg/models"
	"github.com/rs/zerolog/log"
)

// Hard default model per provider, used when a legacy key reference names a
// provider whose capability catalog carries no models.
var defaultModels = map[models.Provider]string{
	models.ProviderGroq:   "llama-3.3-70b-versatile",
	models.ProviderGoogle: "gemini-2.5-flash",
	models.ProviderOpenAI: "gpt-4o-mini",
}

// ResolutionError means the model reference could not be mapped to an
// enabled provider and model. Maps to HTTP 422.
type ResolutionError struct {
	Ref    string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve model %q: %s", e.Ref, e.Reason)
}

// ConfigError means the reference resolved but the gateway itself is
// missing what it needs to serve it (typically the credential). Maps to
// HTTP 500: the client did nothing wrong.
type ConfigError struct {
	Provider models.Provider
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %s misconfigured: %s", e.Provider, e.Reason)
}

// RefKind distinguishes the two accepted model reference forms.
type RefKind int

const (
	// RefCanonical is "provider/model-id".
	RefCanonical RefKind = iota
	// RefLegacyKey is a raw API key whose prefix names the provider.
	RefLegacyKey
)

// ModelRef is a parsed model reference.
type ModelRef struct {
	Kind     RefKind
	Provider models.Provider
	ModelID  string // canonical refs only
	Secret   string // legacy key refs only
}

// Target is a fully resolved routing decision.
type Target struct {
	Provider   models.Provider
	ModelID    string
	Credential string
}

// ParseModelRef classifies a model field value. Canonical references contain
// a slash; anything else is sniffed as a legacy provider API key.
func ParseModelRef(ref string) (*ModelRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &ResolutionError{Ref: ref, Reason: "empty model reference"}
	}

	if idx := strings.Index(ref, "/"); idx >= 0 {
		providerName := ref[:idx]
		modelID := ref[idx+1:]
		if !models.IsKnownProvider(providerName) {
			return nil, &ResolutionError{Ref: ref, Reason: "unknown provider " + providerName}
		}
		if modelID == "" {
			return nil, &ResolutionError{Ref: ref, Reason: "missing model id"}
		}
		return &ModelRef{Kind: RefCanonical, Provider: models.Provider(providerName), ModelID: modelID}, nil
	}

	// Legacy form: the agent's model field holds a provider API key.
	switch {
	case strings.HasPrefix(ref, "gsk_"):
		return &ModelRef{Kind: RefLegacyKey, Provider: models.ProviderGroq, Secret: ref}, nil
	case strings.HasPrefix(ref, "AIza"):
		return &ModelRef{Kind: RefLegacyKey, Provider: models.ProviderGoogle, Secret: ref}, nil
	case strings.HasPrefix(ref, "sk-"):
		return &ModelRef{Kind: RefLegacyKey, Provider: models.ProviderOpenAI, Secret: ref}, nil
	}
	return nil, &ResolutionError{Ref: ref, Reason: "unrecognized model reference"}
}

// Router resolves parsed references against the live capability catalog.
type Router struct {
	resolver *capability.Resolver
}

func New(resolver *capability.Resolver) *Router {
	return &Router{resolver: resolver}
}

// Resolve maps an agent's model field to a callable target. The capability
// catalog is consulted fresh on every call so config and credential changes
// take effect without a restart.
func (r *Router) Resolve(modelField string) (*Target, error) {
	ref, err := ParseModelRef(modelField)
	if err != nil {
		return nil, err
	}

	caps := r.resolver.Current()

	if ref.Kind == RefLegacyKey {
		// Legacy keys carry their own credential and pin the provider, so the
		// catalog's enabled flag does not apply. The model id falls back to
		// the catalog's first entry, then to the hard default.
		modelID := caps.FirstModelID(ref.Provider)
		if modelID == "" {
			modelID = defaultModels[ref.Provider]
		}
		log.Debug().Str("provider", string(ref.Provider)).Str("model", modelID).Msg("Resolved legacy key reference")
		return &Target{Provider: ref.Provider, ModelID: modelID, Credential: ref.Secret}, nil
	}

	entry, ok := caps.Providers[ref.Provider]
	if !ok || !entry.Enabled {
		reason := "provider disabled"
		if ok && entry.ReasonDisabled != "" {
			reason = entry.ReasonDisabled
		}
		return nil, &ResolutionError{Ref: modelField, Reason: reason}
	}

	if !caps.HasModel(ref.Provider, ref.ModelID) {
		return nil, &ResolutionError{Ref: modelField, Reason: "model not allowed for provider " + string(ref.Provider)}
	}

	credential, ok := r.resolver.Credential(ref.Provider)
	if !ok || credential == "" {
		// The catalog said enabled but the credential vanished between the
		// capability read and now. Server-side problem, not the client's.
		return nil, &ConfigError{Provider: ref.Provider, Reason: "credential unavailable"}
	}

	return &Target{Provider: ref.Provider, ModelID: ref.ModelID, Credential: credential}, nil
}
