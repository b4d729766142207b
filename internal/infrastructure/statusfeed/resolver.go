package statusfeed

import (
	"context"
	"fmt"

	"github.com/pass/deposit-services/internal/domain/deposit"
	"github.com/pass/deposit-services/internal/infrastructure/logger"
	"github.com/pass/deposit-services/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Resolver turns a status reference into a deposit status
type Resolver struct {
	fetcher DocumentFetcher
	logger  *zap.Logger
	metrics *telemetry.ReconcileMetrics
}

// NewResolver creates a Resolver. metrics may be nil.
func NewResolver(fetcher DocumentFetcher, logger *zap.Logger, metrics *telemetry.ReconcileMetrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: fetcher, logger: logger, metrics: metrics}
}

// Resolve fetches and classifies the document behind statusRef.
//
// It returns resolved=false with a nil error when the document is well formed
// but carries no term, or a term the repository's mapping does not know.
// Fetch and parse failures are returned as errors and never imply a status.
func (r *Resolver) Resolve(ctx context.Context, statusRef string, cfg RepositoryConfig) (deposit.DepositStatus, bool, error) {
	if statusRef == "" {
		return "", false, ErrNilStatusRef
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "statusfeed", "resolve")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRepositoryKey, cfg.Key,
		telemetry.SpanAttrStatusRef, statusRef,
	)

	log := logger.FromContextOr(ctx, r.logger).With(
		zap.String("repository_key", cfg.Key),
		zap.String("status_ref", statusRef),
	)

	body, contentType, err := r.fetcher.Fetch(ctx, statusRef, cfg)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", false, err
	}

	term, found, err := ExtractTerm(body, contentType, cfg)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", false, fmt.Errorf("parse %s: %w", statusRef, err)
	}
	if !found {
		log.Warn("Status document carried no status term", zap.String("content_type", contentType))
		r.metrics.RecordResolution(ctx, cfg.Key, "")
		return "", false, nil
	}

	status, ok := cfg.StatusMapping.Map(term)
	if !ok {
		log.Warn("Status term has no mapping", zap.String("term", term))
		r.metrics.RecordResolution(ctx, cfg.Key, "")
		return "", false, nil
	}

	log.Debug("Resolved remote status", zap.String("term", term), zap.String("status", string(status)))
	telemetry.SetAttribute(span, telemetry.SpanAttrDepositStatus, string(status))
	telemetry.SetOK(span)
	r.metrics.RecordResolution(ctx, cfg.Key, string(status))
	return status, true, nil
}

// RegistryResolver looks up a repository's configuration by key before
// resolving. It implements deposit.StatusResolver and deposit.TermMapper.
type RegistryResolver struct {
	resolver *Resolver
	registry *Registry
}

// NewRegistryResolver binds a Resolver to a Registry
func NewRegistryResolver(resolver *Resolver, registry *Registry) *RegistryResolver {
	return &RegistryResolver{resolver: resolver, registry: registry}
}

// ResolveStatus implements deposit.StatusResolver
func (r *RegistryResolver) ResolveStatus(ctx context.Context, statusRef string, repository *deposit.Repository) (deposit.DepositStatus, bool, error) {
	if statusRef == "" {
		return "", false, ErrNilStatusRef
	}
	cfg, err := r.configFor(repository)
	if err != nil {
		return "", false, err
	}
	return r.resolver.Resolve(ctx, statusRef, cfg)
}

// MapTerm implements deposit.TermMapper
func (r *RegistryResolver) MapTerm(repository *deposit.Repository, term string) (deposit.DepositStatus, bool) {
	cfg, err := r.configFor(repository)
	if err != nil {
		return "", false
	}
	return cfg.StatusMapping.Map(term)
}

func (r *RegistryResolver) configFor(repository *deposit.Repository) (RepositoryConfig, error) {
	if repository == nil {
		return RepositoryConfig{}, fmt.Errorf("%w: nil repository", ErrUnknownRepository)
	}
	cfg, ok := r.registry.Lookup(repository.Key)
	if !ok {
		return RepositoryConfig{}, fmt.Errorf("%w: %s", ErrUnknownRepository, repository.Key)
	}
	return cfg, nil
}

var (
	_ deposit.StatusResolver = (*RegistryResolver)(nil)
	_ deposit.TermMapper     = (*RegistryResolver)(nil)
)
