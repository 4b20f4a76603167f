package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/safesync/interfaces"
)

// MultiProvider implements interfaces.StorageProvider over several providers.
// Writes go to every available signed-in provider, reads come from the first
// provider that has the file.
type MultiProvider struct {
	providers []interfaces.StorageProvider
	log       *slog.Logger
}

// NewMultiProvider creates a new multi-provider.
func NewMultiProvider(providers []interfaces.StorageProvider, logger *slog.Logger) *MultiProvider {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiProvider{
		providers: providers,
		log:       logger,
	}
}

// Read returns the file from the first available provider that has it.
// If every reachable provider reports the file missing, the error wraps
// ErrContentNotFound; if none is reachable, ErrBackendUnavailable.
func (m *MultiProvider) Read(ctx context.Context, ref interfaces.FileReference) ([]byte, error) {
	start := time.Now()
	var errs []error
	reached := 0

	for _, provider := range m.providers {
		if !provider.Available(ctx) {
			m.log.Debug("Provider unavailable",
				slog.String("provider_name", provider.Name()),
				slog.String("ref", ref.String()))
			continue
		}
		reached++

		data, err := provider.Read(ctx, ref)
		if err == nil {
			m.log.Info("Successfully read database file",
				slog.String("provider_name", provider.Name()),
				slog.String("ref", ref.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
		m.log.Debug("Failed to read from provider",
			slog.String("provider_name", provider.Name()),
			slog.String("ref", ref.String()),
			"err", err)
	}

	if reached == 0 {
		return nil, interfaces.ErrBackendUnavailable
	}

	m.log.Error("All providers failed to read database file",
		slog.String("ref", ref.String()),
		slog.Int("failed_providers", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return nil, fmt.Errorf("all providers failed to read %s: %w", ref, errors.Join(errs...))
}

// Write stores data in every available signed-in provider. It succeeds if
// at least one provider accepted the write.
func (m *MultiProvider) Write(ctx context.Context, ref interfaces.FileReference, data []byte) (interfaces.ContentID, error) {
	start := time.Now()
	id := interfaces.ComputeID(data)
	var errs []error
	stored := 0

	for _, provider := range m.providers {
		if !provider.IsSignedIn() {
			m.log.Debug("Provider not signed in", slog.String("provider_name", provider.Name()))
			continue
		}
		if !provider.Available(ctx) {
			m.log.Debug("Provider unavailable", slog.String("provider_name", provider.Name()))
			continue
		}

		got, err := provider.Write(ctx, ref, data)
		if errors.Is(err, interfaces.ErrReadOnly) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
			m.log.Debug("Failed to write to provider",
				slog.String("provider_name", provider.Name()),
				"err", err)
			continue
		}

		if got != id {
			m.log.Warn("Inconsistent content IDs from providers",
				slog.String("provider_name", provider.Name()),
				slog.String("expected_id", id.String()),
				slog.String("actual_id", got.String()))
		}
		stored++
	}

	if stored == 0 {
		m.log.Error("All providers failed to store database file",
			slog.Int("failed_providers", len(errs)),
			slog.Duration("duration", time.Since(start)))
		if len(errs) == 0 {
			return id, interfaces.ErrNotSignedIn
		}
		return id, fmt.Errorf("all providers failed to store %s: %w", ref, errors.Join(errs...))
	}

	m.log.Info("Successfully stored database file",
		slog.String("ref", ref.String()),
		slog.Int("providers", stored),
		slog.String("content_id", id.String()),
		slog.Duration("duration", time.Since(start)))

	return id, nil
}

// Available checks if any provider is available.
func (m *MultiProvider) Available(ctx context.Context) bool {
	for _, provider := range m.providers {
		if provider.Available(ctx) {
			return true
		}
	}
	return false
}

// IsSignedIn reports whether any provider is signed in.
func (m *MultiProvider) IsSignedIn() bool {
	for _, provider := range m.providers {
		if provider.IsSignedIn() {
			return true
		}
	}
	return false
}

// SignOut signs out of every provider and joins their errors.
func (m *MultiProvider) SignOut(ctx context.Context) error {
	var errs []error
	for _, provider := range m.providers {
		if err := provider.SignOut(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", provider.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Attributes combines member attributes. Restrictions of any member apply to
// the whole. ProvidesIcons and ImmediatelyOfferCacheIfOffline hold when any
// member has them.
func (m *MultiProvider) Attributes() interfaces.ProviderAttributes {
	attrs := interfaces.ProviderAttributes{
		BrowsableNew:               true,
		BrowsableExisting:          true,
		SupportsConcurrentRequests: true,
	}
	for _, provider := range m.providers {
		a := provider.Attributes()
		attrs.ProvidesIcons = attrs.ProvidesIcons || a.ProvidesIcons
		attrs.BrowsableNew = attrs.BrowsableNew && a.BrowsableNew
		attrs.BrowsableExisting = attrs.BrowsableExisting && a.BrowsableExisting
		attrs.ImmediatelyOfferCacheIfOffline = attrs.ImmediatelyOfferCacheIfOffline || a.ImmediatelyOfferCacheIfOffline
		attrs.RootFolderOnly = attrs.RootFolderOnly || a.RootFolderOnly
		attrs.SupportsConcurrentRequests = attrs.SupportsConcurrentRequests && a.SupportsConcurrentRequests
	}
	return attrs
}

func (m *MultiProvider) Kind() interfaces.ProviderKind {
	return interfaces.MultiKind
}

// Name returns the name of this provider.
func (m *MultiProvider) Name() string {
	return "multi-storage"
}

// LocationURI combines the member location URIs.
func (m *MultiProvider) LocationURI() string {
	var locations []string
	for _, provider := range m.providers {
		locations = append(locations, provider.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
