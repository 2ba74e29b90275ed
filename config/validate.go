package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/ruteri/storage-router/interfaces"
)

// Validate checks pools for every configuration problem and reports them
// together. Each reported error wraps interfaces.ErrConfiguration.
func Validate(pools []interfaces.StoragePoolConfig) error {
	var errs *multierror.Error

	seen := make(map[string]bool, len(pools))
	for i, pool := range pools {
		if pool.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("%w: pool #%d has no name", interfaces.ErrConfiguration, i))
		} else if seen[pool.Name] {
			errs = multierror.Append(errs, fmt.Errorf("%w: %q", interfaces.ErrDuplicatePool, pool.Name))
		}
		seen[pool.Name] = true

		if err := validatePool(pool); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}

func validatePool(pool interfaces.StoragePoolConfig) error {
	var errs *multierror.Error

	switch pool.Visibility {
	case "", interfaces.VisibilityPublic, interfaces.VisibilityPrivate:
	default:
		errs = multierror.Append(errs, fmt.Errorf("%w: pool %q has unknown visibility %q", interfaces.ErrConfiguration, pool.Name, pool.Visibility))
	}

	switch pool.Strategy {
	case "", interfaces.StrategyRoundRobin, interfaces.StrategyWeighted:
	default:
		errs = multierror.Append(errs, fmt.Errorf("%w: pool %q has unknown strategy %q", interfaces.ErrConfiguration, pool.Name, pool.Strategy))
	}

	if pool.MaxSize < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: pool %q has negative maxSize", interfaces.ErrConfiguration, pool.Name))
	}

	if len(pool.Providers) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("pool %q: %w", pool.Name, interfaces.ErrNoProviders))
	}

	ids := make(map[string]bool, len(pool.Providers))
	for i, p := range pool.Providers {
		switch {
		case p.ID == "":
			errs = multierror.Append(errs, fmt.Errorf("%w: pool %q provider #%d has no id", interfaces.ErrConfiguration, pool.Name, i))
		case ids[p.ID]:
			errs = multierror.Append(errs, fmt.Errorf("%w: pool %q has duplicate provider id %q", interfaces.ErrConfiguration, pool.Name, p.ID))
		}
		ids[p.ID] = true

		if !p.Type.Valid() {
			errs = multierror.Append(errs, fmt.Errorf("pool %q provider %q: %w: %q", pool.Name, p.ID, interfaces.ErrUnsupportedProviderType, p.Type))
		}
		if p.URL == "" {
			errs = multierror.Append(errs, fmt.Errorf("%w: pool %q provider %q has no url", interfaces.ErrConfiguration, pool.Name, p.ID))
		}
		if p.Weight < 0 {
			errs = multierror.Append(errs, fmt.Errorf("%w: pool %q provider %q has negative weight", interfaces.ErrConfiguration, pool.Name, p.ID))
		}
	}

	return errs.ErrorOrNil()
}
