package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Service defines a generic service.
type Service any

// RunnableService defines a service that can be run.
type RunnableService interface {
	Service

	Run()
	Shutdown(ctx context.Context) error
}

// Group is a container for managing a bunch of services.
type Group struct {
	list []Service
}

func (g *Group) Add(services ...Service) {
	for _, s := range services {
		if s != nil {
			g.list = append(g.list, s)
		}
	}
}

// Start starts each service in the group.
func (g *Group) Start() {
	for _, s := range g.list {
		if v, ok := s.(RunnableService); ok {
			v.Run()
		}
	}
}

// Shutdown terminates a group of services in reverse order.
func (g *Group) Shutdown(ctx context.Context) error {
	var errs *multierror.Error
	for i := len(g.list) - 1; i >= 0; i-- {
		s := g.list[i]
		if v, ok := s.(RunnableService); ok {
			if err := v.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs = multierror.Append(errs, fmt.Errorf("failed to stop [%s]: %w", s, err))
			}
		}
	}
	return errs.ErrorOrNil()
}
