// Package di provides the named service container the view bootstrap
// registers its services into.
package di

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// dependencyResolver is a wrapper around ServiceContainer that prevents deadlocks
type dependencyResolver struct {
	container *ServiceContainer
	resolving map[string]bool
}

// Get retrieves a service using the safe resolver
func (dr *dependencyResolver) Get(name string) (interface{}, error) {
	return dr.container.getWithResolver(name, dr.resolving)
}

// ServiceContainer maps service names to factories and caches singletons.
type ServiceContainer struct {
	services   map[string]ServiceDefinition
	singletons map[string]interface{}
	factories  map[string]FactoryFunc
	creating   map[string]*sync.WaitGroup
	order      []string
	mu         sync.RWMutex
}

// ServiceDefinition defines how a service should be created and managed
type ServiceDefinition struct {
	Name         string
	Type         reflect.Type
	Factory      FactoryFunc
	Singleton    bool
	Dependencies []string
}

// FactoryFunc creates a service instance using the dependency resolver
type FactoryFunc func(resolver DependencyResolver) (interface{}, error)

// DependencyResolver provides safe dependency resolution that prevents circular dependencies
type DependencyResolver interface {
	Get(name string) (interface{}, error)
}

// ServiceBuilder helps build service definitions
type ServiceBuilder struct {
	definition ServiceDefinition
	container  *ServiceContainer
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer() *ServiceContainer {
	return &ServiceContainer{
		services:   make(map[string]ServiceDefinition),
		singletons: make(map[string]interface{}),
		factories:  make(map[string]FactoryFunc),
		creating:   make(map[string]*sync.WaitGroup),
	}
}

// Register registers a transient service with the container
func (c *ServiceContainer) Register(name string, factory FactoryFunc) *ServiceBuilder {
	return c.register(name, factory, false)
}

// RegisterSingleton registers a service whose factory runs at most once
func (c *ServiceContainer) RegisterSingleton(name string, factory FactoryFunc) *ServiceBuilder {
	return c.register(name, factory, true)
}

func (c *ServiceContainer) register(name string, factory FactoryFunc, singleton bool) *ServiceBuilder {
	c.mu.Lock()
	defer c.mu.Unlock()

	builder := &ServiceBuilder{
		definition: ServiceDefinition{
			Name:         name,
			Factory:      factory,
			Singleton:    singleton,
			Dependencies: make([]string, 0),
		},
		container: c,
	}

	if _, exists := c.services[name]; !exists {
		c.order = append(c.order, name)
	}
	c.services[name] = builder.definition
	c.factories[name] = factory
	delete(c.singletons, name)

	return builder
}

// RegisterInstance registers an existing instance as a singleton
func (c *ServiceContainer) RegisterInstance(name string, instance interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.services[name]; !exists {
		c.order = append(c.order, name)
	}
	c.singletons[name] = instance
	c.services[name] = ServiceDefinition{
		Name:      name,
		Type:      reflect.TypeOf(instance),
		Singleton: true,
	}
}

// Get retrieves a service from the container
func (c *ServiceContainer) Get(name string) (interface{}, error) {
	return c.getWithResolver(name, make(map[string]bool))
}

func (c *ServiceContainer) getWithResolver(
	name string,
	resolving map[string]bool,
) (interface{}, error) {
	if resolving[name] {
		return nil, fmt.Errorf("circular dependency detected for service '%s'", name)
	}

	c.mu.RLock()
	definition, exists := c.services[name]
	factory := c.factories[name]
	c.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("service '%s' not registered", name)
	}

	if !definition.Singleton {
		resolving[name] = true
		instance, err := c.createInstanceSafely(factory, resolving)
		delete(resolving, name)

		if err != nil {
			return nil, fmt.Errorf("failed to create service '%s': %w", name, err)
		}
		return instance, nil
	}

	for {
		c.mu.Lock()
		if instance, exists := c.singletons[name]; exists {
			c.mu.Unlock()
			return instance, nil
		}

		// Another goroutine owns creation; wait and re-check.
		if wg, creating := c.creating[name]; creating {
			c.mu.Unlock()
			wg.Wait()
			continue
		}

		wg := &sync.WaitGroup{}
		wg.Add(1)
		c.creating[name] = wg
		resolving[name] = true
		c.mu.Unlock()

		instance, err := c.createInstanceSafely(factory, resolving)
		delete(resolving, name)

		c.mu.Lock()
		delete(c.creating, name)
		if err == nil {
			c.singletons[name] = instance
		}
		c.mu.Unlock()
		wg.Done()

		if err != nil {
			return nil, fmt.Errorf("failed to create singleton service '%s': %w", name, err)
		}
		return instance, nil
	}
}

func (c *ServiceContainer) createInstanceSafely(
	factory FactoryFunc,
	resolving map[string]bool,
) (interface{}, error) {
	if factory == nil {
		return nil, fmt.Errorf("factory is nil")
	}

	resolver := &dependencyResolver{
		container: c,
		resolving: resolving,
	}

	return factory(resolver)
}

// Has checks if a service is registered
func (c *ServiceContainer) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.services[name]
	return exists
}

// Resolved reports whether a singleton has already been built.
func (c *ServiceContainer) Resolved(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.singletons[name]
	return exists
}

// Shutdown stops built singletons in reverse registration order and clears them
func (c *ServiceContainer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errors []error

	for i := len(c.order) - 1; i >= 0; i-- {
		serviceName := c.order[i]
		instance, exists := c.singletons[serviceName]
		if !exists {
			continue
		}
		if shutdownable, ok := instance.(interface{ Shutdown(context.Context) error }); ok {
			if err := shutdownable.Shutdown(ctx); err != nil {
				errors = append(
					errors,
					fmt.Errorf("failed to shutdown %s: %w", serviceName, err),
				)
			}
		}
	}

	c.singletons = make(map[string]interface{})

	if len(errors) > 0 {
		return fmt.Errorf("shutdown errors: %v", errors)
	}

	return nil
}

// ServiceBuilder methods for fluent interface

// DependsOn records dependencies of the service
func (sb *ServiceBuilder) DependsOn(dependencies ...string) *ServiceBuilder {
	sb.definition.Dependencies = append(sb.definition.Dependencies, dependencies...)
	sb.updateContainer()
	return sb
}

func (sb *ServiceBuilder) updateContainer() {
	sb.container.mu.Lock()
	sb.container.services[sb.definition.Name] = sb.definition
	sb.container.mu.Unlock()
}

// ListServices returns all registered service names in registration order
func (c *ServiceContainer) ListServices() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	services := make([]string, len(c.order))
	copy(services, c.order)
	return services
}

// GetServiceDefinition returns the definition for a service
func (c *ServiceContainer) GetServiceDefinition(name string) (ServiceDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	definition, exists := c.services[name]
	return definition, exists
}
