/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package component sequences the lifecycle of the instances of one declared
// component: construct, activate, bind every declared reference, publish.
//
// A Component owns the native handle of its library and the instances it creates.
// It has no internal locking: the enclosing framework serializes calls into one
// Component. Nothing here is retried; a failed NewInstance leaves the component as
// it was before the call.
package component

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/srediag/dscore/api"
	"github.com/srediag/dscore/internal/logging"
	"github.com/srediag/dscore/pkg/audit"
	"github.com/srediag/dscore/pkg/lifecycle"
	"github.com/srediag/dscore/pkg/native"
	"github.com/srediag/dscore/pkg/security"
	"github.com/srediag/dscore/pkg/telemetry"
)

// Option configures a Component.
type Option func(*Component)

// WithLoader replaces the operating system loader of the component's handle.
func WithLoader(l native.Loader) Option {
	return func(c *Component) { c.handleOpts = append(c.handleOpts, native.WithLoader(l)) }
}

// WithLogger replaces the process logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Component) { c.logger = l }
}

// WithMetrics records into m instead of unregistered collectors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Component) { c.metrics = m }
}

// WithTracing replaces the no-op tracing instruments.
func WithTracing(t *telemetry.Tracing) Option {
	return func(c *Component) { c.tracing = t }
}

// WithAudit sends lifecycle events to l instead of discarding them.
func WithAudit(l audit.Logger) Option {
	return func(c *Component) { c.audit = l }
}

// WithValidator replaces the checksum validation run before the first load.
func WithValidator(v security.Validator) Option {
	return func(c *Component) { c.validator = v }
}

// Component is the runtime of one component descriptor.
type Component struct {
	descriptor Descriptor
	module     api.Module
	handle     *native.Handle
	instances  []*Instance

	handleOpts []native.Option
	logger     *zap.Logger
	metrics    *telemetry.Metrics
	tracing    *telemetry.Tracing
	audit      audit.Logger
	validator  security.Validator
}

// New returns the runtime of desc. module is the owning module; it is not owned
// by the component and supplies the service registry.
func New(module api.Module, desc Descriptor, opts ...Option) *Component {
	c := &Component{
		descriptor: desc,
		module:     module,
		audit:      audit.Discard{},
		validator:  security.Checksum(desc.Checksum),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Logger().Named("component")
	}
	c.logger = c.logger.With(zap.String("component", desc.Name))
	if c.metrics == nil {
		c.metrics = telemetry.NewMetrics(nil)
	}
	if c.tracing == nil {
		c.tracing = telemetry.NopTracing()
	}
	hopts := append(c.handleOpts,
		native.WithLogger(c.logger),
		native.WithObserver(handleObserver{c}))
	c.handle = native.NewHandle(desc.Library, hopts...)
	return c
}

// Name returns the component name.
func (c *Component) Name() string { return c.descriptor.Name }

// Descriptor returns the descriptor the component was created from.
func (c *Component) Descriptor() Descriptor { return c.descriptor }

// Module returns the owning module.
func (c *Component) Module() api.Module { return c.module }

// Handle returns the native handle of the component's library.
func (c *Component) Handle() *native.Handle { return c.handle }

// NumInstances returns the number of live instances.
func (c *Component) NumInstances() int { return len(c.instances) }

// Instances returns the live instances in creation order.
func (c *Component) Instances() []*Instance { return slices.Clone(c.instances) }

// NewInstance creates, activates, binds and publishes a new instance whose
// properties are the descriptor defaults overlaid with overrides. Any failure
// after construction rolls the instance back; it is then neither tracked nor
// published. ctx only carries tracing; native calls cannot be cancelled.
func (c *Component) NewInstance(ctx context.Context, overrides api.Properties) (*Instance, error) {
	if !c.descriptor.Factory && len(c.instances) > 0 {
		return nil, &CardinalityError{Component: c.descriptor.Name, Live: len(c.instances)}
	}
	ctx, end := c.tracing.Phase(ctx, c.descriptor.Name, "new_instance")
	inst, err := c.newInstance(ctx, overrides)
	end(err)
	return inst, err
}

func (c *Component) newInstance(ctx context.Context, overrides api.Properties) (*Instance, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}

	props := c.descriptor.Properties.Merge(overrides)
	id, err := c.handle.ConstructInstance(c.descriptor.CreateSymbol(), props)
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		id:         id,
		component:  c,
		properties: props,
		state:      lifecycle.Constructed,
	}

	if err := c.activate(ctx, inst); err != nil {
		c.rollback(inst, "activate", err)
		return nil, err
	}
	if err := c.bindAll(ctx, inst); err != nil {
		reason := "bind"
		var uerr *UnsatisfiedDependencyError
		if errors.As(err, &uerr) {
			reason = "unsatisfied"
		}
		c.rollback(inst, reason, err)
		return nil, err
	}

	c.instances = append(c.instances, inst)
	if err := c.publish(inst); err != nil {
		c.untrack(inst)
		c.rollback(inst, "publish", err)
		return nil, err
	}

	c.metrics.Instances.WithLabelValues(c.descriptor.Name).Set(float64(len(c.instances)))
	c.record(audit.Event{Kind: audit.InstanceCreated, Instance: uint64(id)})
	c.logger.Info("instance created", zap.Stringer("instance", id))
	return inst, nil
}

// Load validates the library checksum and maps the library without creating an
// instance. It is a no-op once loaded.
func (c *Component) Load() error {
	return c.ensureLoaded()
}

func (c *Component) ensureLoaded() error {
	if c.handle.IsLoaded() {
		return nil
	}
	if err := c.validator.ValidateSignature(c.descriptor.Library); err != nil {
		return fmt.Errorf("component %s: %w", c.descriptor.Name, err)
	}
	_, err := c.handle.Load()
	return err
}

func (c *Component) activate(ctx context.Context, inst *Instance) error {
	_, end := c.tracing.Phase(ctx, c.descriptor.Name, "activate")
	_, err := c.handle.InvokeLifecycleMethod(native.Invocation{
		Method:   c.descriptor.ActivateSymbol(),
		Instance: inst.id,
		Payload:  inst.properties,
	}, native.Optional)
	if err == nil {
		err = lifecycle.Transition(&inst.state, lifecycle.Activated)
	}
	end(err)
	return err
}

func (c *Component) bindAll(ctx context.Context, inst *Instance) error {
	_, end := c.tracing.Phase(ctx, c.descriptor.Name, "bind")
	err := c.bindReferences(inst)
	if err == nil {
		err = lifecycle.Transition(&inst.state, lifecycle.Bound)
	}
	end(err)
	return err
}

func (c *Component) bindReferences(inst *Instance) error {
	for _, ref := range c.descriptor.References {
		found := c.lookup(ref)
		if len(found) == 0 {
			if ref.Cardinality.Mandatory() {
				return &UnsatisfiedDependencyError{
					Component:   c.descriptor.Name,
					Reference:   ref.Name,
					Interface:   ref.Interface,
					Cardinality: ref.Cardinality,
				}
			}
			continue
		}
		if !ref.Cardinality.Multiple() {
			found = found[:1]
		}
		for _, sref := range found {
			_, err := c.handle.InvokeLifecycleMethod(native.Invocation{
				Method:   ref.BindSymbol(),
				Instance: inst.id,
				Args:     []uintptr{sref.Service()},
				Payload:  newBindMetadata(ref, sref),
			}, native.Mandatory)
			if err != nil {
				return &BindError{Component: c.descriptor.Name, Reference: ref.Name, Err: err}
			}
			inst.bindings = append(inst.bindings, binding{ref: ref, service: sref})
		}
	}
	return nil
}

func (c *Component) lookup(ref Reference) []api.ServiceReference {
	if c.module == nil || c.module.Registry() == nil {
		return nil
	}
	return c.module.Registry().ServiceReferences(ref.Interface, ref.Target)
}

func (c *Component) publish(inst *Instance) error {
	if len(c.descriptor.Provides) > 0 {
		if c.module == nil || c.module.Registry() == nil {
			return fmt.Errorf("component %s: no registry to publish %v", c.descriptor.Name, c.descriptor.Provides)
		}
		ptr, ok := c.handle.Pointer(inst.id)
		if !ok {
			return fmt.Errorf("publish %s: %w", inst.id, native.ErrUnknownInstance)
		}
		props := inst.properties.Merge(api.Properties{
			api.ComponentName: c.descriptor.Name,
			api.ComponentID:   uint64(inst.id),
		})
		reg, err := c.module.Registry().RegisterService(c.descriptor.Provides, ptr, props)
		if err != nil {
			return fmt.Errorf("component %s: publish: %w", c.descriptor.Name, err)
		}
		inst.registration = reg
	}
	return lifecycle.Transition(&inst.state, lifecycle.Published)
}

// Deactivate withdraws the instance's service, runs its deactivate and unbind
// hooks and stops tracking it. A deactivated instance is never reused.
func (c *Component) Deactivate(ctx context.Context, inst *Instance) error {
	if inst.component != c {
		return ErrForeignInstance
	}
	if inst.state == lifecycle.Deactivated {
		return ErrDeactivated
	}
	_, end := c.tracing.Phase(ctx, c.descriptor.Name, "deactivate")
	err := c.teardown(inst)
	c.untrack(inst)
	c.metrics.Instances.WithLabelValues(c.descriptor.Name).Set(float64(len(c.instances)))
	c.record(audit.Event{Kind: audit.InstanceDeactivated, Instance: uint64(inst.id)})
	end(err)
	return err
}

// Close deactivates every instance, newest first, and unloads the library.
func (c *Component) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.instances) - 1; i >= 0; i-- {
		if err := c.Deactivate(ctx, c.instances[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.handle.Unload(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// teardown undoes whatever the instance went through, in reverse: withdraw the
// service, deactivate, unbind, forget the native pointer.
func (c *Component) teardown(inst *Instance) error {
	var errs []error
	if inst.registration != nil {
		if err := inst.registration.Unregister(); err != nil {
			errs = append(errs, err)
		}
		inst.registration = nil
	}
	if inst.state != lifecycle.Constructed && c.handle.IsLoaded() {
		_, err := c.handle.InvokeLifecycleMethod(native.Invocation{
			Method:   c.descriptor.DeactivateSymbol(),
			Instance: inst.id,
		}, native.Optional)
		if err != nil {
			errs = append(errs, err)
		}
		for i := len(inst.bindings) - 1; i >= 0; i-- {
			b := inst.bindings[i]
			_, err := c.handle.InvokeLifecycleMethod(native.Invocation{
				Method:   b.ref.UnbindSymbol(),
				Instance: inst.id,
				Args:     []uintptr{b.service.Service()},
				Payload:  newBindMetadata(b.ref, b.service),
			}, native.Optional)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	inst.bindings = nil
	c.handle.Release(inst.id)
	if err := lifecycle.Transition(&inst.state, lifecycle.Deactivated); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Component) rollback(inst *Instance, reason string, cause error) {
	if err := c.teardown(inst); err != nil {
		c.logger.Warn("rollback incomplete", zap.Stringer("instance", inst.id), zap.Error(err))
	}
	c.metrics.Rollbacks.WithLabelValues(c.descriptor.Name, reason).Inc()
	c.record(audit.Event{
		Kind:     audit.InstanceRolledBack,
		Instance: uint64(inst.id),
		Detail:   reason + ": " + cause.Error(),
	})
	c.logger.Warn("instance rolled back",
		zap.Stringer("instance", inst.id),
		zap.String("reason", reason),
		zap.Error(cause))
}

func (c *Component) untrack(inst *Instance) {
	if i := slices.Index(c.instances, inst); i >= 0 {
		c.instances = slices.Delete(c.instances, i, i+1)
	}
}

func (c *Component) record(e audit.Event) {
	e.Component = c.descriptor.Name
	e.Library = c.descriptor.Library
	c.audit.LogEvent(e)
}

// handleObserver forwards handle events to the component's metrics and audit log.
type handleObserver struct {
	c *Component
}

func (o handleObserver) Loaded(library string) {
	o.c.metrics.LibrariesLoaded.Inc()
	o.c.record(audit.Event{Kind: audit.LibraryLoaded})
}

func (o handleObserver) LoadFailed(library string, err error) {
	o.c.metrics.LoadFailures.WithLabelValues(library).Inc()
	o.c.record(audit.Event{Kind: audit.LoadFailed, Detail: err.Error()})
}

func (o handleObserver) Unloaded(library string) {
	o.c.metrics.LibrariesLoaded.Dec()
	o.c.record(audit.Event{Kind: audit.LibraryUnloaded})
}

func (o handleObserver) HookAbsent(library string, res native.Resolution) {
	o.c.metrics.HookMisses.WithLabelValues(o.c.descriptor.Name, res.Method).Inc()
	o.c.record(audit.Event{
		Kind:   audit.HookAbsent,
		Method: res.Method,
		Detail: strings.Join(res.Diagnostics, "; "),
	})
}
