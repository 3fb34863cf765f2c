package lattice

import (
	"errors"
	"reflect"
	"sort"
	"sync"
)

// Stage orders post-processors coarsely; Priority orders them inside a stage.
type Stage int

const (
	// StagePreConfigure may replace or wrap the raw instance.
	StagePreConfigure Stage = iota
	// StagePopulate assigns injection points.
	StagePopulate
	// StagePostConstruct runs lifecycle callbacks.
	StagePostConstruct
)

func (s Stage) String() string {
	switch s {
	case StagePreConfigure:
		return "pre-configure"
	case StagePopulate:
		return "populate"
	case StagePostConstruct:
		return "post-construct"
	default:
		return "unknown"
	}
}

// PostProcessor is one stage of the pipeline run over every freshly built
// instance. Process returns the instance to hand to the next processor; a nil
// result keeps the current one.
type PostProcessor interface {
	Stage() Stage
	Priority() int
	Process(r *Resolution, instance any) (any, error)
}

type funcProcessor struct {
	stage    Stage
	priority int
	fn       func(r *Resolution, instance any) (any, error)
}

func (p *funcProcessor) Stage() Stage  { return p.stage }
func (p *funcProcessor) Priority() int { return p.priority }

func (p *funcProcessor) Process(r *Resolution, instance any) (any, error) {
	return p.fn(r, instance)
}

// NewPostProcessor creates a post-processor from a function.
func NewPostProcessor(stage Stage, priority int, fn func(r *Resolution, instance any) (any, error)) PostProcessor {
	return &funcProcessor{stage: stage, priority: priority, fn: fn}
}

type orderedProcessor struct {
	PostProcessor
	seq int
}

// pipeline runs post-processors ordered by stage, priority and registration.
type pipeline struct {
	processors []orderedProcessor
	mu         sync.RWMutex
}

func newPipeline() *pipeline {
	return &pipeline{}
}

func (p *pipeline) add(pp PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, orderedProcessor{PostProcessor: pp, seq: len(p.processors)})

	sort.SliceStable(p.processors, func(i, j int) bool {
		a, b := p.processors[i], p.processors[j]
		if a.Stage() != b.Stage() {
			return a.Stage() < b.Stage()
		}
		if a.Priority() != b.Priority() {
			return a.Priority() < b.Priority()
		}
		return a.seq < b.seq
	})
}

func (p *pipeline) snapshot() []orderedProcessor {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]orderedProcessor, len(p.processors))
	copy(out, p.processors)
	return out
}

// run applies every processor to instance. The first failure aborts the
// pipeline and no instance is returned.
func (p *pipeline) run(r *Resolution, instance any) (any, error) {
	r.instance = instance

	for _, pp := range p.snapshot() {
		out, err := process(pp, r, instance)
		if err != nil {
			var e *Error
			if errors.As(err, &e) && (e.Code == CodeComponentRequired || e.Code == CodeLifecycleCallback) {
				return nil, err
			}
			return nil, newPostProcess(r.key, pp.Stage(), err)
		}

		if out != nil {
			instance = out
			r.instance = out
		}
	}

	return instance, nil
}

func process(pp PostProcessor, r *Resolution, instance any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, &PanicError{Value: rec}
		}
	}()

	return pp.Process(r, instance)
}

// populateProcessor assigns the injection points the metadata collaborator
// reports for the instance's type.
type populateProcessor struct {
	metadata MetadataSource
}

func (p *populateProcessor) Stage() Stage  { return StagePopulate }
func (p *populateProcessor) Priority() int { return 0 }

func (p *populateProcessor) Process(r *Resolution, instance any) (any, error) {
	d, ok := p.metadata.Describe(reflect.TypeOf(instance))
	if !ok || len(d.InjectionPoints) == 0 {
		return instance, nil
	}

	v := reflect.ValueOf(instance)

	for _, point := range d.InjectionPoints {
		if err := inject(r, v, point); err != nil {
			return nil, err
		}
	}

	return instance, nil
}

func inject(r *Resolution, target reflect.Value, point InjectionPoint) error {
	switch point.Kind {
	case FieldInjection:
		if target.Kind() != reflect.Pointer || target.Elem().Kind() != reflect.Struct {
			return newInvalidBinding(r.key, "field injection of %s requires a pointer to struct", point.Member)
		}

		field := target.Elem().FieldByName(point.Member)
		if !field.IsValid() || !field.CanSet() {
			return newInvalidBinding(r.key, "field %s cannot be set", point.Member)
		}

		v, found, err := injectionValue(r, point, field.Type())
		if err != nil || !found {
			return err
		}

		field.Set(v)

	case SetterInjection:
		method := target.MethodByName(point.Member)
		if !method.IsValid() || method.Type().NumIn() != 1 {
			return newInvalidBinding(r.key, "setter %s must take exactly one argument", point.Member)
		}

		v, found, err := injectionValue(r, point, method.Type().In(0))
		if err != nil || !found {
			return err
		}

		out := method.Call([]reflect.Value{v})
		if n := len(out); n > 0 && out[n-1].Type() == errorType && !out[n-1].IsNil() {
			return out[n-1].Interface().(error)
		}
	}

	return nil
}

// injectionValue resolves the point. found is false for an absent optional
// point.
func injectionValue(r *Resolution, point InjectionPoint, want reflect.Type) (reflect.Value, bool, error) {
	instance, found, err := GetOptional(r, point.Key)
	if err != nil {
		return reflect.Value{}, false, err
	}

	if !found {
		if point.Required {
			return reflect.Value{}, false, newComponentRequired(r.key, point, newUnresolvedComponent(point.Key, ""))
		}
		return reflect.Value{}, false, nil
	}

	if coll, ok := instance.(*ComponentCollection); ok && point.Key.collection {
		v, err := coll.As(want)
		return v, err == nil, err
	}

	v := reflect.ValueOf(instance)
	if !v.Type().AssignableTo(want) {
		return reflect.Value{}, false, newTypeMismatch(point.Key, instance)
	}

	return v, true, nil
}

// postConstructProcessor runs the callbacks the lifecycle collaborator
// reports, in order. The first failure aborts the remaining callbacks.
type postConstructProcessor struct {
	lifecycle LifecycleSource
}

func (p *postConstructProcessor) Stage() Stage  { return StagePostConstruct }
func (p *postConstructProcessor) Priority() int { return 0 }

func (p *postConstructProcessor) Process(r *Resolution, instance any) (any, error) {
	for _, cb := range p.lifecycle.Callbacks(instance) {
		if cb.Fn == nil {
			continue
		}
		if err := cb.Fn(r.Context()); err != nil {
			return nil, newLifecycleCallback(r.key, cb.Name, err)
		}
	}

	return instance, nil
}
