package lattice

// InjectionKind tells how an injection point is assigned.
type InjectionKind int

const (
	// FieldInjection assigns an exported struct field.
	FieldInjection InjectionKind = iota
	// SetterInjection calls a one-argument method.
	SetterInjection
)

func (k InjectionKind) String() string {
	if k == SetterInjection {
		return "setter"
	}
	return "field"
}

// InjectionPoint describes one member populated after construction.
// Constructor parameters are not injection points; the provider handles them.
type InjectionPoint struct {
	Kind     InjectionKind
	Member   string
	Key      ComponentKey
	Required bool
}

// Field creates a required field injection point.
//
// Usage:
//
//	lattice.Field("Logger", lattice.KeyOf[*zap.Logger]())
func Field(member string, key ComponentKey) InjectionPoint {
	return InjectionPoint{Kind: FieldInjection, Member: member, Key: key, Required: true}
}

// Setter creates a required setter injection point.
//
// Usage:
//
//	lattice.Setter("SetCache", lattice.KeyOf[Cache]()).Optional()
func Setter(member string, key ComponentKey) InjectionPoint {
	return InjectionPoint{Kind: SetterInjection, Member: member, Key: key, Required: true}
}

// Optional returns a copy of the point that is skipped when unresolvable.
func (p InjectionPoint) Optional() InjectionPoint {
	p.Required = false
	return p
}
