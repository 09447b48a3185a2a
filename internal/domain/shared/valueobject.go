package shared

import "reflect"

// ValueObject holds an immutable bag of properties compared by value.
// Embed it in a named type to get structural equality. The promoted Equals
// cannot see the embedding type, so a named type should override it with
// SameValue to tell itself apart from other types over the same props:
//
//	type Money struct{ shared.ValueObject[moneyProps] }
//
//	func (m Money) Equals(other any) bool { return shared.SameValue[moneyProps](m, other) }
type ValueObject[T any] struct {
	props T
}

// NewValueObject wraps props. Reference-typed props (slices, maps) should be
// copied by the caller before handing them over.
func NewValueObject[T any](props T) ValueObject[T] {
	return ValueObject[T]{props: props}
}

// Props returns a copy of the wrapped properties
func (v ValueObject[T]) Props() T {
	return v.props
}

// propsCarrier matches ValueObject[T] and every type embedding it
type propsCarrier[T any] interface {
	Props() T
}

// Equals reports structural equality with another value object carrying the
// same property type. It never panics.
func (v ValueObject[T]) Equals(other any) bool {
	if other == nil {
		return false
	}
	o, ok := other.(propsCarrier[T])
	if !ok {
		return false
	}
	if rv := reflect.ValueOf(other); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return false
	}
	return v.equalsTo(o.Props())
}

// SameValue is Equals for a type embedding ValueObject[T]: other must be of
// the same concrete type as self, or a pointer to it, and carry equal props.
func SameValue[T any](self propsCarrier[T], other any) bool {
	if other == nil || derefType(reflect.TypeOf(other)) != derefType(reflect.TypeOf(self)) {
		return false
	}
	return NewValueObject(self.Props()).Equals(other)
}

func derefType(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}

func (v ValueObject[T]) equalsTo(other T) bool {
	return structurallyEqual(reflect.ValueOf(&v.props).Elem(), reflect.ValueOf(&other).Elem())
}

// valueEqualer is implemented by nested value objects
type valueEqualer interface {
	Equals(other any) bool
}

var valueEqualerType = reflect.TypeOf((*valueEqualer)(nil)).Elem()

// structurallyEqual walks a and b key by key. Nested value objects delegate to
// their own Equals, types with an Equal(T) bool method (decimal.Decimal,
// time.Time) use it, everything else recurses down to primitives.
func structurallyEqual(a, b reflect.Value) bool {
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}
	if a.Type() != b.Type() {
		return false
	}

	if a.CanInterface() && b.CanInterface() {
		if a.Type().Implements(valueEqualerType) && !isNilable(a) {
			return a.Interface().(valueEqualer).Equals(b.Interface())
		}
		if eq, ok := equalMethod(a); ok {
			return eq.Call([]reflect.Value{b})[0].Bool()
		}
	}

	switch a.Kind() {
	case reflect.Pointer, reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		return structurallyEqual(a.Elem(), b.Elem())
	case reflect.Slice, reflect.Array:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !structurallyEqual(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if a.Len() != b.Len() {
			return false
		}
		iter := a.MapRange()
		for iter.Next() {
			bv := b.MapIndex(iter.Key())
			if !bv.IsValid() || !structurallyEqual(iter.Value(), bv) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !structurallyEqual(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	default:
		return a.Equal(b)
	}
}

func isNilable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// equalMethod finds an Equal(T) bool method on v's own type
func equalMethod(v reflect.Value) (reflect.Value, bool) {
	m := v.MethodByName("Equal")
	if !m.IsValid() {
		return reflect.Value{}, false
	}
	mt := m.Type()
	if mt.NumIn() != 1 || mt.NumOut() != 1 || mt.In(0) != v.Type() || mt.Out(0).Kind() != reflect.Bool {
		return reflect.Value{}, false
	}
	return m, true
}
