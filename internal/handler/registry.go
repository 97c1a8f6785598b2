package handler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrHandlerExists       = errors.New("handler already registered")
	ErrHandlerNil          = errors.New("handler is nil")
	ErrInvalidRegistration = errors.New("invalid handler registration")
)

// NamespaceLen is the number of hex chars in an address namespace prefix.
const NamespaceLen = 6

// Registration is the immutable identity of one registered handler.
type Registration struct {
	FamilyName     string
	FamilyVersions []string
	Namespaces     []string
	Encodings      []string
}

type key struct {
	family  string
	version string
}

type entry struct {
	handler    Handler
	encodings  map[string]struct{}
	namespaces []string
}

// Registry maps (family, version) to a handler. It is populated before the
// processor connects and read-only afterwards.
type Registry struct {
	items map[key]entry
	order []Handler
	regs  []Registration
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[key]entry)}
}

// RegistrationOf captures h's identity, validating names, versions and namespaces.
func RegistrationOf(h Handler) (Registration, error) {
	if h == nil {
		return Registration{}, ErrHandlerNil
	}
	reg := Registration{
		FamilyName:     strings.TrimSpace(h.FamilyName()),
		FamilyVersions: append([]string(nil), h.FamilyVersions()...),
		Namespaces:     append([]string(nil), h.Namespaces()...),
	}
	if eh, ok := h.(EncodingHandler); ok {
		reg.Encodings = append([]string(nil), eh.PayloadEncodings()...)
	}
	if reg.FamilyName == "" {
		return Registration{}, fmt.Errorf("%w: family name required", ErrInvalidRegistration)
	}
	if len(reg.FamilyVersions) == 0 {
		return Registration{}, fmt.Errorf("%w: %s: at least one version required", ErrInvalidRegistration, reg.FamilyName)
	}
	for _, v := range reg.FamilyVersions {
		if strings.TrimSpace(v) == "" {
			return Registration{}, fmt.Errorf("%w: %s: empty version", ErrInvalidRegistration, reg.FamilyName)
		}
	}
	if len(reg.Namespaces) == 0 {
		return Registration{}, fmt.Errorf("%w: %s: at least one namespace required", ErrInvalidRegistration, reg.FamilyName)
	}
	for _, ns := range reg.Namespaces {
		if !IsNamespace(ns) {
			return Registration{}, fmt.Errorf("%w: %s: invalid namespace %q", ErrInvalidRegistration, reg.FamilyName, ns)
		}
	}
	return reg, nil
}

// Register adds h under each of its family versions.
func (r *Registry) Register(h Handler) error {
	reg, err := RegistrationOf(h)
	if err != nil {
		return err
	}
	for _, v := range reg.FamilyVersions {
		if _, ok := r.items[key{reg.FamilyName, v}]; ok {
			return fmt.Errorf("%w: %s %s", ErrHandlerExists, reg.FamilyName, v)
		}
	}
	var encodings map[string]struct{}
	if len(reg.Encodings) > 0 {
		encodings = make(map[string]struct{}, len(reg.Encodings))
		for _, enc := range reg.Encodings {
			encodings[enc] = struct{}{}
		}
	}
	for _, v := range reg.FamilyVersions {
		r.items[key{reg.FamilyName, v}] = entry{handler: h, encodings: encodings, namespaces: reg.Namespaces}
	}
	r.order = append(r.order, h)
	r.regs = append(r.regs, reg)
	return nil
}

// Resolve finds the handler for (family, version). When the handler lists
// payload encodings, encoding must be one of them.
func (r *Registry) Resolve(family, version, encoding string) (Handler, bool) {
	h, _, ok := r.Lookup(family, version, encoding)
	return h, ok
}

// Lookup is Resolve that also returns the namespaces captured at Register
// time. The slice is shared and must not be modified.
func (r *Registry) Lookup(family, version, encoding string) (Handler, []string, bool) {
	e, ok := r.items[key{family, version}]
	if !ok {
		return nil, nil, false
	}
	if e.encodings != nil {
		if _, ok := e.encodings[encoding]; !ok {
			return nil, nil, false
		}
	}
	return e.handler, e.namespaces, true
}

// Handlers returns registered handlers in registration order.
func (r *Registry) Handlers() []Handler {
	return append([]Handler(nil), r.order...)
}

// Registrations returns copies of the registrations captured at Register
// time, ordered by family name.
func (r *Registry) Registrations() []Registration {
	list := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		list = append(list, reg.clone())
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].FamilyName < list[j].FamilyName
	})
	return list
}

func (reg Registration) clone() Registration {
	return Registration{
		FamilyName:     reg.FamilyName,
		FamilyVersions: append([]string(nil), reg.FamilyVersions...),
		Namespaces:     append([]string(nil), reg.Namespaces...),
		Encodings:      append([]string(nil), reg.Encodings...),
	}
}

func (r *Registry) Len() int {
	return len(r.order)
}

// IsNamespace reports whether ns is a 6-char lowercase hex prefix.
func IsNamespace(ns string) bool {
	return len(ns) == NamespaceLen && IsLowerHex(ns)
}

// IsLowerHex reports whether s is non-empty lowercase hex.
func IsLowerHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
