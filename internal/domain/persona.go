package domain

import (
	"maps"
	"slices"
)

// PersonaRole names the job a persona performs in a conversation.
type PersonaRole string

const (
	RoleSales   PersonaRole = "sales"
	RoleBilling PersonaRole = "billing"
	RoleOrder   PersonaRole = "order"
	RoleReturns PersonaRole = "returns"
	RoleStock   PersonaRole = "stock"
	RoleCare    PersonaRole = "care"
)

// Roles lists every persona role.
var Roles = []PersonaRole{RoleSales, RoleBilling, RoleOrder, RoleReturns, RoleStock, RoleCare}

// DefaultRoleNames maps roles to the persona name that plays them.
var DefaultRoleNames = map[PersonaRole]string{
	RoleSales:   "Reed",
	RoleBilling: "Val",
	RoleOrder:   "Reed",
	RoleReturns: "Reed",
	RoleStock:   "Alma",
	RoleCare:    "Alma",
}

// Persona is a platform identity a conversation can be attributed to.
type Persona struct {
	Name       string `json:"name" yaml:"name" toml:"name"`
	ID         string `json:"id" yaml:"id" toml:"id"`
	PictureURL string `json:"profile_picture_url,omitempty" yaml:"picture,omitempty" toml:"picture"`
}

// PersonaRegistry maps persona names to platform persona ids. It is built once
// at startup and never mutated afterwards.
type PersonaRegistry struct {
	byName    map[string]Persona
	roleNames map[PersonaRole]string
	roleIDs   map[PersonaRole]string
}

// NewPersonaRegistry builds a registry. roleIDs pins a role to a persona id
// and takes precedence over the id registered for the role's persona name.
func NewPersonaRegistry(personas []Persona, roleIDs map[PersonaRole]string) *PersonaRegistry {
	r := &PersonaRegistry{
		byName:    make(map[string]Persona, len(personas)),
		roleNames: maps.Clone(DefaultRoleNames),
		roleIDs:   make(map[PersonaRole]string),
	}
	for _, p := range personas {
		r.byName[p.Name] = p
	}
	for role, id := range roleIDs {
		if id != "" {
			r.roleIDs[role] = id
		}
	}
	return r
}

// ByName returns the persona registered under name.
func (r *PersonaRegistry) ByName(name string) (Persona, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// ForRole resolves the persona playing role.
func (r *PersonaRegistry) ForRole(role PersonaRole) (Persona, error) {
	name, ok := r.roleNames[role]
	if !ok {
		return Persona{}, ErrUnknownPersona
	}
	if id, ok := r.roleIDs[role]; ok {
		return Persona{Name: name, ID: id}, nil
	}
	p, ok := r.byName[name]
	if !ok || p.ID == "" {
		return Persona{}, ErrUnknownPersona
	}
	return p, nil
}

// Names returns the registered persona names in sorted order.
func (r *PersonaRegistry) Names() []string {
	return slices.Sorted(maps.Keys(r.byName))
}

// Len returns the number of registered personas.
func (r *PersonaRegistry) Len() int {
	return len(r.byName)
}
