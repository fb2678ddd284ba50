// Package schema provides the collection registry: which collections exist,
// which field identifies a record, and which fields every record must carry.
package schema

import (
	"fmt"
)

// Collection describes one named category of records.
type Collection struct {
	Name       string
	Identifier string
	Required   []string
}

// ConfigurationError is returned when registry metadata is requested for a
// collection that is not registered.
type ConfigurationError struct {
	Collection string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no registry entry for collection %q", e.Collection)
}

// registry is the fixed, ordered set of collections. Seeding walks it in order.
var registry = []Collection{
	{
		Name:       "clientes",
		Identifier: "dni",
		Required:   []string{"dni", "nombres", "email", "telefono", "edad", "genero"},
	},
	{
		Name:       "productos",
		Identifier: "codigo",
		Required:   []string{"codigo", "nombre", "categoria", "precio", "stock"},
	},
	{
		Name:       "pedidos",
		Identifier: "codigo",
		Required:   []string{"codigo", "clienteId", "fecha", "subtotal", "iva", "total", "estado"},
	},
	{
		Name:       "detalle_pedido",
		Identifier: "codigo",
		Required:   []string{"codigo", "productoId", "cantidad", "detalle", "precioUnit"},
	},
}

var byName = func() map[string]int {
	m := make(map[string]int, len(registry))
	for i, c := range registry {
		m[c.Name] = i
	}
	return m
}()

// Collections returns every registered collection in registry order.
func Collections() []Collection {
	out := make([]Collection, 0, len(registry))
	for _, c := range registry {
		out = append(out, c.clone())
	}
	return out
}

// Names returns the registered collection names in registry order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, c := range registry {
		names = append(names, c.Name)
	}
	return names
}

// Lookup returns the collection registered under name.
func Lookup(name string) (Collection, bool) {
	i, ok := byName[name]
	if !ok {
		return Collection{}, false
	}
	return registry[i].clone(), true
}

// IsValidCollection reports whether name is a registered collection.
func IsValidCollection(name string) bool {
	_, ok := byName[name]
	return ok
}

// IdentifierField returns the name of the field that identifies records of
// the collection.
func IdentifierField(name string) (string, error) {
	i, ok := byName[name]
	if !ok {
		return "", &ConfigurationError{Collection: name}
	}
	return registry[i].Identifier, nil
}

// RequiredFields returns the ordered required fields of the collection.
func RequiredFields(name string) ([]string, error) {
	i, ok := byName[name]
	if !ok {
		return nil, &ConfigurationError{Collection: name}
	}
	return append([]string(nil), registry[i].Required...), nil
}

// Validate returns the required fields that are absent or null in record, in
// registry order. An empty result means the record is valid. Unknown
// collections have no required fields.
func Validate(name string, record map[string]any) []string {
	i, ok := byName[name]
	if !ok {
		return nil
	}
	var missing []string
	for _, field := range registry[i].Required {
		if v, exists := record[field]; !exists || v == nil {
			missing = append(missing, field)
		}
	}
	return missing
}

// Describe returns a JSON-schema style description of the collection.
func Describe(name string) (map[string]any, bool) {
	c, ok := Lookup(name)
	if !ok {
		return nil, false
	}
	required := make([]any, 0, len(c.Required))
	for _, f := range c.Required {
		required = append(required, f)
	}
	return map[string]any{
		"type":         "object",
		"title":        c.Name,
		"required":     required,
		"x-identifier": c.Identifier,
	}, true
}

func (c Collection) clone() Collection {
	c.Required = append([]string(nil), c.Required...)
	return c
}
