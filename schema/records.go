package schema

import (
	"encoding/json"
)

// Record is a typed variant of a collection document. Each registered
// collection has exactly one implementation, so a value of a concrete type
// always carries every required field.
type Record interface {
	CollectionName() string
}

// Cliente is a record of the "clientes" collection.
type Cliente struct {
	DNI      string `json:"dni"`
	Nombres  string `json:"nombres"`
	Email    string `json:"email"`
	Telefono string `json:"telefono"`
	Edad     int    `json:"edad"`
	Genero   string `json:"genero"`
}

func (Cliente) CollectionName() string { return "clientes" }

// Producto is a record of the "productos" collection.
type Producto struct {
	Codigo    string  `json:"codigo"`
	Nombre    string  `json:"nombre"`
	Categoria string  `json:"categoria"`
	Precio    float64 `json:"precio"`
	Stock     int     `json:"stock"`
}

func (Producto) CollectionName() string { return "productos" }

// Pedido is a record of the "pedidos" collection.
type Pedido struct {
	Codigo    string  `json:"codigo"`
	ClienteID string  `json:"clienteId"`
	Fecha     string  `json:"fecha"`
	Subtotal  float64 `json:"subtotal"`
	IVA       float64 `json:"iva"`
	Total     float64 `json:"total"`
	Estado    string  `json:"estado"`
}

func (Pedido) CollectionName() string { return "pedidos" }

// DetallePedido is a record of the "detalle_pedido" collection.
type DetallePedido struct {
	Codigo     string  `json:"codigo"`
	ProductoID string  `json:"productoId"`
	Cantidad   int     `json:"cantidad"`
	Detalle    string  `json:"detalle"`
	PrecioUnit float64 `json:"precioUnit"`
}

func (DetallePedido) CollectionName() string { return "detalle_pedido" }

// ToDocument converts a typed record into its generic document form.
func ToDocument(r Record) (map[string]any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decode parses raw JSON into the typed variant of the named collection.
func Decode(name string, raw []byte) (Record, error) {
	var r Record
	switch name {
	case "clientes":
		var v Cliente
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		r = v
	case "productos":
		var v Producto
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		r = v
	case "pedidos":
		var v Pedido
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		r = v
	case "detalle_pedido":
		var v DetallePedido
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		r = v
	default:
		return nil, &ConfigurationError{Collection: name}
	}
	return r, nil
}
