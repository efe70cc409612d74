// Package ubl implementa el parser determinista de documentos electrónicos
// UBL 2.1 (Invoice, CreditNote, DebitNote con extensiones DIAN) hacia el
// modelo de extracción del dominio.
//
// El acceso al árbol XML pasa por una capa de accesores tipados: cada campo
// se lee por su ruta de nombres locales (independiente del prefijo cbc:/cac:)
// y la ausencia de un campo obligatorio produce un error tipado con la ruta,
// en lugar de un opcional silenciosamente vacío.
package ubl

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Recepcion-api/internal/domain"
)

// node envuelve un elemento etree. Un node vacío (elemento nil) es válido:
// todas las lecturas sobre él reportan ausencia, lo que permite encadenar
// rutas sin chequeos intermedios.
type node struct {
	el   *etree.Element
	path string // ruta acumulada para mensajes de error
}

func wrap(el *etree.Element) node {
	if el == nil {
		return node{}
	}
	return node{el: el, path: el.Tag}
}

func (n node) present() bool { return n.el != nil }

// child baja al primer hijo con ese nombre local, sin importar el prefijo
// de namespace (cbc:ID y ID son equivalentes).
func (n node) child(local string) node {
	if n.el == nil {
		return node{path: n.path + "/" + local}
	}
	for _, c := range n.el.ChildElements() {
		if c.Tag == local {
			return node{el: c, path: n.path + "/" + local}
		}
	}
	return node{path: n.path + "/" + local}
}

// at navega una ruta de nombres locales.
func (n node) at(locals ...string) node {
	cur := n
	for _, l := range locals {
		cur = cur.child(l)
	}
	return cur
}

// children devuelve todos los hijos directos con ese nombre local, en orden
// de documento.
func (n node) children(local string) []node {
	if n.el == nil {
		return nil
	}
	var out []node
	for _, c := range n.el.ChildElements() {
		if c.Tag == local {
			out = append(out, node{el: c, path: n.path + "/" + local})
		}
	}
	return out
}

// text devuelve el texto del elemento, "" si la ruta no existe.
func (n node) text(locals ...string) string {
	t := n.at(locals...)
	if t.el == nil {
		return ""
	}
	return strings.TrimSpace(t.el.Text())
}

// has reporta si la ruta existe en el documento (el tag está presente,
// aunque su texto esté vacío).
func (n node) has(locals ...string) bool {
	return n.at(locals...).present()
}

// attr devuelve el valor de un atributo del elemento en la ruta, "" si no existe.
func (n node) attr(name string, locals ...string) string {
	t := n.at(locals...)
	if t.el == nil {
		return ""
	}
	return t.el.SelectAttrValue(name, "")
}

// requiredText devuelve el texto de la ruta o un FieldError si está ausente
// o vacío. Nunca sustituye un valor por defecto.
func (n node) requiredText(locals ...string) (string, error) {
	t := n.at(locals...)
	if t.el == nil || strings.TrimSpace(t.el.Text()) == "" {
		return "", domain.NewFieldError(t.path)
	}
	return strings.TrimSpace(t.el.Text()), nil
}

// amount lee un monto decimal; ausencia vale cero, texto no numérico es
// documento malformado (ruido de deriva de esquema, no un opcional).
func (n node) amount(locals ...string) (decimal.Decimal, error) {
	t := n.at(locals...)
	if t.el == nil {
		return decimal.Zero, nil
	}
	raw := strings.TrimSpace(t.el.Text())
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: valor no numérico en %s: %q", domain.ErrMalformedDocument, t.path, raw)
	}
	return d, nil
}
