package v0

import "encoding/json"

// Mensajes que la escena recibe via window.postMessage.
// - SKU_details: configura un producto (font/engravingText/printImage opcionales)
// - CameraChange: mueve la camara al indice dado
const (
	TypeSKUDetails   = "SKU_details"
	TypeCameraChange = "CameraChange"
)

// Property keys forwarded from an order specification.
const (
	PropFont          = "font"
	PropEngravingText = "engravingText"
	PropPrintImage    = "printImage"
)

// Command is anything that can be posted to the scene.
type Command interface {
	CommandType() string
}

type SKUDetails struct {
	Type          string `json:"type"`
	SKU           string `json:"sku"`
	Font          any    `json:"font,omitempty"`
	EngravingText any    `json:"engravingText,omitempty"`
	PrintImage    any    `json:"printImage,omitempty"`
}

func (SKUDetails) CommandType() string { return TypeSKUDetails }

type CameraChange struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

func (CameraChange) CommandType() string { return TypeCameraChange }

// NewSKUDetails builds the command for one SKU. Recognized properties are
// copied only when truthy; anything else in props is ignored.
func NewSKUDetails(sku string, props map[string]any) SKUDetails {
	cmd := SKUDetails{Type: TypeSKUDetails, SKU: sku}
	if v, ok := props[PropFont]; ok && truthy(v) {
		cmd.Font = v
	}
	if v, ok := props[PropEngravingText]; ok && truthy(v) {
		cmd.EngravingText = v
	}
	if v, ok := props[PropPrintImage]; ok && truthy(v) {
		cmd.PrintImage = v
	}
	return cmd
}

func NewCameraChange(index int) CameraChange {
	return CameraChange{Type: TypeCameraChange, Index: index}
}

// PostMessageExpr renders the JS that delivers cmd to the page.
func PostMessageExpr(cmd Command) (string, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}
	return "window.postMessage(" + string(b) + `, "*")`, nil
}

// truthy follows JS truthiness for JSON-decoded values.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case int:
		return t != 0
	default:
		return true
	}
}
