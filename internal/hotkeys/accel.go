package hotkeys

import (
	"fmt"
	"strconv"
	"strings"
)

// Modifier represents a hotkey modifier bitmask. Values follow the Win32
// RegisterHotKey modifier space; non-Windows builds use them for parsing
// and display only.
type Modifier uint32

// VKey represents a virtual-key code (Win32 virtual-key space).
type VKey uint32

// Binding describes a parsed accelerator.
// Construct only via ParseAccelerator to guarantee invariant consistency.
type Binding struct {
	modifiers  Modifier
	key        VKey
	normalized string
}

// Modifiers returns the modifier bitmask.
func (b Binding) Modifiers() Modifier { return b.modifiers }

// Key returns the virtual-key code.
func (b Binding) Key() VKey { return b.key }

// Normalized returns the canonical human-readable accelerator string.
func (b Binding) Normalized() string { return b.normalized }

const (
	modAlt     Modifier = 0x0001
	modControl Modifier = 0x0002
	modShift   Modifier = 0x0004
	modWin     Modifier = 0x0008
)

const (
	vkSpace  VKey = 0x20
	vkTab    VKey = 0x09
	vkReturn VKey = 0x0D
	vkEscape VKey = 0x1B
	vkDelete VKey = 0x2E
	vkLeft   VKey = 0x25
	vkUp     VKey = 0x26
	vkRight  VKey = 0x27
	vkDown   VKey = 0x28
	vkOem1   VKey = 0xBA
	vkComma  VKey = 0xBC
	vkPeriod VKey = 0xBE
	vkOem3   VKey = 0xC0
	vkF1     VKey = 0x70
	vkF2     VKey = 0x71
	vkF3     VKey = 0x72
	vkF4     VKey = 0x73
	vkF5     VKey = 0x74
	vkF6     VKey = 0x75
	vkF7     VKey = 0x76
	vkF8     VKey = 0x77
	vkF9     VKey = 0x78
	vkF10    VKey = 0x79
	vkF11    VKey = 0x7A
	vkF12    VKey = 0x7B
)

var modifierByName = map[string]Modifier{
	"CTRL":    modControl,
	"CONTROL": modControl,
	"SHIFT":   modShift,
	"ALT":     modAlt,
	"WIN":     modWin,
	"SUPER":   modWin,
}

var keyByName = map[string]VKey{
	"SPACE":  vkSpace,
	"TAB":    vkTab,
	"ENTER":  vkReturn,
	"RETURN": vkReturn,
	"ESC":    vkEscape,
	"ESCAPE": vkEscape,
	"DELETE": vkDelete,
	"LEFT":   vkLeft,
	"RIGHT":  vkRight,
	"UP":     vkUp,
	"DOWN":   vkDown,
}

var functionKeys = map[string]VKey{
	"F1":  vkF1,
	"F2":  vkF2,
	"F3":  vkF3,
	"F4":  vkF4,
	"F5":  vkF5,
	"F6":  vkF6,
	"F7":  vkF7,
	"F8":  vkF8,
	"F9":  vkF9,
	"F10": vkF10,
	"F11": vkF11,
	"F12": vkF12,
}

// ParseAccelerator parses an accelerator like "Ctrl+Shift+F12".
func ParseAccelerator(spec string) (Binding, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Binding{}, fmt.Errorf("accelerator is empty")
	}

	parts := strings.Split(raw, "+")
	if len(parts) < 2 {
		return Binding{}, fmt.Errorf("accelerator must include modifiers and key: %s", raw)
	}

	var modifiers Modifier
	seen := map[Modifier]struct{}{}
	var normalizedMods []string

	for _, token := range parts[:len(parts)-1] {
		name := strings.ToUpper(strings.TrimSpace(token))
		mod, ok := modifierByName[name]
		if !ok {
			return Binding{}, fmt.Errorf("unknown modifier %q in accelerator %q", token, raw)
		}
		if _, exists := seen[mod]; exists {
			continue
		}
		seen[mod] = struct{}{}
		modifiers |= mod
		normalizedMods = append(normalizedMods, normalizeModifierName(mod))
	}

	keyToken := strings.TrimSpace(parts[len(parts)-1])
	key, normalizedKey, err := parseKey(keyToken)
	if err != nil {
		return Binding{}, err
	}

	if modifiers == 0 {
		return Binding{}, fmt.Errorf("at least one modifier is required: %q", raw)
	}

	normalized := strings.Join(append(normalizedMods, normalizedKey), "+")
	return Binding{
		modifiers:  modifiers,
		key:        key,
		normalized: normalized,
	}, nil
}

func parseKey(raw string) (VKey, string, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return 0, "", fmt.Errorf("missing accelerator key token")
	}

	if key, ok := functionKeys[token]; ok {
		return key, token, nil
	}
	if key, ok := keyByName[token]; ok {
		return key, token, nil
	}

	if len(token) == 1 {
		ch := token[0]
		if ch >= 'A' && ch <= 'Z' {
			return VKey(ch), token, nil
		}
		if ch >= '0' && ch <= '9' {
			return VKey(ch), token, nil
		}
		switch ch {
		case '`':
			return vkOem3, "`", nil
		case ',':
			return vkComma, ",", nil
		case '.':
			return vkPeriod, ".", nil
		case ';':
			return vkOem1, ";", nil
		}
	}

	switch token {
	case "BACKQUOTE", "GRAVE":
		return vkOem3, "`", nil
	case "COMMA":
		return vkComma, ",", nil
	case "PERIOD":
		return vkPeriod, ".", nil
	case "SEMICOLON":
		return vkOem1, ";", nil
	}

	if strings.HasPrefix(token, "0X") {
		value, err := strconv.ParseUint(token[2:], 16, 16)
		if err != nil {
			return 0, "", fmt.Errorf("invalid hex key %q", raw)
		}
		if value == 0 {
			return 0, "", fmt.Errorf("key code 0x0000 is not a valid virtual key")
		}
		return VKey(value), token, nil
	}

	return 0, "", fmt.Errorf("unknown key %q in accelerator", raw)
}

func normalizeModifierName(mod Modifier) string {
	switch mod {
	case modControl:
		return "Ctrl"
	case modShift:
		return "Shift"
	case modAlt:
		return "Alt"
	case modWin:
		return "Win"
	default:
		return "Mod"
	}
}
