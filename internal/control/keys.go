package control

import "strings"

// keyAliases maps OS and locale variants onto canonical key names
var keyAliases = map[string]string{
	"win":      "cmd",
	"win_l":    "cmd_l",
	"win_r":    "cmd_r",
	"windows":  "cmd",
	"super":    "cmd",
	"super_l":  "cmd_l",
	"super_r":  "cmd_r",
	"meta":     "cmd",
	"meta_l":   "cmd_l",
	"meta_r":   "cmd_r",
	"command":  "cmd",
	"control":  "ctrl",
	"strg":     "ctrl",
	"option":   "alt",
	"altgr":    "alt_gr",
	"escape":   "esc",
	"return":   "enter",
	"del":      "delete",
	"pageup":   "page_up",
	"pagedown": "page_down",
	"left":     "arrow_left",
	"right":    "arrow_right",
	"up":       "arrow_up",
	"down":     "arrow_down",
}

var modifierKeys = map[string]bool{
	"ctrl": true, "ctrl_l": true, "ctrl_r": true,
	"alt": true, "alt_l": true, "alt_r": true, "alt_gr": true,
	"shift": true, "shift_l": true, "shift_r": true,
	"cmd": true, "cmd_l": true, "cmd_r": true,
}

var arrowKeys = map[string]bool{
	"arrow_left": true, "arrow_right": true, "arrow_up": true, "arrow_down": true,
}

// NormalizeKey lowercases a key name and resolves aliases, e.g. "Win" -> "cmd"
func NormalizeKey(name string) string {
	k := strings.ToLower(strings.TrimSpace(name))
	if canon, ok := keyAliases[k]; ok {
		return canon
	}
	return k
}

// IsModifier reports whether the canonical name is a modifier key
func IsModifier(name string) bool {
	return modifierKeys[name]
}

// IsArrow reports whether the canonical name is an arrow key
func IsArrow(name string) bool {
	return arrowKeys[name]
}

// hasNativePath reports whether the key should try the platform fast path first
func hasNativePath(name string) bool {
	switch name {
	case "cmd", "cmd_l", "cmd_r":
		return true
	}
	return IsArrow(name)
}
