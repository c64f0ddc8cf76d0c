//go:build darwin

package keystate

import (
	"golang.design/x/hotkey"

	"snapsight/combo"
)

var modifierMap = map[combo.Key]hotkey.Modifier{
	"lctrl":   hotkey.ModCtrl,
	"rctrl":   hotkey.ModCtrl,
	"lshift":  hotkey.ModShift,
	"rshift":  hotkey.ModShift,
	"lalt":    hotkey.ModOption,
	"ralt":    hotkey.ModOption,
	"lmeta":   hotkey.ModCmd,
	"rmeta":   hotkey.ModCmd,
	"command": hotkey.ModCmd,
}

func Diagnose() (string, error) {
	return "global hotkeys via Carbon; grant Accessibility if the combo is never seen", nil
}

func PermissionHint() string {
	return "Grant Accessibility and Screen Recording in System Settings > Privacy & Security, then restart the terminal"
}
