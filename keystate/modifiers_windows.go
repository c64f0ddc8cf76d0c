//go:build windows

package keystate

import (
	"golang.design/x/hotkey"

	"snapsight/combo"
)

var modifierMap = map[combo.Key]hotkey.Modifier{
	"lctrl":  hotkey.ModCtrl,
	"rctrl":  hotkey.ModCtrl,
	"lshift": hotkey.ModShift,
	"rshift": hotkey.ModShift,
	"lalt":   hotkey.ModAlt,
	"ralt":   hotkey.ModAlt,
	"lmeta":  hotkey.ModWin,
	"rmeta":  hotkey.ModWin,
}

func Diagnose() (string, error) {
	return "global hotkeys via RegisterHotKey", nil
}

func PermissionHint() string {
	return "Another application may already own this combo; pick a different one with -combo"
}
