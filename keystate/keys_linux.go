//go:build linux

package keystate

import "snapsight/combo"

// evdev codes from linux/input-event-codes.h
var keyNames = map[uint16]combo.Key{
	1:  "escape",
	2:  "1",
	3:  "2",
	4:  "3",
	5:  "4",
	6:  "5",
	7:  "6",
	8:  "7",
	9:  "8",
	10: "9",
	11: "0",
	15: "tab",
	16: "q",
	17: "w",
	18: "e",
	19: "r",
	20: "t",
	21: "y",
	22: "u",
	23: "i",
	24: "o",
	25: "p",
	28: "enter",
	29: "lctrl",
	30: "a",
	31: "s",
	32: "d",
	33: "f",
	34: "g",
	35: "h",
	36: "j",
	37: "k",
	38: "l",
	42: "lshift",
	44: "z",
	45: "x",
	46: "c",
	47: "v",
	48: "b",
	49: "n",
	50: "m",
	54: "rshift",
	56: "lalt",
	57: "space",
	59: "f1",
	60: "f2",
	61: "f3",
	62: "f4",
	63: "f5",
	64: "f6",
	65: "f7",
	66: "f8",
	67: "f9",
	68: "f10",
	87: "f11",
	88: "f12",
	97:  "rctrl",
	100: "ralt",
	125: "lmeta",
	126: "rmeta",
}
